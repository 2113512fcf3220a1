package redis

import (
	"context"
	"math"
	"strconv"

	"github.com/kailas-cloud/quotagate/internal/db"
)

// ZAdd adds or updates a member's score.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	cmd := s.b().Zadd().Key(key).ScoreMember().ScoreMember(score, member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZAdd, Err: err}
	}
	return nil
}

// ZRangeByScore returns members in [minScore, maxScore], ascending by score.
func (s *Store) ZRangeByScore(
	ctx context.Context, key string, minScore, maxScore float64, limit int,
) ([]string, error) {
	base := s.b().Zrangebyscore().Key(key).Min(scoreArg(minScore)).Max(scoreArg(maxScore))
	var res []string
	var err error
	if limit > 0 {
		res, err = s.do(ctx, base.Limit(0, int64(limit)).Build()).AsStrSlice()
	} else {
		res, err = s.do(ctx, base.Build()).AsStrSlice()
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpZRange, Err: err}
	}
	return res, nil
}

// ZRem removes a member.
func (s *Store) ZRem(ctx context.Context, key string, member string) error {
	cmd := s.b().Zrem().Key(key).Member(member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZRem, Err: err}
	}
	return nil
}

func scoreArg(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
