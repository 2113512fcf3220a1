package redis

import (
	"context"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/quotagate/internal/db"
)

// casSource bumps the version field and writes ARGV pairs only when the
// stored version matches ARGV[1]. A missing hash has version 0.
// Returns the new version, or -1 on mismatch.
const casSource = `
local cur = redis.call('HGET', KEYS[1], ARGV[2])
if not cur then cur = '0' end
if cur ~= ARGV[1] then return -1 end
local nextv = tonumber(cur) + 1
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('HSET', KEYS[1], ARGV[2], tostring(nextv))
return nextv
`

const delIfEqualSource = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

var (
	casScript        = rueidis.NewLuaScript(casSource)
	delIfEqualScript = rueidis.NewLuaScript(delIfEqualSource)
)

// CompareAndSwap writes fields if the hash version equals expected.
// The script runs atomically on the server, which makes every successful
// swap on a key part of a single total order.
func (s *Store) CompareAndSwap(
	ctx context.Context, key string, expected int64, fields map[string]string,
) (int64, error) {
	args := make([]string, 0, 2+2*len(fields))
	args = append(args, strconv.FormatInt(expected, 10), db.VersionField)
	for k, v := range fields {
		if k == db.VersionField {
			continue
		}
		args = append(args, k, v)
	}

	next, err := casScript.Exec(ctx, s.client, []string{key}, args).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpCAS, Err: err}
	}
	if next < 0 {
		return 0, db.ErrVersionConflict
	}
	return next, nil
}
