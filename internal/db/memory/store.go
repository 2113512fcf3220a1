// Package memory is a process-local db.Store for single-instance deployments and tests.
// All operations share one mutex, so every CompareAndSwap is trivially linearizable.
package memory

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/quotagate/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type kvEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Store keeps hashes, strings and sorted sets in maps.
type Store struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	kv     map[string]kvEntry
	zsets  map[string]map[string]float64
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for TTL expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		hashes: make(map[string]map[string]string),
		kv:     make(map[string]kvEntry),
		zsets:  make(map[string]map[string]float64),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// --- hashes ---

// HGetAll returns a copy of all hash fields. A missing key yields an empty map.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyHash(s.hashes[key]), nil
}

// HGetAllMulti returns copies of several hashes.
func (s *Store) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = copyHash(s.hashes[k])
	}
	return out, nil
}

// CompareAndSwap writes fields if the stored version equals expected.
func (s *Store) CompareAndSwap(
	_ context.Context, key string, expected int64, fields map[string]string,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.hashes[key]
	var cur int64
	if raw, ok := h[db.VersionField]; ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, &db.Error{Op: db.OpCAS, Err: err}
		}
		cur = v
	}
	if cur != expected {
		return 0, db.ErrVersionConflict
	}

	if h == nil {
		h = make(map[string]string, len(fields)+1)
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	next := cur + 1
	h[db.VersionField] = strconv.FormatInt(next, 10)
	return next, nil
}

// Scan returns keys matching a glob pattern, sorted.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	match := func(k string) {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	for k := range s.hashes {
		match(k)
	}
	for k := range s.kv {
		if _, ok := s.liveKV(k); ok {
			match(k)
		}
	}
	for k := range s.zsets {
		match(k)
	}
	sort.Strings(keys)
	return keys, nil
}

// --- strings ---

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveKV(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a value without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = kvEntry{value: append([]byte(nil), value...)}
	return nil
}

// SetNX stores value only if key is absent or expired.
func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveKV(key); ok {
		return false, nil
	}
	e := kvEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.kv[key] = e
	return true, nil
}

// DelIfEqual deletes key only while it still holds value.
func (s *Store) DelIfEqual(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveKV(key)
	if !ok || string(e.value) != string(value) {
		return false, nil
	}
	delete(s.kv, key)
	return true, nil
}

// liveKV returns an unexpired entry, evicting expired ones. Caller holds mu.
func (s *Store) liveKV(key string) (kvEntry, bool) {
	e, ok := s.kv[key]
	if !ok {
		return kvEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.kv, key)
		return kvEntry{}, false
	}
	return e, true
}

// --- sorted sets ---

// ZAdd adds or updates a member's score.
func (s *Store) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

// ZRangeByScore returns members in [minScore, maxScore] ordered by score, then member.
func (s *Store) ZRangeByScore(
	_ context.Context, key string, minScore, maxScore float64, limit int,
) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		member string
		score  float64
	}
	var hits []scored
	for m, sc := range s.zsets[key] {
		if sc >= minScore && sc <= maxScore {
			hits = append(hits, scored{m, sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].member < hits[j].member
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.member
	}
	return out, nil
}

// ZRem removes a member.
func (s *Store) ZRem(_ context.Context, key string, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if z, ok := s.zsets[key]; ok {
		delete(z, member)
		if len(z) == 0 {
			delete(s.zsets, key)
		}
	}
	return nil
}

func copyHash(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
