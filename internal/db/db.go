package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // repositories depend on the narrow sub-interfaces
type Store interface {
	Pinger
	HashStore
	VersionedHashStore
	KVStore
	SortedSetStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash reads. Writes go through VersionedHashStore.
type HashStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// VersionField is the hash field holding the compare-and-swap version.
const VersionField = "version"

// VersionedHashStore provides atomic conditional writes on hashes.
type VersionedHashStore interface {
	// CompareAndSwap writes fields and bumps VersionField only if the stored
	// version equals expected (a missing hash has version 0).
	// Returns the new version, or ErrVersionConflict.
	CompareAndSwap(ctx context.Context, key string, expected int64, fields map[string]string) (int64, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX stores value only if key is absent. ttl <= 0 means no expiry.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DelIfEqual deletes key only if it still holds value.
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)
}

// SortedSetStore provides score-ordered member sets.
type SortedSetStore interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRangeByScore returns members with min <= score <= max in ascending score order.
	// limit <= 0 returns all matches.
	ZRangeByScore(ctx context.Context, key string, minScore, maxScore float64, limit int) ([]string, error)
	ZRem(ctx context.Context, key string, member string) error
}
