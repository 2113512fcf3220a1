// Package lease provides short-lived owner-checked claims on a key.
// A crashed holder's claim expires after its TTL, so claims never deadlock.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// store is the consumer interface for lease operations (ISP).
type store interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)
}

// Store issues claims under {prefix}claim:{name}.
type Store struct {
	store  store
	prefix string
}

// New creates a lease store.
func New(s store, prefix string) *Store {
	return &Store{store: s, prefix: prefix}
}

// Claim is a held lease. Release it with Store.Release.
type Claim struct {
	key   string
	token string
}

// Acquire claims name for ttl. ok=false means another holder has it.
func (s *Store) Acquire(ctx context.Context, name string, ttl time.Duration) (Claim, bool, error) {
	if ttl <= 0 {
		return Claim{}, false, fmt.Errorf("lease ttl must be positive")
	}
	c := Claim{key: s.key(name), token: uuid.NewString()}
	ok, err := s.store.SetNX(ctx, c.key, []byte(c.token), ttl)
	if err != nil {
		return Claim{}, false, fmt.Errorf("lease SETNX %s: %w", c.key, err)
	}
	if !ok {
		return Claim{}, false, nil
	}
	return c, true, nil
}

// Release drops the claim if it is still ours. An expired claim is not an error.
func (s *Store) Release(ctx context.Context, c Claim) error {
	if c.key == "" {
		return nil
	}
	if _, err := s.store.DelIfEqual(ctx, c.key, []byte(c.token)); err != nil {
		return fmt.Errorf("lease release %s: %w", c.key, err)
	}
	return nil
}

func (s *Store) key(name string) string {
	return fmt.Sprintf("%sclaim:%s", s.prefix, name)
}
