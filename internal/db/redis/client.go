// Package redis is the shared-state backend used in production: versioned
// hashes behind a Lua CAS script, SET NX PX leases and expiry zsets.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/quotagate/internal/db"
)

var _ db.Store = (*Store)(nil)

// DefaultClientName tags connections in CLIENT LIST when Config.ClientName is empty.
const DefaultClientName = "quotagate"

// readinessPoll is the interval between PINGs in WaitForReady.
const readinessPoll = 100 * time.Millisecond

// Config holds connection parameters for a Redis or Valkey deployment.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	ClientName string
}

// Store keeps ledgers, lots, leases and audit records in Redis or Valkey.
// Every conditional write (CAS, lease release) is a single script call, so
// correctness never depends on MULTI/WATCH or client-side caching.
type Store struct {
	client rueidis.Client
}

// NewStore dials the deployment. Client-side caching is off: CAS reads
// must observe the latest version.
func NewStore(cfg Config) (*Store, error) {
	opt, err := clientOption(cfg)
	if err != nil {
		return nil, err
	}
	client, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("connect %v: %w", cfg.Addrs, err)
	}
	return &Store{client: client}, nil
}

func clientOption(cfg Config) (rueidis.ClientOption, error) {
	if len(cfg.Addrs) == 0 {
		return rueidis.ClientOption{}, errors.New("redis store: at least one address is required")
	}
	name := cfg.ClientName
	if name == "" {
		name = DefaultClientName
	}
	return rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   name,
		DisableCache: true,
	}, nil
}

// Ping sends PING.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases all connections. Leases held by this process expire on their own.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady blocks until PING succeeds, timeout elapses or ctx is done.
// Scripts are loaded lazily on first use, so a PONG is enough.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readinessPoll)
	defer ticker.Stop()

	var last error
	for {
		select {
		case <-ctx.Done():
			if last != nil {
				return fmt.Errorf("store not ready: %w (last ping: %w)", ctx.Err(), last)
			}
			return fmt.Errorf("store not ready: %w", ctx.Err())
		case <-ticker.C:
			if last = s.Ping(ctx); last == nil {
				return nil
			}
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}
