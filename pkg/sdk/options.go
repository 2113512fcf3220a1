package quotagate

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "valkey", "redis" or "memory"
	addrs    []string
	password string

	plans     map[string]map[string]int64
	keyPrefix string

	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	logger        *slog.Logger
	serviceLogger *zap.Logger
	metricsReg    prometheus.Registerer
}

// WithValkey configures the client to connect to a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithMemory keeps all state in process. Counters are not shared with any
// other process, so use it only in tests and local tools.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
		c.addrs = nil
	})
}

// WithPlans sets the plan catalog: tier -> resource -> monthly allowance.
// Required. It must match the catalog of every other quotagate process.
func WithPlans(plans map[string]map[string]int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.plans = plans
	})
}

// WithKeyPrefix sets the key namespace. Default: "quotagate:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithRetry tunes optimistic retries under contention.
// Defaults: 5 attempts, 2ms initial backoff, 50ms cap.
func WithRetry(maxAttempts int, initial, maxBackoff time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxAttempts = maxAttempts
		c.initialBackoff = initial
		c.maxBackoff = maxBackoff
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithServiceLogger receives the enforcement logs (unknown plans, invariant
// violations, release no-ops). Default: discarded.
func WithServiceLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.serviceLogger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts, durations and
// reservation outcomes) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
