package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound     = errors.New("db: key not found")
	ErrVersionConflict = errors.New("db: version conflict")
)

// Op constants map to Valkey/Redis command names for error context.
const (
	OpHGetAll    = "HGETALL"
	OpScan       = "SCAN"
	OpGet        = "GET"
	OpSet        = "SET"
	OpSetNX      = "SET NX"
	OpCAS        = "EVALSHA cas"
	OpDelIfEqual = "EVALSHA del_if_equal"
	OpZAdd       = "ZADD"
	OpZRange     = "ZRANGEBYSCORE"
	OpZRem       = "ZREM"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
