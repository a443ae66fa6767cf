package mysql

import (
	"context"
	"sync"
)

// Process-wide pool. Sessions always take a *Pool handle; the singleton only
// exists so an application can construct the pool once at startup and tear
// it down once at shutdown.
var (
	defaultMu   sync.Mutex
	defaultPool *Pool
)

// Init constructs the process-wide pool on first call and returns it.
// Subsequent calls are no-ops that return the existing pool regardless of
// arguments, so concurrent initialization during startup is harmless.
func Init(ctx context.Context, dsn string, opts PoolOptions) (*Pool, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool != nil {
		return defaultPool, nil
	}
	pool, err := NewPool(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}
	defaultPool = pool
	return pool, nil
}

// Default returns the process-wide pool, or nil before Init / after
// Shutdown.
func Default() *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultPool
}

// Shutdown closes the process-wide pool and all of its physical
// connections. Idempotent; a later Init builds a fresh pool.
func Shutdown() {
	defaultMu.Lock()
	pool := defaultPool
	defaultPool = nil
	defaultMu.Unlock()
	if pool != nil {
		pool.Close()
	}
}
