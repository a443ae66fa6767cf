package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"kairodb/internal/shared"
)

// Conn is the subset of *sql.Conn the pool manages. Pool behavior tests
// substitute fakes; production pools hand out dedicated *sql.Conn instances.
type Conn interface {
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

var _ Conn = (*sql.Conn)(nil)

// dialFunc opens one physical connection.
type dialFunc func(ctx context.Context) (Conn, error)

// PoolOptions contains the sizing parameters of the connection pool.
type PoolOptions struct {
	// MinCached is the number of connections opened eagerly at pool creation.
	MinCached int
	// MaxCached is the maximum number of idle connections kept around;
	// released connections beyond it are closed.
	MaxCached int
	// MaxShared is accepted for configuration compatibility with existing
	// deployments. Connections here are always dedicated to one session and
	// never shared, so the value has no effect.
	MaxShared int
	// MaxConns is the hard cap on concurrently open physical connections.
	// When reached, Acquire blocks instead of failing.
	MaxConns int
	// AcquireTimeout bounds how long Acquire may block waiting for a free
	// connection. Zero means no bound beyond the caller's context.
	AcquireTimeout time.Duration
	// PingTimeout is the timeout for the connectivity check at pool creation.
	PingTimeout time.Duration
	// ConnMaxLifetime limits the lifetime of a physical connection.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime limits how long a physical connection may sit idle.
	ConnMaxIdleTime time.Duration
}

// DefaultPoolOptions returns pool sizing defaults matching the documented
// environment defaults (min cached 1, max cached 5, max shared 5, max total
// 10).
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MinCached:       1,
		MaxCached:       5,
		MaxShared:       5,
		MaxConns:        10,
		AcquireTimeout:  30 * time.Second,
		PingTimeout:     5 * time.Second,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

func (o *PoolOptions) normalize() {
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultPoolOptions().MaxConns
	}
	if o.MaxCached <= 0 {
		o.MaxCached = o.MaxConns
	}
	if o.MaxCached > o.MaxConns {
		o.MaxCached = o.MaxConns
	}
	if o.MinCached < 0 {
		o.MinCached = 0
	}
	if o.MinCached > o.MaxCached {
		o.MinCached = o.MaxCached
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}
}

// Pool is a bounded blocking pool of dedicated MySQL connections. At most
// MaxConns physical connections are open at any moment; when all are in use,
// Acquire parks the caller until a connection is released, the caller's
// context ends, or the pool closes. The free list and waiter queue are the
// only shared state and are guarded by a single mutex.
type Pool struct {
	opts PoolOptions
	dial dialFunc
	db   *sql.DB // backing database handle; nil when built from a custom dialer
	log  *slog.Logger

	mu      sync.Mutex
	idle    []Conn
	waiters []chan Conn // each receives a connection, nil (retry), or a close
	numOpen int
	closed  bool
}

// NewPool opens the backing database handle, verifies connectivity, pre-warms
// MinCached connections and returns the pool.
func NewPool(ctx context.Context, dsn string, opts PoolOptions) (*Pool, error) {
	opts.normalize()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	// The inner handle caps out at the same limit, so the pool's accounting
	// is what actually meters physical connections.
	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MaxCached)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	p := newPool(func(ctx context.Context) (Conn, error) { return db.Conn(ctx) }, opts)
	p.db = db

	if err := p.warm(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// NewPoolFromDB wraps an existing database handle. The pool does not own the
// handle and does not pre-warm connections; closing the pool leaves the
// handle open.
func NewPoolFromDB(db *sql.DB, opts PoolOptions) *Pool {
	opts.normalize()
	return newPool(func(ctx context.Context) (Conn, error) { return db.Conn(ctx) }, opts)
}

func newPool(dial dialFunc, opts PoolOptions) *Pool {
	return &Pool{
		opts: opts,
		dial: dial,
		log:  slog.Default(),
	}
}

// SetLogger replaces the pool's logger. Intended for wiring at startup, not
// for concurrent use.
func (p *Pool) SetLogger(log *slog.Logger) {
	if log != nil {
		p.log = log
	}
}

// warm opens MinCached connections up front.
func (p *Pool) warm(ctx context.Context) error {
	for i := 0; i < p.opts.MinCached; i++ {
		conn, err := p.dial(ctx)
		if err != nil {
			return fmt.Errorf("pre-warm connection %d: %w", i+1, err)
		}
		p.mu.Lock()
		p.numOpen++
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
	return nil
}

// PooledConn is one borrowed connection. Exactly one of Release or Discard
// must be called when the borrower is done; both are safe to call once only.
type PooledConn struct {
	pool *Pool
	conn Conn
	done bool
}

// Release returns the connection to the pool's free set, or hands it
// directly to a parked waiter.
func (c *PooledConn) Release() {
	if c.done {
		return
	}
	c.done = true
	c.pool.put(c.conn)
}

// Discard closes the physical connection instead of returning it, freeing
// its slot. Use after failures that leave the connection state unknown.
func (c *PooledConn) Discard() {
	if c.done {
		return
	}
	c.done = true
	c.pool.drop(c.conn)
}

// Acquire borrows a dedicated connection, blocking while the pool is at
// capacity. The wait ends when a connection is released, the context is done
// (a deadline surfaces as shared.ErrAcquireTimeout, cancellation as
// context.Canceled; in both cases the queued waiter is removed, never
// leaked), or the pool closes (shared.ErrPoolClosed).
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	if p.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.AcquireTimeout)
		defer cancel()
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, shared.ErrPoolClosed
		}
		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return &PooledConn{pool: p, conn: conn}, nil
		}
		if p.numOpen < p.opts.MaxConns {
			p.numOpen++
			p.mu.Unlock()
			conn, err := p.dial(ctx)
			if err != nil {
				// The failed dial frees a capacity slot. A parked waiter must
				// hear about it or it would starve against an underfull pool.
				p.mu.Lock()
				p.numOpen--
				p.wakeWaiterLocked()
				p.mu.Unlock()
				return nil, acquireErr(ctx, err)
			}
			return &PooledConn{pool: p, conn: conn}, nil
		}

		ch := make(chan Conn, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case conn, ok := <-ch:
			if !ok {
				return nil, shared.ErrPoolClosed
			}
			if conn == nil {
				// A slot freed without a reusable connection; retry.
				continue
			}
			return &PooledConn{pool: p, conn: conn}, nil
		case <-ctx.Done():
			p.mu.Lock()
			removed := p.removeWaiter(ch)
			p.mu.Unlock()
			if !removed {
				// The handoff raced the cancellation: the channel already
				// holds our connection (or a retry signal, or a close).
				select {
				case conn, ok := <-ch:
					if ok && conn != nil {
						p.put(conn)
					} else if ok {
						// The retry signal was addressed to us; pass it on so
						// the freed slot is not lost on the remaining waiters.
						p.mu.Lock()
						p.wakeWaiterLocked()
						p.mu.Unlock()
					}
				default:
				}
			}
			return nil, acquireErr(ctx, nil)
		}
	}
}

// acquireErr maps a failed or abandoned acquire to the error taxonomy.
func acquireErr(ctx context.Context, dialErr error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", shared.ErrAcquireTimeout, context.DeadlineExceeded)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return shared.Wrap(dialErr, "dial")
}

// removeWaiter unlinks ch from the waiter queue. Returns false when the
// waiter is no longer queued, meaning a handoff already happened.
// Caller must hold p.mu.
func (p *Pool) removeWaiter(ch chan Conn) bool {
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// put returns a live connection to the pool: straight to the oldest waiter
// when one is parked, to the free list while it is below MaxCached,
// otherwise the connection is closed.
func (p *Pool) put(conn Conn) {
	p.mu.Lock()
	if p.closed {
		p.numOpen--
		p.mu.Unlock()
		p.closeConn(conn)
		return
	}
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ch <- conn
		p.mu.Unlock()
		return
	}
	if len(p.idle) < p.opts.MaxCached {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}
	p.numOpen--
	p.mu.Unlock()
	p.closeConn(conn)
}

// drop closes a connection whose state is unknown and frees its slot. A
// parked waiter gets a retry signal so the freed slot is usable immediately.
func (p *Pool) drop(conn Conn) {
	p.mu.Lock()
	p.numOpen--
	p.wakeWaiterLocked()
	p.mu.Unlock()
	p.closeConn(conn)
}

// wakeWaiterLocked pops the oldest waiter and sends it the nil retry signal,
// telling it a capacity slot freed without a reusable connection. No-op when
// nobody waits or the pool is closed. Caller must hold p.mu.
func (p *Pool) wakeWaiterLocked() {
	if p.closed || len(p.waiters) == 0 {
		return
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	ch <- nil
}

func (p *Pool) closeConn(conn Conn) {
	if err := conn.Close(); err != nil {
		p.log.Warn("closing connection", slog.Any("error", err))
	}
}

// Close tears the pool down: parked waiters are failed with
// shared.ErrPoolClosed, idle connections are closed, and connections still
// borrowed are closed as they come back. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.numOpen -= len(idle)
	db := p.db
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, conn := range idle {
		p.closeConn(conn)
	}
	if db != nil {
		if err := db.Close(); err != nil {
			p.log.Warn("closing database handle", slog.Any("error", err))
		}
	}
}

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	MaxConns int // configured hard cap
	Open     int // physical connections currently open
	Idle     int // connections in the free list
	InUse    int // connections borrowed by sessions
	Waiting  int // callers parked in Acquire
	Closed   bool
}

// Stat returns a snapshot of the pool's current usage.
func (p *Pool) Stat() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		MaxConns: p.opts.MaxConns,
		Open:     p.numOpen,
		Idle:     len(p.idle),
		InUse:    p.numOpen - len(p.idle),
		Waiting:  len(p.waiters),
		Closed:   p.closed,
	}
}
