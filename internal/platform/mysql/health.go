package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kairodb/pkg/retry"
)

// HealthCheck borrows a connection, pings it and runs a trivial query.
// Returns nil when the database answers, otherwise the classified failure.
func (p *Pool) HealthCheck(ctx context.Context) error {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := pc.conn.PingContext(ctx); err != nil {
		pc.Discard()
		return execErr(err)
	}

	rows, err := pc.conn.QueryContext(ctx, "SELECT 1")
	if err != nil {
		pc.Discard()
		return execErr(err)
	}
	var one int
	if rows.Next() {
		if err := rows.Scan(&one); err != nil {
			rows.Close()
			pc.Discard()
			return execErr(err)
		}
	}
	if err := rows.Close(); err != nil {
		pc.Discard()
		return execErr(err)
	}
	pc.Release()

	if one != 1 {
		return fmt.Errorf("unexpected health query result: got %d, want 1", one)
	}
	return nil
}

// WaitForDB blocks until the database at dsn answers a ping, retrying with
// backoff, or until the retry budget or ctx runs out. Useful at process
// start when the database may still be coming up.
func WaitForDB(ctx context.Context, dsn string, cfg retry.Config) error {
	return retry.DoWithRetryable(ctx, cfg,
		func(ctx context.Context) error { return pingOnce(ctx, dsn) },
		func(err error) bool { return true }, // any failure is worth another attempt here
	)
}

// pingOnce opens a throwaway handle and pings it.
func pingOnce(ctx context.Context, dsn string) error {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}
