package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"kairodb/internal/shared"
	"kairodb/internal/sqlgen"
)

// Row is one result row keyed by column name. []byte column values are
// converted to string so rows read the same under the text and binary
// protocols.
type Row map[string]any

// Session is a transaction-scoped unit of work bound to one pooled
// connection. It is created with an open transaction, executes translated
// statements against it, and finishes exactly once via Close (or the
// WithSession wrapper): commit on success, rollback on failure, with the
// connection going back to the pool either way.
//
// A Session must not be shared across concurrent callers.
type Session struct {
	pool *Pool
	pc   *PooledConn
	tx   *sql.Tx
	log  *slog.Logger
	done bool
}

// Session acquires a connection from the pool (blocking while the pool is at
// capacity) and opens a transaction on it. The caller owns the session and
// must finish it with Close.
func (p *Pool) Session(ctx context.Context) (*Session, error) {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := pc.conn.BeginTx(ctx, nil)
	if err != nil {
		pc.Discard()
		return nil, fmt.Errorf("%w: begin transaction: %w", shared.ErrExecution, err)
	}
	return &Session{pool: p, pc: pc, tx: tx, log: p.log}, nil
}

// WithSession runs fn inside a session. A nil return commits; an error or a
// panic rolls back (the panic is re-raised after cleanup). The connection is
// returned to the pool in every case.
func (p *Pool) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := p.Session(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = s.Close(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	if err := fn(ctx, s); err != nil {
		_ = s.Close(err)
		return err
	}
	return s.Close(nil)
}

// Close finishes the session: commit when cause is nil, rollback otherwise.
// The connection is returned to the pool unconditionally as the final step;
// when commit or rollback itself fails the connection's state is unknown, so
// its physical connection is closed (which still frees the pool slot) and
// the failure is logged rather than masking cause. Close returns the commit
// error, if any; calling it again is a no-op reported as
// shared.ErrConnUnavailable.
func (s *Session) Close(cause error) error {
	if s.done {
		return shared.Wrap(shared.ErrConnUnavailable, "session already closed")
	}
	s.done = true

	var finishErr error
	if cause == nil {
		finishErr = s.tx.Commit()
	} else {
		finishErr = s.tx.Rollback()
	}

	if finishErr != nil {
		s.pc.Discard()
		if cause == nil {
			return fmt.Errorf("%w: commit: %w", shared.ErrExecution, finishErr)
		}
		s.log.Error("rollback failed", slog.Any("error", finishErr), slog.Any("cause", cause))
		return nil
	}

	s.pc.Release()
	return nil
}

// live guards every statement against use after Close.
func (s *Session) live() error {
	if s.done {
		return shared.Wrap(shared.ErrConnUnavailable, "session already closed")
	}
	return nil
}

// Query executes a SELECT template and returns all resulting rows.
func (s *Session) Query(ctx context.Context, template string, params *sqlgen.Params) ([]Row, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	stmt, args, err := sqlgen.Translate(template, params)
	if err != nil {
		return nil, err
	}
	rows, err := s.tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, execErr(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// QueryOne executes a SELECT template and returns the first resulting row,
// or nil when the result set is empty.
func (s *Session) QueryOne(ctx context.Context, template string, params *sqlgen.Params) (Row, error) {
	rows, err := s.Query(ctx, template, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Exec executes an INSERT/UPDATE/DELETE template and returns the number of
// affected rows.
func (s *Session) Exec(ctx context.Context, template string, params *sqlgen.Params) (int64, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	stmt, args, err := sqlgen.Translate(template, params)
	if err != nil {
		return 0, err
	}
	res, err := s.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, execErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, execErr(err)
	}
	return n, nil
}

// ExecBatch executes one template once per parameter row, as a single
// prepared statement inside the session's transaction, and returns the total
// number of affected rows. Every row is translated independently, so each
// must map all identifiers the template references.
func (s *Session) ExecBatch(ctx context.Context, template string, rows []*sqlgen.Params) (int64, error) {
	if err := s.live(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	stmt, _, err := sqlgen.Translate(template, rows[0])
	if err != nil {
		return 0, err
	}
	prep, err := s.tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, execErr(err)
	}
	defer prep.Close()

	var total int64
	for i, row := range rows {
		_, args, err := sqlgen.Translate(template, row)
		if err != nil {
			return total, shared.Wrapf(err, "row %d", i)
		}
		res, err := prep.ExecContext(ctx, args...)
		if err != nil {
			return total, execErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, execErr(err)
		}
		total += n
	}
	return total, nil
}

// Paged executes a SELECT template twice: once wrapped in SELECT COUNT(*) to
// obtain the total matching row count independent of the page window, then
// with LIMIT/OFFSET appended to fetch the page itself. Offset and limit are
// bound as integer parameters, never concatenated into the statement text.
// Negative values are clamped to zero.
//
// The two executions are separate round trips; rows written between them can
// shift the page against the total. That is accepted for the listing
// workloads this is built for.
func (s *Session) Paged(ctx context.Context, template string, params *sqlgen.Params, offset, limit int) ([]Row, int64, error) {
	if err := s.live(); err != nil {
		return nil, 0, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	countStmt, countArgs, err := sqlgen.Translate("SELECT COUNT(*) FROM ("+template+") AS t", params)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.tx.QueryRowContext(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, 0, execErr(err)
	}

	pageStmt, pageArgs, err := sqlgen.Translate(template, params)
	if err != nil {
		return nil, 0, err
	}
	pageStmt += " LIMIT ? OFFSET ?"
	pageArgs = append(pageArgs, int64(limit), int64(offset))

	rows, err := s.tx.QueryContext(ctx, pageStmt, pageArgs...)
	if err != nil {
		return nil, 0, execErr(err)
	}
	defer rows.Close()

	page, err := scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// execErr wraps a backend failure so it classifies as an execution error
// while keeping the backend message reachable through the chain.
func execErr(err error) error {
	return fmt.Errorf("%w: %w", shared.ErrExecution, err)
}

// scanRows drains a result set into Row maps.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, execErr(err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, execErr(err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, execErr(err)
	}
	return out, nil
}
