package mysql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairodb/internal/shared"
	"kairodb/internal/sqlgen"
)

func newSessionPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := NewPoolFromDB(db, PoolOptions{MaxConns: 2, MaxCached: 2})
	t.Cleanup(p.Close)
	return p, mock
}

func TestWithSession_CommitsOnSuccess(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `users` (`name`) VALUES (?)").
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		n, err := s.Exec(ctx, "INSERT INTO `users` (`name`) VALUES (:name)",
			sqlgen.NewParams().Set("name", "alice"))
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSession_RollsBackOnError(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSession_RollsBackAndRepanicsOnPanic(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
			panic("boom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_BeginFailureDiscardsConnection(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin().WillReturnError(errors.New("server gone"))

	_, err := p.Session(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExecution)
	assert.Equal(t, 0, p.Stat().Open)
}

func TestSession_CloseCommitFailure(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("deadlock"))

	s, err := p.Session(context.Background())
	require.NoError(t, err)

	err = s.Close(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExecution)
	// The connection's state is unknown after a failed commit, so its slot
	// is freed rather than cached.
	assert.Equal(t, 0, p.Stat().Open)
}

func TestSession_UseAfterClose(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	s, err := p.Session(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close(nil))

	_, err = s.Query(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, shared.ErrConnUnavailable)

	_, err = s.Exec(context.Background(), "DELETE FROM `t`", nil)
	assert.ErrorIs(t, err, shared.ErrConnUnavailable)

	err = s.Close(nil)
	assert.ErrorIs(t, err, shared.ErrConnUnavailable)
}

func TestSession_QueryScansRowMaps(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id`, `name` FROM `users` WHERE `age` > ?").
		WithArgs(30).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("alice")).
			AddRow(int64(2), []byte("bob")))
	mock.ExpectCommit()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		rows, err := s.Query(ctx, "SELECT `id`, `name` FROM `users` WHERE `age` > :age",
			sqlgen.NewParams().Set("age", 30))
		if err != nil {
			return err
		}
		require.Len(t, rows, 2)
		assert.Equal(t, int64(1), rows[0]["id"])
		// []byte column values come back as string.
		assert.Equal(t, "alice", rows[0]["name"])
		assert.Equal(t, "bob", rows[1]["name"])
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_QueryOne(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `name` FROM `users` WHERE `id` = ?").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("alice").AddRow("ignored"))
	mock.ExpectQuery("SELECT `name` FROM `users` WHERE `id` = ?").
		WithArgs(999).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectCommit()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		row, err := s.QueryOne(ctx, "SELECT `name` FROM `users` WHERE `id` = :id",
			sqlgen.NewParams().Set("id", 7))
		if err != nil {
			return err
		}
		assert.Equal(t, "alice", row["name"])

		missing, err := s.QueryOne(ctx, "SELECT `name` FROM `users` WHERE `id` = :id",
			sqlgen.NewParams().Set("id", 999))
		if err != nil {
			return err
		}
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_QueryMissingParam(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		_, err := s.Query(ctx, "SELECT * FROM `users` WHERE `id` = :id", sqlgen.NewParams())
		return err
	})
	assert.ErrorIs(t, err, shared.ErrParamMissing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_ExecBatch(t *testing.T) {
	p, mock := newSessionPool(t)

	stmt := "INSERT INTO `events` (`kind`, `payload`) VALUES (?, ?)"
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(stmt)
	prep.ExpectExec().WithArgs("click", "a").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("view", "b").WillReturnResult(sqlmock.NewResult(2, 1))
	prep.ExpectExec().WithArgs("click", "c").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	template, rows, err := sqlgen.BatchInsert("events", []*sqlgen.Params{
		sqlgen.NewParams().Set("kind", "click").Set("payload", "a"),
		sqlgen.NewParams().Set("kind", "view").Set("payload", "b"),
		sqlgen.NewParams().Set("kind", "click").Set("payload", "c"),
	})
	require.NoError(t, err)

	err = p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		total, err := s.ExecBatch(ctx, template, rows)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(3), total)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_ExecBatchEmpty(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		total, err := s.ExecBatch(ctx, "INSERT INTO `t` (`a`) VALUES (:a)", nil)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(0), total)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Paged(t *testing.T) {
	p, mock := newSessionPool(t)

	template := "SELECT `id` FROM `orders` WHERE `status` = :status"
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT(*) FROM (SELECT `id` FROM `orders` WHERE `status` = ?) AS t").
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))
	mock.ExpectQuery("SELECT `id` FROM `orders` WHERE `status` = ? LIMIT ? OFFSET ?").
		WithArgs("open", int64(10), int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)).AddRow(int64(22)))
	mock.ExpectCommit()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		page, total, err := s.Paged(ctx, template, sqlgen.NewParams().Set("status", "open"), 20, 10)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(42), total)
		require.Len(t, page, 2)
		assert.Equal(t, int64(21), page[0]["id"])
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_PagedClampsNegatives(t *testing.T) {
	p, mock := newSessionPool(t)

	template := "SELECT `id` FROM `orders`"
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT(*) FROM (SELECT `id` FROM `orders`) AS t").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT `id` FROM `orders` LIMIT ? OFFSET ?").
		WithArgs(int64(0), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		page, total, err := s.Paged(ctx, template, nil, -5, -1)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(0), total)
		assert.Empty(t, page)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_HostileValueStaysBound(t *testing.T) {
	p, mock := newSessionPool(t)

	hostile := "x'; DROP TABLE users; --"
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id` FROM `users` WHERE `name` = ?").
		WithArgs(hostile).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		rows, err := s.Query(ctx, "SELECT `id` FROM `users` WHERE `name` = :name",
			sqlgen.NewParams().Set("name", hostile))
		if err != nil {
			return err
		}
		assert.Empty(t, rows)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_ExecErrorClassification(t *testing.T) {
	p, mock := newSessionPool(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `users` WHERE `id` = ?").
		WithArgs(1).
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	err := p.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		_, err := s.Exec(ctx, "DELETE FROM `users` WHERE `id` = :id",
			sqlgen.NewParams().Set("id", 1))
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExecution)
	assert.True(t, shared.IsExecution(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
