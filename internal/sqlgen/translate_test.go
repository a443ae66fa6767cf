package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairodb/internal/shared"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		params   *Params
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "no placeholders",
			template: "SELECT 1",
			params:   NewParams(),
			wantSQL:  "SELECT 1",
			wantArgs: nil,
		},
		{
			name:     "nil params no placeholders",
			template: "SELECT * FROM `user_info`",
			params:   nil,
			wantSQL:  "SELECT * FROM `user_info`",
			wantArgs: nil,
		},
		{
			name:     "single placeholder",
			template: "SELECT * FROM `user_info` WHERE `name` = :name",
			params:   NewParams().Set("name", "bob"),
			wantSQL:  "SELECT * FROM `user_info` WHERE `name` = ?",
			wantArgs: []any{"bob"},
		},
		{
			name:     "occurrence order not map order",
			template: "SELECT * FROM t WHERE a = :second OR b = :first",
			params:   NewParams().Set("first", 1).Set("second", 2),
			wantSQL:  "SELECT * FROM t WHERE a = ? OR b = ?",
			wantArgs: []any{2, 1},
		},
		{
			name:     "duplicate placeholder re-supplies value",
			template: "SELECT * FROM t WHERE a = :id OR b = :id",
			params:   NewParams().Set("id", 7),
			wantSQL:  "SELECT * FROM t WHERE a = ? OR b = ?",
			wantArgs: []any{7, 7},
		},
		{
			name:     "underscore and digits in identifier",
			template: "WHERE `id` = :where_id2",
			params:   NewParams().Set("where_id2", 42),
			wantSQL:  "WHERE `id` = ?",
			wantArgs: []any{42},
		},
		{
			name:     "unreferenced entries ignored",
			template: "SELECT * FROM t WHERE a = :a",
			params:   NewParams().Set("a", 1).Set("unused", "x"),
			wantSQL:  "SELECT * FROM t WHERE a = ?",
			wantArgs: []any{1},
		},
		{
			name:     "bare colon passes through",
			template: "SELECT 'a: b' FROM t WHERE a = :a",
			params:   NewParams().Set("a", 1),
			wantSQL:  "SELECT 'a: b' FROM t WHERE a = ?",
			wantArgs: []any{1},
		},
		{
			name:     "nil value binds explicitly",
			template: "UPDATE t SET a = :a",
			params:   NewParams().Set("a", nil),
			wantSQL:  "UPDATE t SET a = ?",
			wantArgs: []any{nil},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sql, args, err := Translate(tt.template, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestTranslate_MissingParam(t *testing.T) {
	t.Parallel()

	_, _, err := Translate("SELECT * FROM t WHERE a = :a AND b = :b", NewParams().Set("a", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrParamMissing)
	assert.Contains(t, err.Error(), ":b")

	// Nil params with a referenced placeholder is the same failure.
	_, _, err = Translate("WHERE a = :a", nil)
	assert.ErrorIs(t, err, shared.ErrParamMissing)
}

func TestTranslate_Idempotent(t *testing.T) {
	t.Parallel()

	template := "SELECT * FROM t WHERE a = :a AND b = :b OR a = :a"
	params := NewParams().Set("a", "x").Set("b", 2)

	sql1, args1, err := Translate(template, params)
	require.NoError(t, err)
	sql2, args2, err := Translate(template, params)
	require.NoError(t, err)

	assert.Equal(t, sql1, sql2)
	assert.Equal(t, args1, args2)
}

func TestTranslate_InjectionSafety(t *testing.T) {
	t.Parallel()

	// Statement shape must not depend on value content.
	hostile := []any{
		"Alice'; DROP TABLE users; --",
		"' OR '1'='1",
		":name",
		"?",
		"`; DELETE FROM t; `",
		12345,
		nil,
	}

	template := "SELECT * FROM `users` WHERE `name` = :name"
	for _, v := range hostile {
		sql, args, err := Translate(template, NewParams().Set("name", v))
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM `users` WHERE `name` = ?", sql)
		require.Len(t, args, 1)
		assert.Equal(t, v, args[0])
		if s, ok := v.(string); ok && s != "?" {
			assert.NotContains(t, sql, s)
		}
	}
}

func TestTranslate_PlaceholderCountMatchesValues(t *testing.T) {
	t.Parallel()

	params := NewParams().Set("name", "n").Set("age", 30).Set("email", "e@x")
	template, row, err := Insert("user_info", params)
	require.NoError(t, err)

	sql, args, err := Translate(template, row)
	require.NoError(t, err)
	assert.Equal(t, strings.Count(sql, "?"), len(args))
	assert.Equal(t, []any{"n", 30, "e@x"}, args)
}
