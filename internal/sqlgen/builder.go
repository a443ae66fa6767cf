package sqlgen

import (
	"strings"

	"kairodb/internal/shared"
)

// WherePrefix is prepended to where-clause parameter names so a column may
// appear in both the SET and WHERE parts of an UPDATE without colliding.
const WherePrefix = "where_"

// quoteIdent wraps a table or column name in backticks so generated SQL
// survives reserved words. Embedded backticks are doubled. Identifiers are
// developer-controlled schema names; raw request input must never reach
// them.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Insert generates a single-row INSERT template from row, with columns in
// the row's insertion order and one :column placeholder per column. Returns
// the template and the parameter set to translate it with.
// Fails with shared.ErrEmptyParams when row is empty.
func Insert(table string, row *Params) (string, *Params, error) {
	if row.IsEmpty() {
		return "", nil, shared.Wrapf(shared.ErrEmptyParams, "insert into %s", table)
	}

	cols := row.Keys()
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		placeholders[i] = ":" + col
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteIdent(table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(")")

	return sb.String(), row, nil
}

// BatchInsert generates one INSERT template from the column set of rows[0],
// usable against every row in rows. Callers translate each row independently
// and execute them as one batch. Fails with shared.ErrEmptyParams when rows
// is empty.
func BatchInsert(table string, rows []*Params) (string, []*Params, error) {
	if len(rows) == 0 {
		return "", nil, shared.Wrapf(shared.ErrEmptyParams, "batch insert into %s", table)
	}
	template, _, err := Insert(table, rows[0])
	if err != nil {
		return "", nil, err
	}
	return template, rows, nil
}

// Update generates an UPDATE template with a SET clause from set and a WHERE
// clause from where. Where-clause parameter names are prefixed with
// WherePrefix to avoid collisions with set columns of the same name. Returns
// the template and the merged effective parameter set (set values followed by
// the prefixed where values) to translate it with.
// Fails with shared.ErrEmptyParams when either input is empty: an
// unconditional UPDATE is never silently permitted.
func Update(table string, set, where *Params) (string, *Params, error) {
	if set.IsEmpty() || where.IsEmpty() {
		return "", nil, shared.Wrapf(shared.ErrEmptyParams, "update %s", table)
	}

	setCols := set.Keys()
	setParts := make([]string, len(setCols))
	for i, col := range setCols {
		setParts[i] = quoteIdent(col) + " = :" + col
	}

	whereClause, whereParams := buildWhere(where)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(quoteIdent(table))
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(setParts, ", "))
	sb.WriteString(" WHERE ")
	sb.WriteString(whereClause)

	return sb.String(), set.Merge(whereParams), nil
}

// Delete generates a hard DELETE template with a WHERE clause from where,
// using the same prefixed parameter naming as Update. Returns the template
// and the prefixed where parameter set.
// Fails with shared.ErrEmptyParams when where is empty: an unconditional
// DELETE is never silently permitted.
func Delete(table string, where *Params) (string, *Params, error) {
	if where.IsEmpty() {
		return "", nil, shared.Wrapf(shared.ErrEmptyParams, "delete from %s", table)
	}

	whereClause, whereParams := buildWhere(where)

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(quoteIdent(table))
	sb.WriteString(" WHERE ")
	sb.WriteString(whereClause)

	return sb.String(), whereParams, nil
}

// SoftDelete generates a logical delete: an UPDATE marking rows inactive via
// the mark columns (for example deleted -> 1), with the same SET/WHERE
// construction and merged parameter set as Update.
func SoftDelete(table string, mark, where *Params) (string, *Params, error) {
	return Update(table, mark, where)
}

// buildWhere renders "`col` = :where_col AND ..." for every column of where,
// in insertion order, and returns the clause together with the prefixed
// parameter set.
func buildWhere(where *Params) (string, *Params) {
	cols := where.Keys()
	parts := make([]string, len(cols))
	prefixed := NewParams()
	for i, col := range cols {
		parts[i] = quoteIdent(col) + " = :" + WherePrefix + col
		v, _ := where.Get(col)
		prefixed.Set(WherePrefix+col, v)
	}
	return strings.Join(parts, " AND "), prefixed
}
