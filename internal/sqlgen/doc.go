// Package sqlgen generates parameterized SQL statements from column/value
// sets and translates :name templates into positional statements.
//
// All functions are pure. The builders emit templates with :name placeholders
// and backtick-quoted identifiers; Translate is the single point where
// parameter values are separated from statement text, which keeps the
// injection-critical boundary in one fuzzable function. Values are bound
// positionally by the backend driver and never concatenated into SQL.
package sqlgen
