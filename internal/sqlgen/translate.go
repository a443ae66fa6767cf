package sqlgen

import (
	"strings"

	"kairodb/internal/shared"
)

// Translate rewrites every :identifier placeholder in template into a MySQL
// positional marker and returns the rewritten statement together with the
// bound values in placeholder occurrence order. Identifiers consist of
// letters, digits and underscores. A name occurring more than once expands to
// one marker and one value slot per occurrence.
//
// A referenced identifier with no entry in params fails with
// shared.ErrParamMissing before any I/O happens; NULL is never bound
// implicitly. Entries in params that the template does not reference are
// ignored.
//
// Translate is pure: identical inputs always produce the identical
// (statement, values) pair, so translated statements are safe to re-run.
//
// Parameter values only ever travel through the returned value slice, never
// through the statement text, so the statement's shape is independent of
// value content.
func Translate(template string, params *Params) (string, []any, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.Grow(len(template))

	for i := 0; i < len(template); {
		if template[i] == ':' && i+1 < len(template) && isIdentChar(template[i+1]) {
			j := i + 1
			for j < len(template) && isIdentChar(template[j]) {
				j++
			}
			name := template[i+1 : j]
			value, ok := params.Get(name)
			if !ok {
				return "", nil, shared.Wrapf(shared.ErrParamMissing, "placeholder :%s", name)
			}
			sb.WriteByte('?')
			args = append(args, value)
			i = j
			continue
		}
		sb.WriteByte(template[i])
		i++
	}

	return sb.String(), args, nil
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
