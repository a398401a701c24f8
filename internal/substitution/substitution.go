// Package substitution rewrites entity names using an old→new reference table.
//
// The engine is idempotent only when no replacement value is itself a key of
// the map. That is a rule for whoever maintains the reference table; the
// engine reports violations through Map.Conflicts but does not enforce it.
package substitution

import (
	"sort"
	"strings"

	"billingsync/internal/core"
)

// Map holds trimmed source names and their replacements.
type Map map[string]any

// Change records one rewritten cell. Row is the 1-based position of the
// cell within the slice passed to Apply or Trim.
type Change struct {
	Row int
	Old any
	New any
}

// BuildMap builds a substitution map from (old, new) rows. Keys are trimmed,
// rows with an empty key or value are skipped, and later rows win.
func BuildMap(rows [][]any) Map {
	m := make(Map, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		key := strings.TrimSpace(core.CellString(row[0]))
		if key == "" || isEmpty(row[1]) {
			continue
		}
		m[key] = row[1]
	}
	return m
}

// Conflicts returns, sorted, the keys whose replacement is also a key.
// Applying a map with conflicts twice can keep producing changes.
func (m Map) Conflicts() []string {
	var out []string
	for k, v := range m {
		nv := strings.TrimSpace(core.CellString(v))
		if nv == k {
			continue
		}
		if _, ok := m[nv]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Apply replaces every non-empty cell whose trimmed value is a key of m.
// values is not modified.
func Apply(values []any, m Map) ([]any, []Change) {
	out := append([]any(nil), values...)
	var changes []Change
	for i, v := range values {
		if isEmpty(v) {
			continue
		}
		nv, ok := m[strings.TrimSpace(core.CellString(v))]
		if !ok || sameCell(v, nv) {
			continue
		}
		out[i] = nv
		changes = append(changes, Change{Row: i + 1, Old: v, New: nv})
	}
	return out, changes
}

// Trim strips surrounding whitespace from string cells. Only cells whose
// value actually changes are reported.
func Trim(values []any) ([]any, []Change) {
	out := append([]any(nil), values...)
	var changes []Change
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if t := strings.TrimSpace(s); t != s {
			out[i] = t
			changes = append(changes, Change{Row: i + 1, Old: s, New: t})
		}
	}
	return out, changes
}

func isEmpty(v any) bool {
	return strings.TrimSpace(core.CellString(v)) == ""
}

func sameCell(a, b any) bool {
	return core.CellString(a) == core.CellString(b)
}
