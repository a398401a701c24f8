package core

import (
	"fmt"
	"strings"
)

// Layout gives named access to the columns of a staged table. Before the
// classification column is inserted the entity name is column 0; afterwards
// it is column 1. Callers use Layout instead of shifting indices by hand.
type Layout struct {
	Name           int
	Classification int // -1 until the column exists
}

// DetectLayout inspects the header row. A leading cell equal to
// classificationHeader means the classification column is already present.
func DetectLayout(header []any, classificationHeader string) Layout {
	if len(header) > 0 && strings.TrimSpace(fmt.Sprint(header[0])) == classificationHeader {
		return Layout{Name: 1, Classification: 0}
	}
	return Layout{Name: 0, Classification: -1}
}

// HasClassification reports whether the classification column exists.
func (l Layout) HasClassification() bool { return l.Classification >= 0 }

// WithClassification returns the layout after inserting the classification
// column at index 0.
func (l Layout) WithClassification() Layout {
	if l.HasClassification() {
		return l
	}
	return Layout{Name: l.Name + 1, Classification: 0}
}

// Column returns column index i of every row, with nil for short rows.
func Column(rows [][]any, i int) []any {
	out := make([]any, len(rows))
	for r, row := range rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

// CellString renders a cell the way the spreadsheet displays plain values.
func CellString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
