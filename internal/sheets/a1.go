// Package sheets defines the tabular-store ports and A1 notation helpers
// shared by the Google and in-memory adapters.
package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"billingsync/internal/core"
)

// Range is a parsed A1 range. Zero EndRow or EndCol means "to the end".
type Range struct {
	Sheet    string
	StartRow int // 1-based
	StartCol int // 0-based
	EndRow   int // 1-based, inclusive
	EndCol   int // 0-based, inclusive; -1 means open
}

// A1 builds a range for sheet, quoting the name. An empty cells string
// addresses the whole sheet.
func A1(sheet, cells string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

// ColumnName converts a 0-based column index to its letters ("A", "AB").
// Indices outside the worksheet yield "".
func ColumnName(index int) string {
	name, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return ""
	}
	return name
}

// CellA1 renders a single cell reference such as "B7" from a 1-based row and
// a 0-based column.
func CellA1(row, col int) string {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return ""
	}
	return cell
}

// ParseRange parses "Sheet!A2:B200", "'My Tab'!A:A", "'My Tab'!C3" or a bare
// sheet name.
func ParseRange(rng string) (Range, error) {
	sheet, cells := splitSheet(rng)
	if sheet == "" {
		return Range{}, fmt.Errorf("%w: range %q has no sheet name", core.ErrValidation, rng)
	}
	r := Range{Sheet: sheet, StartRow: 1, StartCol: 0, EndCol: -1}
	if cells == "" {
		return r, nil
	}
	parts := strings.SplitN(strings.ToUpper(cells), ":", 2)
	sr, sc, err := parseCell(parts[0])
	if err != nil {
		return Range{}, fmt.Errorf("%w: range %q: %v", core.ErrValidation, rng, err)
	}
	if sr > 0 {
		r.StartRow = sr
	}
	if sc >= 0 {
		r.StartCol = sc
	}
	if len(parts) == 1 {
		r.EndRow = sr
		r.EndCol = sc
		return r, nil
	}
	er, ec, err := parseCell(parts[1])
	if err != nil {
		return Range{}, fmt.Errorf("%w: range %q: %v", core.ErrValidation, rng, err)
	}
	r.EndRow = er
	r.EndCol = ec
	return r, nil
}

func splitSheet(rng string) (sheet, cells string) {
	rng = strings.TrimSpace(rng)
	if strings.HasPrefix(rng, "'") {
		for i := 1; i < len(rng); i++ {
			if rng[i] != '\'' {
				continue
			}
			if i+1 < len(rng) && rng[i+1] == '\'' {
				i++
				continue
			}
			sheet = strings.ReplaceAll(rng[1:i], "''", "'")
			rest := rng[i+1:]
			return sheet, strings.TrimPrefix(rest, "!")
		}
		return "", ""
	}
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		return rng[:i], rng[i+1:]
	}
	return rng, ""
}

// parseCell returns a 1-based row (0 when absent) and a 0-based column
// (-1 when absent).
func parseCell(s string) (int, int, error) {
	if col, row, err := excelize.SplitCellName(s); err == nil {
		n, err := excelize.ColumnNameToNumber(col)
		if err != nil {
			return 0, 0, err
		}
		return row, n - 1, nil
	}
	if row, err := strconv.Atoi(s); err == nil {
		if row < 1 {
			return 0, 0, fmt.Errorf("bad row in %q", s)
		}
		return row, -1, nil
	}
	n, err := excelize.ColumnNameToNumber(s)
	if err != nil {
		return 0, 0, fmt.Errorf("bad cell reference %q", s)
	}
	return 0, n - 1, nil
}
