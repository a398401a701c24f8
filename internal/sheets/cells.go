package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetValues reads a worksheet into the value types the Sheets API
// returns: text cells stay strings (so "00123" keeps its zeros), numbers
// become float64, booleans bool and date-formatted numbers time.Time.
func SheetValues(f *excelize.File, sheet string) ([][]any, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	dates := map[int]bool{}
	grid := make([][]any, len(rows))
	for r, row := range rows {
		grid[r] = make([]any, len(row))
		for c, raw := range row {
			if raw == "" {
				grid[r][c] = ""
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			v, err := cellValue(f, sheet, cell, raw, date1904, dates)
			if err != nil {
				return nil, fmt.Errorf("%s!%s: %w", sheet, cell, err)
			}
			grid[r][c] = v
		}
	}
	return grid, nil
}

func cellValue(f *excelize.File, sheet, cell, raw string, date1904 bool, dates map[int]bool) (any, error) {
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString,
		excelize.CellTypeFormula, excelize.CellTypeError:
		return raw, nil
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "TRUE"), nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw, nil
	}
	style, err := f.GetCellStyle(sheet, cell)
	if err != nil {
		return nil, err
	}
	isDate, seen := dates[style]
	if !seen {
		isDate = dateStyle(f, style)
		dates[style] = isDate
	}
	if typ == excelize.CellTypeDate || isDate {
		if t, err := excelize.ExcelDateToTime(n, date1904); err == nil {
			return t, nil
		}
	}
	return n, nil
}

func dateStyle(f *excelize.File, idx int) bool {
	if idx == 0 {
		return false
	}
	style, err := f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return dateFormatCode(*style.CustomNumFmt)
	}
	id := style.NumFmt
	return (id >= 14 && id <= 22) || (id >= 27 && id <= 36) ||
		(id >= 45 && id <= 47) || (id >= 50 && id <= 58)
}

// dateFormatCode reports whether a custom number format renders a date or
// time. Quoted literals, escaped characters and bracketed colors are ignored.
func dateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			inBracket = ch != ']'
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		case strings.IndexByte("yYmMdDhHsS", ch) >= 0:
			return true
		}
	}
	return false
}
