package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/xuri/excelize/v2"

	"billingsync/internal/core"
	"billingsync/internal/sheets"
)

// Workbook is an in-memory tabular store. It mirrors the Sheets API's
// behaviour of trimming trailing empty rows and cells on read.
type Workbook struct {
	mu     sync.Mutex
	order  []string
	sheets map[string][][]any

	// Writes counts cell writes, letting tests assert on needless rewrites.
	Writes int
}

var _ sheets.Workbook = (*Workbook)(nil)

func New() *Workbook {
	return &Workbook{sheets: map[string][][]any{}}
}

// NewFromXLSX seeds a workbook from every sheet of an .xlsx file. Numeric
// cells become float64 and TRUE/FALSE become bool, matching what the Sheets
// API returns for unformatted values.
func NewFromXLSX(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open seed workbook %s: %w", path, err)
	}
	defer f.Close()
	return fromExcel(f)
}

// NewFromXLSXReader is NewFromXLSX for an in-memory file.
func NewFromXLSXReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return fromExcel(f)
}

func fromExcel(f *excelize.File) (*Workbook, error) {
	wb := New()
	for _, name := range f.GetSheetList() {
		rows, err := sheets.SheetValues(f, name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		wb.Put(name, rows)
	}
	return wb, nil
}

// Put replaces (or creates) a sheet with a copy of rows.
func (w *Workbook) Put(sheet string, rows [][]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sheets[sheet]; !ok {
		w.order = append(w.order, sheet)
	}
	w.sheets[sheet] = cloneGrid(rows)
}

// Sheet returns a copy of a sheet's grid, trimmed like Values.
func (w *Workbook) Sheet(sheet string) ([][]any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.sheets[sheet]
	if !ok {
		return nil, false
	}
	return trimGrid(cloneGrid(g)), true
}

// FirstSheet returns the first tab, as a converted file's data sheet.
func (w *Workbook) FirstSheet(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.order) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", core.ErrNotFound)
	}
	return w.order[0], nil
}

// SheetNames lists tabs in creation order.
func (w *Workbook) SheetNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

func (w *Workbook) Values(_ context.Context, rng string) ([][]any, error) {
	r, err := sheets.ParseRange(rng)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.sheets[r.Sheet]
	if !ok {
		return nil, fmt.Errorf("%w: sheet %q", core.ErrNotFound, r.Sheet)
	}

	var out [][]any
	for i := r.StartRow - 1; i < len(g); i++ {
		if r.EndRow > 0 && i > r.EndRow-1 {
			break
		}
		row := g[i]
		var cells []any
		for j := r.StartCol; j < len(row); j++ {
			if r.EndCol >= 0 && j > r.EndCol {
				break
			}
			cells = append(cells, row[j])
		}
		out = append(out, cells)
	}
	return trimGrid(out), nil
}

func (w *Workbook) Update(_ context.Context, rng string, values [][]any) error {
	r, err := sheets.ParseRange(rng)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.sheets[r.Sheet]
	if !ok {
		return fmt.Errorf("%w: sheet %q", core.ErrNotFound, r.Sheet)
	}
	for i, row := range values {
		for j, v := range row {
			g = setCell(g, r.StartRow-1+i, r.StartCol+j, v)
			w.Writes++
		}
	}
	w.sheets[r.Sheet] = g
	return nil
}

func (w *Workbook) UpdateCells(_ context.Context, sheet string, cells []sheets.CellUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.sheets[sheet]
	if !ok {
		return fmt.Errorf("%w: sheet %q", core.ErrNotFound, sheet)
	}
	for _, c := range cells {
		if c.Row < 1 || c.Col < 0 {
			return fmt.Errorf("%w: cell row=%d col=%d out of range", core.ErrValidation, c.Row, c.Col)
		}
		g = setCell(g, c.Row-1, c.Col, c.Value)
		w.Writes++
	}
	w.sheets[sheet] = g
	return nil
}

func (w *Workbook) SheetExists(_ context.Context, sheet string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.sheets[sheet]
	return ok, nil
}

func (w *Workbook) AddSheet(_ context.Context, sheet string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sheets[sheet]; ok {
		return fmt.Errorf("%w: sheet %q already exists", core.ErrValidation, sheet)
	}
	w.sheets[sheet] = nil
	w.order = append(w.order, sheet)
	return nil
}

func (w *Workbook) Clear(_ context.Context, sheet string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sheets[sheet]; !ok {
		return fmt.Errorf("%w: sheet %q", core.ErrNotFound, sheet)
	}
	w.sheets[sheet] = nil
	return nil
}

func (w *Workbook) DuplicateSheet(_ context.Context, src, dst string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.sheets[src]
	if !ok {
		return fmt.Errorf("%w: sheet %q", core.ErrNotFound, src)
	}
	if _, exists := w.sheets[dst]; exists {
		return fmt.Errorf("%w: sheet %q already exists", core.ErrValidation, dst)
	}
	w.sheets[dst] = cloneGrid(g)
	w.order = append(w.order, dst)
	return nil
}

func (w *Workbook) InsertColumn(_ context.Context, sheet string, index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.sheets[sheet]
	if !ok {
		return fmt.Errorf("%w: sheet %q", core.ErrNotFound, sheet)
	}
	for i, row := range g {
		if index > len(row) {
			continue
		}
		nr := make([]any, 0, len(row)+1)
		nr = append(nr, row[:index]...)
		nr = append(nr, "")
		nr = append(nr, row[index:]...)
		g[i] = nr
	}
	return nil
}

func setCell(g [][]any, row, col int, v any) [][]any {
	for len(g) <= row {
		g = append(g, nil)
	}
	for len(g[row]) <= col {
		g[row] = append(g[row], "")
	}
	g[row][col] = v
	return g
}

func cloneGrid(g [][]any) [][]any {
	out := make([][]any, len(g))
	for i, row := range g {
		out[i] = append([]any(nil), row...)
	}
	return out
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func trimGrid(g [][]any) [][]any {
	for i, row := range g {
		n := len(row)
		for n > 0 && isBlank(row[n-1]) {
			n--
		}
		g[i] = row[:n]
	}
	n := len(g)
	for n > 0 && len(g[n-1]) == 0 {
		n--
	}
	if n == 0 {
		return nil
	}
	return g[:n]
}
