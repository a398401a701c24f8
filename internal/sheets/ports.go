package sheets

import "context"

// CellUpdate addresses a single cell of a sheet.
type CellUpdate struct {
	Row   int // 1-based sheet row
	Col   int // 0-based column index
	Value any
}

// Ports for outbound adapters.
type (
	// Reader reads rectangular ranges. Values are unformatted: numbers come
	// back as float64, booleans as bool and dates as serial numbers.
	// Trailing empty rows and cells are omitted, as the Sheets API does.
	Reader interface {
		Values(ctx context.Context, rng string) ([][]any, error)
	}

	// Writer writes cell values verbatim (no formula or date parsing).
	Writer interface {
		Update(ctx context.Context, rng string, values [][]any) error
		UpdateCells(ctx context.Context, sheet string, cells []CellUpdate) error
	}

	// TabManager creates and reshapes tabs within the workbook.
	TabManager interface {
		SheetExists(ctx context.Context, sheet string) (bool, error)
		AddSheet(ctx context.Context, sheet string) error
		Clear(ctx context.Context, sheet string) error
		DuplicateSheet(ctx context.Context, src, dst string) error
		// InsertColumn shifts columns at index and to the right one step right.
		InsertColumn(ctx context.Context, sheet string, index int) error
	}

	// Workbook is the full tabular store used by the pipeline.
	Workbook interface {
		Reader
		Writer
		TabManager
	}
)
