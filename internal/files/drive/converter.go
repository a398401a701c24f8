package drive

import (
	"context"
	"fmt"
	"log/slog"

	"billingsync/internal/files"
	"billingsync/internal/log"
	"billingsync/internal/sheets"
)

// Spreadsheet is a converted copy opened for reading.
type Spreadsheet interface {
	sheets.Reader
	FirstSheet(ctx context.Context) (string, error)
}

// OpenFunc opens a converted spreadsheet by id.
type OpenFunc func(ctx context.Context, id string) (Spreadsheet, error)

// SheetConverter asks the file store for a native spreadsheet copy, reads
// its first sheet and deletes the copy on Cleanup.
type SheetConverter struct {
	store files.Store
	open  OpenFunc
}

var _ files.Converter = (*SheetConverter)(nil)

func NewSheetConverter(store files.Store, open OpenFunc) *SheetConverter {
	return &SheetConverter{store: store, open: open}
}

func (c *SheetConverter) Convert(ctx context.Context, id string) (*files.Converted, error) {
	copyID, err := c.store.ConvertToSpreadsheet(ctx, id)
	if err != nil {
		return nil, err
	}
	cleanup := func(ctx context.Context) error {
		if err := c.store.Delete(ctx, copyID); err != nil {
			return fmt.Errorf("delete converted copy %s: %w", copyID, err)
		}
		slog.DebugContext(ctx, "Deleted converted copy", log.FieldComponent, log.ComponentFiles, log.FieldFileID, copyID)
		return nil
	}

	rows, err := c.read(ctx, copyID)
	if err != nil {
		// The copy exists even though reading failed; hand back the cleanup.
		return files.NewConverted(nil, cleanup), err
	}
	return files.NewConverted(rows, cleanup), nil
}

func (c *SheetConverter) read(ctx context.Context, copyID string) ([][]any, error) {
	ss, err := c.open(ctx, copyID)
	if err != nil {
		return nil, fmt.Errorf("open converted copy %s: %w", copyID, err)
	}
	first, err := ss.FirstSheet(ctx)
	if err != nil {
		return nil, fmt.Errorf("converted copy %s: %w", copyID, err)
	}
	rows, err := ss.Values(ctx, sheets.A1(first, ""))
	if err != nil {
		return nil, fmt.Errorf("read converted copy %s: %w", copyID, err)
	}
	return rows, nil
}
