// Package xlsx converts stored spreadsheet files to table values locally,
// without creating a converted copy in the file store.
package xlsx

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"billingsync/internal/core"
	"billingsync/internal/files"
	"billingsync/internal/sheets"
)

type Converter struct {
	store files.Store
}

var _ files.Converter = (*Converter)(nil)

func NewConverter(store files.Store) *Converter {
	return &Converter{store: store}
}

// Convert reads the first sheet of the file. Legacy .xls files are not
// readable locally and are rejected.
func (c *Converter) Convert(ctx context.Context, id string) (*files.Converted, error) {
	blob, err := c.store.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if blob.MimeType == files.MimeXLS {
		return nil, fmt.Errorf("%w: %s is a legacy .xls file; use the drive converter", core.ErrValidation, blob.Name)
	}
	rows, err := FirstSheetRows(blob.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", core.ErrValidation, blob.Name, err)
	}
	return files.NewConverted(rows, nil), nil
}

// FirstSheetRows parses XLSX content and returns its first sheet as typed values.
func FirstSheetRows(data []byte) ([][]any, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return sheets.SheetValues(f, names[0])
}
