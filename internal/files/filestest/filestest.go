// Package filestest builds XLSX fixtures for file store tests.
package filestest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// XLSX renders rows into the first sheet of a new workbook.
func XLSX(t testing.TB, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

// WriteFile stores an XLSX fixture as "<dir>/<id>.xlsx".
func WriteFile(t testing.TB, dir, id string, rows [][]any) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".xlsx"), XLSX(t, rows), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}
