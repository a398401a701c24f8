// Package tracking reads and updates the per-period tracking tab.
package tracking

import (
	"context"
	"fmt"

	"billingsync/internal/core"
	"billingsync/internal/sheets"
)

// Tracking tab columns (0-based).
const (
	colConfirmed = 3 // D
	colStatus    = 5 // F; E holds the period
)

// Sheet is the tracking tab of a workbook.
type Sheet struct {
	wb   sheets.Workbook
	name string
}

func New(wb sheets.Workbook, name string) *Sheet {
	return &Sheet{wb: wb, name: name}
}

// Name returns the tab name.
func (s *Sheet) Name() string { return s.name }

// Entries reads rows TrackingFirstRow..TrackingLastRow. Missing trailing rows
// are returned as empty entries so indexes stay aligned with sheet rows.
func (s *Sheet) Entries(ctx context.Context) ([]core.TrackingEntry, error) {
	rng := sheets.A1(s.name, fmt.Sprintf("D%d:F%d", core.TrackingFirstRow, core.TrackingLastRow))
	rows, err := s.wb.Values(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: read tracking sheet %s: %w", core.ErrExternalService, s.name, err)
	}
	entries := make([]core.TrackingEntry, core.TrackingLastRow-core.TrackingFirstRow+1)
	for i, row := range rows {
		if i >= len(entries) {
			break
		}
		cell := func(j int) any {
			if j < len(row) {
				return row[j]
			}
			return nil
		}
		entries[i] = core.TrackingEntry{
			Confirmed:  core.ParseBool(cell(0)),
			PeriodCell: cell(1),
			Status:     core.CellString(cell(2)),
		}
	}
	return entries, nil
}

// Locate finds the row for label. ok is false when no row matches.
func (s *Sheet) Locate(ctx context.Context, label core.PeriodLabel) (core.RowMatch, bool, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return core.RowMatch{}, false, err
	}
	m, ok := core.LocateRow(label, entries, core.TrackingFirstRow)
	return m, ok, nil
}

// Status reads column F of row.
func (s *Sheet) Status(ctx context.Context, row int) (string, error) {
	rows, err := s.wb.Values(ctx, sheets.A1(s.name, sheets.CellA1(row, colStatus)))
	if err != nil {
		return "", fmt.Errorf("%w: read tracking status: %v", core.ErrExternalService, err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", nil
	}
	return core.CellString(rows[0][0]), nil
}

// MarkImported ticks the confirmation box and records stage 1 completion.
func (s *Sheet) MarkImported(ctx context.Context, row int, label core.PeriodLabel) error {
	err := s.wb.UpdateCells(ctx, s.name, []sheets.CellUpdate{
		{Row: row, Col: colConfirmed, Value: true},
		{Row: row, Col: colStatus, Value: core.ImportCompletedStatus(label)},
	})
	if err != nil {
		return fmt.Errorf("%w: update tracking row %d: %v", core.ErrExternalService, row, err)
	}
	return nil
}

// SetStatus overwrites column F of row.
func (s *Sheet) SetStatus(ctx context.Context, row int, status string) error {
	err := s.wb.UpdateCells(ctx, s.name, []sheets.CellUpdate{{Row: row, Col: colStatus, Value: status}})
	if err != nil {
		return fmt.Errorf("%w: update tracking status row %d: %v", core.ErrExternalService, row, err)
	}
	return nil
}
