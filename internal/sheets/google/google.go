package google

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"billingsync/internal/core"
	ports "billingsync/internal/sheets"
)

// Value options shared by every call. Reads are unformatted with dates as
// serial numbers; writes store values verbatim.
const (
	valueRender    = "UNFORMATTED_VALUE"
	dateRender     = "SERIAL_NUMBER"
	valueInputMode = "RAW"
)

// Client is a Sheets-backed Workbook bound to one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu     sync.Mutex
	tabs   []tab
	loaded bool
}

var _ ports.Workbook = (*Client)(nil)

// New creates a client for spreadsheetID. Credentials come from opts (see
// googleauth.ClientOptions).
func New(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*Client, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("%w: missing spreadsheet id", core.ErrValidation)
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.DebugContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID)
	return NewWithService(svc, spreadsheetID), nil
}

// NewWithService wraps an existing service, e.g. to open a converted copy
// with the same credentials.
func NewWithService(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID}
}

// Service exposes the underlying API service.
func (c *Client) Service() *gsheet.Service { return c.svc }

func (c *Client) Values(ctx context.Context, rng string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption(valueRender).
		DateTimeRenderOption(dateRender).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, translate(err, "read %s", rng)
	}
	return resp.Values, nil
}

func (c *Client) Update(ctx context.Context, rng string, values [][]any) error {
	out, dates := rawValues(values)
	vr := &gsheet.ValueRange{Values: out, MajorDimension: "ROWS"}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInputMode).
		Context(ctx).
		Do()
	if err != nil {
		return translate(err, "write %s", rng)
	}
	if len(dates) == 0 {
		return nil
	}
	r, err := ports.ParseRange(rng)
	if err != nil {
		return err
	}
	for i := range dates {
		dates[i].row += r.StartRow
		dates[i].col += r.StartCol
	}
	return c.formatDates(ctx, r.Sheet, dates)
}

// UpdateCells writes scattered cells in one request.
func (c *Client) UpdateCells(ctx context.Context, sheet string, cells []ports.CellUpdate) error {
	if len(cells) == 0 {
		return nil
	}
	data := make([]*gsheet.ValueRange, 0, len(cells))
	var dates []dateCell
	for _, cell := range cells {
		v := cell.Value
		if t, ok := v.(time.Time); ok {
			v = core.TimeToSerial(t)
			dates = append(dates, newDateCell(cell.Row, cell.Col, t))
		}
		data = append(data, &gsheet.ValueRange{
			Range:  ports.A1(sheet, ports.CellA1(cell.Row, cell.Col)),
			Values: [][]any{{v}},
		})
	}
	_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: valueInputMode,
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return translate(err, "batch write %d cells to %s", len(cells), sheet)
	}
	return c.formatDates(ctx, sheet, dates)
}

// dateCell is a written date value. row is 1-based, col 0-based.
type dateCell struct {
	row, col int
	withTime bool
}

func newDateCell(row, col int, t time.Time) dateCell {
	return dateCell{row: row, col: col, withTime: t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0}
}

// rawValues replaces time.Time cells with serial numbers, which RAW input
// stores as plain numbers. The returned positions are offsets from the first
// cell of the grid.
func rawValues(values [][]any) ([][]any, []dateCell) {
	var dates []dateCell
	out := values
	for i, row := range values {
		for j, v := range row {
			t, ok := v.(time.Time)
			if !ok {
				continue
			}
			if dates == nil {
				out = make([][]any, len(values))
				for k := range values {
					out[k] = append([]any(nil), values[k]...)
				}
			}
			out[i][j] = core.TimeToSerial(t)
			dates = append(dates, newDateCell(i, j, t))
		}
	}
	return out, dates
}

// formatDates gives written serial numbers a date number format so they
// display as dates.
func (c *Client) formatDates(ctx context.Context, sheet string, dates []dateCell) error {
	if len(dates) == 0 {
		return nil
	}
	id, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	reqs := make([]*gsheet.Request, 0, len(dates))
	for _, d := range dates {
		format := "DATE"
		if d.withTime {
			format = "DATE_TIME"
		}
		reqs = append(reqs, &gsheet.Request{
			RepeatCell: &gsheet.RepeatCellRequest{
				Range: &gsheet.GridRange{
					SheetId:          id,
					StartRowIndex:    int64(d.row - 1),
					EndRowIndex:      int64(d.row),
					StartColumnIndex: int64(d.col),
					EndColumnIndex:   int64(d.col) + 1,
					ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
				},
				Cell: &gsheet.CellData{
					UserEnteredFormat: &gsheet.CellFormat{NumberFormat: &gsheet.NumberFormat{Type: format}},
				},
				Fields: "userEnteredFormat.numberFormat",
			},
		})
	}
	return c.batch(ctx, fmt.Sprintf("format %d date cells in %s", len(dates), sheet), reqs...)
}

func (c *Client) SheetExists(ctx context.Context, sheet string) (bool, error) {
	tabs, err := c.loadTabs(ctx)
	if err != nil {
		return false, err
	}
	_, ok := findTab(tabs, sheet)
	return ok, nil
}

// FirstSheet returns the title of the leftmost tab.
func (c *Client) FirstSheet(ctx context.Context) (string, error) {
	tabs, err := c.loadTabs(ctx)
	if err != nil {
		return "", err
	}
	if len(tabs) == 0 {
		return "", fmt.Errorf("%w: spreadsheet %s has no sheets", core.ErrNotFound, c.spreadsheetID)
	}
	return tabs[0].title, nil
}

func (c *Client) AddSheet(ctx context.Context, sheet string) error {
	return c.batch(ctx, fmt.Sprintf("add sheet %s", sheet), &gsheet.Request{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
	})
}

func (c *Client) Clear(ctx context.Context, sheet string) error {
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, ports.A1(sheet, ""), &gsheet.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return translate(err, "clear %s", sheet)
	}
	return nil
}

func (c *Client) DuplicateSheet(ctx context.Context, src, dst string) error {
	id, err := c.sheetID(ctx, src)
	if err != nil {
		return err
	}
	return c.batch(ctx, fmt.Sprintf("duplicate %s as %s", src, dst), &gsheet.Request{
		DuplicateSheet: &gsheet.DuplicateSheetRequest{
			SourceSheetId:   id,
			NewSheetName:    dst,
			ForceSendFields: []string{"SourceSheetId"},
		},
	})
}

func (c *Client) InsertColumn(ctx context.Context, sheet string, index int) error {
	id, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	return c.batch(ctx, fmt.Sprintf("insert column %d in %s", index, sheet), &gsheet.Request{
		InsertDimension: &gsheet.InsertDimensionRequest{
			Range: &gsheet.DimensionRange{
				SheetId:         id,
				Dimension:       "COLUMNS",
				StartIndex:      int64(index),
				EndIndex:        int64(index) + 1,
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
			InheritFromBefore: false,
		},
	})
}

// batch sends structural requests and drops the cached tab list.
func (c *Client) batch(ctx context.Context, what string, reqs ...*gsheet.Request) error {
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).
		Do()
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
	if err != nil {
		return translate(err, "%s", what)
	}
	return nil
}

func (c *Client) sheetID(ctx context.Context, sheet string) (int64, error) {
	tabs, err := c.loadTabs(ctx)
	if err != nil {
		return 0, err
	}
	t, ok := findTab(tabs, sheet)
	if !ok {
		return 0, fmt.Errorf("%w: sheet %q", core.ErrNotFound, sheet)
	}
	return t.id, nil
}

func (c *Client) loadTabs(ctx context.Context) ([]tab, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.tabs, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties(sheetId,title,index)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, translate(err, "read spreadsheet metadata")
	}
	c.tabs = parseTabs(ss)
	c.loaded = true
	return c.tabs, nil
}
