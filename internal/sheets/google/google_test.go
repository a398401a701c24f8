package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"billingsync/internal/core"
	ports "billingsync/internal/sheets"
)

// fakeSheets records requests and serves canned responses for the few
// Sheets endpoints the client uses.
type fakeSheets struct {
	mu       sync.Mutex
	requests []*recorded
	values   [][]any
	metaHits int
}

type recorded struct {
	method string
	path   string
	query  map[string][]string
	body   string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, &recorded{method: r.Method, path: r.URL.Path, query: r.URL.Query(), body: string(body)})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case strings.Contains(path, "/values/") && strings.Contains(path, "Missing"):
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"Unable to parse range: Missing!A1"}}`)
	case strings.HasSuffix(path, "/values:batchUpdate"):
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1"}`)
	case strings.HasSuffix(path, ":batchUpdate"):
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1","replies":[{}]}`)
	case strings.HasSuffix(path, ":clear"):
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1"}`)
	case strings.Contains(path, "/values/") && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "x", "majorDimension": "ROWS", "values": f.values})
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1"}`)
	case strings.HasSuffix(path, "/spreadsheets/sheet-1") && r.Method == http.MethodGet:
		f.mu.Lock()
		f.metaHits++
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"sheets":[
			{"properties":{"sheetId":7,"title":"Feb-25 (RAW)","index":1}},
			{"properties":{"sheetId":0,"title":"Tracker","index":0}}
		]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"not found"}}`)
	}
}

func (f *fakeSheets) last() *recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc, "sheet-1")
}

func TestClient_ValuesUsesUnformattedSerialDates(t *testing.T) {
	fake := &fakeSheets{values: [][]any{{true, float64(45689), "done"}}}
	c := newTestClient(t, fake)

	got, err := c.Values(context.Background(), "Tracker!D2:F30")
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if len(got) != 1 || got[0][0] != true || got[0][1] != float64(45689) {
		t.Fatalf("unexpected values: %#v", got)
	}
	req := fake.last()
	if req.query["valueRenderOption"][0] != "UNFORMATTED_VALUE" || req.query["dateTimeRenderOption"][0] != "SERIAL_NUMBER" {
		t.Fatalf("unexpected query: %v", req.query)
	}
}

func TestClient_UpdateCellsBatchesRawValues(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	err := c.UpdateCells(context.Background(), "Feb-25 (STG1)", []ports.CellUpdate{
		{Row: 2, Col: 0, Value: "Club"},
		{Row: 3, Col: 0, Value: ""},
	})
	if err != nil {
		t.Fatalf("UpdateCells: %v", err)
	}
	req := fake.last()
	if !strings.HasSuffix(req.path, "/values:batchUpdate") {
		t.Fatalf("unexpected path %s", req.path)
	}
	var body gsheet.BatchUpdateValuesRequest
	if err := json.Unmarshal([]byte(req.body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ValueInputOption != "RAW" || len(body.Data) != 2 {
		t.Fatalf("unexpected body: %s", req.body)
	}
	if body.Data[0].Range != "'Feb-25 (STG1)'!A2" {
		t.Fatalf("unexpected range %q", body.Data[0].Range)
	}
}

func TestClient_UpdateWritesDatesAsFormattedSerials(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	issued := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)

	err := c.Update(context.Background(), "'Feb-25 (RAW)'!A1", [][]any{
		{"Account", "Issued"},
		{"00123", issued},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	var put *recorded
	for _, r := range fake.requests {
		if r.method == http.MethodPut {
			put = r
		}
	}
	if put == nil || !strings.Contains(put.body, `["00123",45689]`) {
		t.Fatalf("unexpected value write: %+v", put)
	}
	body := fake.last().body
	for _, want := range []string{`"repeatCell"`, `"sheetId":7`, `"startRowIndex":1`, `"startColumnIndex":1`, `"type":"DATE"`, `"fields":"userEnteredFormat.numberFormat"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("format request missing %s: %s", want, body)
		}
	}
}

func TestClient_UpdateCellsNoop(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	if err := c.UpdateCells(context.Background(), "S", nil); err != nil {
		t.Fatalf("UpdateCells: %v", err)
	}
	if len(fake.requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(fake.requests))
	}
}

func TestClient_SheetMetadata(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ok, err := c.SheetExists(ctx, "Feb-25 (RAW)")
	if err != nil || !ok {
		t.Fatalf("SheetExists = %v, %v", ok, err)
	}
	ok, _ = c.SheetExists(ctx, "Feb-25 (STG1)")
	if ok {
		t.Fatal("STG1 should not exist")
	}
	first, err := c.FirstSheet(ctx)
	if err != nil || first != "Tracker" {
		t.Fatalf("FirstSheet = %q, %v", first, err)
	}
	if fake.metaHits != 1 {
		t.Fatalf("metadata fetched %d times, want 1", fake.metaHits)
	}
}

func TestClient_DuplicateSheetSendsSourceID(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if err := c.DuplicateSheet(ctx, "Tracker", "Copy"); err != nil {
		t.Fatalf("DuplicateSheet: %v", err)
	}
	req := fake.last()
	if !strings.Contains(req.body, `"sourceSheetId":0`) || !strings.Contains(req.body, `"newSheetName":"Copy"`) {
		t.Fatalf("unexpected body: %s", req.body)
	}

	// Structural changes invalidate cached metadata.
	if _, err := c.SheetExists(ctx, "Copy"); err != nil {
		t.Fatalf("SheetExists: %v", err)
	}
	if fake.metaHits != 2 {
		t.Fatalf("metadata fetched %d times, want 2", fake.metaHits)
	}
}

func TestClient_InsertColumn(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	if err := c.InsertColumn(context.Background(), "Feb-25 (RAW)", 0); err != nil {
		t.Fatalf("InsertColumn: %v", err)
	}
	body := fake.last().body
	for _, want := range []string{`"sheetId":7`, `"dimension":"COLUMNS"`, `"startIndex":0`, `"endIndex":1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %s: %s", want, body)
		}
	}
}

func TestClient_UnknownSheetIsNotFound(t *testing.T) {
	c := newTestClient(t, &fakeSheets{})
	ctx := context.Background()

	if err := c.InsertColumn(ctx, "Nope", 0); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("InsertColumn err = %v, want ErrNotFound", err)
	}
	if _, err := c.Values(ctx, "Missing!A1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Values err = %v, want ErrNotFound", err)
	}
}

func TestTranslateOtherErrors(t *testing.T) {
	err := translate(errors.New("connection reset"), "read %s", "x")
	if !errors.Is(err, core.ErrExternalService) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseTabsOrdersByIndex(t *testing.T) {
	tabs := parseTabs(&gsheet.Spreadsheet{Sheets: []*gsheet.Sheet{
		{Properties: &gsheet.SheetProperties{SheetId: 3, Title: "B", Index: 2}},
		nil,
		{Properties: &gsheet.SheetProperties{SheetId: 1, Title: "A", Index: 0}},
	}})
	if len(tabs) != 2 || tabs[0].title != "A" || tabs[1].id != 3 {
		t.Fatalf("unexpected tabs: %+v", tabs)
	}
}
