package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"billingsync/internal/core"
	"billingsync/internal/log"
	"billingsync/internal/pipeline"
	"billingsync/internal/storage"
)

var sessionID = uuid.MustParse("6f1c2b8e-4a0d-4a57-9d1e-2c3b4a5d6e7f")

type fakeImporter struct {
	prepareErr error
	gotSheet   string
	gotID      uuid.UUID
	gotReq     pipeline.ImportRequest
}

func (f *fakeImporter) Prepare(_ context.Context, sheet string) (*storage.ImportSession, error) {
	f.gotSheet = sheet
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	return &storage.ImportSession{
		ID:          sessionID,
		Label:       "Feb-25",
		Row:         3,
		SourceSheet: "Tracker",
		ExpiresAt:   time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC),
	}, nil
}

func (f *fakeImporter) Import(_ context.Context, id uuid.UUID, req pipeline.ImportRequest) log.Outcome {
	f.gotID, f.gotReq = id, req
	return log.Outcome{Success: true, Message: "Imported 4 rows into Feb-25 (RAW)", Logs: "..."}
}

type fakeProcessor struct{ got string }

func (f *fakeProcessor) Process(_ context.Context, raw string) log.Alert {
	f.got = raw
	return log.Alert{Level: log.AlertInfo, Title: "Processing complete", Message: raw}
}

type fakeStatus struct{ err error }

func (f fakeStatus) Inspect(_ context.Context, label core.PeriodLabel) (pipeline.PeriodStatus, error) {
	if f.err != nil {
		return pipeline.PeriodStatus{}, f.err
	}
	return pipeline.PeriodStatus{Label: label, State: core.StateImported, Inferred: core.StateStaged, Row: 3}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fixture struct {
	srv       *Server
	importer  *fakeImporter
	processor *fakeProcessor
}

func newFixture(t *testing.T, mutate func(*Services, *Options)) *fixture {
	t.Helper()
	f := &fixture{importer: &fakeImporter{}, processor: &fakeProcessor{}}
	svc := Services{Importer: f.importer, Processor: f.processor, Status: fakeStatus{}, Ready: fakePinger{}}
	cfg := log.DefaultConfig()
	cfg.Output = &strings.Builder{}
	opts := Options{Logger: log.New(cfg)}
	if mutate != nil {
		mutate(&svc, &opts)
	}
	f.srv = NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = f.srv.Shutdown(context.Background()) })
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return m
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := f.do(http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s missing request id", path)
		}
	}

	f = newFixture(t, func(s *Services, _ *Options) { s.Ready = fakePinger{err: errors.New("db closed")} })
	if rr := f.do(http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestPrepareImport(t *testing.T) {
	f := newFixture(t, nil)
	rr := f.do(http.MethodGet, "/api/import/session?sheet=Billing", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	m := decode(t, rr)
	if m["session_id"] != sessionID.String() || m["label"] != "Feb-25" || m["row"] != float64(3) {
		t.Fatalf("unexpected body %v", m)
	}
	if f.importer.gotSheet != "Billing" {
		t.Fatalf("sheet=%q", f.importer.gotSheet)
	}
}

func TestPrepareImport_NotFound(t *testing.T) {
	f := newFixture(t, func(s *Services, _ *Options) {
		s.Importer = &fakeImporter{prepareErr: core.NewUserError("No row for May-25 in Tracker",
			fmt.Errorf("%w: tracking row", core.ErrNotFound))}
	})
	rr := f.do(http.MethodGet, "/api/import/session", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
	m := decode(t, rr)
	if m["error"] != "No row for May-25 in Tracker" || m["kind"] != "not_found" {
		t.Fatalf("unexpected body %v", m)
	}
}

func TestImport(t *testing.T) {
	f := newFixture(t, nil)
	body := fmt.Sprintf(`{"session_id":%q,"label":" Feb-25 ","source_url":"https://drive.google.com/file/d/x/view","confirmed":true}`, sessionID)
	rr := f.do(http.MethodPost, "/api/import", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if m := decode(t, rr); m["success"] != true {
		t.Fatalf("unexpected body %v", m)
	}
	want := pipeline.ImportRequest{Label: "Feb-25", SourceURL: "https://drive.google.com/file/d/x/view", Confirmed: true}
	if f.importer.gotID != sessionID || f.importer.gotReq != want {
		t.Fatalf("got id=%v req=%+v", f.importer.gotID, f.importer.gotReq)
	}
}

func TestImport_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "malformed", body: `{"session_id":`},
		{name: "unknown field", body: fmt.Sprintf(`{"session_id":%q,"url":"x"}`, sessionID)},
		{name: "bad session id", body: `{"session_id":"nope"}`},
		{name: "two objects", body: fmt.Sprintf(`{"session_id":%q}{}`, sessionID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			f.srv.Handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d, want 400", rr.Code)
			}
		})
	}
}

func TestProcess(t *testing.T) {
	f := newFixture(t, nil)
	rr := f.do(http.MethodPost, "/api/process", `{"sheet":"Feb-25 (RAW)"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if m := decode(t, rr); m["level"] != "INFO" {
		t.Fatalf("unexpected body %v", m)
	}
	if f.processor.got != "Feb-25 (RAW)" {
		t.Fatalf("sheet=%q", f.processor.got)
	}

	if rr := f.do(http.MethodPost, "/api/process", `{"sheet":"  "}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("blank sheet status=%d, want 400", rr.Code)
	}
}

func TestPeriod(t *testing.T) {
	f := newFixture(t, nil)
	rr := f.do(http.MethodGet, "/api/periods/Feb-25", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	m := decode(t, rr)
	if m["state"] != "imported" || m["inferred"] != "staged" || m["consistent"] != false {
		t.Fatalf("unexpected body %v", m)
	}

	if rr := f.do(http.MethodGet, "/api/periods/February", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad label status=%d, want 422", rr.Code)
	}

	f = newFixture(t, func(s *Services, _ *Options) {
		s.Status = fakeStatus{err: fmt.Errorf("%w: sheets down", core.ErrExternalService)}
	})
	if rr := f.do(http.MethodGet, "/api/periods/Feb-25", ""); rr.Code != http.StatusBadGateway {
		t.Fatalf("external failure status=%d, want 502", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	if rr := f.do(http.MethodGet, "/api/process", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want 405", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(_ *Services, o *Options) { o.RateLimitPerMinute = 1 })
	if rr := f.do(http.MethodPost, "/api/process", `{"sheet":"Feb-25 (RAW)"}`); rr.Code != http.StatusOK {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := f.do(http.MethodPost, "/api/process", `{"sheet":"Feb-25 (RAW)"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	// Status reads are not limited.
	if rr := f.do(http.MethodGet, "/api/periods/Feb-25", ""); rr.Code != http.StatusOK {
		t.Fatalf("period status=%d", rr.Code)
	}
}
