package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billingsync/internal/amqp"
	"billingsync/internal/classify"
	"billingsync/internal/core"
	"billingsync/internal/files/drive"
	"billingsync/internal/files/filestest"
	filesmem "billingsync/internal/files/memory"
	"billingsync/internal/files/xlsx"
	"billingsync/internal/log"
	"billingsync/internal/sheets"
	sheetsmem "billingsync/internal/sheets/memory"
	"billingsync/internal/storage"
)

const fileID = "1AbCdEfGhIjKlMnOpQrStUvWxYz"

// 2025-02-01 as a spreadsheet serial date.
const feb25Serial = 45689.0

type recorder struct {
	mu     sync.Mutex
	events []*amqp.PeriodEvent
	err    error
}

func (r *recorder) PublishPeriodEvent(_ context.Context, ev *amqp.PeriodEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Stage)
	}
	return out
}

type env struct {
	t      *testing.T
	now    time.Time
	dir    string
	wb     *sheetsmem.Workbook
	store  *filesmem.Store
	repo   *storage.SQLiteRepository
	events *recorder
	deps   Deps
	opts   Options
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:      t,
		now:    time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		dir:    t.TempDir(),
		wb:     sheetsmem.New(),
		events: &recorder{},
	}
	e.store = filesmem.New(e.dir)

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "billingsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	repo.WithClock(e.clock)
	e.repo = repo

	e.wb.Put("Tracker", [][]any{
		{"", "", "", "Done", "Month", "Status"},
		{"", "", "", true, "Jan-25", "Jan-25 (Stage 2 Completed)"},
		{"", "", "", false, feb25Serial, ""},
	})
	e.wb.Put("Reference", [][]any{
		{"Old", "New"},
		{"A Club", "A FC"},
		{"B United", "B FC"},
	})
	e.wb.Put("Lookup", [][]any{
		{"Fragment", "Label"},
		{"fc", "Club"},
		{"academy", "Academy"},
	})

	e.deps = Deps{
		Workbook:   e.wb,
		Converter:  xlsx.NewConverter(e.store),
		Classifier: classify.New(classify.NewSheetLookup(e.wb, "Lookup", 0)),
		Sessions:   repo,
		States:     repo,
		Locks:      repo,
		Events:     e.events,
	}
	e.opts = DefaultOptions()
	e.opts.Now = e.clock
	return e
}

func (e *env) clock() time.Time { return e.now }

func (e *env) importer() *Importer   { return NewImporter(e.deps, e.opts) }
func (e *env) processor() *Processor { return NewProcessor(e.deps, e.opts) }

func (e *env) sheet(name string) [][]any {
	e.t.Helper()
	g, ok := e.wb.Sheet(name)
	require.True(e.t, ok, "sheet %s missing", name)
	return g
}

func (e *env) state(label core.PeriodLabel) core.PipelineState {
	e.t.Helper()
	st, err := e.repo.GetState(context.Background(), label)
	require.NoError(e.t, err)
	return st.State
}

// seedRaw puts a raw table in place as if stage 1 had run.
func (e *env) seedRaw(label core.PeriodLabel, rows [][]any) {
	e.t.Helper()
	e.wb.Put(core.RawSheetName(label), rows)
	require.NoError(e.t, e.repo.SetState(context.Background(), label, core.StateImported, core.RawSheetName(label)))
}

func cellAt(g [][]any, row, col int) any {
	if row >= len(g) || col >= len(g[row]) {
		return nil
	}
	return g[row][col]
}

var sourceRows = [][]any{
	{"Entity", "Amount"},
	{"A Club", 10},
	{"B United", 20},
	{"C Town", 30},
}

func TestPrepare(t *testing.T) {
	e := newEnv(t)

	s, err := e.importer().Prepare(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, core.PeriodLabel("Feb-25"), s.Label)
	assert.Equal(t, 3, s.Row)
	assert.False(t, s.Confirmed)
	assert.Equal(t, "Tracker", s.SourceSheet)
	assert.Equal(t, e.now.Add(30*time.Minute), s.ExpiresAt)
}

func TestPrepare_NoTrackingRow(t *testing.T) {
	e := newEnv(t)
	e.now = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	_, err := e.importer().Prepare(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.Equal(t, "No row for May-25 in Tracker", core.UserMessage(err))
}

func TestPrepare_UsesConfiguredTimeZone(t *testing.T) {
	e := newEnv(t)
	// 23:30 UTC on Feb 28 is already March 1 in CET.
	e.now = time.Date(2025, 2, 28, 23, 30, 0, 0, time.UTC)
	e.opts.Location = time.FixedZone("CET", 3600)

	s, err := e.importer().Prepare(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, core.PeriodLabel("Feb-25"), s.Label)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	filestest.WriteFile(t, e.dir, fileID, sourceRows)
	im := e.importer()

	s, err := im.Prepare(ctx, "")
	require.NoError(t, err)

	out := im.Import(ctx, s.ID, ImportRequest{
		SourceURL: "https://drive.google.com/file/d/" + fileID + "/view?usp=sharing",
		Confirmed: true,
	})
	require.True(t, out.Success, out.Logs)
	assert.Equal(t, "Imported 4 rows into Feb-25 (RAW)", out.Message)
	assert.Contains(t, out.Logs, "Raw table written")
	assert.Contains(t, out.Logs, "Import finished")

	assert.Equal(t, [][]any{
		{"Entity", "Amount"},
		{"A Club", float64(10)},
		{"B United", float64(20)},
		{"C Town", float64(30)},
	}, e.sheet("Feb-25 (RAW)"))

	tracker := e.sheet("Tracker")
	assert.Equal(t, true, tracker[2][3])
	assert.Equal(t, "Feb-25 (Import Completed)", tracker[2][5])

	assert.Equal(t, core.StateImported, e.state("Feb-25"))
	assert.Equal(t, []string{amqp.EventImportCompleted}, e.events.stages())

	_, err = e.repo.GetSession(ctx, s.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound), "session should be deleted, got %v", err)
}

func TestImport_KeepsSourceValuesVerbatim(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	issued := time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC)
	filestest.WriteFile(t, e.dir, fileID, [][]any{
		{"Entity", "Account", "Issued", "Amount"},
		{"A Club", "00123", issued, 10},
	})
	im := e.importer()

	s, err := im.Prepare(ctx, "")
	require.NoError(t, err)
	out := im.Import(ctx, s.ID, ImportRequest{SourceURL: fileID, Confirmed: true})
	require.True(t, out.Success, out.Logs)

	assert.Equal(t, [][]any{
		{"Entity", "Account", "Issued", "Amount"},
		{"A Club", "00123", issued, float64(10)},
	}, e.sheet("Feb-25 (RAW)"))
}

func TestImport_ReplacesExistingRawTable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	filestest.WriteFile(t, e.dir, fileID, sourceRows)
	e.wb.Put("Feb-25 (RAW)", [][]any{{"old", "data", "wider"}, {1, 2, 3}, {4, 5, 6}, {7, 8, 9}, {10, 11, 12}})
	im := e.importer()

	s, err := im.Prepare(ctx, "")
	require.NoError(t, err)
	out := im.Import(ctx, s.ID, ImportRequest{SourceURL: fileID, Confirmed: true})
	require.True(t, out.Success, out.Logs)

	assert.Len(t, e.sheet("Feb-25 (RAW)"), 4)
	assert.Contains(t, out.Logs, "Clearing existing raw table")
}

func TestImport_OperatorChangesLabel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	filestest.WriteFile(t, e.dir, fileID, sourceRows)
	im := e.importer()

	s, err := im.Prepare(ctx, "")
	require.NoError(t, err)
	out := im.Import(ctx, s.ID, ImportRequest{Label: " Jan-25 ", SourceURL: fileID, Confirmed: true})
	require.True(t, out.Success, out.Logs)

	_, ok := e.wb.Sheet("Jan-25 (RAW)")
	assert.True(t, ok)
	tracker := e.sheet("Tracker")
	assert.Equal(t, "Jan-25 (Import Completed)", tracker[1][5])
	assert.Nil(t, cellAt(tracker, 2, 5))
}

func TestImport_Failures(t *testing.T) {
	tests := []struct {
		name    string
		req     ImportRequest
		message string
	}{
		{
			name:    "not confirmed",
			req:     ImportRequest{SourceURL: fileID},
			message: "Import was not confirmed",
		},
		{
			name:    "bad label",
			req:     ImportRequest{Label: "February", SourceURL: fileID, Confirmed: true},
			message: `"February" is not a billing month like Feb-25`,
		},
		{
			name:    "no file id",
			req:     ImportRequest{SourceURL: "https://example.com/short", Confirmed: true},
			message: "The file link does not contain a file id",
		},
		{
			name:    "label without tracking row",
			req:     ImportRequest{Label: "Dec-24", SourceURL: fileID, Confirmed: true},
			message: "No row for Dec-24 in Tracker",
		},
		{
			name:    "missing file",
			req:     ImportRequest{SourceURL: "ZZZZZZZZZZZZZZZZZZZZZZZZZZZ", Confirmed: true},
			message: "The file could not be converted to a table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t)
			filestest.WriteFile(t, e.dir, fileID, sourceRows)
			im := e.importer()

			s, err := im.Prepare(ctx, "")
			require.NoError(t, err)
			out := im.Import(ctx, s.ID, tt.req)

			assert.False(t, out.Success)
			assert.Equal(t, tt.message, out.Message)
			assert.Contains(t, out.Logs, "ERROR Import failed")
			_, ok := e.wb.Sheet("Feb-25 (RAW)")
			assert.False(t, ok)
			assert.Empty(t, e.events.stages())
		})
	}
}

func TestImport_ExpiredSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	filestest.WriteFile(t, e.dir, fileID, sourceRows)
	im := e.importer()

	s, err := im.Prepare(ctx, "")
	require.NoError(t, err)
	e.now = e.now.Add(31 * time.Minute)

	out := im.Import(ctx, s.ID, ImportRequest{SourceURL: fileID, Confirmed: true})
	assert.False(t, out.Success)
	assert.Equal(t, "The import session is unknown or has expired; start the import again", out.Message)
}

func TestImport_PeriodLocked(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	filestest.WriteFile(t, e.dir, fileID, sourceRows)
	im := e.importer()
	require.NoError(t, e.repo.AcquireLock(ctx, "Feb-25", "someone-else", time.Hour))

	s, err := im.Prepare(ctx, "")
	require.NoError(t, err)
	out := im.Import(ctx, s.ID, ImportRequest{SourceURL: fileID, Confirmed: true})

	assert.False(t, out.Success)
	assert.Equal(t, "Another run is already working on Feb-25; try again later", out.Message)
	assert.Contains(t, out.Logs, "error_kind=validation_error")
}

func TestImport_RemovesConvertedCopy(t *testing.T) {
	for _, tc := range []struct {
		name    string
		rows    [][]any
		success bool
	}{
		{name: "success", rows: sourceRows, success: true},
		{name: "empty file", rows: nil, success: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t)
			filestest.WriteFile(t, e.dir, fileID, tc.rows)
			e.deps.Converter = drive.NewSheetConverter(e.store, func(ctx context.Context, id string) (drive.Spreadsheet, error) {
				wb, err := e.store.Open(ctx, id)
				if err != nil {
					return nil, err
				}
				return wb, nil
			})
			im := e.importer()

			s, err := im.Prepare(ctx, "")
			require.NoError(t, err)
			out := im.Import(ctx, s.ID, ImportRequest{SourceURL: fileID, Confirmed: true})

			assert.Equal(t, tc.success, out.Success, out.Logs)
			assert.Empty(t, e.store.Converted())
		})
	}
}

func TestImport_PublishFailureIsAWarning(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	filestest.WriteFile(t, e.dir, fileID, sourceRows)
	e.events.err = amqp.ErrCircuitOpen
	im := e.importer()

	s, err := im.Prepare(ctx, "")
	require.NoError(t, err)
	out := im.Import(ctx, s.ID, ImportRequest{SourceURL: fileID, Confirmed: true})

	assert.True(t, out.Success)
	assert.Contains(t, out.Logs, "WARN Failed to publish period event")
}

var rawRows = [][]any{
	{"Entity", "Amount"},
	{" A Club ", float64(10)},
	{"B United", float64(20)},
	{"C Town", float64(30)},
}

func TestProcess(t *testing.T) {
	e := newEnv(t)
	e.seedRaw("Feb-25", rawRows)

	alert := e.processor().Process(context.Background(), "Feb-25 (RAW)")
	require.Equal(t, log.AlertInfo, alert.Level, alert.Logs)
	assert.Equal(t, "Processing complete", alert.Title)
	assert.Equal(t, "Feb-25 (RAW) processed into Feb-25 (STG1): 3 rows, 1 trimmed, 2 substituted, 2 classified", alert.Message)

	assert.Equal(t, [][]any{
		{"Entity Type", "Entity", "Amount"},
		{"Club", "A FC", float64(10)},
		{"Club", "B FC", float64(20)},
		{"", "C Town", float64(30)},
	}, e.sheet("Feb-25 (STG1)"))
	// The raw table is left untouched.
	assert.Equal(t, rawRows, e.sheet("Feb-25 (RAW)"))

	assert.Equal(t, "Feb-25 (Stage 2 Completed)", e.sheet("Tracker")[2][5])
	assert.Equal(t, core.StateCompleted, e.state("Feb-25"))
	assert.Equal(t, []string{amqp.EventStage2Completed}, e.events.stages())
	assert.Contains(t, alert.Logs, "INFO No classification found")
	assert.Contains(t, alert.Logs, "Classifications verified")
}

func TestProcess_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedRaw("Feb-25", rawRows)
	p := e.processor()

	first := p.Process(ctx, "Feb-25 (RAW)")
	require.Equal(t, log.AlertInfo, first.Level, first.Logs)
	staged := e.sheet("Feb-25 (STG1)")
	writes := e.wb.Writes

	second := p.Process(ctx, "Feb-25 (RAW)")
	require.Equal(t, log.AlertInfo, second.Level, second.Logs)
	assert.Equal(t, staged, e.sheet("Feb-25 (STG1)"))
	assert.Contains(t, second.Logs, "Reusing existing staged table")
	assert.NotContains(t, second.Logs, "Classification column added")
	// Only the tracking status is rewritten.
	assert.Equal(t, writes+1, e.wb.Writes)
}

func TestProcess_PatternMismatch(t *testing.T) {
	for _, name := range []string{"Sheet1", "Feb-25 (STG1)", "February (RAW)"} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			e.seedRaw("Feb-25", rawRows)

			alert := e.processor().Process(context.Background(), name)
			assert.Equal(t, log.AlertWarn, alert.Level)
			assert.Equal(t, "Wrong sheet", alert.Title)
			assert.Zero(t, e.wb.Writes)
			_, ok := e.wb.Sheet("Feb-25 (STG1)")
			assert.False(t, ok)
			assert.Empty(t, e.events.stages())
		})
	}
}

func TestProcess_MissingRawTable(t *testing.T) {
	e := newEnv(t)

	alert := e.processor().Process(context.Background(), "Feb-25 (RAW)")
	assert.Equal(t, log.AlertError, alert.Level)
	assert.Equal(t, "Sheet Feb-25 (RAW) does not exist", alert.Message)
}

func TestProcess_MissingReferenceSheetKeepsPartialWrites(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedRaw("Feb-25", rawRows)
	e.opts.ReferenceSheet = "Nope"

	alert := e.processor().Process(ctx, "Feb-25 (RAW)")
	assert.Equal(t, log.AlertError, alert.Level)
	assert.Equal(t, "Reference sheet Nope is missing", alert.Message)
	assert.Contains(t, alert.Logs, "ERROR Processing failed")

	// Trimming already happened and is not rolled back.
	staged := e.sheet("Feb-25 (STG1)")
	assert.Equal(t, "A Club", staged[1][0])
	assert.Equal(t, core.StateImported, e.state("Feb-25"))
}

func TestProcess_NoTrackingRowIsAWarning(t *testing.T) {
	e := newEnv(t)
	e.seedRaw("Mar-25", rawRows)

	alert := e.processor().Process(context.Background(), "Mar-25 (RAW)")
	assert.Equal(t, log.AlertWarn, alert.Level)
	assert.Equal(t, "Processing complete with warnings", alert.Title)
	assert.Contains(t, alert.Logs, "No tracking row for period")
	assert.Equal(t, core.StateCompleted, e.state("Mar-25"))
}

func TestProcess_MissingTrackingSheetIsAWarning(t *testing.T) {
	e := newEnv(t)
	e.seedRaw("Feb-25", rawRows)
	e.opts.TrackingSheet = "Tracker (renamed)"

	alert := e.processor().Process(context.Background(), "Feb-25 (RAW)")
	assert.Equal(t, log.AlertWarn, alert.Level, alert.Logs)
	assert.Equal(t, "Processing complete with warnings", alert.Title)
	assert.Contains(t, alert.Logs, "Tracking sheet missing")
	assert.Equal(t, "Club", e.sheet("Feb-25 (STG1)")[1][0])
	assert.Equal(t, core.StateCompleted, e.state("Feb-25"))
	assert.Equal(t, []string{amqp.EventStage2Completed}, e.events.stages())
}

func TestProcess_FreshCopyAlwaysGetsClassificationColumn(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	// The source's own first header happens to match the classification header.
	e.seedRaw("Feb-25", [][]any{
		{"Entity Type", "Amount"},
		{"A Club", float64(10)},
		{"Riverside Academy", float64(20)},
	})
	p := e.processor()

	alert := p.Process(ctx, "Feb-25 (RAW)")
	require.Equal(t, log.AlertInfo, alert.Level, alert.Logs)
	assert.Contains(t, alert.Logs, "Classification column added")
	want := [][]any{
		{"Entity Type", "Entity Type", "Amount"},
		{"Club", "A FC", float64(10)},
		{"Academy", "Riverside Academy", float64(20)},
	}
	assert.Equal(t, want, e.sheet("Feb-25 (STG1)"))

	// A rerun reuses the staged tab and finds the column it added.
	again := p.Process(ctx, "Feb-25 (RAW)")
	require.Equal(t, log.AlertInfo, again.Level, again.Logs)
	assert.NotContains(t, again.Logs, "Classification column added")
	assert.Equal(t, want, e.sheet("Feb-25 (STG1)"))
}

func TestProcess_AmbiguousClassification(t *testing.T) {
	e := newEnv(t)
	e.seedRaw("Feb-25", [][]any{
		{"Entity"},
		{"Riverside Academy FC"},
	})

	alert := e.processor().Process(context.Background(), "Feb-25 (RAW)")
	assert.Equal(t, log.AlertWarn, alert.Level)
	assert.Contains(t, alert.Logs, "WARN Ambiguous classification")
	assert.Contains(t, alert.Logs, `candidates="academy, fc"`)
	assert.Equal(t, "Academy", e.sheet("Feb-25 (STG1)")[1][0])
}

func TestProcess_TieBreakPolicy(t *testing.T) {
	e := newEnv(t)
	e.deps.Classifier = classify.New(classify.NewSheetLookup(e.wb, "Lookup", 0), classify.WithTieBreak(classify.FirstDeclared))
	e.seedRaw("Feb-25", [][]any{
		{"Entity"},
		{"Riverside Academy FC"},
	})

	e.processor().Process(context.Background(), "Feb-25 (RAW)")
	assert.Equal(t, "Club", e.sheet("Feb-25 (STG1)")[1][0])
}

func TestProcess_PeriodLocked(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seedRaw("Feb-25", rawRows)
	require.NoError(t, e.repo.AcquireLock(ctx, "Feb-25", "someone-else", time.Hour))

	alert := e.processor().Process(ctx, "Feb-25 (RAW)")
	assert.Equal(t, log.AlertError, alert.Level)
	_, ok := e.wb.Sheet("Feb-25 (STG1)")
	assert.False(t, ok)
}

// lossyWorkbook drops writes to the classification column.
type lossyWorkbook struct {
	*sheetsmem.Workbook
}

func (w lossyWorkbook) UpdateCells(ctx context.Context, sheet string, cells []sheets.CellUpdate) error {
	var kept []sheets.CellUpdate
	for _, c := range cells {
		if c.Row > 1 && c.Col == 0 && c.Value == "Club" {
			continue
		}
		kept = append(kept, c)
	}
	return w.Workbook.UpdateCells(ctx, sheet, kept)
}

func TestProcess_VerificationMismatchIsLogged(t *testing.T) {
	e := newEnv(t)
	e.deps.Workbook = lossyWorkbook{e.wb}
	e.seedRaw("Feb-25", rawRows)

	alert := e.processor().Process(context.Background(), "Feb-25 (RAW)")
	assert.Equal(t, log.AlertWarn, alert.Level)
	assert.Contains(t, alert.Logs, "WARN Classification not written as expected row=2 expected=Club")
	assert.Contains(t, alert.Logs, "row=3 expected=Club")
	assert.Equal(t, core.StateCompleted, e.state("Feb-25"))
}

func TestProcess_WarnsOnStateDivergence(t *testing.T) {
	e := newEnv(t)
	e.wb.Put("Feb-25 (RAW)", rawRows)

	alert := e.processor().Process(context.Background(), "Feb-25 (RAW)")
	assert.Equal(t, log.AlertWarn, alert.Level)
	assert.Contains(t, alert.Logs, "Recorded state differs from workbook recorded=not_started inferred=imported")
}

func TestImportThenProcess(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	filestest.WriteFile(t, e.dir, fileID, sourceRows)

	im := e.importer()
	s, err := im.Prepare(ctx, "")
	require.NoError(t, err)
	out := im.Import(ctx, s.ID, ImportRequest{SourceURL: fileID, Confirmed: true})
	require.True(t, out.Success, out.Logs)

	alert := e.processor().Process(ctx, core.RawSheetName(s.Label))
	require.Equal(t, log.AlertInfo, alert.Level, alert.Logs)

	st, err := NewInspector(e.deps, e.opts).Inspect(ctx, s.Label)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, st.State)
	assert.Equal(t, core.StateCompleted, st.Inferred)
	assert.True(t, st.Consistent())
	assert.Equal(t, 3, st.Row)
	assert.True(t, st.RawSheet)
	assert.True(t, st.StagedSheet)
	assert.Equal(t, []string{amqp.EventImportCompleted, amqp.EventStage2Completed}, e.events.stages())
}

func TestInspect_NotStarted(t *testing.T) {
	e := newEnv(t)

	st, err := NewInspector(e.deps, e.opts).Inspect(context.Background(), "Feb-25")
	require.NoError(t, err)
	assert.Equal(t, core.StateNotStarted, st.State)
	assert.Equal(t, core.StateNotStarted, st.Inferred)
	assert.Equal(t, 3, st.Row)
}
