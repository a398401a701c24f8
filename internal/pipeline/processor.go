package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"billingsync/internal/amqp"
	"billingsync/internal/core"
	"billingsync/internal/log"
	"billingsync/internal/sheets"
	"billingsync/internal/substitution"
)

// Processor runs stage 2: cleaning and classifying a raw table into
// "<Label> (STG1)".
type Processor struct {
	base
}

func NewProcessor(deps Deps, opts Options) *Processor {
	return &Processor{base: newBase(deps, opts)}
}

type processStats struct {
	staged      string
	rows        int
	trimmed     int
	substituted int
	classified  int
	mismatches  int
}

// Process runs stage 2 on rawSheet. The result is always an alert; errors
// abort the remaining steps without undoing earlier writes.
func (p *Processor) Process(ctx context.Context, rawSheet string) log.Alert {
	start := p.opts.Now()
	logger, run := log.NewRun(p.opts.Handler)

	label, err := core.LabelFromRawName(rawSheet)
	if err != nil {
		logger.WarnContext(ctx, "Sheet is not a raw import table", log.FieldSheet, rawSheet)
		return log.Alert{
			Level:   log.AlertWarn,
			Title:   "Wrong sheet",
			Message: fmt.Sprintf("%q is not a raw import table; open a \"<Mon-YY> (RAW)\" tab and try again", rawSheet),
			Logs:    run.String(),
		}
	}
	logger.InfoContext(ctx, "Processing started", log.FieldLabel, label, log.FieldSheet, rawSheet)

	stats, err := p.run(ctx, logger, label, rawSheet)
	if err != nil {
		logger.ErrorContext(ctx, "Processing failed",
			log.FieldError, err.Error(),
			log.FieldErrorKind, core.KindOf(err))
		return log.Alert{
			Level:   log.AlertError,
			Title:   "Processing failed",
			Message: core.UserMessage(err),
			Logs:    run.String(),
		}
	}
	logger.InfoContext(ctx, "Processing finished", "elapsed", log.Elapsed(start, p.opts.Now()))

	alert := log.Alert{
		Level: log.AlertInfo,
		Title: "Processing complete",
		Message: fmt.Sprintf("%s processed into %s: %d rows, %d trimmed, %d substituted, %d classified",
			rawSheet, stats.staged, stats.rows, stats.trimmed, stats.substituted, stats.classified),
	}
	if n := run.Warnings(); n > 0 {
		alert.Level = log.AlertWarn
		alert.Title = "Processing complete with warnings"
		alert.Message += fmt.Sprintf(" (%d warnings, see logs)", n)
	}
	alert.Logs = run.String()
	return alert
}

func (p *Processor) run(ctx context.Context, logger *slog.Logger, label core.PeriodLabel, rawSheet string) (processStats, error) {
	var stats processStats
	wb := p.deps.Workbook

	exists, err := wb.SheetExists(ctx, rawSheet)
	if err != nil {
		return stats, fmt.Errorf("%w: check %s: %v", core.ErrExternalService, rawSheet, err)
	}
	if !exists {
		return stats, core.NewUserError(fmt.Sprintf("Sheet %s does not exist", rawSheet),
			fmt.Errorf("%w: sheet %s", core.ErrNotFound, rawSheet))
	}

	p.checkConsistency(ctx, logger, label)

	release, err := p.lock(ctx, logger, label, uuid.NewString())
	if err != nil {
		return stats, err
	}
	defer release()

	staged := core.StagedSheetName(label)
	stats.staged = staged
	created, err := p.stagedTable(ctx, logger, rawSheet, staged)
	if err != nil {
		return stats, err
	}

	rows, err := wb.Values(ctx, sheets.A1(staged, ""))
	if err != nil {
		return stats, fmt.Errorf("%w: read %s: %v", core.ErrExternalService, staged, err)
	}
	if len(rows) == 0 {
		return stats, core.NewUserError(fmt.Sprintf("%s is empty", staged),
			fmt.Errorf("%w: staged table %s has no header", core.ErrValidation, staged))
	}
	data := rows[1:]
	stats.rows = len(data)
	// A fresh copy of the raw table never carries the classification column,
	// whatever its first header says.
	layout := core.Layout{Name: 0, Classification: -1}
	if !created {
		layout = core.DetectLayout(rows[0], p.opts.ClassificationHeader)
	}

	// Trim, then substitute, the entity name column. Data row i is sheet row i+2.
	names, trims := substitution.Trim(core.Column(data, layout.Name))
	if err := p.writeChanges(ctx, staged, layout.Name, trims); err != nil {
		return stats, err
	}
	stats.trimmed = len(trims)
	logger.InfoContext(ctx, "Names trimmed", log.FieldChanges, len(trims))

	m, err := p.referenceMap(ctx, logger)
	if err != nil {
		return stats, err
	}
	names, subs := substitution.Apply(names, m)
	if err := p.writeChanges(ctx, staged, layout.Name, subs); err != nil {
		return stats, err
	}
	for _, c := range subs {
		logger.DebugContext(ctx, "Name substituted",
			log.FieldRow, c.Row+1, "old", core.CellString(c.Old), "new", core.CellString(c.New))
	}
	stats.substituted = len(subs)
	logger.InfoContext(ctx, "Names substituted", log.FieldChanges, len(subs), "entries", len(m))

	if err := p.setState(ctx, logger, label, core.StateStaged, staged); err != nil {
		return stats, err
	}

	existing := make([]any, len(data))
	if layout.HasClassification() {
		existing = core.Column(data, layout.Classification)
	} else {
		if err := wb.InsertColumn(ctx, staged, 0); err != nil {
			return stats, fmt.Errorf("%w: insert classification column: %v", core.ErrExternalService, err)
		}
		layout = layout.WithClassification()
		err := wb.UpdateCells(ctx, staged, []sheets.CellUpdate{
			{Row: 1, Col: layout.Classification, Value: p.opts.ClassificationHeader},
		})
		if err != nil {
			return stats, fmt.Errorf("%w: write classification header: %v", core.ErrExternalService, err)
		}
		logger.InfoContext(ctx, "Classification column added", "header", p.opts.ClassificationHeader)
	}

	labels, err := p.classify(ctx, logger, names)
	if err != nil {
		return stats, err
	}
	var cells []sheets.CellUpdate
	for i, l := range labels {
		if l != "" {
			stats.classified++
		}
		if core.CellString(existing[i]) == l {
			continue
		}
		cells = append(cells, sheets.CellUpdate{Row: i + 2, Col: layout.Classification, Value: l})
	}
	if len(cells) > 0 {
		if err := wb.UpdateCells(ctx, staged, cells); err != nil {
			return stats, fmt.Errorf("%w: write classifications: %v", core.ErrExternalService, err)
		}
	}
	logger.InfoContext(ctx, "Entities classified",
		"classified", stats.classified, "unclassified", len(labels)-stats.classified, "written", len(cells))

	stats.mismatches, err = p.verify(ctx, logger, staged, layout.Classification, labels)
	if err != nil {
		return stats, err
	}
	if err := p.setState(ctx, logger, label, core.StateClassified, staged); err != nil {
		return stats, err
	}

	match, ok, err := p.tracking.Locate(ctx, label)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return stats, err
	}
	if err != nil {
		logger.WarnContext(ctx, "Tracking sheet missing; status not updated",
			log.FieldSheet, p.opts.TrackingSheet, log.FieldLabel, label)
	} else if ok {
		if err := p.tracking.SetStatus(ctx, match.Row, core.StageTwoCompletedStatus(label)); err != nil {
			return stats, err
		}
		logger.InfoContext(ctx, "Tracking row updated", log.FieldRow, match.Row, "status", core.StageTwoCompletedStatus(label))
	} else {
		logger.WarnContext(ctx, "No tracking row for period; status not updated", log.FieldLabel, label)
	}

	if err := p.setState(ctx, logger, label, core.StateCompleted, staged); err != nil {
		return stats, err
	}
	p.publish(ctx, logger, label, amqp.EventStage2Completed, staged)
	return stats, nil
}

// stagedTable reuses an existing staged tab or copies the raw one. created
// reports whether the tab was copied by this call.
func (p *Processor) stagedTable(ctx context.Context, logger *slog.Logger, raw, staged string) (created bool, err error) {
	exists, err := p.deps.Workbook.SheetExists(ctx, staged)
	if err != nil {
		return false, fmt.Errorf("%w: check %s: %v", core.ErrExternalService, staged, err)
	}
	if exists {
		logger.InfoContext(ctx, "Reusing existing staged table", log.FieldSheet, staged)
		return false, nil
	}
	if err := p.deps.Workbook.DuplicateSheet(ctx, raw, staged); err != nil {
		return false, fmt.Errorf("%w: copy %s to %s: %v", core.ErrExternalService, raw, staged, err)
	}
	logger.InfoContext(ctx, "Staged table created", log.FieldSheet, staged)
	return true, nil
}

func (p *Processor) referenceMap(ctx context.Context, logger *slog.Logger) (substitution.Map, error) {
	rng := sheets.A1(p.opts.ReferenceSheet, fmt.Sprintf("A%d:B%d", core.ReferenceFirstRow, core.ReferenceLastRow))
	rows, err := p.deps.Workbook.Values(ctx, rng)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NewUserError(fmt.Sprintf("Reference sheet %s is missing", p.opts.ReferenceSheet), err)
		}
		return nil, fmt.Errorf("%w: read reference sheet: %v", core.ErrExternalService, err)
	}
	m := substitution.BuildMap(rows)
	if conflicts := m.Conflicts(); len(conflicts) > 0 {
		logger.WarnContext(ctx, "Reference table maps names onto other source names; substitution is not idempotent",
			"keys", strings.Join(conflicts, ", "))
	}
	return m, nil
}

// writeChanges writes substitution changes of data rows back to column col.
func (p *Processor) writeChanges(ctx context.Context, sheet string, col int, changes []substitution.Change) error {
	if len(changes) == 0 {
		return nil
	}
	cells := make([]sheets.CellUpdate, len(changes))
	for i, c := range changes {
		cells[i] = sheets.CellUpdate{Row: c.Row + 1, Col: col, Value: c.New}
	}
	if err := p.deps.Workbook.UpdateCells(ctx, sheet, cells); err != nil {
		return fmt.Errorf("%w: update names in %s: %v", core.ErrExternalService, sheet, err)
	}
	return nil
}

func (p *Processor) classify(ctx context.Context, logger *slog.Logger, names []any) ([]string, error) {
	c := p.deps.Classifier.Using(logger)
	labels := make([]string, len(names))
	for i, n := range names {
		res, err := c.Classify(ctx, core.CellString(n))
		if err != nil {
			return nil, err
		}
		labels[i] = res.Label
	}
	return labels, nil
}

// verify re-reads the classification column and logs every cell that does
// not hold the written label.
func (p *Processor) verify(ctx context.Context, logger *slog.Logger, sheet string, col int, want []string) (int, error) {
	if len(want) == 0 {
		return 0, nil
	}
	cells := sheets.CellA1(2, col) + ":" + sheets.CellA1(len(want)+1, col)
	rows, err := p.deps.Workbook.Values(ctx, sheets.A1(sheet, cells))
	if err != nil {
		return 0, fmt.Errorf("%w: read back classifications: %v", core.ErrExternalService, err)
	}
	got := core.Column(rows, 0)
	mismatches := 0
	for i, w := range want {
		var g string
		if i < len(got) {
			g = core.CellString(got[i])
		}
		if g != w {
			mismatches++
			logger.WarnContext(ctx, "Classification not written as expected",
				log.FieldRow, i+2, "expected", w, "actual", g)
		}
	}
	if mismatches == 0 {
		logger.InfoContext(ctx, "Classifications verified", "rows", len(want))
	}
	return mismatches, nil
}
