package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billingsync/internal/core"
	"billingsync/internal/sheets"
)

// PeriodStatus combines the persisted state of a period with what the
// workbook shows.
type PeriodStatus struct {
	Label          core.PeriodLabel   `json:"label"`
	State          core.PipelineState `json:"state"`
	Inferred       core.PipelineState `json:"inferred"`
	Sheet          string             `json:"sheet,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at,omitzero"`
	Row            int                `json:"row,omitempty"`
	TrackingStatus string             `json:"tracking_status,omitempty"`
	RawSheet       bool               `json:"raw_sheet"`
	StagedSheet    bool               `json:"staged_sheet"`
}

// Consistent reports whether the persisted and inferred states agree.
func (s PeriodStatus) Consistent() bool { return s.State == s.Inferred }

// Inspector reports period status without changing anything.
type Inspector struct {
	base
}

func NewInspector(deps Deps, opts Options) *Inspector {
	return &Inspector{base: newBase(deps, opts)}
}

// Inspect returns the status of label.
func (in *Inspector) Inspect(ctx context.Context, label core.PeriodLabel) (PeriodStatus, error) {
	return in.inspect(ctx, label)
}

func (b *base) inspect(ctx context.Context, label core.PeriodLabel) (PeriodStatus, error) {
	st := PeriodStatus{Label: label, State: core.StateNotStarted}
	if b.deps.States != nil {
		ps, err := b.deps.States.GetState(ctx, label)
		if err != nil {
			return st, err
		}
		st.State, st.Sheet, st.UpdatedAt = ps.State, ps.Sheet, ps.UpdatedAt
	}

	var a core.Artifacts
	var err error
	if a.RawExists, err = b.deps.Workbook.SheetExists(ctx, core.RawSheetName(label)); err != nil {
		return st, fmt.Errorf("%w: check raw table: %v", core.ErrExternalService, err)
	}
	staged := core.StagedSheetName(label)
	if a.StagedExists, err = b.deps.Workbook.SheetExists(ctx, staged); err != nil {
		return st, fmt.Errorf("%w: check staged table: %v", core.ErrExternalService, err)
	}
	if a.StagedExists {
		header, err := b.deps.Workbook.Values(ctx, sheets.A1(staged, "A1"))
		if err != nil {
			return st, fmt.Errorf("%w: read staged header: %v", core.ErrExternalService, err)
		}
		if len(header) > 0 {
			a.ClassificationColumn = core.DetectLayout(header[0], b.opts.ClassificationHeader).HasClassification()
		}
	}
	m, ok, err := b.tracking.Locate(ctx, label)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return st, err
	}
	if ok {
		st.Row = m.Row
		if a.Status, err = b.tracking.Status(ctx, m.Row); err != nil {
			return st, err
		}
	}

	st.RawSheet, st.StagedSheet, st.TrackingStatus = a.RawExists, a.StagedExists, a.Status
	st.Inferred = core.InferState(label, a)
	return st, nil
}

// checkConsistency logs a warning when the persisted state and the workbook
// disagree. It never fails the run.
func (b *base) checkConsistency(ctx context.Context, logger *slog.Logger, label core.PeriodLabel) {
	st, err := b.inspect(ctx, label)
	if err != nil {
		logger.WarnContext(ctx, "Could not check period state", "error", err)
		return
	}
	if !st.Consistent() {
		logger.WarnContext(ctx, "Recorded state differs from workbook",
			"recorded", st.State, "inferred", st.Inferred)
	}
}
