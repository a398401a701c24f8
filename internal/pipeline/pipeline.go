// Package pipeline runs the two operator-triggered stages of a billing
// period: importing the source file into a raw tab, and cleaning and
// classifying it into a staged tab. Each invocation is synchronous and
// returns its own run log.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"billingsync/internal/amqp"
	"billingsync/internal/classify"
	"billingsync/internal/core"
	"billingsync/internal/files"
	"billingsync/internal/sheets"
	"billingsync/internal/storage"
	"billingsync/internal/tracking"
)

// SessionStore keeps import sessions between prepare and import.
type SessionStore interface {
	CreateSession(ctx context.Context, s storage.ImportSession) (*storage.ImportSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*storage.ImportSession, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// StateStore persists the pipeline phase of each period.
type StateStore interface {
	GetState(ctx context.Context, label core.PeriodLabel) (storage.PeriodState, error)
	SetState(ctx context.Context, label core.PeriodLabel, state core.PipelineState, sheet string) error
}

// Locker serializes runs on the same period.
type Locker interface {
	AcquireLock(ctx context.Context, label core.PeriodLabel, owner string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, label core.PeriodLabel, owner string) error
}

// EventPublisher announces completed stages.
type EventPublisher interface {
	PublishPeriodEvent(ctx context.Context, ev *amqp.PeriodEvent) error
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishPeriodEvent(context.Context, *amqp.PeriodEvent) error { return nil }

// Deps are the collaborators shared by both stages.
type Deps struct {
	Workbook   sheets.Workbook
	Converter  files.Converter
	Classifier *classify.Classifier
	Sessions   SessionStore
	States     StateStore
	Locks      Locker
	Events     EventPublisher
}

// Options hold sheet names and timing settings.
type Options struct {
	TrackingSheet        string
	ReferenceSheet       string
	ClassificationHeader string
	Location             *time.Location
	SessionTTL           time.Duration
	LockTTL              time.Duration
	// Handler receives every run log record as well; nil keeps logs in the
	// run log only.
	Handler slog.Handler
	Now     func() time.Time
}

// DefaultOptions returns the standard sheet names and timeouts.
func DefaultOptions() Options {
	return Options{
		TrackingSheet:        "Tracker",
		ReferenceSheet:       "Reference",
		ClassificationHeader: "Entity Type",
		Location:             time.UTC,
		SessionTTL:           30 * time.Minute,
		LockTTL:              15 * time.Minute,
		Now:                  time.Now,
	}
}

type base struct {
	deps     Deps
	opts     Options
	tracking *tracking.Sheet
}

func newBase(deps Deps, opts Options) base {
	def := DefaultOptions()
	if opts.Now == nil {
		opts.Now = def.Now
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = def.SessionTTL
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = def.LockTTL
	}
	if opts.TrackingSheet == "" {
		opts.TrackingSheet = def.TrackingSheet
	}
	if opts.ReferenceSheet == "" {
		opts.ReferenceSheet = def.ReferenceSheet
	}
	if opts.ClassificationHeader == "" {
		opts.ClassificationHeader = def.ClassificationHeader
	}
	if deps.Events == nil {
		deps.Events = NopPublisher{}
	}
	return base{deps: deps, opts: opts, tracking: tracking.New(deps.Workbook, opts.TrackingSheet)}
}

func (b *base) now() time.Time {
	return b.opts.Now().In(b.opts.Location)
}

// lock takes the period lock and returns its release function.
func (b *base) lock(ctx context.Context, logger *slog.Logger, label core.PeriodLabel, owner string) (func(), error) {
	if b.deps.Locks == nil {
		return func() {}, nil
	}
	if err := b.deps.Locks.AcquireLock(ctx, label, owner, b.opts.LockTTL); err != nil {
		return nil, core.NewUserError("Another run is already working on "+string(label)+"; try again later", err)
	}
	return func() {
		if err := b.deps.Locks.ReleaseLock(context.WithoutCancel(ctx), label, owner); err != nil {
			logger.WarnContext(ctx, "Failed to release period lock", "error", err)
		}
	}, nil
}

func (b *base) setState(ctx context.Context, logger *slog.Logger, label core.PeriodLabel, state core.PipelineState, sheet string) error {
	if b.deps.States == nil {
		return nil
	}
	if err := b.deps.States.SetState(ctx, label, state, sheet); err != nil {
		return err
	}
	logger.DebugContext(ctx, "Pipeline state recorded", "state", state)
	return nil
}

func (b *base) publish(ctx context.Context, logger *slog.Logger, label core.PeriodLabel, stage, sheet string) {
	ev := amqp.NewPeriodEvent(label, stage, sheet, b.now())
	if err := b.deps.Events.PublishPeriodEvent(ctx, ev); err != nil {
		logger.WarnContext(ctx, "Failed to publish period event", "event", stage, "error", err)
	}
}
