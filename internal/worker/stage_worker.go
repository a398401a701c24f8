package worker

import (
	"context"
	"fmt"
	"log/slog"

	"billingsync/internal/amqp"
	"billingsync/internal/core"
	"billingsync/internal/log"
	"billingsync/internal/storage"
)

// Processor runs stage 2 on a raw tab.
type Processor interface {
	Process(ctx context.Context, rawSheet string) log.Alert
}

// Store is the state store the worker recovers from.
type Store interface {
	ListStates(ctx context.Context) ([]storage.PeriodState, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// StageWorker reacts to period events. When auto-processing is on, a
// completed import triggers stage 2 for the same period.
type StageWorker struct {
	processor   Processor
	store       Store
	autoProcess bool
}

func NewStageWorker(processor Processor, store Store, autoProcess bool) *StageWorker {
	return &StageWorker{processor: processor, store: store, autoProcess: autoProcess}
}

// HandlePeriodEvent processes a single period event from AMQP. A failed
// stage 2 run returns an error so the delivery is retried once.
func (w *StageWorker) HandlePeriodEvent(ctx context.Context, ev *amqp.PeriodEvent) error {
	slog.InfoContext(ctx, "Processing period event",
		log.FieldComponent, log.ComponentWorker,
		log.FieldLabel, ev.Label,
		log.FieldStage, ev.Stage)

	switch ev.Stage {
	case amqp.EventImportCompleted:
		if !w.autoProcess {
			slog.InfoContext(ctx, "Auto-processing disabled, waiting for operator",
				log.FieldComponent, log.ComponentWorker, log.FieldLabel, ev.Label)
			return nil
		}
		return w.process(ctx, ev.Label)
	case amqp.EventStage2Completed:
		slog.InfoContext(ctx, "Billing period completed",
			log.FieldComponent, log.ComponentWorker,
			log.FieldLabel, ev.Label,
			log.FieldSheet, ev.Sheet)
		return nil
	default:
		return fmt.Errorf("%w: unknown event %q", core.ErrValidation, ev.Stage)
	}
}

func (w *StageWorker) process(ctx context.Context, label core.PeriodLabel) error {
	raw := core.RawSheetName(label)
	alert := w.processor.Process(ctx, raw)

	attrs := []any{
		log.FieldComponent, log.ComponentWorker,
		log.FieldLabel, label,
		"level", alert.Level,
		"title", alert.Title,
		"message", alert.Message,
	}
	switch alert.Level {
	case log.AlertError:
		slog.ErrorContext(ctx, "Automatic processing failed", attrs...)
		return fmt.Errorf("process %s: %s", raw, alert.Message)
	case log.AlertWarn:
		slog.WarnContext(ctx, "Automatic processing finished with warnings", attrs...)
	default:
		slog.InfoContext(ctx, "Automatic processing finished", attrs...)
	}
	return nil
}

// StartupCheck purges expired sessions and locks and, when auto-processing
// is on, runs stage 2 for periods left in the imported state. This recovers
// from missed AMQP messages or worker downtime.
func (w *StageWorker) StartupCheck(ctx context.Context) error {
	if err := w.Maintain(ctx); err != nil {
		return err
	}
	if !w.autoProcess {
		return nil
	}

	states, err := w.store.ListStates(ctx)
	if err != nil {
		return fmt.Errorf("list period states for startup check: %w", err)
	}

	var pending []core.PeriodLabel
	for _, st := range states {
		if st.State == core.StateImported {
			pending = append(pending, st.Label)
		}
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No imported periods waiting for processing", log.FieldComponent, log.ComponentWorker)
		return nil
	}

	slog.InfoContext(ctx, "Found imported periods on startup, processing...",
		log.FieldComponent, log.ComponentWorker, "count", len(pending))

	successCount, errorCount := 0, 0
	for _, label := range pending {
		if err := w.process(ctx, label); err != nil {
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup check completed",
		log.FieldComponent, log.ComponentWorker,
		"total", len(pending),
		"processed", successCount,
		"errors", errorCount)
	return nil
}

// Maintain removes expired import sessions and period locks.
func (w *StageWorker) Maintain(ctx context.Context) error {
	n, err := w.store.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge expired sessions and locks: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired sessions and locks", log.FieldComponent, log.ComponentWorker, "count", n)
	}
	return nil
}
