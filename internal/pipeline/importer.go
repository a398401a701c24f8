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
	"billingsync/internal/files"
	"billingsync/internal/log"
	"billingsync/internal/sheets"
	"billingsync/internal/storage"
	"billingsync/internal/tracking"
)

// ImportRequest is the operator's answer to the import dialog.
type ImportRequest struct {
	Label     string `json:"label"`
	SourceURL string `json:"source_url"`
	Confirmed bool   `json:"confirmed"`
}

// Importer runs stage 1: copying the source file into "<Label> (RAW)".
type Importer struct {
	base
}

func NewImporter(deps Deps, opts Options) *Importer {
	return &Importer{base: newBase(deps, opts)}
}

func (im *Importer) trackingSheet(name string) *tracking.Sheet {
	if name == "" || name == im.tracking.Name() {
		return im.tracking
	}
	return tracking.New(im.deps.Workbook, name)
}

// Prepare resolves last month's label, finds its tracking row and opens a
// session for the operator to confirm. sourceSheet defaults to the tracking
// tab.
func (im *Importer) Prepare(ctx context.Context, sourceSheet string) (*storage.ImportSession, error) {
	tr := im.trackingSheet(sourceSheet)
	label := core.LastMonth(im.now())

	match, ok, err := tr.Locate(ctx, label)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NewUserError(
			fmt.Sprintf("No row for %s in %s", label, tr.Name()),
			fmt.Errorf("%w: tracking row for %s", core.ErrNotFound, label))
	}

	s, err := im.deps.Sessions.CreateSession(ctx, storage.ImportSession{
		Label:       label,
		Row:         match.Row,
		Confirmed:   match.Confirmed,
		SourceSheet: tr.Name(),
		ExpiresAt:   im.opts.Now().Add(im.opts.SessionTTL),
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Import session prepared",
		log.FieldComponent, log.ComponentImport,
		log.FieldLabel, label,
		log.FieldRow, match.Row,
		log.FieldSessionID, s.ID)
	return s, nil
}

// Import runs stage 1 for a prepared session. It never returns an error:
// failures are reported through the outcome together with the run log.
func (im *Importer) Import(ctx context.Context, sessionID uuid.UUID, req ImportRequest) log.Outcome {
	start := im.opts.Now()
	logger, run := log.NewRun(im.opts.Handler)
	logger.InfoContext(ctx, "Import started", log.FieldSessionID, sessionID.String())

	msg, err := im.run(ctx, logger, sessionID, req)
	if err != nil {
		logger.ErrorContext(ctx, "Import failed",
			log.FieldError, err.Error(),
			log.FieldErrorKind, core.KindOf(err))
		return log.Outcome{Success: false, Message: core.UserMessage(err), Logs: run.String()}
	}
	logger.InfoContext(ctx, "Import finished", "elapsed", log.Elapsed(start, im.opts.Now()))
	return log.Outcome{Success: true, Message: msg, Logs: run.String()}
}

func (im *Importer) run(ctx context.Context, logger *slog.Logger, sessionID uuid.UUID, req ImportRequest) (string, error) {
	session, err := im.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrValidation) {
			return "", core.NewUserError("The import session is unknown or has expired; start the import again", err)
		}
		return "", err
	}

	if !req.Confirmed {
		return "", core.NewUserError("Import was not confirmed",
			fmt.Errorf("%w: operator did not confirm the import", core.ErrValidation))
	}

	label := session.Label
	if s := strings.TrimSpace(req.Label); s != "" {
		label, err = core.ParsePeriodLabel(s)
		if err != nil {
			return "", core.NewUserError(fmt.Sprintf("%q is not a billing month like Feb-25", s), err)
		}
	}

	fileID, err := files.ExtractID(req.SourceURL)
	if err != nil {
		return "", core.NewUserError("The file link does not contain a file id", err)
	}

	row := session.Row
	if label != session.Label {
		logger.InfoContext(ctx, "Operator changed the billing month",
			"proposed", session.Label, log.FieldLabel, label)
		tr := im.trackingSheet(session.SourceSheet)
		m, ok, err := tr.Locate(ctx, label)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", core.NewUserError(
				fmt.Sprintf("No row for %s in %s", label, tr.Name()),
				fmt.Errorf("%w: tracking row for %s", core.ErrNotFound, label))
		}
		row = m.Row
	}
	logger.InfoContext(ctx, "Importing billing month",
		log.FieldLabel, label, log.FieldRow, row, log.FieldFileID, fileID)

	release, err := im.lock(ctx, logger, label, sessionID.String())
	if err != nil {
		return "", err
	}
	defer release()

	conv, err := im.deps.Converter.Convert(ctx, fileID)
	defer func() {
		if cerr := conv.Cleanup(context.WithoutCancel(ctx)); cerr != nil {
			logger.WarnContext(ctx, "Failed to remove temporary conversion", log.FieldFileID, fileID, "error", cerr)
		}
	}()
	if err != nil {
		return "", core.NewUserError("The file could not be converted to a table", err)
	}
	if len(conv.Rows) == 0 {
		return "", core.NewUserError("The file contains no data",
			fmt.Errorf("%w: file %s is empty", core.ErrValidation, fileID))
	}
	logger.InfoContext(ctx, "File converted", "rows", len(conv.Rows))

	raw := core.RawSheetName(label)
	if err := im.prepareTab(ctx, logger, raw); err != nil {
		return "", err
	}
	if err := im.deps.Workbook.Update(ctx, sheets.A1(raw, "A1"), conv.Rows); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", core.ErrExternalService, raw, err)
	}
	logger.InfoContext(ctx, "Raw table written", log.FieldSheet, raw, "rows", len(conv.Rows))

	if err := im.trackingSheet(session.SourceSheet).MarkImported(ctx, row, label); err != nil {
		return "", err
	}
	logger.InfoContext(ctx, "Tracking row updated", log.FieldRow, row, "status", core.ImportCompletedStatus(label))

	if err := im.setState(ctx, logger, label, core.StateImported, raw); err != nil {
		return "", err
	}
	im.publish(ctx, logger, label, amqp.EventImportCompleted, raw)

	if err := im.deps.Sessions.DeleteSession(ctx, sessionID); err != nil {
		logger.WarnContext(ctx, "Failed to delete import session", "error", err)
	}
	return fmt.Sprintf("Imported %d rows into %s", len(conv.Rows), raw), nil
}

// prepareTab clears sheet when it exists and creates it otherwise.
func (im *Importer) prepareTab(ctx context.Context, logger *slog.Logger, sheet string) error {
	exists, err := im.deps.Workbook.SheetExists(ctx, sheet)
	if err != nil {
		return fmt.Errorf("%w: check %s: %v", core.ErrExternalService, sheet, err)
	}
	if exists {
		logger.InfoContext(ctx, "Clearing existing raw table", log.FieldSheet, sheet)
		if err := im.deps.Workbook.Clear(ctx, sheet); err != nil {
			return fmt.Errorf("%w: clear %s: %v", core.ErrExternalService, sheet, err)
		}
		return nil
	}
	if err := im.deps.Workbook.AddSheet(ctx, sheet); err != nil {
		return fmt.Errorf("%w: add %s: %v", core.ErrExternalService, sheet, err)
	}
	return nil
}
