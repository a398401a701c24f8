package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"billingsync/internal/log"
	"billingsync/internal/pipeline"
	"billingsync/internal/storage"
)

// Stage1 is the importer as seen by the operator dialog.
type Stage1 interface {
	Prepare(ctx context.Context, sourceSheet string) (*storage.ImportSession, error)
	Import(ctx context.Context, sessionID uuid.UUID, req pipeline.ImportRequest) log.Outcome
}

// ImportInput holds answers given up front as flags. Blank fields are asked
// for interactively.
type ImportInput struct {
	Sheet     string
	Label     string
	SourceURL string
	// Yes skips the confirmation question.
	Yes bool
}

// RunImportDialog prepares an import, asks the operator for the period and
// the source file, and runs stage 1 with the answers.
func RunImportDialog(ctx context.Context, p *Prompter, im Stage1, in ImportInput) (log.Outcome, error) {
	sess, err := im.Prepare(ctx, in.Sheet)
	if err != nil {
		return log.Outcome{}, err
	}

	done := "no"
	if sess.Confirmed {
		done = "yes"
	}
	if _, err := fmt.Fprintf(p.Writer(), "Billing month %s (tracking row %d, already imported: %s)\n",
		sess.Label, sess.Row, done); err != nil {
		return log.Outcome{}, fmt.Errorf("failed to write session: %w", err)
	}

	req := pipeline.ImportRequest{Label: in.Label, SourceURL: in.SourceURL}
	if req.Label == "" {
		if req.Label, err = p.Ask(ctx, "Billing month", string(sess.Label)); err != nil {
			return log.Outcome{}, err
		}
	}
	if req.SourceURL == "" {
		if req.SourceURL, err = p.AskRequired(ctx, "Source file link"); err != nil {
			return log.Outcome{}, err
		}
	}
	req.Confirmed = in.Yes
	if !req.Confirmed {
		q := fmt.Sprintf("Import %s into %s (RAW)?", req.SourceURL, req.Label)
		if req.Confirmed, err = p.Confirm(ctx, q); err != nil {
			return log.Outcome{}, err
		}
	}

	var out log.Outcome
	p.Spin("Importing...", func() {
		out = im.Import(ctx, sess.ID, req)
	})
	return out, nil
}
