// Package drive adapts Google Drive as the file store and converts files by
// letting Drive create a native spreadsheet copy that is then read through
// the Sheets API.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"billingsync/internal/core"
	"billingsync/internal/files"
	"billingsync/internal/log"
)

// maxDownload bounds downloaded file size.
const maxDownload = 64 << 20

type Store struct {
	svc *gdrive.Service
}

var _ files.Store = (*Store)(nil)

// New creates a Drive client with the given options (see googleauth.ClientOptions).
func New(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Store{svc: svc}, nil
}

func (s *Store) stat(ctx context.Context, id string) (*gdrive.File, error) {
	f, err := s.svc.Files.Get(id).
		Fields("id", "name", "mimeType").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrap(err, "stat %s", id)
	}
	return f, nil
}

func (s *Store) Fetch(ctx context.Context, id string) (*files.Blob, error) {
	meta, err := s.stat(ctx, id)
	if err != nil {
		return nil, err
	}

	mime := meta.MimeType
	var body io.ReadCloser
	if meta.MimeType == files.MimeSpreadsheet {
		resp, err := s.svc.Files.Export(id, files.MimeXLSX).Context(ctx).Download()
		if err != nil {
			return nil, wrap(err, "export %s", id)
		}
		body, mime = resp.Body, files.MimeXLSX
	} else {
		resp, err := s.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
		if err != nil {
			return nil, wrap(err, "download %s", id)
		}
		body = resp.Body
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxDownload+1))
	if err != nil {
		return nil, wrap(err, "read %s", id)
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("%w: file %s exceeds %d bytes", core.ErrValidation, meta.Name, maxDownload)
	}
	return &files.Blob{File: files.File{ID: meta.Id, Name: meta.Name, MimeType: mime}, Data: data}, nil
}

func (s *Store) ConvertToSpreadsheet(ctx context.Context, id string) (string, error) {
	meta, err := s.stat(ctx, id)
	if err != nil {
		return "", err
	}
	cp, err := s.svc.Files.Copy(id, &gdrive.File{
		Name:     meta.Name + " (import copy)",
		MimeType: files.MimeSpreadsheet,
	}).SupportsAllDrives(true).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", wrap(err, "convert %s", id)
	}
	slog.DebugContext(ctx, "Created converted copy",
		log.FieldComponent, log.ComponentFiles,
		log.FieldFileID, id,
		"copy_id", cp.Id)
	return cp.Id, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.svc.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return wrap(err, "delete %s", id)
	}
	return nil
}

func wrap(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: drive %s: %v", core.ErrNotFound, what, err)
	}
	return fmt.Errorf("%w: drive %s: %v", core.ErrExternalService, what, err)
}
