// Package files defines the file store and file-to-table ports used by the
// import stage, plus helpers shared by their adapters.
package files

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"billingsync/internal/core"
)

// MIME types handled by the adapters.
const (
	MimeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeXLS         = "application/vnd.ms-excel"
	MimeSpreadsheet = "application/vnd.google-apps.spreadsheet"
)

// File describes a stored file.
type File struct {
	ID       string
	Name     string
	MimeType string
}

// Blob is a file with its content.
type Blob struct {
	File
	Data []byte
}

// Store is the hosted file service.
type Store interface {
	// Fetch downloads a file. Native spreadsheets are exported as XLSX.
	Fetch(ctx context.Context, id string) (*Blob, error)
	// ConvertToSpreadsheet creates a native spreadsheet copy and returns its id.
	ConvertToSpreadsheet(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
}

// Converted is the table extracted from a file. Cleanup removes any
// temporary artifact created during conversion and must always be called.
type Converted struct {
	Rows    [][]any
	cleanup func(ctx context.Context) error
}

// NewConverted wraps rows with an optional cleanup step.
func NewConverted(rows [][]any, cleanup func(ctx context.Context) error) *Converted {
	return &Converted{Rows: rows, cleanup: cleanup}
}

// Cleanup runs the cleanup step once. It is safe on a nil receiver.
func (c *Converted) Cleanup(ctx context.Context) error {
	if c == nil || c.cleanup == nil {
		return nil
	}
	fn := c.cleanup
	c.cleanup = nil
	return fn(ctx)
}

// Converter turns a stored file into table values.
type Converter interface {
	Convert(ctx context.Context, id string) (*Converted, error)
}

// ErrNoFileID is returned when a URL carries no recognizable file id.
var ErrNoFileID = errors.New("no file id in url")

var fileIDRe = regexp.MustCompile(`[-\w]{25,}`)

// ExtractID pulls the file id out of a share URL such as
// https://drive.google.com/file/d/<id>/view. A bare id is accepted too.
func ExtractID(url string) (string, error) {
	id := fileIDRe.FindString(strings.TrimSpace(url))
	if id == "" {
		return "", fmt.Errorf("%w: %w: %q", core.ErrValidation, ErrNoFileID, url)
	}
	return id, nil
}
