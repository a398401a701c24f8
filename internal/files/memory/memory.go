// Package memory is a directory-backed file store. A file id maps to
// "<dir>/<id>.xlsx"; converted spreadsheets live in memory until deleted.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"billingsync/internal/core"
	"billingsync/internal/files"
	sheetsmem "billingsync/internal/sheets/memory"
)

type Store struct {
	dir string

	mu        sync.Mutex
	seq       int
	converted map[string]*sheetsmem.Workbook
}

var _ files.Store = (*Store)(nil)

func New(dir string) *Store {
	return &Store{dir: dir, converted: map[string]*sheetsmem.Workbook{}}
}

func (s *Store) Fetch(_ context.Context, id string) (*files.Blob, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return nil, fmt.Errorf("%w: invalid file id %q", core.ErrValidation, id)
	}
	name := id + ".xlsx"
	data, err := os.ReadFile(filepath.Join(s.dir, name)) // #nosec G304 -- id is validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file %s", core.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: read file %s: %v", core.ErrExternalService, id, err)
	}
	return &files.Blob{File: files.File{ID: id, Name: name, MimeType: files.MimeXLSX}, Data: data}, nil
}

func (s *Store) ConvertToSpreadsheet(ctx context.Context, id string) (string, error) {
	blob, err := s.Fetch(ctx, id)
	if err != nil {
		return "", err
	}
	wb, err := sheetsmem.NewFromXLSXReader(bytes.NewReader(blob.Data))
	if err != nil {
		return "", fmt.Errorf("%w: convert %s: %v", core.ErrExternalService, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	copyID := fmt.Sprintf("%s-converted-%d", id, s.seq)
	s.converted[copyID] = wb
	return copyID, nil
}

// Delete removes a converted copy. Source files on disk are never deleted.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.converted[id]; !ok {
		return fmt.Errorf("%w: converted file %s", core.ErrNotFound, id)
	}
	delete(s.converted, id)
	return nil
}

// Open returns a converted spreadsheet.
func (s *Store) Open(_ context.Context, id string) (*sheetsmem.Workbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wb, ok := s.converted[id]
	if !ok {
		return nil, fmt.Errorf("%w: converted file %s", core.ErrNotFound, id)
	}
	return wb, nil
}

// Converted lists the ids of converted copies still held.
func (s *Store) Converted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.converted))
	for id := range s.converted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
