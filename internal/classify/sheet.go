package classify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"billingsync/internal/core"
	"billingsync/internal/sheets"
)

// LookupRange is the fragment/label table read by SheetLookup.
const LookupRange = "A2:B1000"

type lookupEntry struct {
	key    string
	label  string
	folded string
}

// SheetLookup matches names against a lookup tab of (fragment, label) rows.
// A fragment matches when either string contains the other, ignoring case.
// The table is reloaded after ttl; a zero ttl loads it once.
type SheetLookup struct {
	reader sheets.Reader
	sheet  string
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	entries  []lookupEntry
	loadedAt time.Time
}

var _ Lookup = (*SheetLookup)(nil)

func NewSheetLookup(reader sheets.Reader, sheet string, ttl time.Duration) *SheetLookup {
	return &SheetLookup{reader: reader, sheet: sheet, ttl: ttl, now: time.Now}
}

func (s *SheetLookup) Lookup(ctx context.Context, name string) (Match, error) {
	entries, err := s.table(ctx)
	if err != nil {
		return Match{}, err
	}
	needle := cases.Fold().String(strings.TrimSpace(name))
	if needle == "" {
		return Match{}, nil
	}

	var hits []Candidate
	for _, e := range entries {
		if strings.Contains(needle, e.folded) || strings.Contains(e.folded, needle) {
			hits = append(hits, Candidate{Key: e.key, Label: e.label})
		}
	}
	switch {
	case len(hits) == 0:
		return Match{}, nil
	case len(hits) == 1 || sameLabel(hits):
		return Match{Label: hits[0].Label}, nil
	default:
		return Match{Candidates: hits}, nil
	}
}

// Reset drops the loaded table so the next lookup rereads it.
func (s *SheetLookup) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.loadedAt = time.Time{}
}

func (s *SheetLookup) table(ctx context.Context) ([]lookupEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries != nil && (s.ttl == 0 || s.now().Sub(s.loadedAt) < s.ttl) {
		return s.entries, nil
	}

	rows, err := s.reader.Values(ctx, sheets.A1(s.sheet, LookupRange))
	if err != nil {
		return nil, fmt.Errorf("%w: read lookup table %s: %v", core.ErrExternalService, s.sheet, err)
	}
	fold := cases.Fold()
	entries := make([]lookupEntry, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		key := strings.TrimSpace(core.CellString(row[0]))
		label := strings.TrimSpace(core.CellString(row[1]))
		if key == "" || label == "" {
			continue
		}
		entries = append(entries, lookupEntry{key: key, label: label, folded: fold.String(key)})
	}
	s.entries = entries
	s.loadedAt = s.now()
	return entries, nil
}

func sameLabel(cs []Candidate) bool {
	for _, c := range cs[1:] {
		if c.Label != cs[0].Label {
			return false
		}
	}
	return true
}
