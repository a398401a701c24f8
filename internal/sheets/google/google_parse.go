package google

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"google.golang.org/api/googleapi"
	gsheet "google.golang.org/api/sheets/v4"

	"billingsync/internal/core"
)

type tab struct {
	id    int64
	title string
	index int64
}

// parseTabs extracts tab ids and titles from spreadsheet metadata, ordered
// left to right.
func parseTabs(ss *gsheet.Spreadsheet) []tab {
	if ss == nil {
		return nil
	}
	tabs := make([]tab, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s == nil || s.Properties == nil {
			continue
		}
		tabs = append(tabs, tab{id: s.Properties.SheetId, title: s.Properties.Title, index: s.Properties.Index})
	}
	sort.SliceStable(tabs, func(i, j int) bool { return tabs[i].index < tabs[j].index })
	return tabs
}

func findTab(tabs []tab, title string) (tab, bool) {
	for _, t := range tabs {
		if t.title == title {
			return t, true
		}
	}
	return tab{}, false
}

// translate maps API errors onto core error kinds. 404s become ErrNotFound;
// 400s on an unknown range also mean the sheet does not exist.
func translate(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: sheets %s: %v", core.ErrNotFound, what, err)
		case http.StatusBadRequest:
			if isRangeError(gerr) {
				return fmt.Errorf("%w: sheets %s: %v", core.ErrNotFound, what, err)
			}
			return fmt.Errorf("%w: sheets %s: %v", core.ErrValidation, what, err)
		}
	}
	return fmt.Errorf("%w: sheets %s: %v", core.ErrExternalService, what, err)
}

func isRangeError(gerr *googleapi.Error) bool {
	return strings.HasPrefix(gerr.Message, "Unable to parse range")
}
