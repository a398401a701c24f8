package core

// TrackingEntry is one row of the tracking sheet (columns D..F).
type TrackingEntry struct {
	Confirmed  bool // column D
	PeriodCell any  // column E, a date, serial number or text
	Status     string
}

// RowMatch is the result of a successful row lookup.
type RowMatch struct {
	Row       int // 1-based sheet row
	Confirmed bool
	Label     PeriodLabel
}

// LocateRow returns the first entry whose period cell normalizes to target.
// firstRow is the sheet row of entries[0]. A miss is reported with ok=false
// and is not an error.
func LocateRow(target PeriodLabel, entries []TrackingEntry, firstRow int) (RowMatch, bool) {
	for i, e := range entries {
		label, ok := NormalizePeriodCell(e.PeriodCell)
		if !ok || label != target {
			continue
		}
		return RowMatch{Row: firstRow + i, Confirmed: e.Confirmed, Label: label}, true
	}
	return RowMatch{}, false
}

// ParseBool reads a checkbox-style cell.
func ParseBool(v any) bool {
	switch c := v.(type) {
	case bool:
		return c
	case string:
		switch c {
		case "TRUE", "true", "True", "1", "yes", "YES":
			return true
		}
	case float64:
		return c != 0
	}
	return false
}
