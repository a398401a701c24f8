package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PeriodLayout is the Go time layout for a period label ("Feb-25").
const PeriodLayout = "Jan-06"

// PeriodLabel identifies a billing month as "Mon-YY". All month matching is
// done on this string, never on raw date values.
type PeriodLabel string

var periodLabelRe = regexp.MustCompile(`^(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)-\d{2}$`)

// serialEpoch is day zero of spreadsheet serial dates.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func (l PeriodLabel) String() string { return string(l) }

// FormatPeriod returns the label for the given calendar month. Months outside
// 1..12 are normalized the way time.Date does (0 is December of year-1).
func FormatPeriod(year int, month time.Month) PeriodLabel {
	return PeriodLabel(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format(PeriodLayout))
}

// LastMonth returns the label of the month before the one containing now,
// evaluated in now's location.
func LastMonth(now time.Time) PeriodLabel {
	year, month, _ := now.Date()
	return FormatPeriod(year, month-1)
}

// ParsePeriodLabel validates s (after trimming) as a period label.
func ParsePeriodLabel(s string) (PeriodLabel, error) {
	s = strings.TrimSpace(s)
	if !periodLabelRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q is not a Mon-YY period label", ErrValidation, s)
	}
	return PeriodLabel(s), nil
}

// NormalizePeriodCell converts a tracking-sheet period cell into a label.
// Dates are formatted, numbers are read as spreadsheet serial dates and text
// is trimmed. ok is false for empty or unusable cells.
func NormalizePeriodCell(v any) (PeriodLabel, bool) {
	switch c := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if c.IsZero() {
			return "", false
		}
		return FormatPeriod(c.Year(), c.Month()), true
	case float64:
		return NormalizePeriodCell(SerialToTime(c))
	case int:
		return NormalizePeriodCell(SerialToTime(float64(c)))
	case int64:
		return NormalizePeriodCell(SerialToTime(float64(c)))
	case string:
		s := strings.TrimSpace(c)
		if s == "" {
			return "", false
		}
		return PeriodLabel(s), true
	default:
		s := strings.TrimSpace(fmt.Sprint(c))
		if s == "" {
			return "", false
		}
		return PeriodLabel(s), true
	}
}

// SerialToTime converts a spreadsheet serial date to a UTC time. Serials of
// zero or less yield the zero time.
func SerialToTime(serial float64) time.Time {
	if serial <= 0 {
		return time.Time{}
	}
	days := int(serial)
	frac := serial - float64(days)
	return serialEpoch.AddDate(0, 0, days).Add(time.Duration(frac * float64(24*time.Hour)))
}

// TimeToSerial is the inverse of SerialToTime. The wall clock of t is used
// as-is.
func TimeToSerial(t time.Time) float64 {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return float64(wall.Sub(serialEpoch)) / float64(24*time.Hour)
}
