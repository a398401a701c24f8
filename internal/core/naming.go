package core

import (
	"fmt"
	"regexp"
)

// Tracking range and reference range bounds. These are shared with existing
// spreadsheets and must not change.
const (
	TrackingFirstRow  = 2
	TrackingLastRow   = 30
	ReferenceFirstRow = 2
	ReferenceLastRow  = 200

	rawSuffix    = " (RAW)"
	stagedSuffix = " (STG1)"
)

var rawNameRe = regexp.MustCompile(`^(.+?)\s*\(RAW\)$`)

// RawSheetName is the tab holding the verbatim import for label.
func RawSheetName(label PeriodLabel) string {
	return string(label) + rawSuffix
}

// StagedSheetName is the tab holding the cleaned copy for label.
func StagedSheetName(label PeriodLabel) string {
	return string(label) + stagedSuffix
}

// ImportCompletedStatus is written to the tracking row after stage 1.
func ImportCompletedStatus(label PeriodLabel) string {
	return fmt.Sprintf("%s (Import Completed)", label)
}

// StageTwoCompletedStatus is written to the tracking row after stage 2.
func StageTwoCompletedStatus(label PeriodLabel) string {
	return fmt.Sprintf("%s (Stage 2 Completed)", label)
}

// LabelFromRawName extracts the period label from a raw tab name such as
// "Feb-25 (RAW)". Names without the suffix, or whose prefix is not a valid
// label, yield ErrPatternMismatch.
func LabelFromRawName(name string) (PeriodLabel, error) {
	m := rawNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("%w: sheet %q is not a \"<Mon-YY> (RAW)\" tab", ErrPatternMismatch, name)
	}
	label, err := ParsePeriodLabel(m[1])
	if err != nil {
		return "", fmt.Errorf("%w: sheet %q: %v", ErrPatternMismatch, name, err)
	}
	return label, nil
}
