package core

import "fmt"

// PipelineState is the persisted phase of a billing period.
type PipelineState string

const (
	StateNotStarted PipelineState = "not_started"
	StateImported   PipelineState = "imported"
	StateStaged     PipelineState = "staged"
	StateClassified PipelineState = "classified"
	StateCompleted  PipelineState = "completed"
)

var stateOrder = map[PipelineState]int{
	StateNotStarted: 0,
	StateImported:   1,
	StateStaged:     2,
	StateClassified: 3,
	StateCompleted:  4,
}

// IsValid reports whether s is a known state.
func (s PipelineState) IsValid() bool {
	_, ok := stateOrder[s]
	return ok
}

// ParsePipelineState parses a stored state value.
func ParsePipelineState(v string) (PipelineState, error) {
	s := PipelineState(v)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: unknown pipeline state %q", ErrValidation, v)
	}
	return s, nil
}

// AtLeast reports whether s is the same phase as other or a later one.
func (s PipelineState) AtLeast(other PipelineState) bool {
	return stateOrder[s] >= stateOrder[other]
}

// Artifacts are the observable traces a period leaves in the workbook.
type Artifacts struct {
	RawExists            bool
	StagedExists         bool
	ClassificationColumn bool
	Status               string
}

// InferState reconstructs the phase of label from workbook artifacts. It is
// used to cross-check the persisted state.
func InferState(label PeriodLabel, a Artifacts) PipelineState {
	switch {
	case a.Status == StageTwoCompletedStatus(label):
		return StateCompleted
	case a.StagedExists && a.ClassificationColumn:
		return StateClassified
	case a.StagedExists:
		return StateStaged
	case a.RawExists || a.Status == ImportCompletedStatus(label):
		return StateImported
	default:
		return StateNotStarted
	}
}
