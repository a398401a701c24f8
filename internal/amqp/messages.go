package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"billingsync/internal/core"
)

// Event names, also used as routing keys on the direct exchange.
const (
	EventImportCompleted = "import.completed"
	EventStage2Completed = "stage2.completed"
)

// Events lists every routing key the queue is bound to.
var Events = []string{EventImportCompleted, EventStage2Completed}

// PeriodEvent announces that a billing period reached a pipeline stage.
type PeriodEvent struct {
	Label     core.PeriodLabel `json:"label"`
	Stage     string           `json:"stage"`
	Sheet     string           `json:"sheet"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewPeriodEvent creates an event stamped with now.
func NewPeriodEvent(label core.PeriodLabel, stage, sheet string, now time.Time) *PeriodEvent {
	return &PeriodEvent{Label: label, Stage: stage, Sheet: sheet, Timestamp: now}
}

// ToJSON converts the message to JSON bytes
func (m *PeriodEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PeriodEventFromJSON decodes and validates an event.
func PeriodEventFromJSON(data []byte) (*PeriodEvent, error) {
	var msg PeriodEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := core.ParsePeriodLabel(string(msg.Label)); err != nil {
		return nil, err
	}
	switch msg.Stage {
	case EventImportCompleted, EventStage2Completed:
	default:
		return nil, fmt.Errorf("%w: unknown event %q", core.ErrValidation, msg.Stage)
	}
	return &msg, nil
}
