package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// RunLogTimeLayout is the timestamp format of run log lines.
const RunLogTimeLayout = "2006-01-02 15:04:05"

// RunLog collects every record emitted during one pipeline invocation so it
// can be returned to the operator. It records all levels.
type RunLog struct {
	mu       sync.Mutex
	lines    []string
	warnings int
	errors   int
}

// Lines returns a copy of the recorded lines.
func (l *RunLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// String joins the lines with newlines.
func (l *RunLog) String() string {
	return strings.Join(l.Lines(), "\n")
}

// Warnings counts WARN records.
func (l *RunLog) Warnings() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warnings
}

// Errors counts ERROR records.
func (l *RunLog) Errors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

func (l *RunLog) append(line string, level slog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	switch {
	case level >= slog.LevelError:
		l.errors++
	case level >= slog.LevelWarn:
		l.warnings++
	}
}

// RunHandler writes records into a RunLog and forwards them to the process
// handler, if any.
type RunHandler struct {
	run    *RunLog
	next   slog.Handler
	attrs  []slog.Attr
	prefix string
}

var _ slog.Handler = (*RunHandler)(nil)

// NewRunHandler creates a handler feeding run. next may be nil.
func NewRunHandler(run *RunLog, next slog.Handler) *RunHandler {
	return &RunHandler{run: run, next: next}
}

// NewRun returns a logger scoped to a single invocation together with the
// log it fills.
func NewRun(next slog.Handler) (*slog.Logger, *RunLog) {
	run := &RunLog{}
	return slog.New(NewRunHandler(run, next)), run
}

func (h *RunHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *RunHandler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Format(RunLogTimeLayout))
		b.WriteByte(' ')
	}
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	h.run.append(b.String(), r.Level)

	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *RunHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	if h.next != nil {
		nh.next = h.next.WithAttrs(attrs)
	}
	return nh
}

func (h *RunHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.prefix = h.prefix + name + "."
	if h.next != nil {
		nh.next = h.next.WithGroup(name)
	}
	return nh
}

func (h *RunHandler) clone() *RunHandler {
	return &RunHandler{
		run:    h.run,
		next:   h.next,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		prefix: h.prefix,
	}
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	v := a.Value.String()
	if strings.ContainsAny(v, " \t\n\"=") || v == "" {
		v = fmt.Sprintf("%q", v)
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(v)
}

// Outcome is the stage 1 result returned to the operator.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Logs    string `json:"logs"`
}

// AlertLevel is the severity of a stage 2 alert.
type AlertLevel string

const (
	AlertInfo  AlertLevel = "INFO"
	AlertWarn  AlertLevel = "WARN"
	AlertError AlertLevel = "ERROR"
)

// Alert is the stage 2 result returned to the operator.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Logs    string     `json:"logs"`
}

// Elapsed formats a duration for run log lines.
func Elapsed(start, end time.Time) string {
	return end.Sub(start).Round(time.Millisecond).String()
}
