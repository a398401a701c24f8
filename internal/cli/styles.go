package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"billingsync/internal/log"
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D")).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	SubtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	PromptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1D3"))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(0, 1)
)

// RenderOutcome formats a stage 1 result followed by its run log.
func RenderOutcome(out log.Outcome) string {
	title := SuccessStyle.Render("Import complete")
	if !out.Success {
		title = ErrorStyle.Render("Import failed")
	}
	return renderResult(title, out.Message, out.Logs)
}

// RenderAlert formats a stage 2 alert followed by its run log.
func RenderAlert(a log.Alert) string {
	style := SuccessStyle
	switch a.Level {
	case log.AlertWarn:
		style = WarningStyle
	case log.AlertError:
		style = ErrorStyle
	}
	return renderResult(style.Render(a.Title), a.Message, a.Logs)
}

func renderResult(title, message, logs string) string {
	box := BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, message))
	if strings.TrimSpace(logs) == "" {
		return box
	}
	return box + "\n" + SubtleStyle.Render(logs)
}
