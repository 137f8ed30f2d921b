package output

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#16a34a", Dark: "#4ade80"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#dc2626", Dark: "#f87171"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#ca8a04", Dark: "#facc15"}
	colorBlue   = lipgloss.AdaptiveColor{Light: "#2563eb", Dark: "#60a5fa"}
	colorGray   = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "#0891b2", Dark: "#22d3ee"}
)

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusSkipped lipgloss.Style
	StatusBlocked lipgloss.Style

	ModelPath lipgloss.Style
}

// NewStyles builds styles bound to a lipgloss renderer.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(colorBlue).MarginBottom(1),
		Header2: r.NewStyle().Bold(true).Foreground(colorCyan),
		Muted:   r.NewStyle().Foreground(colorGray),
		Bold:    r.NewStyle().Bold(true),

		Success: r.NewStyle().Foreground(colorGreen),
		Warning: r.NewStyle().Foreground(colorYellow),
		Error:   r.NewStyle().Foreground(colorRed),
		Info:    r.NewStyle().Foreground(colorBlue),

		StatusSuccess: r.NewStyle().Foreground(colorGreen).SetString("✓"),
		StatusFailed:  r.NewStyle().Foreground(colorRed).SetString("✗"),
		StatusSkipped: r.NewStyle().Foreground(colorGray).SetString("-"),
		StatusBlocked: r.NewStyle().Foreground(colorYellow).SetString("⊘"),

		ModelPath: r.NewStyle().Bold(true),
	}
}

// StatusIcon returns the rendered icon for a step or run status.
func (s *Styles) StatusIcon(status string) string {
	switch status {
	case "success":
		return s.StatusSuccess.String()
	case "error", "failed":
		return s.StatusFailed.String()
	case "blocked", "aborted", "partial":
		return s.StatusBlocked.String()
	default:
		return s.StatusSkipped.String()
	}
}
