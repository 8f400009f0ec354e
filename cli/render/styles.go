package render

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	labelStyle  = lipgloss.NewStyle().Foreground(mutedColor)

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// outcomeStyle picks the style for a run outcome value.
func outcomeStyle(outcome string) (lipgloss.Style, bool) {
	switch outcome {
	case "success":
		return successStyle, true
	case "degraded":
		return warningStyle, true
	case "timeout", "cancelled", "error":
		return errorStyle, true
	default:
		return lipgloss.Style{}, false
	}
}
