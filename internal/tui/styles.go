package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/pbaille/synergy/internal/domain"
)

// Palette
var (
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#888888")
	Unlabeled   = lipgloss.Color("#000000")
	Border      = lipgloss.Color("#dce0e5")
	Destructive = lipgloss.Color("#e53935")
)

// Styles groups the lipgloss styles of the labeling screen.
type Styles struct {
	Title    lipgloss.Style
	Card     lipgloss.Style
	CardName lipgloss.Style
	Info     lipgloss.Style
	Button   lipgloss.Style
	Disabled lipgloss.Style
	Status   lipgloss.Style
	Help     lipgloss.Style
}

// DefaultStyles returns the screen styles.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Card:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Border).Padding(0, 1),
		CardName: lipgloss.NewStyle().Bold(true),
		Info:     lipgloss.NewStyle().Foreground(Info),
		Button:   lipgloss.NewStyle().Padding(0, 1),
		Disabled: lipgloss.NewStyle().Padding(0, 1).Foreground(Muted).Strikethrough(true),
		Status:   lipgloss.NewStyle().Foreground(Destructive),
		Help:     lipgloss.NewStyle().Foreground(Muted),
	}
}

// SynergyColor maps a manual label to a color: gray at 0, toward green for
// positive values and toward red for negative ones. No label is black.
func SynergyColor(manual *domain.Label) lipgloss.Color {
	if manual == nil {
		return Unlabeled
	}

	val := float64(*manual)
	val = max(min(val, 1), -1)
	if val == 0 {
		return Muted
	}

	var r, g, b int
	if val > 0 {
		r = int(136 * (1 - val))
		g = int(136 + (255-136)*val)
		b = int(136 * (1 - val))
	} else {
		r = int(136 + (255-136)*(-val))
		g = int(136 * (1 + val))
		b = int(136 * (1 + val))
	}
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r, g, b))
}
