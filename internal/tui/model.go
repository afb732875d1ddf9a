// Package tui is the terminal labeling screen.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pbaille/synergy/internal/assets"
	"github.com/pbaille/synergy/internal/catalog"
	"github.com/pbaille/synergy/internal/domain"
	"github.com/pbaille/synergy/internal/session"
)

// assetsMsg carries the display assets of one pair.
type assetsMsg struct {
	key    domain.Key
	assets [2]*assets.Asset
}

// Model is the bubbletea model of the labeling screen.
type Model struct {
	ctx      context.Context
	session  *session.Controller
	catalog  *catalog.Catalog
	provider assets.Provider
	styles   Styles

	jump    textinput.Model
	jumping bool

	shown  domain.Key
	cards  [2]*assets.Asset
	status string
	width  int

	err error
}

// New creates the labeling screen over a running session.
func New(ctx context.Context, ctrl *session.Controller, cat *catalog.Catalog, provider assets.Provider) Model {
	ti := textinput.New()
	ti.Placeholder = "entry number"
	ti.CharLimit = 9
	ti.Width = 12

	return Model{
		ctx:      ctx,
		session:  ctrl,
		catalog:  cat,
		provider: provider,
		styles:   DefaultStyles(),
		jump:     ti,
		width:    120,
	}
}

// Err returns the persistence error that ended the program, if any.
func (m Model) Err() error {
	return m.err
}

// Init loads the first pair.
func (m Model) Init() tea.Cmd {
	return m.loadCurrent()
}

// loadCurrent fetches display assets for the pair under the cursor.
func (m Model) loadCurrent() tea.Cmd {
	cur, err := m.session.Current()
	if err != nil || m.provider == nil {
		return nil
	}
	if _, _, err := m.catalog.ResolvePair(cur); err != nil {
		return nil
	}

	ctx, provider := m.ctx, m.provider
	return func() tea.Msg {
		msg := assetsMsg{key: cur.Key()}
		for i, name := range []string{cur.Card1.Name, cur.Card2.Name} {
			a, err := provider.Fetch(ctx, name)
			if err == nil {
				msg.assets[i] = a
			}
		}
		return msg
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case assetsMsg:
		if cur, err := m.session.Current(); err == nil && cur.Key() == msg.key {
			m.shown = msg.key
			m.cards = msg.assets
		}
		return m, nil

	case tea.KeyMsg:
		if m.jumping {
			return m.updateJump(msg)
		}
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateJump(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.jumping = false
		m.jump.Blur()
		return m, nil
	case "enter":
		m.jumping = false
		m.jump.Blur()
		input := m.jump.Value()
		m.jump.SetValue("")
		if err := m.session.JumpToInput(input); err != nil {
			m.status = jumpError(err)
			return m, nil
		}
		m.status = ""
		return m, m.loadCurrent()
	}

	var cmd tea.Cmd
	m.jump, cmd = m.jump.Update(msg)
	return m, cmd
}

func jumpError(err error) string {
	if errors.Is(err, session.ErrInvalidIndex) {
		// drop the sentinel prefix, keep the range hint
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return strings.ToUpper(msg[:1]) + msg[1:]
	}
	return "Please enter a valid integer"
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "left", "h":
		m.session.Retreat()
		m.status = ""
		return m, m.loadCurrent()

	case "right", "l":
		m.session.Advance()
		m.status = ""
		return m, m.loadCurrent()

	case "g":
		m.jumping = true
		return m, m.jump.Focus()

	case "1", "2", "3", "4", "5":
		labels := domain.Labels()
		v := labels[int(key[0]-'1')]
		if !m.session.Enabled(v) {
			return m, nil
		}
		err := m.session.AssignLabel(v)
		switch {
		case err == nil:
			m.status = ""
		case errors.Is(err, session.ErrEmpty):
			m.status = err.Error()
		default:
			// losing a label write silently is worse than stopping
			m.err = err
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

// View renders the screen.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("MTG Synergy Labeler"))
	sb.WriteString("\n")

	cur, err := m.session.Current()
	if err != nil {
		sb.WriteString(m.styles.Status.Render("No synergy entries to display."))
		sb.WriteString("\n\n")
		sb.WriteString(m.styles.Help.Render("q quit"))
		return sb.String()
	}

	c1, c2, resolveErr := m.catalog.ResolvePair(cur)
	if resolveErr != nil {
		sb.WriteString(m.styles.Status.Render("One or both cards not found: " + resolveErr.Error()))
		sb.WriteString("\n")
	} else {
		colWidth := max(m.width/2-4, 20)
		left := m.renderCard(c1, m.assetFor(cur, 0), colWidth)
		right := m.renderCard(c2, m.assetFor(cur, 1), colWidth)
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
		sb.WriteString("\n")
	}

	pred := "N/A"
	if cur.Predicted != nil {
		pred = fmt.Sprintf("%.2f", *cur.Predicted)
	}
	sb.WriteString(m.styles.Info.Render("Predicted synergy: " + pred))
	sb.WriteString("\n")

	manual := "None"
	if cur.Manual != nil {
		manual = cur.Manual.String()
	}
	sb.WriteString(lipgloss.NewStyle().Bold(true).Foreground(SynergyColor(cur.Manual)).Render("Manual synergy: " + manual))
	sb.WriteString("\n\n")

	var buttons []string
	for i, l := range domain.Labels() {
		caption := fmt.Sprintf("[%d] %s", i+1, l.Caption())
		if m.session.Enabled(l) {
			buttons = append(buttons, m.styles.Button.Render(caption))
		} else {
			buttons = append(buttons, m.styles.Disabled.Render(caption))
		}
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
	sb.WriteString("\n\n")

	n, total := m.session.Position()
	labeled, size := m.session.Progress()
	sb.WriteString(fmt.Sprintf("Entry %d / %d    Labeled pairs: %d / %d\n", n, total, labeled, size))

	if m.jumping {
		sb.WriteString("Jump to: " + m.jump.View() + "\n")
	}
	if m.status != "" {
		sb.WriteString(m.styles.Status.Render(m.status))
		sb.WriteString("\n")
	}

	back, next := "← back", "next →"
	if !m.session.CanRetreat() {
		back = m.styles.Disabled.Render(back)
	}
	if !m.session.CanAdvance() {
		next = m.styles.Disabled.Render(next)
	}
	sb.WriteString(m.styles.Help.Render(back + "  " + next + "  1-5 label  g jump  q quit"))
	return sb.String()
}

func (m Model) assetFor(cur domain.Pair, i int) *assets.Asset {
	if m.shown != cur.Key() {
		return nil
	}
	return m.cards[i]
}

func (m Model) renderCard(card *domain.Card, a *assets.Asset, width int) string {
	var sb strings.Builder
	sb.WriteString(m.styles.CardName.Render("Name: " + card.Name))
	sb.WriteString("\nType: " + card.TypeLine)
	sb.WriteString("\nText: " + card.OracleText)
	if card.Power != nil {
		toughness := ""
		if card.Toughness != nil {
			toughness = *card.Toughness
		}
		sb.WriteString(fmt.Sprintf("\nP/T: %s / %s", *card.Power, toughness))
	}
	if len(card.Tags) > 0 {
		sb.WriteString("\nTags: " + strings.Join(card.Tags, ", "))
	}

	switch {
	case a == nil:
		sb.WriteString("\n" + m.styles.Help.Render("[loading image]"))
	case a.Placeholder:
		sb.WriteString("\n" + m.styles.Help.Render("[no image]"))
	default:
		sb.WriteString("\n" + m.styles.Help.Render(fmt.Sprintf("[image %s, %d bytes]", a.ContentType, len(a.Image))))
	}

	return m.styles.Card.Width(width).Render(sb.String())
}
