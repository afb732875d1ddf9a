package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/synergy/internal/assets"
	"github.com/pbaille/synergy/internal/catalog"
	"github.com/pbaille/synergy/internal/domain"
	"github.com/pbaille/synergy/internal/session"
)

type nopJournal struct{ fail error }

func (j nopJournal) Save([]domain.Pair) error { return j.fail }

func pair(a, b string) domain.Pair {
	return domain.Pair{Card1: domain.CardRef{Name: a}, Card2: domain.CardRef{Name: b}}
}

func newModel(t *testing.T, journal session.Journal, master ...domain.Pair) Model {
	t.Helper()
	cat := catalog.New([]domain.Card{
		{Name: "Sol Ring", TypeLine: "Artifact", OracleText: "{T}: Add {C}{C}."},
		{Name: "Llanowar Elves", TypeLine: "Creature — Elf Druid"},
		{Name: "Mana Vault", TypeLine: "Artifact"},
	})
	ctrl := session.New(master, journal)
	return New(context.Background(), ctrl, cat, assets.New(cat, nil, nil, nil))
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestViewEmpty(t *testing.T) {
	m := newModel(t, nopJournal{})
	assert.Contains(t, m.View(), "No synergy entries to display.")
}

func TestViewShowsPairAndProgress(t *testing.T) {
	labeled := pair("Sol Ring", "Mana Vault").WithManual(domain.LabelSynergy)
	m := newModel(t, nopJournal{}, pair("Sol Ring", "Llanowar Elves"), labeled)

	view := m.View()
	assert.Contains(t, view, "Name: Sol Ring")
	assert.Contains(t, view, "Name: Llanowar Elves")
	assert.Contains(t, view, "Predicted synergy: N/A")
	assert.Contains(t, view, "Manual synergy: None")
	assert.Contains(t, view, "Entry 1 / 1")
	assert.Contains(t, view, "Labeled pairs: 1 / 2")
}

func TestViewUnresolvedCard(t *testing.T) {
	m := newModel(t, nopJournal{}, pair("Sol Ring", "Ghost Card"))
	view := m.View()
	assert.Contains(t, view, "One or both cards not found")
	assert.Contains(t, view, "Ghost Card")
	assert.Contains(t, view, "Entry 1 / 1", "the pair stays navigable")
}

func TestLabelKeyAssigns(t *testing.T) {
	m := newModel(t, nopJournal{}, pair("Sol Ring", "Llanowar Elves"), pair("Mana Vault", "Sol Ring"))

	m = press(t, m, "4")
	cur, err := m.session.Current()
	require.NoError(t, err)
	require.NotNil(t, cur.Manual)
	assert.Equal(t, domain.LabelHalfNegative, *cur.Manual)
	assert.Contains(t, m.View(), "Manual synergy: -0.5")
	assert.Contains(t, m.View(), "Labeled pairs: 1 / 2")

	m = press(t, m, "right", "1", "left", "5")
	log := m.session.Log()
	require.Len(t, log, 2)
	assert.Equal(t, domain.LabelNegative, *log[0].Manual)
	assert.Equal(t, domain.LabelSynergy, *log[1].Manual)
}

func TestPersistFailureQuits(t *testing.T) {
	m := newModel(t, nopJournal{fail: errors.New("disk full")}, pair("Sol Ring", "Llanowar Elves"))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	m = next.(Model)
	require.Error(t, m.Err())
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestJumpInput(t *testing.T) {
	m := newModel(t, nopJournal{}, pair("Sol Ring", "Llanowar Elves"), pair("Mana Vault", "Sol Ring"), pair("Mana Vault", "Llanowar Elves"))

	m = press(t, m, "g", "3", "enter")
	n, _ := m.session.Position()
	assert.Equal(t, 3, n)

	m = press(t, m, "g", "9", "enter")
	assert.Contains(t, m.View(), "Enter a number between 1 and 3")
	n, _ = m.session.Position()
	assert.Equal(t, 3, n)

	m = press(t, m, "g", "x", "enter")
	assert.Contains(t, m.View(), "Please enter a valid integer")

	m = press(t, m, "g", "1", "esc")
	n, _ = m.session.Position()
	assert.Equal(t, 3, n, "esc cancels the jump")
}

func TestAssetsMsgForStalePairIgnored(t *testing.T) {
	m := newModel(t, nopJournal{}, pair("Sol Ring", "Llanowar Elves"))
	next, _ := m.Update(assetsMsg{key: domain.Key{Card1: "other", Card2: "pair"}, assets: [2]*assets.Asset{{Name: "x"}, {Name: "y"}}})
	m = next.(Model)
	assert.Nil(t, m.cards[0])
	assert.Contains(t, m.View(), "[loading image]")

	msg := m.Init()()
	next, _ = m.Update(msg)
	m = next.(Model)
	assert.Contains(t, m.View(), "[no image]")
}

func TestSynergyColor(t *testing.T) {
	l := func(v domain.Label) *domain.Label { return &v }
	assert.Equal(t, Unlabeled, SynergyColor(nil))
	assert.Equal(t, Muted, SynergyColor(l(0)))
	assert.Equal(t, "#00ff00", string(SynergyColor(l(1))))
	assert.Equal(t, "#ff0000", string(SynergyColor(l(-1))))
	assert.Equal(t, "#44c344", string(SynergyColor(l(0.5))))
	assert.True(t, strings.HasPrefix(string(SynergyColor(l(-0.5))), "#c3"))
}
