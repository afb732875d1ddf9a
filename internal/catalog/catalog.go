// Package catalog resolves card names against the bulk card file.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/synergy/internal/domain"
)

// UnresolvedError lists the pair halves missing from the catalog.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("card not found: %s", e.Names[0])
	}
	return fmt.Sprintf("cards not found: %s", strings.Join(e.Names, ", "))
}

// Catalog is an in-memory card index keyed by name.
type Catalog struct {
	cards map[string]*domain.Card
	names []string // sorted
}

// New indexes cards. When a name repeats, the last record wins.
func New(cards []domain.Card) *Catalog {
	c := &Catalog{cards: make(map[string]*domain.Card, len(cards))}
	for i := range cards {
		card := cards[i]
		if _, dup := c.cards[card.Name]; !dup {
			c.names = append(c.names, card.Name)
		}
		c.cards[card.Name] = &card
	}
	sort.Strings(c.names)
	return c
}

// Load reads the bulk card file. Missing, empty or malformed files give an
// empty catalog; every pair is then reported as unresolved.
func Load(path string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("card catalog missing", zap.String("path", path))
		} else {
			logger.Error("read card catalog", zap.String("path", path), zap.Error(err))
		}
		return New(nil)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return New(nil)
	}

	var cards []domain.Card
	if err := json.Unmarshal(data, &cards); err != nil {
		logger.Error("parse card catalog", zap.String("path", path), zap.Error(err))
		return New(nil)
	}

	c := New(cards)
	if dups := len(cards) - c.Len(); dups > 0 {
		logger.Warn("duplicate card names in catalog, last record kept", zap.Int("duplicates", dups))
	}
	logger.Debug("card catalog loaded", zap.Int("cards", c.Len()))
	return c
}

// Len returns the number of distinct names.
func (c *Catalog) Len() int {
	return len(c.cards)
}

// Resolve looks a card up by exact name.
func (c *Catalog) Resolve(name string) (*domain.Card, bool) {
	card, ok := c.cards[name]
	return card, ok
}

// ResolvePair resolves both halves of p. The error is an *UnresolvedError.
func (c *Catalog) ResolvePair(p domain.Pair) (*domain.Card, *domain.Card, error) {
	c1, ok1 := c.Resolve(p.Card1.Name)
	c2, ok2 := c.Resolve(p.Card2.Name)

	var missing []string
	if !ok1 {
		missing = append(missing, p.Card1.Name)
	}
	if !ok2 {
		missing = append(missing, p.Card2.Name)
	}
	if len(missing) > 0 {
		return c1, c2, &UnresolvedError{Names: missing}
	}
	return c1, c2, nil
}

// SuggestLimit is the number of names a search box shows.
const SuggestLimit = 10

// Suggest returns up to limit names containing query, case-insensitive,
// in name order.
func (c *Catalog) Suggest(query string, limit int) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return nil
	}

	var out []string
	for _, name := range c.names {
		if strings.Contains(strings.ToLower(name), query) {
			out = append(out, name)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
