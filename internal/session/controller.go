// Package session drives one annotation session over the unlabeled pairs of
// the master dataset.
//
// The working set is fixed when the session starts: labeling a pair never
// removes it or renumbers the entries after it, so the cursor and any
// "entry N of M" the user holds stay valid.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pbaille/synergy/internal/domain"
)

var (
	// ErrEmpty is returned when the working set has no entries.
	ErrEmpty = errors.New("no synergy entries to display")
	// ErrInvalidIndex is returned by JumpTo for an index outside 1..len.
	ErrInvalidIndex = errors.New("invalid entry index")
	// ErrNotNumber is returned by JumpToInput for non-integer input.
	ErrNotNumber = errors.New("please enter a valid integer")
	// ErrInvalidLabel is returned for values outside the label scale.
	ErrInvalidLabel = errors.New("invalid synergy label")
)

// Journal persists the session log. Save must be durable when it returns.
type Journal interface {
	Save(pairs []domain.Pair) error
}

// Controller holds the working set, cursor and session log.
// It is not safe for concurrent use; callers serialize actions.
type Controller struct {
	working []domain.Pair
	cursor  int

	log      []domain.Pair
	logIndex map[domain.Key]int

	labeled    int
	masterSize int

	journal Journal
}

// New starts a session over master. Pairs without a manual label form the
// working set, in master order.
func New(master []domain.Pair, journal Journal) *Controller {
	c := &Controller{
		logIndex:   make(map[domain.Key]int),
		masterSize: len(master),
		journal:    journal,
	}
	for _, p := range master {
		if p.Labeled() {
			c.labeled++
			continue
		}
		c.working = append(c.working, p.Clone())
	}
	return c
}

// Len is the size of the working set.
func (c *Controller) Len() int {
	return len(c.working)
}

// Current returns the pair under the cursor.
func (c *Controller) Current() (domain.Pair, error) {
	if len(c.working) == 0 {
		return domain.Pair{}, ErrEmpty
	}
	return c.working[c.cursor].Clone(), nil
}

// Advance moves to the next entry; no-op on the last one.
func (c *Controller) Advance() {
	if c.cursor < len(c.working)-1 {
		c.cursor++
	}
}

// Retreat moves to the previous entry; no-op on the first one.
func (c *Controller) Retreat() {
	if c.cursor > 0 {
		c.cursor--
	}
}

// CanAdvance reports whether Advance would move.
func (c *Controller) CanAdvance() bool {
	return c.cursor < len(c.working)-1
}

// CanRetreat reports whether Retreat would move.
func (c *Controller) CanRetreat() bool {
	return c.cursor > 0
}

// JumpTo moves the cursor to a 1-based entry number.
func (c *Controller) JumpTo(n int) error {
	if n < 1 || n > len(c.working) {
		return fmt.Errorf("%w: enter a number between 1 and %d", ErrInvalidIndex, len(c.working))
	}
	c.cursor = n - 1
	return nil
}

// JumpToInput parses raw user input and jumps to it.
func (c *Controller) JumpToInput(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return ErrNotNumber
	}
	return c.JumpTo(n)
}

// Position returns the 1-based cursor position and working set size.
// On an empty working set it returns 0, 0.
func (c *Controller) Position() (int, int) {
	if len(c.working) == 0 {
		return 0, 0
	}
	return c.cursor + 1, len(c.working)
}

// Progress returns the number of labeled pairs in the full master dataset
// and the master size. Display only.
func (c *Controller) Progress() (labeled, total int) {
	return c.labeled, c.masterSize
}

// Enabled reports whether v can be assigned to the current pair.
// The value the pair already carries is disabled; every other one stays
// available for a correction.
func (c *Controller) Enabled(v domain.Label) bool {
	if !v.Valid() || len(c.working) == 0 {
		return false
	}
	m := c.working[c.cursor].Manual
	return m == nil || *m != v
}

// AssignLabel sets the manual label of the current pair and persists the
// session log before returning. When the journal fails nothing changes.
func (c *Controller) AssignLabel(v domain.Label) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidLabel, float64(v))
	}
	if len(c.working) == 0 {
		return ErrEmpty
	}

	p := &c.working[c.cursor]
	prevManual := p.Manual
	prevLabeled := c.labeled
	prevLog := len(c.log)

	key := p.Key()
	i, inLog := c.logIndex[key]
	var prevEntry domain.Pair
	if inLog {
		prevEntry = c.log[i]
	}

	*p = p.WithManual(v)
	if prevManual == nil {
		c.labeled++
	}
	if inLog {
		c.log[i] = p.Clone()
	} else {
		c.logIndex[key] = len(c.log)
		c.log = append(c.log, p.Clone())
	}

	if err := c.journal.Save(c.log); err != nil {
		p.Manual = prevManual
		c.labeled = prevLabeled
		if inLog {
			c.log[i] = prevEntry
		} else {
			c.log = c.log[:prevLog]
			delete(c.logIndex, key)
		}
		return fmt.Errorf("persist session log: %w", err)
	}
	return nil
}

// Log returns a copy of the labels assigned this session, in assignment order.
func (c *Controller) Log() []domain.Pair {
	out := make([]domain.Pair, len(c.log))
	for i, p := range c.log {
		out[i] = p.Clone()
	}
	return out
}

// Working returns a copy of the working set.
func (c *Controller) Working() []domain.Pair {
	out := make([]domain.Pair, len(c.working))
	for i, p := range c.working {
		out[i] = p.Clone()
	}
	return out
}
