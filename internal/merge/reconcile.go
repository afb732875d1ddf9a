// Package merge folds the labels of an interrupted session back into the
// master dataset.
package merge

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/synergy/internal/dataset"
	"github.com/pbaille/synergy/internal/domain"
)

// Result is the outcome of a pure reconciliation.
type Result struct {
	// Master has the same length and order as the input master.
	Master []domain.Pair
	// Applied counts transient records that matched a master pair.
	Applied int
	// Orphans are transient keys with no master pair; they are dropped.
	Orphans []domain.Key
	// Duplicates are master keys seen more than once in the input master.
	Duplicates []domain.Key
	// Skipped are transient keys carrying no manual label; they never
	// clear a label already in master.
	Skipped []domain.Key
}

// Reconcile applies the manual labels of log onto master.
// Transient values always win. Records whose key is not in master are dropped,
// so the result never grows, shrinks, or gains a duplicate key.
func Reconcile(master, log []domain.Pair) Result {
	res := Result{Master: make([]domain.Pair, len(master))}

	index := make(map[domain.Key][]int, len(master))
	for i, p := range master {
		res.Master[i] = p.Clone()
		k := p.Key()
		if len(index[k]) == 1 {
			res.Duplicates = append(res.Duplicates, k)
		}
		index[k] = append(index[k], i)
	}

	for _, entry := range log {
		if entry.Manual == nil {
			res.Skipped = append(res.Skipped, entry.Key())
			continue
		}
		positions, ok := index[entry.Key()]
		if !ok {
			res.Orphans = append(res.Orphans, entry.Key())
			continue
		}
		for _, i := range positions {
			res.Master[i].Manual = entry.Clone().Manual
		}
		res.Applied++
	}
	return res
}

// Report describes what a Manager run did on disk.
type Report struct {
	Result
	// Merged is false when there was nothing to merge and master was not rewritten.
	Merged bool
	// LogFound is false when no transient log file existed.
	LogFound bool
	// Quarantined is where an unreadable transient log was moved, if any.
	Quarantined string
}

// Manager reconciles the master file with the transient recovery log file.
type Manager struct {
	Master *dataset.File
	Log    *dataset.File
	Logger *zap.Logger

	now func() time.Time
}

// NewManager creates a Manager over the two files.
func NewManager(master, log *dataset.File, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{Master: master, Log: log, Logger: logger, now: time.Now}
}

// Run loads both files, merges and persists the master, then truncates the log.
// The returned master is the clean in-memory dataset for the session.
func (m *Manager) Run() (*Report, error) {
	master, masterErr := m.loadMaster()
	if masterErr != nil && !dataset.IsMalformed(masterErr) {
		return nil, masterErr
	}
	if masterErr != nil {
		m.Logger.Warn("master dataset unreadable, treated as empty", zap.Error(masterErr))
		master = []domain.Pair{}
	}

	found, err := m.Log.Exists()
	if err != nil {
		return nil, err
	}
	if !found {
		m.Logger.Debug("no transient log, nothing to merge", zap.String("path", m.Log.Path))
		return &Report{Result: Result{Master: master}}, nil
	}

	log, err := m.Log.Load()
	if err != nil {
		if dataset.IsMalformed(err) {
			// The next session journals to Log.Path; move the torn file out of
			// its way so labels recoverable by hand are not overwritten.
			dest, mvErr := m.Log.MoveAside("corrupt-" + m.timestamp())
			if mvErr != nil {
				return nil, fmt.Errorf("quarantine transient log: %w", mvErr)
			}
			m.Logger.Warn("transient log unreadable, moved aside",
				zap.String("moved_to", dest),
				zap.Error(err),
			)
			return &Report{Result: Result{Master: master}, LogFound: true, Quarantined: dest}, nil
		}
		return nil, fmt.Errorf("load transient log: %w", err)
	}
	if len(log) == 0 {
		return &Report{Result: Result{Master: master}, LogFound: true}, nil
	}

	if masterErr != nil {
		// Merging into the empty stand-in would overwrite the real file.
		return nil, fmt.Errorf("refusing to merge: %w", masterErr)
	}

	res := Reconcile(master, log)
	for _, k := range res.Orphans {
		m.Logger.Warn("dropping transient label with no master pair",
			zap.String("card1", k.Card1),
			zap.String("card2", k.Card2),
		)
	}
	for _, k := range res.Skipped {
		m.Logger.Warn("ignoring transient record without manual label",
			zap.String("card1", k.Card1),
			zap.String("card2", k.Card2),
		)
	}
	for _, k := range res.Duplicates {
		m.Logger.Warn("duplicate natural key in master",
			zap.String("card1", k.Card1),
			zap.String("card2", k.Card2),
		)
	}

	if err := m.Master.Save(res.Master); err != nil {
		return nil, fmt.Errorf("save master: %w", err)
	}
	if err := m.Log.Truncate(); err != nil {
		return nil, fmt.Errorf("truncate transient log: %w", err)
	}

	m.Logger.Info("merged transient log",
		zap.Int("applied", res.Applied),
		zap.Int("orphans", len(res.Orphans)),
		zap.Int("master", len(res.Master)),
	)
	return &Report{Result: res, Merged: true, LogFound: true}, nil
}

func (m *Manager) timestamp() string {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	return now().UTC().Format("20060102T150405Z")
}

func (m *Manager) loadMaster() ([]domain.Pair, error) {
	master, err := m.Master.Load()
	switch {
	case err == nil:
		return master, nil
	case errors.Is(err, dataset.ErrNotExist):
		m.Logger.Warn("master dataset missing, starting empty", zap.String("path", m.Master.Path))
		return []domain.Pair{}, nil
	case dataset.IsMalformed(err):
		return nil, err
	default:
		return nil, fmt.Errorf("load master: %w", err)
	}
}
