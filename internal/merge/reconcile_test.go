package merge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbaille/synergy/internal/dataset"
	"github.com/pbaille/synergy/internal/domain"
	"github.com/pbaille/synergy/internal/session"
)

func pair(a, b string) domain.Pair {
	return domain.Pair{Card1: domain.CardRef{Name: a}, Card2: domain.CardRef{Name: b}}
}

func labeled(a, b string, l domain.Label) domain.Pair {
	return pair(a, b).WithManual(l)
}

func manual(t *testing.T, p domain.Pair) domain.Label {
	t.Helper()
	require.NotNil(t, p.Manual, "pair %s has no manual label", p.Key())
	return *p.Manual
}

func TestReconcileTransientWins(t *testing.T) {
	master := []domain.Pair{labeled("A", "B", domain.LabelHalfSynergy)}
	log := []domain.Pair{labeled("A", "B", domain.LabelNegative)}

	res := Reconcile(master, log)
	require.Len(t, res.Master, 1)
	assert.Equal(t, domain.LabelNegative, manual(t, res.Master[0]))
	assert.Equal(t, 1, res.Applied)

	// input untouched
	assert.Equal(t, domain.LabelHalfSynergy, manual(t, master[0]))
}

func TestReconcileDropsOrphans(t *testing.T) {
	master := []domain.Pair{pair("A", "B"), pair("C", "D")}
	log := []domain.Pair{labeled("X", "Y", domain.LabelSynergy), labeled("B", "A", domain.LabelSynergy)}

	res := Reconcile(master, log)
	assert.Len(t, res.Master, len(master))
	assert.Equal(t, []domain.Key{{Card1: "X", Card2: "Y"}, {Card1: "B", Card2: "A"}}, res.Orphans)
	for _, p := range res.Master {
		assert.Nil(t, p.Manual)
		assert.NotEqual(t, domain.Key{Card1: "X", Card2: "Y"}, p.Key())
	}
}

func TestReconcilePreservesOrderAndCardinality(t *testing.T) {
	master := []domain.Pair{pair("A", "B"), labeled("C", "D", domain.LabelNone), pair("E", "F")}
	log := []domain.Pair{labeled("E", "F", domain.LabelSynergy), labeled("A", "B", domain.LabelHalfNegative)}

	res := Reconcile(master, log)
	require.Len(t, res.Master, 3)
	assert.Equal(t, "A", res.Master[0].Card1.Name)
	assert.Equal(t, "C", res.Master[1].Card1.Name)
	assert.Equal(t, "E", res.Master[2].Card1.Name)
	assert.Equal(t, domain.LabelHalfNegative, manual(t, res.Master[0]))
	assert.Equal(t, domain.LabelNone, manual(t, res.Master[1]))
	assert.Equal(t, domain.LabelSynergy, manual(t, res.Master[2]))
}

func TestReconcileIdempotent(t *testing.T) {
	master := []domain.Pair{pair("A", "B"), pair("C", "D")}
	log := []domain.Pair{labeled("C", "D", domain.LabelHalfSynergy)}

	once := Reconcile(master, log)
	twice := Reconcile(once.Master, nil)
	assert.Equal(t, once.Master, twice.Master)
	assert.Zero(t, twice.Applied)
}

func TestReconcileDuplicateLogEntriesLastWins(t *testing.T) {
	master := []domain.Pair{pair("A", "B")}
	log := []domain.Pair{labeled("A", "B", domain.LabelSynergy), labeled("A", "B", domain.LabelNegative)}

	res := Reconcile(master, log)
	require.Len(t, res.Master, 1)
	assert.Equal(t, domain.LabelNegative, manual(t, res.Master[0]))
}

func TestReconcileReportsMasterDuplicates(t *testing.T) {
	master := []domain.Pair{pair("A", "B"), pair("A", "B"), pair("A", "B")}
	res := Reconcile(master, []domain.Pair{labeled("A", "B", domain.LabelNone)})

	assert.Len(t, res.Master, 3)
	assert.Equal(t, []domain.Key{{Card1: "A", Card2: "B"}}, res.Duplicates)
	for _, p := range res.Master {
		assert.Equal(t, domain.LabelNone, manual(t, p))
	}
}

func TestReconcileKeepsOtherFields(t *testing.T) {
	predicted := 0.8
	p := pair("A", "B")
	p.Predicted = &predicted
	p.Extra = map[string]json.RawMessage{"synergy_edhrec": json.RawMessage("0.12")}

	// the transient record carries a different prediction; only the label moves
	other := 0.1
	entry := labeled("A", "B", domain.LabelSynergy)
	entry.Predicted = &other

	res := Reconcile([]domain.Pair{p}, []domain.Pair{entry})
	require.NotNil(t, res.Master[0].Predicted)
	assert.InDelta(t, 0.8, *res.Master[0].Predicted, 1e-9)
	assert.Equal(t, json.RawMessage("0.12"), res.Master[0].Extra["synergy_edhrec"])
	assert.Equal(t, domain.LabelSynergy, manual(t, res.Master[0]))
}

type files struct {
	master *dataset.File
	log    *dataset.File
}

func newFiles(t *testing.T) files {
	dir := t.TempDir()
	return files{
		master: dataset.Open(filepath.Join(dir, "master.json")),
		log:    dataset.Open(filepath.Join(dir, "tmp.json")),
	}
}

func TestManagerNoLogLeavesFilesAlone(t *testing.T) {
	f := newFiles(t)
	require.NoError(t, f.master.Save([]domain.Pair{pair("A", "B")}))
	before, err := os.ReadFile(f.master.Path)
	require.NoError(t, err)

	report, err := NewManager(f.master, f.log, zap.NewNop()).Run()
	require.NoError(t, err)
	assert.False(t, report.Merged)
	assert.False(t, report.LogFound)
	assert.Len(t, report.Master, 1)

	exists, err := f.log.Exists()
	require.NoError(t, err)
	assert.False(t, exists, "log must not be created")

	after, err := os.ReadFile(f.master.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestManagerMergesAndTruncates(t *testing.T) {
	f := newFiles(t)
	require.NoError(t, f.master.Save([]domain.Pair{pair("A", "B"), labeled("C", "D", domain.LabelHalfSynergy)}))
	require.NoError(t, f.log.Save([]domain.Pair{labeled("A", "B", domain.LabelHalfNegative), labeled("X", "Y", domain.LabelSynergy)}))

	report, err := NewManager(f.master, f.log, nil).Run()
	require.NoError(t, err)
	assert.True(t, report.Merged)
	assert.Equal(t, 1, report.Applied)
	assert.Len(t, report.Orphans, 1)

	saved, err := f.master.Load()
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, domain.LabelHalfNegative, manual(t, saved[0]))
	assert.Equal(t, domain.LabelHalfSynergy, manual(t, saved[1]))

	info, err := os.Stat(f.log.Path)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "log is truncated, not deleted")

	// second run is a no-op
	again, err := NewManager(f.master, f.log, nil).Run()
	require.NoError(t, err)
	assert.False(t, again.Merged)
	assert.True(t, again.LogFound)
	assert.Equal(t, report.Master, again.Master)
}

func TestManagerMalformedMasterKeepsLog(t *testing.T) {
	f := newFiles(t)
	require.NoError(t, os.WriteFile(f.master.Path, []byte("{not json"), 0644))
	require.NoError(t, f.log.Save([]domain.Pair{labeled("A", "B", domain.LabelSynergy)}))

	_, err := NewManager(f.master, f.log, nil).Run()
	require.Error(t, err)
	assert.True(t, dataset.IsMalformed(err))

	log, err := f.log.Load()
	require.NoError(t, err)
	assert.Len(t, log, 1, "confirmed labels must survive a refused merge")

	body, err := os.ReadFile(f.master.Path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(body))
}

func TestManagerMalformedMasterWithoutLogDegrades(t *testing.T) {
	f := newFiles(t)
	require.NoError(t, os.WriteFile(f.master.Path, []byte("{not json"), 0644))

	report, err := NewManager(f.master, f.log, nil).Run()
	require.NoError(t, err)
	assert.Empty(t, report.Master)
}

func TestManagerMovesMalformedLogAside(t *testing.T) {
	f := newFiles(t)
	require.NoError(t, f.master.Save([]domain.Pair{pair("A", "B")}))
	torn := `[{"card1":{"name":"C"},"card2":{"name":"D"},"synergy_manual":1},`
	require.NoError(t, os.WriteFile(f.log.Path, []byte(torn), 0644))

	m := NewManager(f.master, f.log, nil)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }
	report, err := m.Run()
	require.NoError(t, err)
	assert.False(t, report.Merged)
	assert.Len(t, report.Master, 1)
	assert.Equal(t, f.log.Path+".corrupt-20260301T123000Z", report.Quarantined)

	// the next session journals to the original path without touching the torn file
	require.NoError(t, f.log.Touch())
	ctrl := session.New(report.Master, f.log)
	require.NoError(t, ctrl.AssignLabel(domain.LabelNone))

	body, err := os.ReadFile(report.Quarantined)
	require.NoError(t, err)
	assert.Equal(t, torn, string(body))

	log, err := f.log.Load()
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, domain.Key{Card1: "A", Card2: "B"}, log[0].Key())
}

func TestReconcileIgnoresUnlabeledTransientRecords(t *testing.T) {
	master := []domain.Pair{labeled("A", "B", domain.LabelSynergy), pair("C", "D")}
	var absent domain.Pair
	require.NoError(t, json.Unmarshal([]byte(`{"card1": {"name": "C"}, "card2": {"name": "D"}, "synergy_manual": null}`), &absent))
	log := []domain.Pair{pair("A", "B"), absent}

	res := Reconcile(master, log)
	assert.Equal(t, domain.LabelSynergy, manual(t, res.Master[0]), "a human label is never erased")
	assert.Nil(t, res.Master[1].Manual)
	assert.Zero(t, res.Applied)
	assert.Equal(t, []domain.Key{{Card1: "A", Card2: "B"}, {Card1: "C", Card2: "D"}}, res.Skipped)
	assert.Empty(t, res.Orphans)
}
