package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbaille/synergy/internal/config"
	"github.com/pbaille/synergy/internal/dataset"
)

const testMaster = `[
  {"card1": "Sol Ring", "card2": "Mana Vault", "synergy_predicted": 0.81, "synergy_manual": null},
  {"card1": {"name": "Sol Ring"}, "card2": {"name": "Llanowar Elves"}, "synergy_manual": 1.0},
  {"card1": {"name": "Mana Vault"}, "card2": {"name": "Llanowar Elves"}}
]`

const testCards = `[
  {"name": "Sol Ring", "type_line": "Artifact", "oracle_text": "{T}: Add {C}{C}."},
  {"name": "Mana Vault", "type_line": "Artifact", "oracle_text": "Mana Vault doesn't untap."}
]`

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cfg = config.DefaultConfig()
	cfg.Data.MasterPath = filepath.Join(dir, "master.json")
	cfg.Data.LogPath = filepath.Join(dir, "tmp.json")
	cfg.Data.CardsPath = filepath.Join(dir, "cards.json")
	cfg.Assets.CacheDB = ""
	cfg.Assets.Offline = true
	logger = zap.NewNop()

	require.NoError(t, os.WriteFile(cfg.Data.MasterPath, []byte(testMaster), 0o644))
	require.NoError(t, os.WriteFile(cfg.Data.CardsPath, []byte(testCards), 0o644))
	return dir
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatsIncludesPendingLog(t *testing.T) {
	setup(t)
	require.NoError(t, os.WriteFile(cfg.Data.LogPath, []byte(`[{"card1": {"name": "Sol Ring"}, "card2": {"name": "Mana Vault"}, "synergy_manual": -0.5}]`), 0o644))

	out, err := run(t, statsCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "Pairs:     3")
	assert.Contains(t, out, "Labeled:   2")
	assert.Contains(t, out, "Pending in recovery log: 1")

	// read-only: nothing was merged
	pairs, err := dataset.Open(cfg.Data.MasterPath).Load()
	require.NoError(t, err)
	assert.Nil(t, pairs[0].Manual)
}

func TestShow(t *testing.T) {
	setup(t)

	out, err := run(t, showCmd(), "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Entry 1 / 2")
	assert.Contains(t, out, "Name: Sol Ring")
	assert.Contains(t, out, "Name: Mana Vault")
	assert.Contains(t, out, "Predicted synergy: 0.81")

	out, err = run(t, showCmd(), "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Llanowar Elves (not found in catalog)")

	_, err = run(t, showCmd(), "3")
	assert.Error(t, err)
}

func TestMergeCommand(t *testing.T) {
	setup(t)

	out, err := run(t, mergeCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "No recovery log")

	require.NoError(t, os.WriteFile(cfg.Data.LogPath, []byte(`[
  {"card1": {"name": "Mana Vault"}, "card2": {"name": "Llanowar Elves"}, "synergy_manual": 0.5},
  {"card1": {"name": "Gone"}, "card2": {"name": "Card"}, "synergy_manual": 1.0}
]`), 0o644))

	out, err = run(t, mergeCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "Merged 1 labels into 3 pairs.")
	assert.Contains(t, out, "Gone / Card")

	info, err := os.Stat(cfg.Data.LogPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestNormalize(t *testing.T) {
	dir := setup(t)
	dst := filepath.Join(dir, "out.json")

	_, err := run(t, normalizeCmd(), cfg.Data.MasterPath, "--out", dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"card1": {`)
	assert.NotContains(t, string(data), `"card1": "Sol Ring"`)
}

func TestPrefetchRefusesOffline(t *testing.T) {
	setup(t)
	_, err := run(t, prefetchCmd())
	assert.Error(t, err)
}

func TestInitConfig(t *testing.T) {
	dir := setup(t)
	configPath = filepath.Join(dir, "synlabel.yaml")
	t.Setenv("SYNLABEL_MASTER", "")

	out, err := run(t, initConfigCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+configPath)

	loaded, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "generated_synergies.json"), loaded.Data.MasterPath)
	assert.Equal(t, ":8080", loaded.Server.Addr)

	_, err = run(t, initConfigCmd())
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, initConfigCmd(), "--force")
	assert.NoError(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
}
