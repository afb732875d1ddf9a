package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbaille/synergy/internal/assets"
	"github.com/pbaille/synergy/internal/catalog"
	"github.com/pbaille/synergy/internal/config"
	"github.com/pbaille/synergy/internal/dataset"
	"github.com/pbaille/synergy/internal/domain"
	"github.com/pbaille/synergy/internal/fetcher"
	"github.com/pbaille/synergy/internal/merge"
	"github.com/pbaille/synergy/internal/session"
	"github.com/pbaille/synergy/internal/store"
)

// workspace bundles everything a labeling front end needs.
type workspace struct {
	id      string
	session *session.Controller
	catalog *catalog.Catalog
	assets  *assets.Service
	cache   *store.Store
	logger  *zap.Logger
}

func (w *workspace) Close() {
	if w.cache != nil {
		w.cache.Close()
	}
}

// openWorkspace runs the recovery merge once and starts a session on the
// resulting master.
func openWorkspace(cfg *config.Config, logger *zap.Logger) (*workspace, error) {
	id := uuid.New().String()
	logger = logger.With(zap.String("session", id))

	masterFile := dataset.Open(cfg.Data.MasterPath)
	logFile := dataset.Open(cfg.Data.LogPath)

	report, err := merge.NewManager(masterFile, logFile, logger).Run()
	if err != nil {
		return nil, fmt.Errorf("recover previous session: %w", err)
	}
	if err := logFile.Touch(); err != nil {
		return nil, err
	}

	w := &workspace{
		id:      id,
		session: session.New(report.Master, logFile),
		catalog: catalog.Load(cfg.Data.CardsPath, logger),
		logger:  logger,
	}
	w.assets = newAssets(cfg, w, logger)

	n, total := w.session.Position()
	labeled, size := w.session.Progress()
	logger.Info("session started",
		zap.Int("entry", n),
		zap.Int("working_set", total),
		zap.Int("labeled", labeled),
		zap.Int("master", size),
		zap.Bool("recovered", report.Merged),
	)
	return w, nil
}

// newAssets wires the provider. The image cache is optional: when it cannot
// be opened images are fetched on every display.
func newAssets(cfg *config.Config, w *workspace, logger *zap.Logger) *assets.Service {
	var cache assets.Cache
	if cfg.Assets.CacheDB != "" {
		s, err := store.New(cfg.Assets.CacheDB)
		if err != nil {
			logger.Warn("image cache disabled", zap.String("path", cfg.Assets.CacheDB), zap.Error(err))
		} else {
			w.cache = s
			cache = s
		}
	}

	var source assets.ImageSource
	if !cfg.Assets.Offline {
		source = fetcher.New(cfg.GetAssetTimeout(), cfg.Assets.UserAgent)
	}
	return assets.New(w.catalog, cache, source, logger)
}

// previewMaster returns master as it would look after recovery, without
// writing anything. Read-only commands use it.
func previewMaster(cfg *config.Config) (master []domain.Pair, pending int, err error) {
	master, err = dataset.Open(cfg.Data.MasterPath).Load()
	if err != nil && !errors.Is(err, dataset.ErrNotExist) {
		return nil, 0, err
	}

	log, err := dataset.Open(cfg.Data.LogPath).Load()
	if err != nil {
		if errors.Is(err, dataset.ErrNotExist) {
			return master, 0, nil
		}
		return nil, 0, fmt.Errorf("load transient log: %w", err)
	}
	return merge.Reconcile(master, log).Master, len(log), nil
}
