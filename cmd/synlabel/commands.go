package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/synergy/internal/api"
	"github.com/pbaille/synergy/internal/catalog"
	"github.com/pbaille/synergy/internal/config"
	"github.com/pbaille/synergy/internal/dataset"
	"github.com/pbaille/synergy/internal/domain"
	"github.com/pbaille/synergy/internal/merge"
	"github.com/pbaille/synergy/internal/session"
	"github.com/pbaille/synergy/internal/tui"
)

func labelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "label",
		Short: "Label unlabeled pairs in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cfg, logger)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			p := tea.NewProgram(tui.New(ctx, w.session, w.catalog, w.assets), tea.WithAltScreen())
			final, err := p.Run()
			if err != nil {
				return fmt.Errorf("run labeler: %w", err)
			}
			if m, ok := final.(tui.Model); ok && m.Err() != nil {
				w.logger.Error("label write failed, stopping", zap.Error(m.Err()))
				return m.Err()
			}

			labeled, size := w.session.Progress()
			printf(cmd, "Labeled this session: %d\n", len(w.session.Log()))
			printf(cmd, "Labeled pairs: %d / %d\n", labeled, size)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server over one session",
		Long: `Runs the recovery merge, starts one session and serves it over HTTP.

If a label cannot be written to the recovery log the request fails with 500,
the label is rolled back and the server keeps running; the error is logged.
The terminal labeler stops instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cfg, logger)
			if err != nil {
				return err
			}
			// Note: don't defer w.Close() as server runs indefinitely

			if addr == "" {
				addr = cfg.Server.Addr
			}
			server := api.New(w.session, w.catalog, w.assets, w.id, addr, w.logger)
			return server.Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (default from config)")
	return cmd
}

func mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Fold the recovery log into the master dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := merge.NewManager(
				dataset.Open(cfg.Data.MasterPath),
				dataset.Open(cfg.Data.LogPath),
				logger,
			).Run()
			if err != nil {
				return err
			}

			if !report.LogFound {
				printf(cmd, "No recovery log, nothing to merge.\n")
				return nil
			}
			if report.Quarantined != "" {
				printf(cmd, "Recovery log was unreadable and moved to %s; nothing merged.\n", report.Quarantined)
				return nil
			}
			if !report.Merged {
				printf(cmd, "Recovery log is empty, nothing to merge.\n")
				return nil
			}
			printf(cmd, "Merged %d labels into %d pairs.\n", report.Applied, len(report.Master))
			if len(report.Orphans) > 0 {
				printf(cmd, "Dropped %d labels with no matching pair:\n", len(report.Orphans))
				for _, k := range report.Orphans {
					printf(cmd, "  - %s\n", k)
				}
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show labeling progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			master, pending, err := previewMaster(cfg)
			if err != nil {
				return err
			}

			counts := make(map[domain.Label]int)
			labeled := 0
			for _, p := range master {
				if p.Manual != nil {
					counts[*p.Manual]++
					labeled++
				}
			}

			printf(cmd, "Pairs:     %d\n", len(master))
			printf(cmd, "Labeled:   %d\n", labeled)
			printf(cmd, "Unlabeled: %d\n", len(master)-labeled)
			if pending > 0 {
				printf(cmd, "Pending in recovery log: %d\n", pending)
			}
			if labeled == 0 {
				return nil
			}

			printf(cmd, "\nDistribution:\n")
			for _, l := range domain.Labels() {
				printf(cmd, "  %-14s %5s  %d\n", l.Caption(), l, counts[l])
			}
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [entry]",
		Short: "Print one entry of the working set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, _, err := previewMaster(cfg)
			if err != nil {
				return err
			}

			ctrl := session.New(master, nil)
			if err := ctrl.JumpToInput(args[0]); err != nil {
				if errors.Is(err, session.ErrInvalidIndex) && ctrl.Len() == 0 {
					return session.ErrEmpty
				}
				return err
			}
			cur, err := ctrl.Current()
			if err != nil {
				return err
			}

			n, total := ctrl.Position()
			printf(cmd, "Entry %d / %d\n", n, total)

			cat := catalog.Load(cfg.Data.CardsPath, logger)
			for _, ref := range []domain.CardRef{cur.Card1, cur.Card2} {
				card, ok := cat.Resolve(ref.Name)
				if !ok {
					printf(cmd, "\n%s (not found in catalog)\n", ref.Name)
					continue
				}
				printf(cmd, "\nName: %s\nType: %s\nText: %s\n", card.Name, card.TypeLine, truncate(card.OracleText, 300))
				if card.Power != nil && card.Toughness != nil {
					printf(cmd, "P/T: %s / %s\n", *card.Power, *card.Toughness)
				}
			}

			pred := "N/A"
			if cur.Predicted != nil {
				pred = strconv.FormatFloat(*cur.Predicted, 'f', 2, 64)
			}
			printf(cmd, "\nPredicted synergy: %s\n", pred)
			return nil
		},
	}
}

func normalizeCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Rewrite a dataset in canonical form",
		Long: `Reads a dataset, accepting the legacy form where card1/card2 are bare
names, and writes it back with {"name": ...} card objects. Every other field
is kept. Defaults to the configured master dataset.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cfg.Data.MasterPath
			if len(args) == 1 {
				in = args[0]
			}
			if out == "" {
				out = in
			}

			pairs, err := dataset.Open(in).Load()
			if err != nil {
				return err
			}
			if err := dataset.Open(out).Save(pairs); err != nil {
				return err
			}
			logger.Info("dataset normalized", zap.String("in", in), zap.String("out", out), zap.Int("pairs", len(pairs)))
			printf(cmd, "Wrote %d pairs to %s\n", len(pairs), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: overwrite input)")
	return cmd
}

func prefetchCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "prefetch",
		Short: "Download and cache images for the working set",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Assets.Offline {
				return fmt.Errorf("prefetch needs network access (assets.offline is set)")
			}

			master, _, err := previewMaster(cfg)
			if err != nil {
				return err
			}

			w := &workspace{catalog: catalog.Load(cfg.Data.CardsPath, logger), logger: logger}
			w.assets = newAssets(cfg, w, logger)
			defer w.Close()

			seen := make(map[string]bool)
			var names []string
			for _, p := range session.New(master, nil).Working() {
				for _, name := range []string{p.Card1.Name, p.Card2.Name} {
					if !seen[name] {
						seen[name] = true
						names = append(names, name)
					}
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			printf(cmd, "Prefetching %d cards...\n", len(names))
			fetched, failed := w.assets.Warm(ctx, names, workers)
			printf(cmd, "Downloaded %d, failed %d, already cached %d\n", fetched, failed, len(names)-fetched-failed)
			if w.cache != nil {
				if n, err := w.cache.CountAssets(); err == nil {
					printf(cmd, "Cache holds %d images\n", n)
				}
			}
			return ctx.Err()
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "parallel downloads")
	return cmd
}

func initConfigCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config %s already exists (use --force to overwrite)", configPath)
			}
			if err := config.DefaultConfig().Save(configPath); err != nil {
				return err
			}
			printf(cmd, "Wrote %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}
