// Command hexgrid generates or loads a hex grid and classifies its terrain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hexgrid/internal/api"
	"github.com/talgya/hexgrid/internal/config"
	"github.com/talgya/hexgrid/internal/engine"
	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/persistence"
	"github.com/talgya/hexgrid/internal/terrain"
	"github.com/talgya/hexgrid/internal/world"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("HEXGRID_CONFIG"), "path to a YAML config file")
	small := flag.Bool("small", false, "start from the small test grid instead of the defaults; -config applies on top")
	once := flag.Bool("once", false, "exit after one run instead of waiting for restarts")
	flag.Parse()

	cfg := config.Default()
	if *small {
		cfg = config.SmallTest()
	}
	if *configPath != "" {
		var err error
		cfg, err = config.LoadOver(cfg, *configPath)
		if err != nil {
			slog.Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
		slog.Info("configuration loaded", "path", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("hexgrid stopped", "error", err, "kind", fault.Kind(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, once bool) error {
	opts := engine.Options{
		Mode:     cfg.Mode,
		Params:   cfg.Grid,
		Limits:   cfg.Limits,
		Settings: cfg.Classify,
	}

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		var err error
		db, err = persistence.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Database.Path)

		if last, err := db.LatestRun(); err == nil {
			slog.Info("previous run", "run", last.ID, "state", last.State,
				"progress", fmt.Sprintf("%.2f", last.Progress), "updated", humanize.Time(last.Updated))
		}
		if cells, err := db.GetMeta("grid_cells"); err == nil {
			savedAt, _ := db.GetMeta("results_saved_at")
			slog.Info("saved grid found", "cells", cells, "results_saved_at", savedAt)
		}
		opts.Store = db
	}

	// ── Records ───────────────────────────────────────────────────────
	if cfg.Mode == engine.ModeLoad {
		switch {
		case cfg.Bundle.Source != "":
			b, err := persistence.FetchBundle(ctx, cfg.Bundle.Source, cfg.Bundle.Dir)
			if err != nil {
				return err
			}
			opts.Records = b
		case cfg.Bundle.Dir != "":
			opts.Records = persistence.Bundle{Dir: cfg.Bundle.Dir}
		case db != nil:
			opts.Records = db
		default:
			return fmt.Errorf("load mode without records: %w", fault.ErrConfiguration)
		}
	}

	// ── Workflow ──────────────────────────────────────────────────────
	src := terrain.NewNoise(cfg.Terrain)
	wf, err := engine.New(opts, src)
	if err != nil {
		return err
	}

	var rec engine.Recorder
	if db != nil {
		rec = db
	}
	driver := engine.NewDriver(wf, rec)
	if db != nil {
		if g, err := db.LoadClassified(); err == nil {
			driver.Preload(g)
		} else if !errors.Is(err, fault.ErrMissingResource) {
			slog.Warn("saved classification unusable", "error", err)
		}
	}
	if cfg.Bundle.Export != "" {
		driver.OnDone = func(g *world.Grid) {
			if err := persistence.WriteBundle(cfg.Bundle.Export, g.Records()); err != nil {
				slog.Error("bundle export failed", "dir", cfg.Bundle.Export, "error", err)
				return
			}
			slog.Info("bundle exported", "dir", cfg.Bundle.Export, "cells", humanize.Comma(int64(g.Len())))
		}
	}

	slog.Info("workflow ready",
		"run", wf.ID(),
		"mode", cfg.Mode,
		"cells", humanize.Comma(int64(world.CellCount(cfg.Grid.GridRange))),
		"count_limit", cfg.Limits.CountLimit,
		"rate", cfg.Limits.Rate,
	)

	if once {
		return driver.Run(ctx)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.API.Addr != "" {
		adminKey := os.Getenv("HEXGRID_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("HEXGRID_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		srv := (&api.Server{
			Runner:   driver,
			Runs:     runHistory(db),
			Addr:     cfg.API.Addr,
			AdminKey: adminKey,
			MapRate:  cfg.API.MapRate,
		}).Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP shutdown", "error", err)
			}
		}()
	}

	err = driver.Serve(ctx)
	slog.Info("shutting down", "run", wf.ID(), "state", wf.State())
	return err
}

// runHistory keeps a nil database from becoming a non-nil interface.
func runHistory(db *persistence.DB) api.RunHistory {
	if db == nil {
		return nil
	}
	return db
}
