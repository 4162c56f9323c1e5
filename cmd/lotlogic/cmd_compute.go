package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/PhotisTheo/LotLogic-sub001/internal/app"
	"github.com/PhotisTheo/LotLogic-sub001/internal/cache"
	"github.com/PhotisTheo/LotLogic-sub001/internal/config"
	"github.com/PhotisTheo/LotLogic-sub001/internal/engine"
	"github.com/PhotisTheo/LotLogic-sub001/internal/metrics"
	"github.com/PhotisTheo/LotLogic-sub001/internal/ops"
	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence/postgres"
)

// townsManifest is the YAML file naming each town feed for a run.
type townsManifest struct {
	Towns []struct {
		ID   int    `yaml:"id"`
		Name string `yaml:"name"`
		Feed string `yaml:"feed"`
	} `yaml:"towns"`
}

func newComputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Precompute market values for one or more towns",
		Long: `Runs the full valuation pipeline per town: load the assessor feed,
normalize records, fit the hedonic model, select comparables, blend values,
and upsert one row per parcel keyed by (town, loc_id).`,
		RunE: runCompute,
	}

	cmd.Flags().String("config", "", "Path to YAML config file (defaults apply when omitted)")
	cmd.Flags().String("towns", "", "Path to towns manifest YAML (id/name/feed per town)")
	cmd.Flags().Int("town-id", 0, "Single-town mode: town id (requires --feed)")
	cmd.Flags().String("feed", "", "Single-town mode: assessor feed CSV path")
	cmd.Flags().Int("lookback-days", 0, "Override sale lookback window in days")
	cmd.Flags().Int("target-comps", 0, "Override desired comparables per parcel")
	cmd.Flags().Int("batch-size", 0, "Override rows per upsert chunk")
	cmd.Flags().Int("limit", 0, "Debugging: cap parcels per town")
	cmd.Flags().Bool("dry-run", false, "Compute valuations but skip all writes")
	cmd.Flags().String("metrics-addr", "", "Serve /health and /metrics on this address during the run")

	return cmd
}

func runCompute(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyOverrides(cmd, &cfg)

	cmd.Flags().Visit(func(f *pflag.Flag) {
		log.Debug().Str("flag", f.Name).Str("value", f.Value.String()).Msg("flag set")
	})

	towns, err := resolveTowns(cmd)
	if err != nil {
		return err
	}
	if len(towns) == 0 {
		return fmt.Errorf("no towns to process: pass --towns or --town-id with --feed")
	}

	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	limit, _ := cmd.Flags().GetInt("limit")

	var repo persistence.Repository
	if !dryRun {
		if cfg.Storage.DSN == "" {
			cfg.Storage.DSN = os.Getenv("LOTLOGIC_PG_DSN")
		}
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required unless --dry-run is set")
		}
		db, err := postgres.Connect(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(cmd.Context(), db, cfg.Storage.QueryTimeout); err != nil {
			return err
		}
		repo = persistence.Repository{
			Valuations: postgres.NewValuationRepo(db, cfg.Storage.QueryTimeout),
			TownStats:  postgres.NewTownStatsRepo(db, cfg.Storage.QueryTimeout),
		}
	}

	reg := metrics.NewRegistry()
	statsCache := cache.NewStatsCache(cache.NewAuto(), cfg.Cache.TTL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		serverCfg := ops.DefaultServerConfig()
		serverCfg.Addr = addr
		server := ops.NewServer(serverCfg, reg, version)
		go func() {
			if err := server.Start(); err != nil {
				log.Warn().Err(err).Msg("diagnostics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	runner := app.NewRunner(eng, repo, statsCache, reg, app.RunnerConfig{
		BatchSize:        cfg.Storage.BatchSize,
		UpsertsPerSecond: cfg.Storage.UpsertsPerSecond,
		Workers:          cfg.Workers,
		Limit:            limit,
		DryRun:           dryRun,
	})

	summary := runner.Run(ctx, towns, time.Now().UTC())
	for _, result := range summary.Towns {
		if result.Err != nil {
			log.Error().Err(result.Err).Int("town_id", result.Town.ID).Msg("town batch failed")
		}
	}
	if dryRun {
		log.Info().Msg("dry-run complete; no data was persisted")
	} else {
		log.Info().Int("rows", summary.Rows).Msg("run persisted")
	}
	if summary.Errored > 0 {
		return fmt.Errorf("%d of %d town batches failed", summary.Errored, len(summary.Towns))
	}
	return nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetInt("lookback-days"); v > 0 {
		cfg.Engine.LookbackDays = v
	}
	if v, _ := cmd.Flags().GetInt("target-comps"); v > 0 {
		cfg.Engine.TargetCompCount = v
	}
	if v, _ := cmd.Flags().GetInt("batch-size"); v > 0 {
		cfg.Storage.BatchSize = v
	}
}

func resolveTowns(cmd *cobra.Command) ([]app.TownBatch, error) {
	manifestPath, _ := cmd.Flags().GetString("towns")
	if manifestPath != "" {
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read towns manifest %s: %w", manifestPath, err)
		}
		var manifest townsManifest
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse towns manifest %s: %w", manifestPath, err)
		}
		towns := make([]app.TownBatch, 0, len(manifest.Towns))
		for _, t := range manifest.Towns {
			if t.ID <= 0 || t.Feed == "" {
				return nil, fmt.Errorf("towns manifest entries need a positive id and a feed path")
			}
			towns = append(towns, app.TownBatch{ID: t.ID, Name: t.Name, FeedPath: t.Feed})
		}
		return towns, nil
	}

	townID, _ := cmd.Flags().GetInt("town-id")
	feed, _ := cmd.Flags().GetString("feed")
	if townID > 0 && feed != "" {
		return []app.TownBatch{{ID: townID, FeedPath: feed}}, nil
	}
	return nil, nil
}
