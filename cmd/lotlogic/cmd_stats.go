package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PhotisTheo/LotLogic-sub001/internal/cache"
	"github.com/PhotisTheo/LotLogic-sub001/internal/config"
	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence/postgres"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-town valuation statistics and coverage",
		Long: `Reports the latest per-town market statistics (global PSF, sale count,
model fit) and estimator coverage. Reads the stats cache first and falls back
to the database.`,
		RunE: runStats,
	}
	cmd.Flags().String("config", "", "Path to YAML config file")
	cmd.Flags().Int("town-id", 0, "Limit the report to one town")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	townID, _ := cmd.Flags().GetInt("town-id")

	statsCache := cache.NewStatsCache(cache.NewAuto(), cfg.Cache.TTL)
	if townID > 0 {
		if row := statsCache.Get(cmd.Context(), townID); row != nil {
			log.Debug().Int("town_id", townID).Msg("stats served from cache")
			printStatsRow(*row)
			return nil
		}
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = os.Getenv("LOTLOGIC_PG_DSN")
	}
	if cfg.Storage.DSN == "" {
		return fmt.Errorf("no cached stats and storage.dsn is not configured")
	}
	db, err := postgres.Connect(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	statsRepo := postgres.NewTownStatsRepo(db, cfg.Storage.QueryTimeout)
	valuationRepo := postgres.NewValuationRepo(db, cfg.Storage.QueryTimeout)

	var rows []persistence.TownStatsRow
	if townID > 0 {
		row, err := statsRepo.Get(cmd.Context(), townID)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("no stats recorded for town %d", townID)
		}
		rows = []persistence.TownStatsRow{*row}
	} else {
		rows, err = statsRepo.List(cmd.Context())
		if err != nil {
			return err
		}
	}

	for _, row := range rows {
		printStatsRow(row)
		coverage, err := valuationRepo.Coverage(cmd.Context(), row.TownID)
		if err != nil {
			log.Warn().Err(err).Int("town_id", row.TownID).Msg("coverage query failed")
			continue
		}
		fmt.Printf("  coverage: %d/%d valued, %d with comps, %d with hedonic, mean confidence %.2f\n",
			coverage.ValuedCount, coverage.ParcelCount, coverage.WithComps,
			coverage.WithHedonic, coverage.MeanConfidence)
	}
	return nil
}

func printStatsRow(row persistence.TownStatsRow) {
	psf := "n/a"
	if row.GlobalPSF != nil {
		psf = fmt.Sprintf("$%.2f", *row.GlobalPSF)
	}
	r2 := "n/a"
	if row.ModelR2 != nil {
		r2 = fmt.Sprintf("%.2f", *row.ModelR2)
	}
	fmt.Printf("town %d: %d parcels, %d valued, %d recent sales, global psf %s, model r2 %s (%s, run %s)\n",
		row.TownID, row.ParcelCount, row.ValuedCount, row.SaleCount, psf, r2,
		row.ModelVersion, row.RunID)
}
