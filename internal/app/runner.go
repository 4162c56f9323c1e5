// Package app drives valuation batches across towns: load feed, normalize,
// compute, persist, publish diagnostics. Towns are independent batches and
// fan out across a bounded worker pool; the engine inside each batch stays
// single-threaded and deterministic.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/PhotisTheo/LotLogic-sub001/internal/cache"
	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/parcel"
	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/valuation"
	"github.com/PhotisTheo/LotLogic-sub001/internal/engine"
	"github.com/PhotisTheo/LotLogic-sub001/internal/ingest"
	"github.com/PhotisTheo/LotLogic-sub001/internal/metrics"
	"github.com/PhotisTheo/LotLogic-sub001/internal/persistence"
)

// TownBatch names one town's assessor feed.
type TownBatch struct {
	ID       int
	Name     string
	FeedPath string
}

// RunnerConfig holds the job-level knobs; engine knobs live on the engine.
type RunnerConfig struct {
	BatchSize        int
	UpsertsPerSecond float64
	Workers          int
	Limit            int  // per-town parcel cap, 0 = no cap (debugging aid)
	DryRun           bool // compute but skip writes
}

// TownResult summarizes one town batch.
type TownResult struct {
	Town          TownBatch
	ParcelCount   int
	ValuedCount   int
	CompCoverage  float64
	ModelFitted   bool
	ModelR2       float64
	RowsPersisted int
	Err           error
}

// RunSummary aggregates a full scheduled run.
type RunSummary struct {
	RunID   string
	Towns   []TownResult
	Rows    int
	Errored int
}

// Runner executes town batches against the storage and cache collaborators.
type Runner struct {
	engine  *engine.Engine
	repo    persistence.Repository
	stats   *cache.StatsCache
	metrics *metrics.Registry
	cfg     RunnerConfig
	loader  func(path string) ([]parcel.RawRecord, error)
}

// NewRunner builds a Runner. stats and reg may be nil when caching or
// diagnostics are disabled (dry runs, tests).
func NewRunner(eng *engine.Engine, repo persistence.Repository, stats *cache.StatsCache, reg *metrics.Registry, cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{
		engine:  eng,
		repo:    repo,
		stats:   stats,
		metrics: reg,
		cfg:     cfg,
		loader:  ingest.ReadCSVFile,
	}
}

// Run values every town in order. Per-town failures are recorded on the
// summary and never abort the run; cancellation is honored at the town
// boundary.
func (r *Runner) Run(ctx context.Context, towns []TownBatch, asOf time.Time) RunSummary {
	summary := RunSummary{
		RunID: uuid.NewString(),
		Towns: make([]TownResult, len(towns)),
	}
	log.Info().Str("run_id", summary.RunID).Int("towns", len(towns)).Time("as_of", asOf).Msg("valuation run starting")

	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup
	for i, town := range towns {
		if ctx.Err() != nil {
			summary.Towns[i] = TownResult{Town: town, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, town TownBatch) {
			defer wg.Done()
			defer func() { <-sem }()
			summary.Towns[i] = r.runTown(ctx, town, asOf, summary.RunID)
		}(i, town)
	}
	wg.Wait()

	for _, result := range summary.Towns {
		if result.Err != nil {
			summary.Errored++
			continue
		}
		summary.Rows += result.RowsPersisted
	}
	log.Info().Str("run_id", summary.RunID).Int("rows", summary.Rows).Int("errored", summary.Errored).Msg("valuation run finished")
	return summary
}

func (r *Runner) runTown(ctx context.Context, town TownBatch, asOf time.Time, runID string) TownResult {
	started := time.Now()
	result := TownResult{Town: town}
	logger := log.With().Str("run_id", runID).Int("town_id", town.ID).Str("town", town.Name).Logger()

	defer func() {
		if r.metrics == nil {
			return
		}
		r.metrics.BatchDuration.Observe(time.Since(started).Seconds())
		outcome := "ok"
		if result.Err != nil {
			outcome = "error"
		}
		r.metrics.BatchesTotal.WithLabelValues(outcome).Inc()
	}()

	raws, err := r.loader(town.FeedPath)
	if err != nil {
		result.Err = err
		logger.Error().Err(err).Msg("failed to load assessor feed")
		return result
	}
	raws = ingest.Dedupe(raws)
	if r.cfg.Limit > 0 && len(raws) > r.cfg.Limit {
		raws = raws[:r.cfg.Limit]
	}

	records := r.engine.Normalize(raws, asOf)
	if len(records) == 0 {
		logger.Warn().Int("raw_rows", len(raws)).Msg("no usable parcel records after cleaning")
	}

	valuations, model, stats := r.engine.Compute(records, asOf)
	result.ParcelCount = len(valuations)

	withComps := 0
	for _, val := range valuations {
		if val.MarketValue != nil {
			result.ValuedCount++
		}
		if val.ComparableCount > 0 {
			withComps++
		}
	}
	if result.ParcelCount > 0 {
		result.CompCoverage = float64(withComps) / float64(result.ParcelCount)
	}
	if model != nil {
		result.ModelFitted = true
		result.ModelR2 = model.R2
	}

	statsRow := persistence.TownStatsRow{
		TownID:         town.ID,
		GlobalPSF:      stats.GlobalPSF,
		SaleCount:      stats.SaleCount,
		ParcelCount:    result.ParcelCount,
		ValuedCount:    result.ValuedCount,
		CompCoverage:   result.CompCoverage,
		ModelAvailable: result.ModelFitted,
		ModelVersion:   engine.ModelVersion,
		RunID:          runID,
		ComputedAt:     asOf,
	}
	if model != nil {
		r2 := model.R2
		statsRow.ModelR2 = &r2
	}

	if !r.cfg.DryRun {
		persisted, err := r.persistValuations(ctx, town.ID, runID, asOf, valuations)
		if err != nil {
			result.Err = err
			logger.Error().Err(err).Msg("failed to persist valuations")
			return result
		}
		result.RowsPersisted = persisted

		if err := r.repo.TownStats.Upsert(ctx, statsRow); err != nil {
			result.Err = fmt.Errorf("failed to persist town stats: %w", err)
			logger.Error().Err(result.Err).Msg("town stats write failed")
			return result
		}
	}

	if r.stats != nil {
		if err := r.stats.Put(ctx, statsRow); err != nil {
			// cache is advisory; the DB row is authoritative
			logger.Warn().Err(err).Msg("stats cache write skipped")
		}
	}
	r.publishMetrics(town, result, stats.GlobalPSF)

	logger.Info().
		Int("parcels", result.ParcelCount).
		Int("valued", result.ValuedCount).
		Float64("comp_coverage", result.CompCoverage).
		Bool("model", result.ModelFitted).
		Dur("elapsed", time.Since(started)).
		Msg("town batch complete")
	return result
}

// persistValuations writes rows in chunks of BatchSize, pacing chunk writes
// with a rate limiter so a municipal-scale run does not saturate storage.
func (r *Runner) persistValuations(ctx context.Context, townID int, runID string, asOf time.Time, valuations []valuation.Valuation) (int, error) {
	if len(valuations) == 0 {
		return 0, nil
	}
	limiter := rate.NewLimiter(rate.Limit(r.cfg.UpsertsPerSecond), 1)

	persisted := 0
	for start := 0; start < len(valuations); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(valuations) {
			end = len(valuations)
		}

		rows := make([]persistence.ParcelValuationRow, 0, end-start)
		for _, val := range valuations[start:end] {
			rows = append(rows, buildRow(townID, runID, asOf, val))
		}

		if err := limiter.Wait(ctx); err != nil {
			return persisted, fmt.Errorf("persist cancelled: %w", err)
		}
		if err := r.repo.Valuations.UpsertBatch(ctx, rows); err != nil {
			return persisted, err
		}
		persisted += len(rows)
		if r.metrics != nil {
			r.metrics.RowsPersisted.Add(float64(len(rows)))
		}
	}
	return persisted, nil
}

// buildRow converts an engine valuation into its persisted form. Unvalued
// subjects are persisted too: the null market value is what the coverage
// diagnostics count.
func buildRow(townID int, runID string, asOf time.Time, val valuation.Valuation) persistence.ParcelValuationRow {
	payload := map[string]interface{}{
		"comps":      val.Comparables,
		"inputs":     val.Inputs,
		"provenance": val.Provenance,
	}
	return persistence.ParcelValuationRow{
		TownID:             townID,
		LocID:              val.LocID,
		MarketValue:        val.MarketValue,
		MarketValuePerSqft: val.MarketValuePerSqft,
		ComparableValue:    val.ComparableValue,
		ComparableCount:    val.ComparableCount,
		ComparableAvgPSF:   val.ComparableAvgPSF,
		HedonicValue:       val.HedonicValue,
		HedonicR2:          val.HedonicR2,
		Confidence:         val.Confidence,
		Methodology:        engine.Methodology,
		ModelVersion:       engine.ModelVersion,
		RunID:              runID,
		ValuedAt:           asOf,
		Payload:            payload,
	}
}

func (r *Runner) publishMetrics(town TownBatch, result TownResult, globalPSF *float64) {
	if r.metrics == nil {
		return
	}
	label := town.Name
	if label == "" {
		label = fmt.Sprintf("%d", town.ID)
	}
	r.metrics.ParcelsValued.WithLabelValues(label).Set(float64(result.ValuedCount))
	r.metrics.CompCoverage.WithLabelValues(label).Set(result.CompCoverage)
	available := 0.0
	if result.ModelFitted {
		available = 1.0
	}
	r.metrics.ModelAvailable.WithLabelValues(label).Set(available)
	r.metrics.ModelR2.WithLabelValues(label).Set(result.ModelR2)
	if globalPSF != nil {
		r.metrics.GlobalPSF.WithLabelValues(label).Set(*globalPSF)
	}
}
