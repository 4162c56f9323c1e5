// Package engine drives the parcel valuation pipeline across a full batch:
// one hedonic fit per batch, then an independent comp-selection and blend
// pass per subject.
package engine

import (
	"fmt"
	"time"

	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/comps"
	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/hedonic"
	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/parcel"
	"github.com/PhotisTheo/LotLogic-sub001/internal/domain/valuation"
)

// ModelVersion labels the fitting approach on persisted rows so downstream
// consumers can tell which engine produced a number.
const ModelVersion = "hybrid-v1.0"

// Methodology is the persisted methodology tag for this engine.
const Methodology = "hybrid_comps_hedonic"

// Operational floors. Knobs below these are clamped rather than rejected;
// zero or negative knobs are configuration errors.
const (
	minLookbackDays   = 30
	minTargetComps    = 3
	minRegularization = 0.05
)

// Config holds the engine's tuning knobs. Zero values for Regularization are
// replaced with the default; LookbackDays and TargetCompCount must be
// positive.
type Config struct {
	LookbackDays    int     `yaml:"lookback_days"`
	TargetCompCount int     `yaml:"target_comp_count"`
	Regularization  float64 `yaml:"regularization"`
}

// Engine computes parcel valuations for one batch at a time. It holds no
// mutable state: every Compute call owns its model and statistics, so batches
// for different towns can run concurrently on separate Engine values or share
// one.
type Engine struct {
	lookbackDays    int
	targetCompCount int
	regularization  float64
}

// New validates the configuration eagerly, before any batch work begins.
func New(cfg Config) (*Engine, error) {
	if cfg.LookbackDays <= 0 {
		return nil, fmt.Errorf("lookback_days must be positive, got %d", cfg.LookbackDays)
	}
	if cfg.TargetCompCount <= 0 {
		return nil, fmt.Errorf("target_comp_count must be positive, got %d", cfg.TargetCompCount)
	}
	if cfg.Regularization < 0 {
		return nil, fmt.Errorf("regularization must not be negative, got %f", cfg.Regularization)
	}

	e := &Engine{
		lookbackDays:    cfg.LookbackDays,
		targetCompCount: cfg.TargetCompCount,
		regularization:  cfg.Regularization,
	}
	if e.lookbackDays < minLookbackDays {
		e.lookbackDays = minLookbackDays
	}
	if e.targetCompCount < minTargetComps {
		e.targetCompCount = minTargetComps
	}
	if e.regularization == 0 {
		e.regularization = hedonic.DefaultRegularization
	}
	if e.regularization < minRegularization {
		e.regularization = minRegularization
	}
	return e, nil
}

// Normalize is the engine's cleaning pass over raw feed rows.
func (e *Engine) Normalize(raws []parcel.RawRecord, asOf time.Time) []parcel.CleanRecord {
	return parcel.Normalize(raws, asOf)
}

// Compute values every record in the batch. The hedonic model and market
// statistics are fit once over the recent-sales working set; each subject is
// then valued independently against the same pool with itself excluded.
// Output preserves input order. Per-subject failures degrade to a nil market
// value; Compute never fails a batch.
//
// asOf is the reference "now" for sale recency. Two calls with identical
// records and asOf produce identical output.
func (e *Engine) Compute(records []parcel.CleanRecord, asOf time.Time) ([]valuation.Valuation, *hedonic.Model, hedonic.MarketStats) {
	recentSales := comps.RecentSales(records, asOf, e.lookbackDays)
	stats := hedonic.BuildStats(recentSales)
	model := hedonic.Fit(recentSales, stats, e.regularization)

	valuations := make([]valuation.Valuation, 0, len(records))
	for _, subject := range records {
		comparables := comps.Select(subject, recentSales, asOf, e.lookbackDays, e.targetCompCount)
		valuations = append(valuations, valuation.Value(subject, comparables, model, stats, e.targetCompCount))
	}
	return valuations, model, stats
}

// LookbackDays exposes the effective (possibly floored) lookback window.
func (e *Engine) LookbackDays() int { return e.lookbackDays }

// TargetCompCount exposes the effective comp target.
func (e *Engine) TargetCompCount() int { return e.targetCompCount }
