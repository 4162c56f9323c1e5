// Package metrics exposes the batch job's operational diagnostics as
// Prometheus metrics: estimator coverage per town, model availability, and
// run throughput.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the valuation job's Prometheus collectors on a dedicated
// registry so tests and the ops server see exactly this set.
type Registry struct {
	registry *prometheus.Registry

	ParcelsValued  *prometheus.GaugeVec
	CompCoverage   *prometheus.GaugeVec
	ModelAvailable *prometheus.GaugeVec
	ModelR2        *prometheus.GaugeVec
	GlobalPSF      *prometheus.GaugeVec

	BatchDuration prometheus.Histogram
	BatchesTotal  *prometheus.CounterVec
	RowsPersisted prometheus.Counter
}

// NewRegistry creates the job's metrics registry.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.ParcelsValued = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lotlogic_parcels_valued",
		Help: "Parcels with a non-null market value in the latest run, by town",
	}, []string{"town"})

	r.CompCoverage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lotlogic_comp_coverage_ratio",
		Help: "Fraction of parcels with at least one comparable sale, by town",
	}, []string{"town"})

	r.ModelAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lotlogic_hedonic_model_available",
		Help: "1 when the latest run fit a hedonic model for the town, else 0",
	}, []string{"town"})

	r.ModelR2 = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lotlogic_hedonic_model_r2",
		Help: "Training R-squared of the latest hedonic fit, by town",
	}, []string{"town"})

	r.GlobalPSF = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lotlogic_global_psf",
		Help: "Global median price per square foot in the latest run, by town",
	}, []string{"town"})

	r.BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lotlogic_batch_duration_seconds",
		Help:    "Wall time of one town batch, end to end",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	r.BatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotlogic_batches_total",
		Help: "Completed town batches by result",
	}, []string{"result"})

	r.RowsPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotlogic_rows_persisted_total",
		Help: "Valuation rows written to storage",
	})

	r.registry.MustRegister(
		r.ParcelsValued, r.CompCoverage, r.ModelAvailable, r.ModelR2,
		r.GlobalPSF, r.BatchDuration, r.BatchesTotal, r.RowsPersisted,
	)
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for tests.
func (r *Registry) Gather() prometheus.Gatherer { return r.registry }
