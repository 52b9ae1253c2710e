// Package metrics exposes pipeline run metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/insights-engine/insights"
)

// Run status label values.
const (
	StatusSuccess = "success"
	StatusBusy    = "busy"
	StatusNoData  = "no_data"
	StatusSchema  = "schema_mismatch"
	StatusIngest  = "ingestion_error"
	StatusError   = "error"
)

// Collector records pipeline runs. It implements insights.RunObserver.
type Collector struct {
	registry  *prometheus.Registry
	runs      *prometheus.CounterVec
	duration  prometheus.Histogram
	records   prometheus.Gauge
	anomalies prometheus.Gauge
}

// NewCollector registers the pipeline metrics on a fresh registry, along
// with the Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insights",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline trigger attempts by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "insights",
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of completed or failed pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "insights",
			Name:      "records_ingested",
			Help:      "Records ingested by the last successful run.",
		}),
		anomalies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "insights",
			Name:      "anomalies_flagged",
			Help:      "Anomalies flagged by the last successful run.",
		}),
	}
	reg.MustRegister(
		c.runs, c.duration, c.records, c.anomalies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RunFinished implements insights.RunObserver.
func (c *Collector) RunFinished(run insights.Run, err error) {
	status := Status(err)
	c.runs.WithLabelValues(status).Inc()
	if status == StatusBusy {
		return
	}
	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		c.duration.Observe(run.Duration().Seconds())
	}
	if err == nil {
		c.records.Set(float64(run.Records))
		c.anomalies.Set(float64(run.Anomalies))
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Status maps a run error onto the status label.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, insights.ErrBusy):
		return StatusBusy
	case errors.Is(err, insights.ErrNoDataFound):
		return StatusNoData
	case errors.Is(err, insights.ErrSchemaMismatch):
		return StatusSchema
	case errors.Is(err, insights.ErrIngestion):
		return StatusIngest
	default:
		return StatusError
	}
}
