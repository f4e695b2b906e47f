// Package metrics records conversion counters and writes them in the
// Prometheus text format for a node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	registry *prometheus.Registry

	modelsTotal   *prometheus.CounterVec
	manifestOps   *prometheus.GaugeVec
	styleDuration *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		modelsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ortconvert",
				Subsystem: "conversion",
				Name:      "models_total",
				Help:      "Models processed per optimization style and pass, by result",
			},
			[]string{"style", "pass", "result"},
		),
		manifestOps: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ortconvert",
				Subsystem: "manifest",
				Name:      "operators",
				Help:      "Operators listed in the generated config file",
			},
			[]string{"style", "level"},
		),
		styleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ortconvert",
				Subsystem: "conversion",
				Name:      "style_duration_seconds",
				Help:      "Wall time of one optimization style iteration",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"style"},
		),
	}
	r.registry.MustRegister(r.modelsTotal, r.manifestOps, r.styleDuration)

	return r
}

// ObservePass records the outcome of one conversion pass.
func (r *Recorder) ObservePass(style, pass string, converted, failed int) {
	if r == nil {
		return
	}
	r.modelsTotal.WithLabelValues(style, pass, "converted").Add(float64(converted))
	r.modelsTotal.WithLabelValues(style, pass, "failed").Add(float64(failed))
}

func (r *Recorder) ObserveManifest(style, level string, operators int) {
	if r == nil {
		return
	}
	r.manifestOps.WithLabelValues(style, level).Set(float64(operators))
}

func (r *Recorder) ObserveStyle(style string, d time.Duration) {
	if r == nil {
		return
	}
	r.styleDuration.WithLabelValues(style).Observe(d.Seconds())
}

// WriteTextfile atomically writes all metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
