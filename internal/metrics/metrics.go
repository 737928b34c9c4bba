// Package metrics exposes the pipeline's Prometheus collectors, grounded
// on the teacher's own promauto-style GaugeVec fields (prometheus.go) but
// cut down to the pulse-dispatch domain: per-decoder outcome counters and
// pipeline-wide gauges instead of the teacher's noise-floor/session set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the pipeline registers.
type Metrics struct {
	// DecodeOutcomes counts DecodeResult outcomes per decoder, labeled
	// "decoder" and "result" (ok, abort_early, abort_length, fail_sanity,
	// fail_mic, disabled).
	DecodeOutcomes *prometheus.CounterVec

	// PackagesDispatched counts packages the Dispatcher fanned out to the
	// registry, labeled by modulation detected upstream.
	PackagesDispatched *prometheus.CounterVec

	// RecordsDeduplicated counts records the dedup LRU suppressed as
	// repeats, labeled "decoder".
	RecordsDeduplicated *prometheus.CounterVec

	// RecordsEmitted counts records forwarded to sinks after dedup,
	// labeled "decoder".
	RecordsEmitted *prometheus.CounterVec

	// PulsesDetected holds the pulse count of the most recently
	// dispatched package.
	PulsesDetected prometheus.Gauge

	// NoiseFloorDb tracks the detector's current noise floor estimate.
	NoiseFloorDb prometheus.Gauge
}

// New registers and returns a fresh collector set against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecodeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsepipe_decode_outcomes_total",
			Help: "Count of decode outcomes per decoder and result code.",
		}, []string{"decoder", "result"}),
		PackagesDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsepipe_packages_dispatched_total",
			Help: "Count of finalized pulse packages fanned out to the registry.",
		}, []string{"modulation"}),
		RecordsDeduplicated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsepipe_records_deduplicated_total",
			Help: "Count of records suppressed as repeats by the dedup LRU.",
		}, []string{"decoder"}),
		RecordsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsepipe_records_emitted_total",
			Help: "Count of records forwarded to sinks after dedup.",
		}, []string{"decoder"}),
		PulsesDetected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pulsepipe_package_pulses",
			Help: "Number of pulses in the most recently finalized package.",
		}),
		NoiseFloorDb: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pulsepipe_noise_floor_db",
			Help: "Current adaptive noise floor estimate.",
		}),
	}
}
