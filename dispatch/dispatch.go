// Package dispatch implements the Dispatcher (spec.md §4.6): for each
// finalized pulse.Package it runs every enabled DecoderSpec whose
// modulation family matches the package's demodulation path, deduplicates
// the resulting records against a bounded LRU, and forwards survivors to
// external sinks.
package dispatch

import (
	"container/list"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merbanan/rtl-433-sub009/internal/metrics"
	"github.com/merbanan/rtl-433-sub009/internal/rlog"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
	"github.com/merbanan/rtl-433-sub009/slicer"
)

// Sink is the push interface records and the per-package metadata sidecar
// are forwarded to (spec.md §6). Concrete sinks (line-JSON, CSV, MQTT,
// InfluxDB, syslog, raw hex) are out of scope; Sink is the seam they would
// implement.
type Sink interface {
	Emit(rec *pulse.Record)
	Flush() error
}

// PulseDataRecord lists the fields of the package metadata sidecar
// (spec.md §6). The Dispatcher does not emit this struct: when
// EmitPulseData is set, emitPulseData sends the same values, once per
// dispatched package, as a pulse.Record with model "pulse_data".
type PulseDataRecord struct {
	CorrelationID string
	SampleRate    int
	Freq1Hz       float64
	Freq2Hz       float64
	RSSIdB        float64
	NoiseDb       float64
	SNRDb         float64
	Pulses        []pulse.Pulse
}

// Config tunes dedup behavior.
type Config struct {
	DedupWindow    time.Duration
	DedupCapacity  int
	ReportBestOnly bool
	EmitPulseData  bool
}

// Dispatcher fans out finalized packages to a DecoderRegistry, deduplicates
// resulting records, and forwards them to a Sink.
type Dispatcher struct {
	reg    *registry.DecoderRegistry
	sink   Sink
	logger *rlog.Logger
	metrics *metrics.Metrics
	cfg    Config

	dedup *dedupLRU

	counters map[string]*decoderCounters
}

type decoderCounters struct {
	ok, abortEarly, abortLength, failSanity, failMic, disabled int
}

// New creates a Dispatcher.
func New(reg *registry.DecoderRegistry, sink Sink, logger *rlog.Logger, m *metrics.Metrics, cfg Config) *Dispatcher {
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 1024
	}
	return &Dispatcher{
		reg:      reg,
		sink:     sink,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		dedup:    newDedupLRU(cfg.DedupCapacity),
		counters: make(map[string]*decoderCounters),
	}
}

// Dispatch runs every enabled, modulation-matching decoder against pkg and
// forwards surviving records to the sink. now is the package's finalize
// time, used for dedup windowing.
func (d *Dispatcher) Dispatch(pkg *pulse.Package, now time.Time) {
	type okBatch struct {
		decoder string
		records []*pulse.Record
	}
	var batches []okBatch
	var sawFailMic bool
	var lastFailMicDecoder string

	d.reg.EachEnabled(func(spec registry.DecoderSpec, config map[string]string) {
		if spec.Modulation.IsFSK() != pkg.FM {
			return
		}
		bm := slicer.ForModulation(spec.Modulation).Slice(pkg, spec)

		result, records := spec.Decode(bm, &registry.DecoderContext{
			Package: pkg,
			Logger:  d.logger.WithComponent(spec.Name),
			Config:  config,
		})

		d.countResult(spec.Name, result)
		if d.metrics != nil {
			d.metrics.DecodeOutcomes.WithLabelValues(spec.Name, result.String()).Inc()
		}

		switch result {
		case registry.ResultOk:
			batches = append(batches, okBatch{decoder: spec.Name, records: records})
		case registry.ResultFailMic:
			sawFailMic = true
			lastFailMicDecoder = spec.Name
			d.logger.Warnf("%s: integrity check failed", spec.Name)
		case registry.ResultFailSanity:
			d.logger.Warnf("%s: sanity check failed", spec.Name)
		case registry.ResultAbortEarly, registry.ResultAbortLength:
			d.logger.Infof("%s: %s", spec.Name, result.String())
		}
	})

	// Best-of-package policy (spec.md §4.6 step 5): every decoder that
	// returned Ok contributes its records by default, since the dispatcher
	// never short-circuits and more than one spec may legitimately match
	// one transmission (e.g. LaCrosse R1/R3/W1 sharing a preamble). When
	// ReportBestOnly is configured, only the first enabled decoder (in
	// registration order) to return Ok is trusted.
	if d.cfg.ReportBestOnly && len(batches) > 1 {
		batches = batches[:1]
	}
	anyOk := len(batches) > 0
	for _, b := range batches {
		for _, rec := range b.records {
			d.emit(b.decoder, rec, now)
		}
	}

	if d.metrics != nil {
		modLabel := "am"
		if pkg.FM {
			modLabel = "fm"
		}
		d.metrics.PackagesDispatched.WithLabelValues(modLabel).Inc()
		d.metrics.PulsesDetected.Set(float64(len(pkg.Pulses)))
		d.metrics.NoiseFloorDb.Set(pkg.NoiseDb)
	}

	// Best-of-package policy (spec.md §4.6 step 5): if nothing succeeded
	// but at least one decoder reported FailMic, log one diagnostic. Per
	// §4.6 step 3 and §7, only Ok results ever reach the sink; a failed
	// integrity check is silent to the record stream, visible only in the
	// logs.
	if !anyOk && sawFailMic {
		d.logger.Infof("%s: no decoder succeeded, last integrity failure", lastFailMicDecoder)
	}

	if d.cfg.EmitPulseData {
		d.emitPulseData(pkg)
	}
}

func (d *Dispatcher) countResult(decoder string, result registry.DecodeResult) {
	c, ok := d.counters[decoder]
	if !ok {
		c = &decoderCounters{}
		d.counters[decoder] = c
	}
	switch result {
	case registry.ResultOk:
		c.ok++
	case registry.ResultAbortEarly:
		c.abortEarly++
	case registry.ResultAbortLength:
		c.abortLength++
	case registry.ResultFailSanity:
		c.failSanity++
	case registry.ResultFailMic:
		c.failMic++
	case registry.ResultDisabled:
		c.disabled++
	}
}

// Counters returns a snapshot of per-decoder outcome counts.
func (d *Dispatcher) Counters(decoder string) (ok, abortEarly, abortLength, failSanity, failMic, disabled int) {
	c, found := d.counters[decoder]
	if !found {
		return
	}
	return c.ok, c.abortEarly, c.abortLength, c.failSanity, c.failMic, c.disabled
}

func (d *Dispatcher) emit(decoder string, rec *pulse.Record, now time.Time) {
	key := fingerprint(decoder, rec)
	if d.dedup.seenWithin(key, now, d.cfg.DedupWindow) {
		if d.metrics != nil {
			d.metrics.RecordsDeduplicated.WithLabelValues(decoder).Inc()
		}
		return
	}
	d.dedup.record(key, now)
	if d.metrics != nil {
		d.metrics.RecordsEmitted.WithLabelValues(decoder).Inc()
	}
	d.sink.Emit(rec)
}

func (d *Dispatcher) emitPulseData(pkg *pulse.Package) {
	rec := pulse.NewRecord("pulse_data").
		Set("correlation_id", uuid.NewString()).
		Set("sample_rate", pkg.SampleRateHz).
		Set("freq1_hz", pkg.Freq1Hz).
		Set("freq2_hz", pkg.Freq2Hz).
		Set("rssi_db", pkg.RSSIdB).
		Set("noise_db", pkg.NoiseDb).
		Set("snr_db", pkg.SNRDb).
		Set("pulses", pkg.Pulses)
	d.sink.Emit(rec)
}

// fingerprint builds the dedup key from (decoder_name, id, channel,
// payload-fingerprint) per spec.md §4.6 step 4.
func fingerprint(decoder string, rec *pulse.Record) string {
	id, _ := rec.Get("id")
	channel, _ := rec.Get("channel")
	payload := payloadFingerprint(rec)
	return fmt.Sprintf("%s|%v|%v|%s", decoder, id, channel, payload)
}

func payloadFingerprint(rec *pulse.Record) string {
	var sb []byte
	for _, f := range rec.Fields() {
		sb = append(sb, []byte(fmt.Sprintf("%s=%v;", f.Name, f.Value))...)
	}
	return fmt.Sprintf("%x", sb)
}

// dedupLRU is a bounded LRU mapping a fingerprint key to the time it was
// last seen, used to drop records repeated within the dedup window.
type dedupLRU struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type dedupEntry struct {
	key string
	at  time.Time
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{capacity: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func (l *dedupLRU) seenWithin(key string, now time.Time, window time.Duration) bool {
	el, ok := l.items[key]
	if !ok {
		return false
	}
	e := el.Value.(*dedupEntry)
	return now.Sub(e.at) <= window
}

func (l *dedupLRU) record(key string, now time.Time) {
	if el, ok := l.items[key]; ok {
		el.Value.(*dedupEntry).at = now
		l.ll.MoveToFront(el)
		return
	}
	el := l.ll.PushFront(&dedupEntry{key: key, at: now})
	l.items[key] = el
	if l.ll.Len() > l.capacity {
		oldest := l.ll.Back()
		if oldest != nil {
			l.ll.Remove(oldest)
			delete(l.items, oldest.Value.(*dedupEntry).key)
		}
	}
}
