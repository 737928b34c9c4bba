package dispatch

import (
	"testing"
	"time"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/internal/rlog"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

type captureSink struct {
	records []*pulse.Record
}

func (s *captureSink) Emit(rec *pulse.Record) { s.records = append(s.records, rec) }
func (s *captureSink) Flush() error           { return nil }

func alwaysOkDecoder(*bitmatrix.Matrix, *registry.DecoderContext) (registry.DecodeResult, []*pulse.Record) {
	rec := pulse.NewRecord("test-model").Set("id", 1).Set("channel", 1)
	return registry.ResultOk, []*pulse.Record{rec}
}

func newTestPackage() *pulse.Package {
	pkg := &pulse.Package{SampleRateHz: 250000}
	pkg.Pulses = []pulse.Pulse{{MarkSamples: 100, SpaceSamples: 100}}
	pkg.RowEnds = []int{1}
	return pkg
}

func TestDispatcherDedupWithinWindow(t *testing.T) {
	reg := registry.NewDecoderRegistry()
	if err := reg.Register(registry.DecoderSpec{
		Name:         "test",
		Modulation:   registry.OOKPCM,
		ShortWidthUs: 100,
		LongWidthUs:  200,
		Decode:       alwaysOkDecoder,
	}); err != nil {
		t.Fatal(err)
	}

	sink := &captureSink{}
	logger := rlog.New("test", rlog.LevelSilent)
	d := New(reg, sink, logger, nil, Config{DedupWindow: time.Minute, DedupCapacity: 16})

	base := time.Unix(1000, 0)
	d.Dispatch(newTestPackage(), base)
	d.Dispatch(newTestPackage(), base.Add(time.Second))

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record within dedup window, got %d", len(sink.records))
	}
}

func TestDispatcherEmitsAgainOutsideWindow(t *testing.T) {
	reg := registry.NewDecoderRegistry()
	if err := reg.Register(registry.DecoderSpec{
		Name:         "test",
		Modulation:   registry.OOKPCM,
		ShortWidthUs: 100,
		LongWidthUs:  200,
		Decode:       alwaysOkDecoder,
	}); err != nil {
		t.Fatal(err)
	}

	sink := &captureSink{}
	logger := rlog.New("test", rlog.LevelSilent)
	d := New(reg, sink, logger, nil, Config{DedupWindow: time.Second, DedupCapacity: 16})

	base := time.Unix(1000, 0)
	d.Dispatch(newTestPackage(), base)
	d.Dispatch(newTestPackage(), base.Add(time.Hour))

	if len(sink.records) != 2 {
		t.Fatalf("expected 2 records outside dedup window, got %d", len(sink.records))
	}
}
