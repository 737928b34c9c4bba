package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

func TestDefaultHasSaneDedupWindow(t *testing.T) {
	cfg := Default()
	// spec.md §3 DispatcherState: "a configurable window (default 200 ms)".
	if cfg.Dispatch.DedupWindowMs != 200 {
		t.Fatalf("DedupWindowMs = %d, want 200", cfg.Dispatch.DedupWindowMs)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
sample_rate_hz: 1000000
center_freq_hz: 433920000
decoders:
  - name: bresser-7in1
    enabled: false
  - name: infactory
    params: "channel=1"
dispatch:
  dedup_window_ms: 5000
  dedup_capacity: 64
  report_best_only: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SampleRateHz != 1000000 {
		t.Fatalf("SampleRateHz = %d", cfg.SampleRateHz)
	}
	if cfg.CenterFreqHz != 433920000 {
		t.Fatalf("CenterFreqHz = %d", cfg.CenterFreqHz)
	}
	if len(cfg.Decoders) != 2 {
		t.Fatalf("len(Decoders) = %d, want 2", len(cfg.Decoders))
	}
	if !cfg.Dispatch.ReportBestOnly {
		t.Fatal("expected ReportBestOnly to be true")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error loading nonexistent config")
	}
}

func TestApplyWiresEnableAndConfigure(t *testing.T) {
	reg := registry.NewDecoderRegistry()
	if err := reg.Register(registry.DecoderSpec{
		Name:              "a",
		DisabledByDefault: true,
		Decode:            noopDecode,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	enabled := true
	cfg := Config{Decoders: []DecoderConfig{
		{Name: "a", Enabled: &enabled, Params: "x=1"},
	}}
	if err := cfg.Apply(reg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reg.Enabled("a") {
		t.Fatal("expected decoder a to be enabled after Apply")
	}
	_, params, ok := reg.Spec("a")
	if !ok || params["x"] != "1" {
		t.Fatalf("params = %v", params)
	}
}

func TestApplyErrorsOnUnknownDecoder(t *testing.T) {
	reg := registry.NewDecoderRegistry()
	cfg := Config{Decoders: []DecoderConfig{{Name: "missing"}}}
	enabled := true
	cfg.Decoders[0].Enabled = &enabled
	if err := cfg.Apply(reg); err == nil {
		t.Fatal("expected error applying config for an unregistered decoder")
	}
}

func noopDecode(*bitmatrix.Matrix, *registry.DecoderContext) (registry.DecodeResult, []*pulse.Record) {
	return registry.ResultOk, nil
}
