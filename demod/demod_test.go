package demod

import (
	"math"
	"testing"
)

func TestAMTracksEnvelope(t *testing.T) {
	d := New(DefaultParams(250000, 100))
	var last float64
	for i := 0; i < 2000; i++ {
		last = d.AM(1, 0)
	}
	if math.Abs(last-1) > 0.05 {
		t.Fatalf("AM envelope settled at %v, want ~1", last)
	}
}

func TestAMRealMatchesAbsoluteValue(t *testing.T) {
	d := New(DefaultParams(250000, 100))
	var last float64
	for i := 0; i < 2000; i++ {
		last = d.AMReal(-3)
	}
	if math.Abs(last-3) > 0.05 {
		t.Fatalf("AMReal envelope settled at %v, want ~3", last)
	}
}

func TestFMDiscriminatesConstantFrequency(t *testing.T) {
	d := New(DefaultParams(250000, 100))
	const freqRad = 0.3
	var last float64
	var i, q float64 = 1, 0
	for n := 0; n < 2000; n++ {
		ni := i*math.Cos(freqRad) - q*math.Sin(freqRad)
		nq := i*math.Sin(freqRad) + q*math.Cos(freqRad)
		i, q = ni, nq
		last = d.FM(i, q)
	}
	// With the I[n]*Q[n-1] - Q[n]*I[n-1] numerator, a counter-clockwise
	// rotation of +freqRad per sample reads as -freqRad.
	if math.Abs(last+freqRad) > 0.02 {
		t.Fatalf("FM discriminator settled at %v, want ~%v", last, -freqRad)
	}
}

func TestThresholdSitsBetweenNoiseAndSignal(t *testing.T) {
	d := New(DefaultParams(250000, 100))
	d.UpdateSpace(0)
	for i := 0; i < 500; i++ {
		d.UpdateSpace(0)
	}
	for i := 0; i < 500; i++ {
		d.UpdateMark(10)
	}
	th := d.Threshold()
	if th <= d.NoiseFloor() || th >= d.SignalLevel() {
		t.Fatalf("threshold %v not between noise %v and signal %v", th, d.NoiseFloor(), d.SignalLevel())
	}
}

func TestFreqHistogramPeaksOnBimodalData(t *testing.T) {
	h := &FreqHistogram{}
	const sampleRate = 250000
	for i := 0; i < 1000; i++ {
		h.Add(-0.2)
	}
	for i := 0; i < 1000; i++ {
		h.Add(0.2)
	}
	f1, f2 := h.Peaks(sampleRate)
	if f1 >= f2 {
		t.Fatalf("expected f1 < f2, got f1=%v f2=%v", f1, f2)
	}
	wantLo := -0.2 * sampleRate / (2 * math.Pi)
	wantHi := 0.2 * sampleRate / (2 * math.Pi)
	if math.Abs(f1-wantLo) > math.Abs(wantHi-wantLo)*0.1 {
		t.Fatalf("f1 = %v, want ~%v", f1, wantLo)
	}
	if math.Abs(f2-wantHi) > math.Abs(wantHi-wantLo)*0.1 {
		t.Fatalf("f2 = %v, want ~%v", f2, wantHi)
	}
}

func TestFreqHistogramPeaksWithTooFewSamples(t *testing.T) {
	h := &FreqHistogram{}
	h.Add(0.1)
	f1, f2 := h.Peaks(250000)
	if f1 != 0 || f2 != 0 {
		t.Fatalf("expected (0,0) with fewer than two samples, got (%v,%v)", f1, f2)
	}
}

func TestFreqHistogramResetClears(t *testing.T) {
	h := &FreqHistogram{}
	h.Add(0.1)
	h.Add(0.2)
	h.Reset()
	if f1, f2 := h.Peaks(250000); f1 != 0 || f2 != 0 {
		t.Fatalf("expected (0,0) after Reset, got (%v,%v)", f1, f2)
	}
}
