// Package demod implements the AM envelope and FM discriminator
// demodulators described in spec.md §4.4: a single-pole low-pass envelope
// detector for the OOK/AM path, and an atan2 differential discriminator
// for the FSK/FM path, plus FSK center-frequency peak estimation.
package demod

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Params tunes the demodulator. The time constants and hysteresis
// threshold are not literal in the source this module was distilled from
// (spec.md §9 flags them as "tune against captures, not guess"); the
// defaults here are adapted from the teacher's own FSK demodulator tuning
// (audioAverageTC = 1000/sampleRate, bandpass Q = 6*centerFreq/1000) to the
// AM/FM envelope case, and are meant to be overridden once real captures
// are available.
type Params struct {
	SampleRateHz int

	// ShortWidthUs sets the envelope low-pass time constant to
	// ShortWidthUs/4, per spec.md §4.4.
	ShortWidthUs float64

	// K is the adaptive threshold mixing factor: T = noise + K*(signal-noise).
	K float64
}

// DefaultParams returns Params with the spec's documented default (K=0.5)
// for the given sample rate and short-pulse width.
func DefaultParams(sampleRateHz int, shortWidthUs float64) Params {
	return Params{SampleRateHz: sampleRateHz, ShortWidthUs: shortWidthUs, K: 0.5}
}

func (p Params) lowpassAlpha() float64 {
	tcUs := p.ShortWidthUs / 4
	if tcUs <= 0 {
		tcUs = 50
	}
	tcSamples := tcUs * 1e-6 * float64(p.SampleRateHz)
	if tcSamples < 1 {
		tcSamples = 1
	}
	// Standard one-pole IIR alpha for a time constant expressed in samples.
	return 1 - math.Exp(-1/tcSamples)
}

// Demodulator turns complex (I/Q) or real samples into one AM envelope
// stream, one FM discriminator stream, and a running noise-floor estimate.
// It is stateful and owned exclusively by one PulseDetector.
type Demodulator struct {
	params Params
	alpha  float64

	amLP float64

	prevI, prevQ float64
	fmLP         float64

	signalEWMA float64
	noiseEWMA  float64
	initialized bool
}

// New creates a Demodulator with the given parameters.
func New(params Params) *Demodulator {
	return &Demodulator{params: params, alpha: params.lowpassAlpha()}
}

// AM demodulates one complex sample to its low-passed envelope magnitude.
func (d *Demodulator) AM(i, q float64) float64 {
	mag := math.Hypot(i, q)
	d.amLP += d.alpha * (mag - d.amLP)
	return d.amLP
}

// AMReal demodulates one real sample (already an envelope/magnitude input,
// e.g. from a real-u8/s16/f32 source) to its low-passed value.
func (d *Demodulator) AMReal(x float64) float64 {
	mag := math.Abs(x)
	d.amLP += d.alpha * (mag - d.amLP)
	return d.amLP
}

// FM demodulates one complex sample pair to its low-passed frequency
// discriminator output, using the atan2 differential:
//
//	y[n] = atan2(I[n]*Q[n-1] - Q[n]*I[n-1], I[n]*I[n-1] + Q[n]*Q[n-1])
func (d *Demodulator) FM(i, q float64) float64 {
	num := i*d.prevQ - q*d.prevI
	den := i*d.prevI + q*d.prevQ
	y := math.Atan2(num, den)
	d.prevI, d.prevQ = i, q
	d.fmLP += d.alpha * (y - d.fmLP)
	return d.fmLP
}

// UpdateMark folds an AM sample into the running "signal" EWMA; call this
// while the detector believes the channel is in MARK.
func (d *Demodulator) UpdateMark(am float64) {
	if !d.initialized {
		d.signalEWMA = am
		d.noiseEWMA = am / 2
		d.initialized = true
		return
	}
	d.signalEWMA += d.alpha * (am - d.signalEWMA)
}

// UpdateSpace folds an AM sample into the running "noise" EWMA; call this
// while the detector believes the channel is in SPACE.
func (d *Demodulator) UpdateSpace(am float64) {
	if !d.initialized {
		d.noiseEWMA = am
		d.signalEWMA = am * 2
		d.initialized = true
		return
	}
	d.noiseEWMA += d.alpha * (am - d.noiseEWMA)
}

// Threshold returns the current adaptive amplitude threshold,
// T = noise + K*(signal-noise).
func (d *Demodulator) Threshold() float64 {
	return d.noiseEWMA + d.params.K*(d.signalEWMA-d.noiseEWMA)
}

// NoiseFloor returns the current noise-floor estimate.
func (d *Demodulator) NoiseFloor() float64 {
	return d.noiseEWMA
}

// SignalLevel returns the current mark-level estimate.
func (d *Demodulator) SignalLevel() float64 {
	return d.signalEWMA
}

// FreqHistogram accumulates FM discriminator samples over the lifetime of
// one package and estimates the two FSK carrier frequencies as the
// histogram's two highest peaks (spec.md §4.4: "freq1/freq2 are estimated
// as the histogram peaks of y[n] during the package").
type FreqHistogram struct {
	samples []float64
}

// Add records one FM discriminator sample (radians/sample).
func (h *FreqHistogram) Add(y float64) {
	h.samples = append(h.samples, y)
}

// Reset clears accumulated samples for reuse across packages.
func (h *FreqHistogram) Reset() {
	h.samples = h.samples[:0]
}

// Peaks returns the two dominant discriminator values, converted to Hz
// given the sample rate, sorted with the lower frequency first. It returns
// (0, 0) if fewer than two samples were recorded.
func (h *FreqHistogram) Peaks(sampleRateHz int) (freq1Hz, freq2Hz float64) {
	n := len(h.samples)
	if n < 2 {
		return 0, 0
	}
	lo, hi := h.samples[0], h.samples[0]
	for _, s := range h.samples {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if hi <= lo {
		return 0, 0
	}
	const bins = 64
	counts := make([]int, bins)
	width := (hi - lo) / bins
	for _, s := range h.samples {
		idx := int((s - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}

	mean := stat.Mean(h.samples, nil)

	// Find the dominant bin below the mean and the dominant bin above it;
	// these stand in for the "space" and "mark" FSK tones.
	var belowIdx, aboveIdx, belowCount, aboveCount int
	for i := 0; i < bins; i++ {
		binCenter := lo + width*(float64(i)+0.5)
		if binCenter <= mean {
			if counts[i] > belowCount {
				belowCount = counts[i]
				belowIdx = i
			}
		} else {
			if counts[i] > aboveCount {
				aboveCount = counts[i]
				aboveIdx = i
			}
		}
	}

	radPerSample1 := lo + width*(float64(belowIdx)+0.5)
	radPerSample2 := lo + width*(float64(aboveIdx)+0.5)

	freq1Hz = radPerSample1 * float64(sampleRateHz) / (2 * math.Pi)
	freq2Hz = radPerSample2 * float64(sampleRateHz) / (2 * math.Pi)
	if freq1Hz > freq2Hz {
		freq1Hz, freq2Hz = freq2Hz, freq1Hz
	}
	return freq1Hz, freq2Hz
}
