// Package detector implements the streaming PulseDetector state machine
// described in spec.md §4.4: it turns a demodulated AM/FM sample stream
// into finalized pulse.Package values, handing each one to a caller-
// supplied callback as soon as a package-terminating gap is observed.
package detector

import (
	"github.com/merbanan/rtl-433-sub009/demod"
	"github.com/merbanan/rtl-433-sub009/pulse"
)

// mode is the detector's three-state classifier.
type mode int

const (
	modeIdle mode = iota
	modeMark
	modeSpace
)

// Params configures one PulseDetector instance.
type Params struct {
	SampleRateHz int
	ShortWidthUs float64

	// RowGapLimitUs: a SPACE longer than this closes the current row.
	RowGapLimitUs float64

	// ResetLimitUs: a SPACE longer than this terminates the package.
	ResetLimitUs float64

	// UseFM selects the FM/FSK discrimination path instead of AM/OOK.
	UseFM bool

	// FMHysteresis is the two-state classifier's hysteresis band, applied
	// around zero on the low-passed FM discriminator output.
	FMHysteresis float64
}

// PulseDetector is a streaming state machine: feed it samples one at a
// time via ProcessComplex/ProcessReal, and it calls onPackage whenever a
// package terminates.
type PulseDetector struct {
	params Params
	demod  *demod.Demodulator
	hist   demod.FreqHistogram

	mode mode

	sampleIndex    int
	markStart      int
	spaceStart     int
	pkg            *pulse.Package
	currentRowSamples int

	globalCapSamples int

	onPackage func(*pulse.Package)

	rssiAccum, noiseAccum float64
	rssiCount, noiseCount int
}

// New creates a PulseDetector. onPackage is invoked synchronously from
// within ProcessComplex/ProcessReal whenever a package finalizes; it must
// not block (spec.md §5).
func New(params Params, onPackage func(*pulse.Package)) *PulseDetector {
	d := &PulseDetector{
		params:           params,
		demod:            demod.New(demod.DefaultParams(params.SampleRateHz, params.ShortWidthUs)),
		onPackage:        onPackage,
		globalCapSamples: int(pulse.MaxPackageSeconds * float64(params.SampleRateHz)),
	}
	d.resetPackage()
	return d
}

func (d *PulseDetector) resetPackage() {
	d.pkg = &pulse.Package{SampleRateHz: d.params.SampleRateHz}
	d.hist.Reset()
	d.rssiAccum, d.noiseAccum = 0, 0
	d.rssiCount, d.noiseCount = 0, 0
}

// ProcessComplex feeds one I/Q sample pair.
func (d *PulseDetector) ProcessComplex(i, q float64) {
	am := d.demod.AM(i, q)
	var high bool
	if d.params.UseFM {
		fm := d.demod.FM(i, q)
		d.hist.Add(fm)
		high = d.classifyFM(fm)
	} else {
		high = am >= d.demod.Threshold()
	}
	d.step(am, high)
}

// ProcessReal feeds one real (already-magnitude) sample, for real-u8/s16/f32
// sources (spec.md §6 sample formats).
func (d *PulseDetector) ProcessReal(x float64) {
	am := d.demod.AMReal(x)
	high := am >= d.demod.Threshold()
	d.step(am, high)
}

func (d *PulseDetector) classifyFM(fm float64) bool {
	// Two-state hysteresis classifier around zero.
	if fm > d.params.FMHysteresis {
		return true
	}
	if fm < -d.params.FMHysteresis {
		return false
	}
	// Inside the hysteresis band: hold the previous state.
	return d.mode == modeMark
}

func (d *PulseDetector) step(am float64, high bool) {
	switch d.mode {
	case modeIdle:
		if high {
			d.mode = modeMark
			d.markStart = d.sampleIndex
		}
		d.demod.UpdateSpace(am)
	case modeMark:
		if !high {
			d.closeMark()
			d.mode = modeSpace
			d.spaceStart = d.sampleIndex
		} else {
			d.demod.UpdateMark(am)
		}
	case modeSpace:
		if high {
			d.closeSpace()
		} else {
			d.demod.UpdateSpace(am)
			d.checkGapLimits()
		}
	}
	d.sampleIndex++
}

func (d *PulseDetector) closeMark() {
	d.rssiAccum += d.demod.SignalLevel()
	d.rssiCount++
}

func (d *PulseDetector) closeSpace() {
	markSamples := 0
	spaceSamples := d.sampleIndex - d.spaceStart
	if d.spaceStart > d.markStart {
		markSamples = d.spaceStart - d.markStart
	}
	d.noiseAccum += d.demod.NoiseFloor()
	d.noiseCount++

	d.pkg.Pulses = append(d.pkg.Pulses, pulse.Pulse{MarkSamples: markSamples, SpaceSamples: spaceSamples})
	d.currentRowSamples += markSamples + spaceSamples

	d.mode = modeMark
	d.markStart = d.sampleIndex

	if len(d.pkg.Pulses) >= pulse.MaxPulsesPerPackage {
		d.pkg.Truncated = true
		d.finalize()
		return
	}
}

// checkGapLimits is called every sample while in a SPACE, so row and
// package boundaries trigger at the sample they cross rather than only at
// the next mark edge.
func (d *PulseDetector) checkGapLimits() {
	spaceSamplesSoFar := d.sampleIndex - d.spaceStart

	resetLimitSamples := int(d.params.ResetLimitUs * 1e-6 * float64(d.params.SampleRateHz))
	if resetLimitSamples <= 0 || resetLimitSamples > d.globalCapSamples {
		resetLimitSamples = d.globalCapSamples
	}
	if spaceSamplesSoFar >= resetLimitSamples {
		d.finalize()
		return
	}

	rowGapSamples := int(d.params.RowGapLimitUs * 1e-6 * float64(d.params.SampleRateHz))
	if rowGapSamples > 0 && spaceSamplesSoFar == rowGapSamples {
		d.markRowEnd()
	}
}

func (d *PulseDetector) markRowEnd() {
	// The pulse whose gap crossed the limit is still open; it is appended
	// when the gap closes and ends this row, hence the +1.
	d.pkg.RowEnds = append(d.pkg.RowEnds, len(d.pkg.Pulses)+1)
	d.currentRowSamples = 0
}

func (d *PulseDetector) finalize() {
	// Close the pulse still in progress (a mark, or a mark plus the
	// terminating gap) so the pulses span the whole package duration.
	if len(d.pkg.Pulses) < pulse.MaxPulsesPerPackage {
		switch {
		case d.mode == modeSpace:
			d.pkg.Pulses = append(d.pkg.Pulses, pulse.Pulse{MarkSamples: d.spaceStart - d.markStart, SpaceSamples: d.sampleIndex - d.spaceStart})
		case d.mode == modeMark && d.sampleIndex > d.markStart:
			d.pkg.Pulses = append(d.pkg.Pulses, pulse.Pulse{MarkSamples: d.sampleIndex - d.markStart})
		}
	}
	if len(d.pkg.RowEnds) == 0 || d.pkg.RowEnds[len(d.pkg.RowEnds)-1] != len(d.pkg.Pulses) {
		d.pkg.RowEnds = append(d.pkg.RowEnds, len(d.pkg.Pulses))
	}

	d.pkg.DurationSample = d.sampleIndex
	if d.rssiCount > 0 {
		d.pkg.RSSIdB = d.rssiAccum / float64(d.rssiCount)
	}
	if d.noiseCount > 0 {
		d.pkg.NoiseDb = d.noiseAccum / float64(d.noiseCount)
	}
	d.pkg.SNRDb = d.pkg.RSSIdB - d.pkg.NoiseDb
	d.pkg.FM = d.params.UseFM
	if d.params.UseFM {
		d.pkg.Freq1Hz, d.pkg.Freq2Hz = d.hist.Peaks(d.params.SampleRateHz)
	}

	if len(d.pkg.Pulses) > 0 {
		d.onPackage(d.pkg)
	}
	d.sampleIndex = 0
	d.mode = modeIdle
	d.resetPackage()
}

// Flush forces finalization of any in-progress package, e.g. at stream
// end or shutdown (spec.md §5 cancellation).
func (d *PulseDetector) Flush() {
	if len(d.pkg.Pulses) > 0 {
		d.finalize()
	}
}
