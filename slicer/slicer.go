// Package slicer turns a finalized pulse.Package into a bitmatrix.Matrix,
// one row per detector row-end, according to the modulation-specific rules
// of spec.md §4.5. There is exactly one Slicer implementation per member of
// the registry.Modulation closed enum (spec.md §9: "modulation kinds are a
// closed sum; all other modulation-dependent logic lives behind a Slicer
// trait with one implementation per variant").
package slicer

import (
	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

// Slicer converts one package into bits, row by row.
type Slicer interface {
	Slice(pkg *pulse.Package, spec registry.DecoderSpec) *bitmatrix.Matrix
}

// ForModulation returns the Slicer implementation for m.
func ForModulation(m registry.Modulation) Slicer {
	switch m {
	case registry.OOKPPM:
		return ppmSlicer{}
	case registry.OOKPWM:
		return pwmSlicer{}
	case registry.OOKPCM, registry.FSKPCM:
		return pcmSlicer{}
	case registry.OOKManchesterZeroBit, registry.FSKManchesterZeroBit:
		return manchesterSlicer{differential: false}
	case registry.DiffManchester:
		return manchesterSlicer{differential: true}
	case registry.OOKPWMSPE:
		return pwmSPESlicer{}
	default:
		return pcmSlicer{}
	}
}

// closerToLong reports whether durationUs is closer to longUs than to
// shortUs; ties (exactly midway) go to long per the ">=" convention used
// consistently below. No tolerance window is applied: every duration is
// classified as short or long, and none is treated as noise.
func closerToLong(durationUs, shortUs, longUs float64) bool {
	return durationUs-shortUs >= longUs-durationUs
}

// consumeSync skips a leading sync pulse in the row if syncWidthUs > 0 and
// the first mark exceeds the documented multiple (spec.md §4.5 says
// "typically 5-20x"; this implementation requires at least 5x the short
// width and 2.5x the long width), returning the index into row to resume
// slicing from.
func consumeSync(row []pulse.Pulse, sampleRateHz int, spec registry.DecoderSpec) int {
	if spec.SyncWidthUs <= 0 || len(row) == 0 {
		return 0
	}
	markUs := row[0].MarkUs(sampleRateHz)
	if markUs >= 5*spec.ShortWidthUs && markUs >= 5*spec.LongWidthUs/2 {
		return 1
	}
	return 0
}

type ppmSlicer struct{}

// Slice implements OOK-PPM: bit = (gap closer to long_width than short_width).
func (ppmSlicer) Slice(pkg *pulse.Package, spec registry.DecoderSpec) *bitmatrix.Matrix {
	bm := &bitmatrix.Matrix{}
	eachRow(pkg, spec, func(row []pulse.Pulse, dstRow int) {
		start := consumeSync(row, pkg.SampleRateHz, spec)
		for _, p := range row[start:] {
			gapUs := p.SpaceUs(pkg.SampleRateHz)
			bit := 0
			if closerToLong(gapUs, spec.ShortWidthUs, spec.LongWidthUs) {
				bit = 1
			}
			bm.AddBit(dstRow, bit)
		}
	})
	return bm
}

type pwmSlicer struct{}

// Slice implements OOK-PWM: bit = (mark closer to long_width than short_width).
func (pwmSlicer) Slice(pkg *pulse.Package, spec registry.DecoderSpec) *bitmatrix.Matrix {
	bm := &bitmatrix.Matrix{}
	eachRow(pkg, spec, func(row []pulse.Pulse, dstRow int) {
		start := consumeSync(row, pkg.SampleRateHz, spec)
		for _, p := range row[start:] {
			markUs := p.MarkUs(pkg.SampleRateHz)
			bit := 0
			if closerToLong(markUs, spec.ShortWidthUs, spec.LongWidthUs) {
				bit = 1
			}
			bm.AddBit(dstRow, bit)
		}
	})
	return bm
}

type pcmSlicer struct{}

// Slice implements OOK-PCM / FSK-PCM: emit floor(mark/cell+0.5) ones
// followed by floor(gap/cell+0.5) zeros, cell = short_width_us.
func (pcmSlicer) Slice(pkg *pulse.Package, spec registry.DecoderSpec) *bitmatrix.Matrix {
	bm := &bitmatrix.Matrix{}
	cell := spec.ShortWidthUs
	eachRow(pkg, spec, func(row []pulse.Pulse, dstRow int) {
		start := consumeSync(row, pkg.SampleRateHz, spec)
		for _, p := range row[start:] {
			ones := cellCount(p.MarkUs(pkg.SampleRateHz), cell)
			zeros := cellCount(p.SpaceUs(pkg.SampleRateHz), cell)
			for i := 0; i < ones; i++ {
				bm.AddBit(dstRow, 1)
			}
			for i := 0; i < zeros; i++ {
				bm.AddBit(dstRow, 0)
			}
		}
	})
	return bm
}

func cellCount(durationUs, cellUs float64) int {
	if cellUs <= 0 {
		return 0
	}
	n := int(durationUs/cellUs + 0.5)
	if n < 0 {
		return 0
	}
	return n
}

type manchesterSlicer struct {
	differential bool
}

// Slice accumulates raw NRZ bits (as PCM would) into a scratch matrix, then
// decodes pairs via bitmatrix's Manchester or differential-Manchester
// decoder into the output row, aborting the row on a Manchester violation
// (spec.md §4.5).
func (s manchesterSlicer) Slice(pkg *pulse.Package, spec registry.DecoderSpec) *bitmatrix.Matrix {
	scratch := &bitmatrix.Matrix{}
	bm := &bitmatrix.Matrix{}
	cell := spec.ShortWidthUs
	eachRow(pkg, spec, func(row []pulse.Pulse, dstRow int) {
		start := consumeSync(row, pkg.SampleRateHz, spec)
		for _, p := range row[start:] {
			ones := cellCount(p.MarkUs(pkg.SampleRateHz), cell)
			zeros := cellCount(p.SpaceUs(pkg.SampleRateHz), cell)
			for i := 0; i < ones; i++ {
				scratch.AddBit(dstRow, 1)
			}
			for i := 0; i < zeros; i++ {
				scratch.AddBit(dstRow, 0)
			}
		}
	})
	for row := 0; row < bitmatrix.NRows; row++ {
		n := scratch.BitLen(row)
		if n == 0 {
			continue
		}
		if s.differential {
			scratch.DifferentialManchesterDecode(row, 0, bm, row, n/2)
		} else {
			scratch.ManchesterDecode(row, 0, bm, row, n/2)
		}
	}
	return bm
}

type pwmSPESlicer struct{}

// Slice implements OOK-PWM-SPE: classify raw bits from gap-threshold
// classification, then fold pairs through the 2-bit table from §4.3:
// 00->0, 01->1, 10->skip, 11->skip. This is the "Short Pulse Encoding"
// scheme some OOK devices use to squeeze two symbol classes (short gap /
// long gap) into one logical bit via pairing.
func (pwmSPESlicer) Slice(pkg *pulse.Package, spec registry.DecoderSpec) *bitmatrix.Matrix {
	scratch := &bitmatrix.Matrix{}
	bm := &bitmatrix.Matrix{}
	eachRow(pkg, spec, func(row []pulse.Pulse, dstRow int) {
		start := consumeSync(row, pkg.SampleRateHz, spec)
		for _, p := range row[start:] {
			gapUs := p.SpaceUs(pkg.SampleRateHz)
			bit := 0
			if closerToLong(gapUs, spec.ShortWidthUs, spec.LongWidthUs) {
				bit = 1
			}
			scratch.AddBit(dstRow, bit)
		}
	})
	for row := 0; row < bitmatrix.NRows; row++ {
		n := scratch.BitLen(row)
		for pos := 0; pos+1 < n; pos += 2 {
			b0 := bitAt(scratch, row, pos)
			b1 := bitAt(scratch, row, pos+1)
			switch {
			case b0 == 0 && b1 == 0:
				bm.AddBit(row, 0)
			case b0 == 0 && b1 == 1:
				bm.AddBit(row, 1)
			default:
				// 10 and 11: invalid pair, dropped per §4.3 table.
			}
		}
	}
	return bm
}

func bitAt(m *bitmatrix.Matrix, row, pos int) int {
	dst := make([]byte, 1)
	m.ExtractBytes(row, pos, 1, dst)
	return int(dst[0] >> 7)
}

// eachRow calls fn once per detector row-end, with the row's pulses and the
// destination row index (same indexing as the source package's rows).
func eachRow(pkg *pulse.Package, _ registry.DecoderSpec, fn func(row []pulse.Pulse, dstRow int)) {
	for r := 0; r < pkg.NumRows() && r < bitmatrix.NRows; r++ {
		fn(pkg.RowPulses(r), r)
	}
}
