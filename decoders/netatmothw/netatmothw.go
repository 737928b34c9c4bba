// Package netatmothw decodes the Netatmo THW wind module's FSK-PCM
// transmission, demonstrating the parameterized-decoder contract from
// spec.md §6 and §3 (`configure(name, key, value)`): the four raw
// wind-component readings each take a caller-supplied integer baseline
// offset, `a`/`b`/`c`/`d`, parsed via registry.ParseIntParam and defaulting
// to 0 when unset.
package netatmothw

import (
	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/integrity"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

var preamble = []byte{0xaa, 0xaa, 0x2d, 0xd4}

var preambleBits = 8 * len(preamble)

const (
	messageBytes = 5 // 4 raw wind-component bytes + 1 checksum byte
)

// Spec returns the registered DecoderSpec for the Netatmo THW wind module.
// Its four configuration parameters (spec.md §6) are offsets applied to
// the raw wind components before they are reported.
func Spec() registry.DecoderSpec {
	return registry.DecoderSpec{
		Name:         "Netatmo-THW",
		Modulation:   registry.FSKPCM,
		ShortWidthUs: 58,
		LongWidthUs:  58,
		ResetLimitUs: 10000,
		Decode:       decode,
		Fields:       []string{"model", "wind_a", "wind_b", "wind_c", "wind_d", "mic"},
		ConfigParams: []string{"a", "b", "c", "d"},
	}
}

func decode(bm *bitmatrix.Matrix, ctx *registry.DecoderContext) (registry.DecodeResult, []*pulse.Record) {
	var row int = -1
	for r := 0; r < bitmatrix.NRows; r++ {
		if bm.BitLen(r) >= preambleBits+8*messageBytes {
			row = r
			break
		}
	}
	if row < 0 {
		return registry.ResultAbortLength, nil
	}

	pos := bm.Search(row, 0, preamble, preambleBits)
	if pos >= bm.BitLen(row) {
		return registry.ResultAbortEarly, nil
	}
	pos += preambleBits

	msg := make([]byte, messageBytes)
	bm.ExtractBytes(row, pos, 8*messageBytes, msg)

	if integrity.AddBytes(msg[:4])%256 != int(msg[4]) {
		return registry.ResultFailMic, nil
	}

	offA, errA := registry.ParseIntParam(ctx.Config, "a", 0)
	offB, errB := registry.ParseIntParam(ctx.Config, "b", 0)
	offC, errC := registry.ParseIntParam(ctx.Config, "c", 0)
	offD, errD := registry.ParseIntParam(ctx.Config, "d", 0)
	if errA != nil || errB != nil || errC != nil || errD != nil {
		return registry.ResultFailSanity, nil
	}

	rec := pulse.NewRecord("Netatmo-THW").
		Set("wind_a", int(msg[0])+offA).
		Set("wind_b", int(msg[1])+offB).
		Set("wind_c", int(msg[2])+offC).
		Set("wind_d", int(msg[3])+offD).
		Set("mic", "CHECKSUM")

	return registry.ResultOk, []*pulse.Record{rec}
}
