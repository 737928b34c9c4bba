// Package infactory decodes the Infactory temperature sensor's OOK-PPM
// transmission, demonstrating a CRC4 MIC over a reordered copy of the
// payload (spec.md §8 scenario 5).
package infactory

import (
	"fmt"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/integrity"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

const messageBits = 40

// Spec returns the registered DecoderSpec for the Infactory temperature sensor.
func Spec() registry.DecoderSpec {
	return registry.DecoderSpec{
		Name:         "Infactory-TH",
		Modulation:   registry.OOKPPM,
		ShortWidthUs: 1850,
		LongWidthUs:  4050,
		ResetLimitUs: 15000,
		Decode:       decode,
		Fields:       []string{"model", "channel", "temperature_F", "mic"},
	}
}

func decode(bm *bitmatrix.Matrix, ctx *registry.DecoderContext) (registry.DecodeResult, []*pulse.Record) {
	_ = ctx
	var row int = -1
	for r := 0; r < bitmatrix.NRows; r++ {
		if bm.BitLen(r) >= messageBits {
			row = r
			break
		}
	}
	if row < 0 {
		return registry.ResultAbortLength, nil
	}

	b := make([]byte, 5)
	bm.ExtractBytes(row, 0, messageBits, b)

	if b[4]&0x0f == 0 {
		return registry.ResultFailSanity, nil
	}

	// Reorder per spec.md §8 scenario 5: CRC4 is computed over a
	// rearranged copy, checked against the high nibble of b[1].
	reordered := []byte{b[0], b[2], b[3], b[4]}
	crc := integrity.CRC4(reordered, 0x3, 0x0)
	if crc != b[1]>>4 {
		return registry.ResultFailMic, nil
	}

	channel := int(b[4] & 0x03)
	tempRaw := int(b[2])*16 + int(b[3])/16 - 900
	temperatureF := float64(tempRaw) * 0.1

	rec := pulse.NewRecord("Infactory-TH").
		Set("channel", channel).
		Set("temperature_F", temperatureF).
		Set("mic", "CRC").
		Set("raw", fmt.Sprintf("%02x%02x%02x%02x%02x", b[0], b[1], b[2], b[3], b[4]))

	return registry.ResultOk, []*pulse.Record{rec}
}
