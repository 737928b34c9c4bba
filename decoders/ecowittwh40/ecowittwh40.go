// Package ecowittwh40 decodes the EcoWitt WH40 rain gauge's FSK-PCM
// transmission, demonstrating a CRC8 MIC plus an independent AddBytes
// checksum byte (spec.md §8 scenario 2).
package ecowittwh40

import (
	"fmt"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/integrity"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

var preamble = []byte{0xaa, 0x2d, 0xd4}

var preambleBits = 8 * len(preamble)

const (
	messageBytes = 9 // 8 CRC-covered bytes + 1 checksum byte

	crcPoly = 0x31
	crcInit = 0x00
)

// Spec returns the registered DecoderSpec for the EcoWitt WH40.
func Spec() registry.DecoderSpec {
	return registry.DecoderSpec{
		Name:         "EcoWitt-WH40",
		Modulation:   registry.FSKPCM,
		ShortWidthUs: 56,
		LongWidthUs:  56,
		ResetLimitUs: 10000,
		Decode:       decode,
		Fields:       []string{"model", "id", "rain_mm", "mic"},
	}
}

func decode(bm *bitmatrix.Matrix, ctx *registry.DecoderContext) (registry.DecodeResult, []*pulse.Record) {
	_ = ctx
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

	if msg[0] != 0x40 {
		return registry.ResultFailSanity, nil
	}

	if integrity.CRC8(msg[:8], crcPoly, crcInit) != 0 {
		return registry.ResultFailMic, nil
	}
	if integrity.AddBytes(msg[:8])%256 != int(msg[8]) {
		return registry.ResultFailMic, nil
	}

	id := msg[1]
	rainRaw := uint32(msg[5])<<16 | uint32(msg[6])<<8 | uint32(msg[7])
	rainMm := float64(rainRaw) * 0.1

	rec := pulse.NewRecord("EcoWitt-WH40").
		Set("id", fmt.Sprintf("%02x", id)).
		Set("rain_mm", rainMm).
		Set("mic", "CRC")

	return registry.ResultOk, []*pulse.Record{rec}
}
