// Package bresser7in1 decodes the Bresser 7-in-1 weather station's
// FSK-PCM transmission, demonstrating an LFSR-16 MIC over a whitened
// payload (spec.md §8 scenario 1).
package bresser7in1

import (
	"fmt"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/integrity"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

var preamble = []byte{0xaa, 0xaa, 0xaa, 0x2d, 0xd4}

var preambleBits = 8 * len(preamble)

const (
	payloadBytes = 23

	digestGen     = 0x8810
	digestKey     = 0xba95
	digestFinalXor = 0x6df1
)

// Spec returns the registered DecoderSpec for the Bresser 7-in-1.
func Spec() registry.DecoderSpec {
	return registry.DecoderSpec{
		Name:         "Bresser-7in1",
		Modulation:   registry.FSKPCM,
		ShortWidthUs: 124,
		LongWidthUs:  124,
		ResetLimitUs: 20000,
		Decode:       decode,
		Fields:       []string{"model", "id", "battery_ok", "temperature_C", "humidity", "wind_avg_m_s", "wind_max_m_s", "wind_dir_deg", "rain_mm", "uv", "mic"},
	}
}

func decode(bm *bitmatrix.Matrix, ctx *registry.DecoderContext) (registry.DecodeResult, []*pulse.Record) {
	row := bm.FindRepeatedRow(1, preambleBits+8*payloadBytes)
	if row < 0 {
		for r := 0; r < bitmatrix.NRows; r++ {
			if bm.BitLen(r) >= preambleBits+8*payloadBytes {
				row = r
				break
			}
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
	if bm.BitLen(row)-pos < 8*payloadBytes {
		return registry.ResultAbortLength, nil
	}

	payload := make([]byte, payloadBytes)
	bm.ExtractBytes(row, pos, 8*payloadBytes, payload)
	for i := range payload {
		payload[i] ^= 0xaa
	}

	digest := integrity.LFSRDigest16(payload, digestGen, digestKey) ^ digestFinalXor
	if digest != 0 {
		return registry.ResultFailMic, nil
	}

	id := uint16(payload[0])<<8 | uint16(payload[1])
	batteryOk := 1
	if payload[2]&0x80 != 0 {
		batteryOk = 0
	}
	tempRaw := int(payload[3]&0x0f)<<8 | int(payload[4])
	temperatureC := float64(tempRaw)*0.1 - 40
	humidity := int(payload[5])
	windDir := int(payload[6]) * 360 / 255
	windAvg := float64(payload[7]) * 0.1
	windMax := float64(payload[8]) * 0.1
	rainMm := float64(uint16(payload[9])<<8|uint16(payload[10])) * 0.1
	uv := float64(payload[11]) * 0.1

	rec := pulse.NewRecord("Bresser-7in1").
		Set("id", fmt.Sprintf("%04x", id)).
		Set("battery_ok", batteryOk).
		Set("temperature_C", temperatureC).
		Set("humidity", humidity).
		Set("wind_avg_m_s", windAvg).
		Set("wind_max_m_s", windMax).
		Set("wind_dir_deg", windDir).
		Set("rain_mm", rainMm).
		Set("uv", uv).
		Set("mic", "CRC")

	_ = ctx
	return registry.ResultOk, []*pulse.Record{rec}
}
