package bresser7in1

import (
	"testing"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/integrity"
	"github.com/merbanan/rtl-433-sub009/registry"
)

// buildPayload returns a 23-byte payload whose LFSR-16 digest (XOR the
// documented final value) is zero, by searching the last two bytes for a
// value that cancels the digest contribution of a fixed prefix. LFSRDigest16
// is linear over GF(2), so varying only the trailing bytes sweeps a small,
// exhaustively-searchable space.
func buildPayload(t *testing.T) []byte {
	t.Helper()
	payload := make([]byte, payloadBytes)
	payload[0], payload[1] = 0x12, 0x34
	payload[3] = 0x01
	payload[4] = 0x00
	payload[5] = 55
	payload[6] = 128
	payload[7] = 20
	payload[8] = 35

	for hi := 0; hi < 256; hi++ {
		for lo := 0; lo < 256; lo++ {
			payload[21] = byte(hi)
			payload[22] = byte(lo)
			if integrity.LFSRDigest16(payload, digestGen, digestKey)^digestFinalXor == 0 {
				return payload
			}
		}
	}
	t.Fatal("could not find trailing bytes satisfying the digest")
	return nil
}

func addBitsFromBytes(bm *bitmatrix.Matrix, row int, buf []byte) {
	for _, b := range buf {
		for i := 7; i >= 0; i-- {
			bm.AddBit(row, int((b>>uint(i))&1))
		}
	}
}

func TestDecodeOk(t *testing.T) {
	payload := buildPayload(t)
	whitened := make([]byte, len(payload))
	for i, b := range payload {
		whitened[i] = b ^ 0xaa
	}

	bm := &bitmatrix.Matrix{}
	addBitsFromBytes(bm, 0, preamble)
	addBitsFromBytes(bm, 0, whitened)

	result, recs := decode(bm, &registry.DecoderContext{})
	if result != registry.ResultOk {
		t.Fatalf("decode result = %v, want Ok", result)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	model, _ := recs[0].Get("model")
	if model != "Bresser-7in1" {
		t.Fatalf("model = %v", model)
	}
}

func TestDecodeFailMicOnCorruptPayload(t *testing.T) {
	payload := buildPayload(t)
	payload[10] ^= 0xff // corrupt a payload byte after digest was computed
	whitened := make([]byte, len(payload))
	for i, b := range payload {
		whitened[i] = b ^ 0xaa
	}

	bm := &bitmatrix.Matrix{}
	addBitsFromBytes(bm, 0, preamble)
	addBitsFromBytes(bm, 0, whitened)

	result, _ := decode(bm, &registry.DecoderContext{})
	if result != registry.ResultFailMic {
		t.Fatalf("decode result = %v, want FailMic", result)
	}
}
