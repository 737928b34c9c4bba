package infactory

import (
	"testing"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/integrity"
	"github.com/merbanan/rtl-433-sub009/registry"
)

func addBitsFromBytes(bm *bitmatrix.Matrix, row int, buf []byte) {
	for _, b := range buf {
		for i := 7; i >= 0; i-- {
			bm.AddBit(row, int((b>>uint(i))&1))
		}
	}
}

func buildMessage(t *testing.T) [5]byte {
	t.Helper()
	var b [5]byte
	b[0] = 0xa1
	b[2] = 0x64
	b[3] = 0x20
	b[4] = 0x01 // nonzero low nibble (channel), required for sanity check

	reordered := []byte{b[0], b[2], b[3], b[4]}
	crc := integrity.CRC4(reordered, 0x3, 0x0)
	b[1] = crc << 4
	return b
}

func TestDecodeOk(t *testing.T) {
	b := buildMessage(t)
	bm := &bitmatrix.Matrix{}
	addBitsFromBytes(bm, 0, b[:])

	result, recs := decode(bm, &registry.DecoderContext{})
	if result != registry.ResultOk {
		t.Fatalf("decode result = %v, want Ok", result)
	}
	channel, _ := recs[0].Get("channel")
	if channel != 1 {
		t.Fatalf("channel = %v, want 1", channel)
	}
}

func TestDecodeFailMicOnCorruptCRC(t *testing.T) {
	b := buildMessage(t)
	b[1] ^= 0xf0
	bm := &bitmatrix.Matrix{}
	addBitsFromBytes(bm, 0, b[:])

	result, _ := decode(bm, &registry.DecoderContext{})
	if result != registry.ResultFailMic {
		t.Fatalf("decode result = %v, want FailMic", result)
	}
}
