package integrity

import "testing"

func TestReverse8Involution(t *testing.T) {
	for x := 0; x < 256; x++ {
		got := Reverse8(Reverse8(byte(x)))
		if got != byte(x) {
			t.Fatalf("Reverse8(Reverse8(%d)) = %d, want %d", x, got, x)
		}
	}
}

func TestReflectNibblesInvolution(t *testing.T) {
	buf := []byte{0x12, 0x9A, 0xFF, 0x00, 0x5C}
	orig := append([]byte(nil), buf...)
	ReflectNibbles(buf)
	ReflectNibbles(buf)
	for i := range buf {
		if buf[i] != orig[i] {
			t.Fatalf("ReflectNibbles twice != identity at %d: got %#x want %#x", i, buf[i], orig[i])
		}
	}
}

func TestCRCEmptyReturnsInit(t *testing.T) {
	if got := CRC4(nil, 0x3, 0x5); got != (byte(0x5)<<4)>>4&0x0f {
		t.Fatalf("CRC4(nil) = %#x", got)
	}
	if got := CRC8(nil, 0x07, 0x5A); got != 0x5A {
		t.Fatalf("CRC8(nil) = %#x, want init 0x5A", got)
	}
	if got := CRC16(nil, 0x1021, 0xBEEF); got != 0xBEEF {
		t.Fatalf("CRC16(nil) = %#x, want init", got)
	}
	if got := LFSRDigest8(nil, 0x31, 0x7C); got != 0 {
		t.Fatalf("LFSRDigest8(nil) = %#x, want 0", got)
	}
}

func TestCRC8StandardVector(t *testing.T) {
	// CRC-8 (poly 0x07, init 0x00), ASCII "123456789" -> check value 0xF4.
	buf := []byte("123456789")
	got := CRC8(buf, 0x07, 0x00)
	if got != 0xF4 {
		t.Fatalf("CRC8(\"123456789\") = %#x, want 0xf4", got)
	}
}

func TestCRC16StandardVector(t *testing.T) {
	// CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF), ASCII "123456789" -> 0x29B1.
	buf := []byte("123456789")
	got := CRC16(buf, 0x1021, 0xFFFF)
	if got != 0x29B1 {
		t.Fatalf("CRC16(\"123456789\") = %#x, want 0x29b1", got)
	}
}

func TestCRCDeterministic(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0xAA}
	if CRC7(buf, 0x09, 0) != CRC7(buf, 0x09, 0) {
		t.Fatalf("CRC7 not deterministic")
	}
	if CRC8LE(buf, 0x31, 0xff) != CRC8LE(buf, 0x31, 0xff) {
		t.Fatalf("CRC8LE not deterministic")
	}
	if CRC16LSB(buf, 0x8408, 0xffff) != CRC16LSB(buf, 0x8408, 0xffff) {
		t.Fatalf("CRC16LSB not deterministic")
	}
}

func TestLFSRDigest16LinearOverGF2(t *testing.T) {
	m1 := []byte{0x12, 0x34, 0x56, 0x78}
	m2 := []byte{0xAB, 0xCD, 0xEF, 0x01}
	xored := make([]byte, len(m1))
	for i := range m1 {
		xored[i] = m1[i] ^ m2[i]
	}

	const gen, key = 0x8810, 0xBA95
	d1 := LFSRDigest16(m1, gen, key)
	d2 := LFSRDigest16(m2, gen, key)
	dXor := LFSRDigest16(xored, gen, key)

	if dXor != d1^d2 {
		t.Fatalf("LFSRDigest16 not linear: d(m1^m2)=%#x, d(m1)^d(m2)=%#x", dXor, d1^d2)
	}
}

func TestParity8(t *testing.T) {
	cases := map[byte]byte{
		0x00: 0,
		0x01: 1,
		0x03: 0,
		0xFF: 0,
		0x80: 1,
	}
	for in, want := range cases {
		if got := Parity8(in); got != want {
			t.Fatalf("Parity8(%#x) = %d, want %d", in, got, want)
		}
	}
}

func TestAddBytesAndNibbles(t *testing.T) {
	buf := []byte{0x12, 0x34, 0xFF}
	if got := AddBytes(buf); got != 0x12+0x34+0xFF {
		t.Fatalf("AddBytes = %d", got)
	}
	if got := AddNibbles(buf); got != (1+2)+(3+4)+(15+15) {
		t.Fatalf("AddNibbles = %d", got)
	}
}

func TestExtractNibbles4b1s(t *testing.T) {
	// Two groups: nibble 0b1010 + stuff 1, nibble 0b0101 + stuff 1.
	src := []byte{0b10101_010, 0b11_000000}
	dst := make([]byte, 1)
	n, ok := ExtractNibbles4b1s(src, 0, 10, dst)
	if !ok || n != 2 {
		t.Fatalf("ExtractNibbles4b1s: n=%d ok=%v, want 2,true", n, ok)
	}
	if dst[0] != 0xA5 {
		t.Fatalf("dst[0] = %#x, want 0xa5", dst[0])
	}
}

func TestExtractNibbles4b1sAbortsOnStuffViolation(t *testing.T) {
	// stuff bit is 0 instead of 1: abort.
	src := []byte{0b1010_0010}
	dst := make([]byte, 1)
	n, ok := ExtractNibbles4b1s(src, 0, 5, dst)
	if ok || n != 0 {
		t.Fatalf("ExtractNibbles4b1s should abort on stuff violation, got n=%d ok=%v", n, ok)
	}
}

func TestExtractBytesUART(t *testing.T) {
	// start=0, data=0xA5 LSB-first (1,0,1,0,0,1,0,1), stop=1
	// data bits to transmit LSB-first: bit0=1,bit1=0,bit2=1,bit3=0,bit4=0,bit5=1,bit6=0,bit7=1
	bits := []int{0, 1, 0, 1, 0, 0, 1, 0, 1, 1}
	src := packBits(bits)
	dst := make([]byte, 1)
	n, ok := ExtractBytesUART(src, 0, 10, dst)
	if !ok || n != 1 {
		t.Fatalf("ExtractBytesUART: n=%d ok=%v", n, ok)
	}
	want := Reverse8(0xA5)
	if dst[0] != want {
		t.Fatalf("dst[0] = %#x, want %#x", dst[0], want)
	}
}

func TestExtractBytesUARTAbortsOnFramingError(t *testing.T) {
	// start bit is 1 (invalid)
	bits := []int{1, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	src := packBits(bits)
	dst := make([]byte, 1)
	n, ok := ExtractBytesUART(src, 0, 10, dst)
	if ok || n != 0 {
		t.Fatalf("expected framing error, got n=%d ok=%v", n, ok)
	}
}

func TestExtractBitsSymbols(t *testing.T) {
	zero := Symbol(0b10, 2)
	one := Symbol(0b01, 2)
	sync := Symbol(0b1111, 4)
	bits := []int{}
	bits = append(bits, 1, 1, 1, 1) // sync
	bits = append(bits, 1, 0)       // zero
	bits = append(bits, 0, 1)       // one
	bits = append(bits, 1, 0)       // zero
	src := packBits(bits)
	dst := make([]byte, 1)
	n, ok := ExtractBitsSymbols(src, 0, len(bits), zero, one, sync, dst)
	if !ok || n != 3 {
		t.Fatalf("ExtractBitsSymbols: n=%d ok=%v", n, ok)
	}
	if dst[0] != 0b010_00000 {
		t.Fatalf("dst[0] = %08b, want 01000000", dst[0])
	}
}

func packBits(bits []int) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b == 0 {
			continue
		}
		out[i/8] |= 1 << uint(7-i%8)
	}
	return out
}
