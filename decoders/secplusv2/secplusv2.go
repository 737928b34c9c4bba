// Package secplusv2 decodes the Security+ 2.0 keyfob's OOK-PCM,
// Manchester-coded transmission, demonstrating the partial-message
// assembler from internal/pairing standing in for the original decoder's
// two bare global variables (spec.md §8 scenario 6, §9 design note).
//
// A Security+ 2.0 transmission arrives as two half-frames (frame type 0
// and frame type 1, or occasionally 0 and 0) that must be paired within an
// 800ms window before the 28 ternary rolling-code digits can be
// reconstructed. The exact wire layout is not given in the corpus beyond
// the preamble and digit count; this implementation follows the scenario's
// documented shape (preamble aaaa9560, 14-bit header, 72-bit payload,
// ternary digits packed two bits each) without claiming bit-exact parity
// with the original C decoder. The header and payload bits are read as-is
// from the sliced row; no Manchester decoding step is applied to them.
package secplusv2

import (
	"fmt"
	"time"

	"github.com/merbanan/rtl-433-sub009/bitmatrix"
	"github.com/merbanan/rtl-433-sub009/internal/pairing"
	"github.com/merbanan/rtl-433-sub009/pulse"
	"github.com/merbanan/rtl-433-sub009/registry"
)

var preamble = []byte{0xaa, 0xaa, 0x95, 0x60}

var preambleBits = 8 * len(preamble)

const (
	headerBits   = 14
	payloadBits  = 72
	pairWindow   = 800 * time.Millisecond
	numDigits    = 28
)

type half struct {
	frameType int
	bits      []int
}

// New creates the Security+ 2.0 DecoderSpec, with its own partial-message
// store (spec.md §9: "move into a per-decoder context ... zeroed at
// registration").
func New() registry.DecoderSpec {
	d := &decoderState{store: pairing.New(pairWindow)}
	return registry.DecoderSpec{
		Name:         "Secplus-v2",
		Modulation:   registry.OOKPCM,
		ShortWidthUs: 250,
		LongWidthUs:  250,
		ResetLimitUs: 5000,
		Decode:       d.decode,
		Fields:       []string{"model", "id", "rolling_code", "fixed_code"},
	}
}

// Spec is a convenience wrapper equivalent to New(), matching the other
// reference decoders' Spec() naming.
func Spec() registry.DecoderSpec { return New() }

type decoderState struct {
	store *pairing.Store
}

func (d *decoderState) decode(bm *bitmatrix.Matrix, ctx *registry.DecoderContext) (registry.DecodeResult, []*pulse.Record) {
	var row int = -1
	for r := 0; r < bitmatrix.NRows; r++ {
		if bm.BitLen(r) >= preambleBits+headerBits+payloadBits {
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

	header := extractBits(bm, row, pos, headerBits)
	pos += headerBits
	payload := extractBits(bm, row, pos, payloadBits)

	frameType := header[0]<<1 | header[1]
	deviceID := bitsToInt(header[2:])

	now := time.Now()
	key := fmt.Sprintf("%d", deviceID)

	other, ok := d.store.Take(key, now)
	if !ok {
		d.store.Put(key, half{frameType: frameType, bits: payload}, now)
		return registry.ResultAbortEarly, nil
	}

	first := other.(half)
	if !validFramePair(first.frameType, frameType) {
		d.store.Put(key, half{frameType: frameType, bits: payload}, now)
		return registry.ResultAbortEarly, nil
	}

	if !checkParity(first.bits) || !checkParity(payload) {
		return registry.ResultFailMic, nil
	}

	rolling, fixed, ok := reconstructRollingCode(first.bits, payload)
	if !ok {
		return registry.ResultFailSanity, nil
	}
	if rolling >= 1<<numDigits {
		return registry.ResultFailSanity, nil
	}

	rec := pulse.NewRecord("Secplus-v2").
		Set("id", fmt.Sprintf("%x", deviceID)).
		Set("rolling_code", fmt.Sprintf("%07x", rolling)).
		Set("fixed_code", fmt.Sprintf("%x", fixed))

	_ = ctx
	return registry.ResultOk, []*pulse.Record{rec}
}

func extractBits(bm *bitmatrix.Matrix, row, offset, n int) []int {
	dst := make([]byte, (n+7)/8)
	bm.ExtractBytes(row, offset, n, dst)
	bits := make([]int, n)
	for i := 0; i < n; i++ {
		byteIdx := i / 8
		bitIdx := uint(7 - i%8)
		if dst[byteIdx]&(1<<bitIdx) != 0 {
			bits[i] = 1
		}
	}
	return bits
}

func bitsToInt(bits []int) int {
	v := 0
	for _, b := range bits {
		v = v<<1 | b
	}
	return v
}

// validFramePair accepts the two documented pairings: (0,1) or (0,0).
func validFramePair(a, b int) bool {
	return (a == 0 && b == 1) || (a == 0 && b == 0)
}

// checkParity is a placeholder for v2_check_parity: the real algorithm is
// not given in the corpus beyond its name, so this applies an overall
// even-parity check across the half-frame as a structural sanity gate.
func checkParity(bits []int) bool {
	sum := 0
	for _, b := range bits {
		sum += b
	}
	return sum%2 == 0
}

// reconstructRollingCode folds the two half-frames' payload bits into 28
// ternary digits (2 bits each), rejecting any digit pattern of 11
// (invalid trit), and packs them into a rolling code plus whatever bits
// remain as the fixed code.
func reconstructRollingCode(a, b []int) (rolling, fixed int, ok bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	xored := make([]int, n)
	for i := 0; i < n; i++ {
		xored[i] = a[i] ^ b[i]
	}
	if len(xored) < 2*numDigits {
		return 0, 0, false
	}
	for d := 0; d < numDigits; d++ {
		hi, lo := xored[2*d], xored[2*d+1]
		if hi == 1 && lo == 1 {
			return 0, 0, false
		}
		trit := hi<<1 | lo // 0, 1, or 2 (10 -> trit 2)
		rolling = rolling*3 + trit
	}
	for i := 2 * numDigits; i < len(xored); i++ {
		fixed = fixed<<1 | xored[i]
	}
	return rolling, fixed, true
}
