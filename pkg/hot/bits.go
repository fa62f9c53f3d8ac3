package hot

import (
	"encoding/binary"
	"math/bits"
)

// bitAt returns the bit of key at bitPos, counting from the most
// significant bit of byte 0. Positions past the end of key read as 0,
// which is what lets two keys of different lengths still compare as a
// well-ordered crit-bit trie: a short key behaves as though padded with
// trailing zero bits.
func bitAt(key []byte, bitPos uint32) byte {
	byteIdx := int(bitPos / 8)
	if byteIdx >= len(key) {
		return 0
	}
	shift := 7 - uint(bitPos%8)
	return (key[byteIdx] >> shift) & 1
}

// firstDifferingBit returns the position of the first bit at which a and
// b disagree, treating a short key as zero-padded. ok is false when a and
// b are bit-for-bit identical (including trailing zero padding), i.e. the
// same key.
func firstDifferingBit(a, b []byte) (pos uint32, ok bool) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av == bv {
			continue
		}
		diff := av ^ bv
		return uint32(i*8) + uint32(bits.LeadingZeros8(diff)), true
	}
	return 0, false
}

// singleBitMask returns the 8-byte-word mask selecting exactly the one
// bit at bitPos within an 8-byte window starting at the window's own
// offset (bitPos is relative to that window, not the whole key).
func singleBitMask(bitPos uint32) uint64 {
	return uint64(1) << uint(63-bitPos)
}

// PartialKeyWindow is one extraction window of spec §4.4.3's partial-key
// mapping: an 8-byte big-endian word read at OffsetBytes, compressed
// (PEXT-style) through Mask. A node with a single window is the
// single-mask form (discriminative bits spanning at most 8 contiguous
// bytes); concatenating up to four windows gives the multi-mask form for
// discriminative bits spread wider than that (spec §4.4.3).
type PartialKeyWindow struct {
	OffsetBytes uint8
	Mask        uint64
}

// readWindowWord reads the 8-byte big-endian word at offset, treating any
// byte past the end of key as zero.
func readWindowWord(key []byte, offset uint8) uint64 {
	var buf [8]byte
	off := int(offset)
	for i := 0; i < 8; i++ {
		if off+i < len(key) {
			buf[i] = key[off+i]
		}
	}
	return binary.BigEndian.Uint64(buf[:])
}

// compress is the software parallel-bit-extract (PEXT) spec §4.4.3
// describes: it gathers the bits of word selected by mask, in order of
// descending significance, packing them into the low bits of the result.
// Go exposes no portable PEXT intrinsic, so this scalar routine is the
// one implementation every partial-key extraction, and both search paths
// below, build on.
func compress(word, mask uint64) (value uint64, width int) {
	for bitPos := 63; bitPos >= 0; bitPos-- {
		if mask&(uint64(1)<<uint(bitPos)) != 0 {
			value <<= 1
			value |= (word >> uint(bitPos)) & 1
			width++
		}
	}
	return value, width
}

// extractPartialKey computes key's dense partial key by compressing each
// of windows in turn and concatenating the results MSB-first: the
// single-mask form is just one window, the multi-mask form up to four
// (spec §4.4.3).
func extractPartialKey(key []byte, windows []PartialKeyWindow) (value uint32, width int) {
	var v uint64
	w := 0
	for _, win := range windows {
		word := readWindowWord(key, win.OffsetBytes)
		cv, cw := compress(word, win.Mask)
		v = v<<uint(cw) | cv
		w += cw
	}
	return uint32(v), w
}

// scalarSearch finds the child whose sparse partial key keys[i] best
// matches d under spec §4.4.4's subset-test predicate "(d & s) == s":
// among every i satisfying the predicate (the all-zero pattern always
// does, making it the fallback when nothing more specific matches), the
// one requiring the most bits wins, the same tie-break a longest-prefix
// match uses. Always returns a valid index into keys.
func scalarSearch(d uint32, keys []uint32) int {
	best, bestPop := 0, -1
	for i, s := range keys {
		if d&s != s {
			continue
		}
		if p := bits.OnesCount32(s); p > bestPop {
			best, bestPop = i, p
		}
	}
	return best
}

// simdSearch computes the identical result to scalarSearch using a
// batched bit-trick: partial keys are packed two per uint64 word — the
// portable stand-in for a hardware broadcast+AND+compare register, since
// Go has no portable SIMD intrinsic — and matched against a broadcast
// copy of d in every lane at once. 32-bit-aligned lanes inside a 64-bit
// word never let one lane's AND leak into its neighbor, so this must
// agree with scalarSearch bit-for-bit; that agreement is spec §8's
// testable property "simd_search(d) == scalar_search(d)" (property #8).
func simdSearch(d uint32, keys []uint32) int {
	const lanesPerWord = 2
	broadcast := uint64(d) | uint64(d)<<32
	best, bestPop := 0, -1
	for base := 0; base < len(keys); base += lanesPerWord {
		end := base + lanesPerWord
		if end > len(keys) {
			end = len(keys)
		}
		var packed uint64
		for j := base; j < end; j++ {
			packed |= uint64(keys[j]) << uint((j-base)*32)
		}
		anded := broadcast & packed
		for j := base; j < end; j++ {
			lane := uint32(anded >> uint((j-base)*32))
			s := keys[j]
			if lane != s {
				continue
			}
			if p := bits.OnesCount32(s); p > bestPop {
				best, bestPop = j, p
			}
		}
	}
	return best
}
