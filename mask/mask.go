// Package mask provides operations to extract bit fields from instruction
// bytes and to merge partial values into 64-bit registers.
//
// x86 packs its fields little-endian style, counting from bit 0 upward
// (ModR/M is mod<<6 | reg<<3 | rm, REX is 0100WRXB), so everything here is
// 0-indexed from the low end.

package mask

// Field extracts width bits of b starting at bit shift (bit 0 is the LSB).
//
// Field(0b11_010_001, 3, 3) == 0b010 -- the reg field of a ModR/M byte.
func Field(b byte, shift, width uint) byte {
	return (b >> shift) & ((1 << width) - 1)
}

// Bit reports whether bit pos of b is set. REX.W is Bit(rex, 3).
func Bit(b byte, pos uint) bool {
	return b&(1<<pos) != 0
}

// Insert replaces the low width bits of old with the low width bits of v,
// preserving everything above. This is the narrow-register-write primitive:
// writing 0xAB to al must leave the upper 56 bits of rax alone.
//
// width must be < 64; full-width writes don't need a merge.
func Insert(old, v uint64, width uint) uint64 {
	m := (uint64(1) << width) - 1
	return (old &^ m) | (v & m)
}

// SignExtend8 widens b to 64 bits, replicating bit 7.
func SignExtend8(b byte) uint64 {
	return uint64(int64(int8(b)))
}

// SignExtend32 widens v to 64 bits, replicating bit 31.
func SignExtend32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}
