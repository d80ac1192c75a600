package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestField(t *testing.T) {
	// ModR/M 0b11_010_001: mod=3, reg=2, rm=1
	assert.Equal(t, Field(0b11_010_001, 6, 2), byte(0b11))
	assert.Equal(t, Field(0b11_010_001, 3, 3), byte(0b010))
	assert.Equal(t, Field(0b11_010_001, 0, 3), byte(0b001))

	// SIB 0b10_001_000: scale=2, index=1, base=0
	assert.Equal(t, Field(0b10_001_000, 6, 2), byte(0b10))
	assert.Equal(t, Field(0b10_001_000, 3, 3), byte(0b001))
	assert.Equal(t, Field(0b10_001_000, 0, 3), byte(0b000))

	assert.Equal(t, Field(0xff, 0, 8), byte(0xff))
	assert.Equal(t, Field(0xff, 7, 1), byte(1))
}

func TestBit(t *testing.T) {
	// REX 0x48 = 0100_1000: W set, R/X/B clear
	assert.True(t, Bit(0x48, 3))
	assert.False(t, Bit(0x48, 2))
	assert.False(t, Bit(0x48, 1))
	assert.False(t, Bit(0x48, 0))

	// REX 0x41 = 0100_0001: only B
	assert.False(t, Bit(0x41, 3))
	assert.True(t, Bit(0x41, 0))
}

func TestInsert(t *testing.T) {
	old := uint64(0x1122_3344_5566_7788)

	assert.Equal(t, Insert(old, 0xAB, 8), uint64(0x1122_3344_5566_77AB))
	assert.Equal(t, Insert(old, 0xABCD, 16), uint64(0x1122_3344_5566_ABCD))
	assert.Equal(t, Insert(old, 0xDEAD_BEEF, 32), uint64(0x1122_3344_DEAD_BEEF))

	// the value is truncated to width before merging
	assert.Equal(t, Insert(0, 0xFFFF, 8), uint64(0xFF))
}

func TestSignExtend(t *testing.T) {
	assert.Equal(t, SignExtend8(0x7F), uint64(0x7F))
	assert.Equal(t, SignExtend8(0x80), uint64(0xFFFF_FFFF_FFFF_FF80))
	assert.Equal(t, SignExtend8(0xFE), uint64(0xFFFF_FFFF_FFFF_FFFE)) // jmp short -2

	assert.Equal(t, SignExtend32(0x7FFF_FFFF), uint64(0x7FFF_FFFF))
	assert.Equal(t, SignExtend32(0x8000_0000), uint64(0xFFFF_FFFF_8000_0000))
}

func BenchmarkField(b *testing.B) {
	for range b.N {
		Field(0b11_010_001, 3, 3)
	}
}

func BenchmarkInsert(b *testing.B) {
	for range b.N {
		Insert(0x1122_3344_5566_7788, 0xAB, 8)
	}
}
