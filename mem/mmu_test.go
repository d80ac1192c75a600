package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gox86/trap"
)

// identityMMU builds 4 MiB of RAM with page tables at 0x1000..0x4FFF
// identity-mapping the first 2 MiB of the address space.
func identityMMU() *MMU {
	bus := NewBus()
	bus.Add(0, 1<<22, NewRAM())
	bus.WriteU64(0x1000, 0x2000|entryPresent)
	bus.WriteU64(0x2000, 0x3000|entryPresent)
	bus.WriteU64(0x3000, 0x4000|entryPresent)
	for i := uint64(0); i < 512; i++ {
		bus.WriteU64(0x4000+8*i, i<<12|entryPresent)
	}
	m := NewMMU(bus)
	m.SetPageRoot(0x1000)
	return m
}

func pageFault(t *testing.T, err error, cr2 uint64) {
	t.Helper()
	intr, ok := err.(*trap.Interrupt)
	assert.True(t, ok)
	assert.Equal(t, trap.PageFault, intr.Kind)
	assert.Equal(t, uint32(0), intr.ErrorCode)
	assert.Equal(t, cr2, intr.CR2)
}

func TestRoundTrip(t *testing.T) {
	m := identityMMU()

	assert.NoError(t, m.WriteU64(0x6000, 0xDEAD_BEEF_CAFE_BABE))
	v, err := m.ReadU64(0x6000)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0xDEAD_BEEF_CAFE_BABE), v)

	// identity mapping: the physical bytes are where the virtual ones are
	assert.Equal(t, byte(0xBE), m.Bus().ReadU8(0x6000))
	assert.Equal(t, byte(0xDE), m.Bus().ReadU8(0x6007))
}

func TestCanonicalCheck(t *testing.T) {
	m := identityMMU()

	for _, va := range []uint64{
		1 << 47,
		0xFFFF_7FFF_FFFF_FFFF,
		0x0001_0000_0000_0000,
	} {
		_, err := m.ReadU8(va)
		intr, ok := err.(*trap.Interrupt)
		assert.True(t, ok)
		assert.Equal(t, trap.GeneralProtection, intr.Kind)

		err = m.WriteU8(va, 0)
		intr, ok = err.(*trap.Interrupt)
		assert.True(t, ok)
		assert.Equal(t, trap.GeneralProtection, intr.Kind)
	}

	// the high half is canonical and walks fine (entries absent, so it
	// page-faults rather than GP-faults)
	_, err := m.ReadU8(0xFFFF_8000_0000_0000)
	pageFault(t, err, 0xFFFF_8000_0000_0000)
}

func TestPageFaultEachLevel(t *testing.T) {
	m := identityMMU()

	// level 1: a root with no entries at all
	m.SetPageRoot(0x7000) // untouched ram, all entries zero
	_, err := m.ReadU8(0)
	pageFault(t, err, 0)
	m.SetPageRoot(0x1000)

	// level 2: root entry 1 is absent
	_, err = m.ReadU8(1 << 39)
	pageFault(t, err, 1<<39)

	// level 3: second-level entry 1 is absent
	_, err = m.ReadU8(1 << 30)
	pageFault(t, err, 1<<30)

	// level 4: third-level entry 1 is absent
	_, err = m.ReadU8(1 << 21)
	pageFault(t, err, 1<<21)

	// last level: knock out one frame entry
	m.Bus().WriteU64(0x4000+8*5, 0)
	_, err = m.ReadU8(0x5123)
	pageFault(t, err, 0x5123) // cr2 is the address, not the page
}

func TestPageBoundaryCrossing(t *testing.T) {
	m := identityMMU()

	// page 6 present, page 7 not
	m.Bus().WriteU64(0x4000+8*7, 0)

	// a u64 write straddling 0x7000 faults on the fifth byte, with the
	// first four already committed
	err := m.WriteU64(0x6FFC, 0x1111_2222_3333_4444)
	pageFault(t, err, 0x7000)
	assert.Equal(t, byte(0x44), m.Bus().ReadU8(0x6FFC))
	assert.Equal(t, byte(0x33), m.Bus().ReadU8(0x6FFE))
	assert.Equal(t, byte(0x33), m.Bus().ReadU8(0x6FFF))

	// a straddling read faults without observing anything
	_, err = m.ReadU64(0x6FFC)
	pageFault(t, err, 0x7000)
}

func TestSetPageRootSwitchesTables(t *testing.T) {
	m := identityMMU()

	// a second set of tables at 0x8000.. mapping va 0 to pa 0x2_0000
	bus := m.Bus()
	bus.WriteU64(0x8000, 0x9000|entryPresent)
	bus.WriteU64(0x9000, 0xA000|entryPresent)
	bus.WriteU64(0xA000, 0xB000|entryPresent)
	bus.WriteU64(0xB000, 0x2_0000|entryPresent)

	assert.NoError(t, m.WriteU8(0, 0x11))
	m.SetPageRoot(0x8000)
	assert.NoError(t, m.WriteU8(0, 0x22))

	assert.Equal(t, byte(0x11), bus.ReadU8(0))
	assert.Equal(t, byte(0x22), bus.ReadU8(0x2_0000))
}

func TestReadWidths(t *testing.T) {
	m := identityMMU()

	assert.NoError(t, m.WriteU64(0x6000, 0x8877_6655_4433_2211))

	v16, err := m.ReadU16(0x6000)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x2211), v16)

	v32, err := m.ReadU32(0x6000)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x4433_2211), v32)

	assert.NoError(t, m.WriteU16(0x6100, 0xBEEF))
	assert.NoError(t, m.WriteU32(0x6200, 0xCAFE_F00D))
	assert.Equal(t, byte(0xEF), m.Bus().ReadU8(0x6100))
	assert.Equal(t, byte(0x0D), m.Bus().ReadU8(0x6200))
}
