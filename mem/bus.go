package mem

// A Bus is the physical side of the memory system: it connects the
// processor to one or more 'hardware' memory modules, each claiming a
// disjoint [base, base+size) window of the 64-bit physical address space.
//
// CPU                         DEVICES (port bus, separate)
//  |
//  |  0x0000_0000  RAM (sparse pages)
//  |  0x000F_0000  ROM (boot image)
//  |  ...
//  |------------------------------------ physical bus
//
// Reads from addresses no module claims float high (0xFF, all lines
// pulled up); writes to them go nowhere. The bus itself has no notion of
// paging -- that is the MMU's job, one layer up.

import (
	"sort"

	"gox86/logger"
)

// A Module is a byte-addressable memory backend. Offsets handed to a
// Module are window-relative: they are already reduced by the window base and
// lie in [0, size).
type Module interface {
	ReadU8(offset uint64) byte
	WriteU8(offset uint64, v byte)
}

const pageSize = 1 << 12

// RAM is conventional read-write memory, allocated lazily in 4 KiB pages
// so a multi-gigabyte window costs nothing until the guest touches it.
type RAM struct {
	pages map[uint64]*[pageSize]byte
}

func NewRAM() *RAM {
	return &RAM{pages: map[uint64]*[pageSize]byte{}}
}

func (r *RAM) page(offset uint64) *[pageSize]byte {
	base := offset &^ (pageSize - 1)
	p, ok := r.pages[base]
	if !ok {
		p = &[pageSize]byte{}
		r.pages[base] = p
	}
	return p
}

func (r *RAM) ReadU8(offset uint64) byte {
	// untouched pages read as zero without being allocated
	p, ok := r.pages[offset&^(pageSize-1)]
	if !ok {
		return 0
	}
	return p[offset&(pageSize-1)]
}

func (r *RAM) WriteU8(offset uint64, v byte) {
	r.page(offset)[offset&(pageSize-1)] = v
}

// ROM is a fixed image padded with zeros to the size of its window.
// Writes are dropped on the floor, as the silicon would.
type ROM struct {
	data []byte
}

// NewROM pads image out to size. An image larger than its window is a
// bring-up error, not something the guest can recover from.
func NewROM(image []byte, size uint64) *ROM {
	if uint64(len(image)) > size {
		logger.Fatal("ROM image is larger than its window",
			"image", len(image), "window", size)
	}
	data := make([]byte, size)
	copy(data, image)
	return &ROM{data: data}
}

func (r *ROM) ReadU8(offset uint64) byte {
	return r.data[offset] // in bounds: the bus already range-checked
}

func (r *ROM) WriteU8(offset uint64, v byte) {}

type window struct {
	begin, end uint64
	module     Module
}

// Bus maps physical address windows to Modules. Windows are kept sorted
// by begin so lookup is a predecessor query; since windows never overlap
// the predecessor is the only candidate.
type Bus struct {
	windows []window
}

func NewBus() *Bus {
	return &Bus{}
}

// Add claims [base, base+size) for module. A window that would wrap the
// 64-bit address space is a bring-up error.
func (b *Bus) Add(base, size uint64, module Module) {
	end := base + size
	if end < base {
		logger.Fatal("memory window overflows the 64-bit address space",
			"base", base, "size", size)
	}
	i := sort.Search(len(b.windows), func(i int) bool {
		return b.windows[i].begin >= base
	})
	b.windows = append(b.windows, window{})
	copy(b.windows[i+1:], b.windows[i:])
	b.windows[i] = window{begin: base, end: end, module: module}
}

// find returns the window containing addr, or nil.
func (b *Bus) find(addr uint64) *window {
	// predecessor: the last window with begin <= addr
	i := sort.Search(len(b.windows), func(i int) bool {
		return b.windows[i].begin > addr
	})
	if i == 0 {
		return nil
	}
	w := &b.windows[i-1]
	if addr >= w.end {
		return nil
	}
	return w
}

func (b *Bus) ReadU8(addr uint64) byte {
	if w := b.find(addr); w != nil {
		return w.module.ReadU8(addr - w.begin)
	}
	return 0xFF
}

func (b *Bus) WriteU8(addr uint64, v byte) {
	if w := b.find(addr); w != nil {
		w.module.WriteU8(addr-w.begin, v)
	}
}

// Multi-byte accessors compose bytes little-endian. They do not check
// that the span stays inside one window; callers that care must align.

func (b *Bus) ReadU64(addr uint64) uint64 {
	var v uint64
	for i := uint64(0); i < 8; i++ {
		v |= uint64(b.ReadU8(addr+i)) << (8 * i)
	}
	return v
}

func (b *Bus) WriteU64(addr uint64, v uint64) {
	for i := uint64(0); i < 8; i++ {
		b.WriteU8(addr+i, byte(v>>(8*i)))
	}
}
