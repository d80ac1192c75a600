// Package trap defines the architectural interrupts of the machine and the
// shared pending-IRQ cell that external device threads inject into.
//
// Interrupts here are values, not control flow: decode, translation and
// execution return an *Interrupt through ordinary error returns, and the
// processor's step boundary consumes it. Nothing architectural ever
// panics.
package trap

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

type Kind int

const (
	// General protection. Unlike x86 this carries no error code, since
	// segments do not exist in the flat model.
	GeneralProtection Kind = iota

	// Page fault. Identical to x86: an error code plus the faulting
	// virtual address, which the processor latches into CR2.
	PageFault

	// Undefined opcode.
	Undefined

	// A fault taken while entering another interrupt's handler.
	DoubleFault

	// External hardware interrupt; the vector is the one the device
	// scheduled.
	IRQ
)

// An Interrupt is the value-level result of a failed decode, translation or
// instruction. It implements error so it can flow back through ordinary
// return paths to the step boundary.
type Interrupt struct {
	Kind      Kind
	ErrorCode uint32 // page fault only
	CR2       uint64 // page fault only: the faulting virtual address
	Vector    uint8  // IRQ only
}

func (i *Interrupt) Error() string {
	switch i.Kind {
	case GeneralProtection:
		return "GP"
	case PageFault:
		return fmt.Sprintf("PF(%X, %X)", i.ErrorCode, i.CR2)
	case Undefined:
		return "UD"
	case DoubleFault:
		return "DF"
	case IRQ:
		return fmt.Sprintf("IRQ(%d)", i.Vector)
	}
	return "?"
}

func GP() *Interrupt { return &Interrupt{Kind: GeneralProtection} }
func UD() *Interrupt { return &Interrupt{Kind: Undefined} }
func DF() *Interrupt { return &Interrupt{Kind: DoubleFault} }

func PF(errorCode uint32, cr2 uint64) *Interrupt {
	return &Interrupt{Kind: PageFault, ErrorCode: errorCode, CR2: cr2}
}

func Irq(vector uint8) *Interrupt {
	return &Interrupt{Kind: IRQ, Vector: vector}
}

// Table lookup vectors. IRQ vectors come from the device instead.
const (
	VecUndefined         = 0x06
	VecDoubleFault       = 0x08
	VecGeneralProtection = 0x0D
	VecPageFault         = 0x0E
)

// Slot returns the descriptor-table vector and error code pushed for i.
func (i *Interrupt) Slot() (vector uint64, errorCode uint32) {
	switch i.Kind {
	case Undefined:
		return VecUndefined, 0
	case DoubleFault:
		return VecDoubleFault, 0
	case GeneralProtection:
		return VecGeneralProtection, 0
	case PageFault:
		return VecPageFault, i.ErrorCode
	case IRQ:
		return uint64(i.Vector), 0
	}
	return 0, 0
}

// IsCanonical reports whether the high 17 bits of addr are all zero or all
// one. Everything else is a hole in the 48-bit address space and trips
// general protection before any page walk starts.
//
// https://en.wikipedia.org/wiki/X86-64#Canonical_form_addresses
func IsCanonical(addr uint64) bool {
	shifted := addr >> 47
	return shifted == 0 || shifted == 0x1FFFF
}

// IDTEntrySize is the in-memory stride of descriptor entries.
const IDTEntrySize = 16

// An IDTEntry is one 16-byte interrupt descriptor. The wire layout is an
// external contract: present at offset 0, the interrupt-disable flag at 1,
// the required privilege level at 2, and the little-endian service-routine
// address at 8.
type IDTEntry struct {
	Present bool

	// The interrupt-disable flag at offset 1. It is decoded but the
	// processor does not act on it: pending external IRQs are delivered
	// between instructions whether or not it is set.
	DisableInterrupts bool

	// Required privilege level. Checked on every delivery: an entry whose
	// RPL is below the current CPL escalates to a double fault.
	RPL int8

	ServiceRoutine uint64
}

// DecodeIDTEntry interprets 16 raw descriptor bytes.
func DecodeIDTEntry(raw [IDTEntrySize]byte) IDTEntry {
	return IDTEntry{
		Present:           raw[0] != 0,
		DisableInterrupts: raw[1] != 0,
		RPL:               int8(raw[2]),
		ServiceRoutine:    binary.LittleEndian.Uint64(raw[8:]),
	}
}

// The pending-IRQ cell. One external injector (a timer thread), one poller
// (the executor, between instructions). Later writes overwrite earlier
// ones; prioritization is the environment's problem.
var pending atomic.Uint32

// Schedule deposits vector for delivery before the next instruction.
// Callable from any goroutine.
func Schedule(vector uint8) {
	pending.Store(uint32(vector))
}

// TakePending atomically loads and clears the pending vector. Zero means
// nothing is pending.
func TakePending() uint8 {
	return uint8(pending.Swap(0))
}
