// Package cpu implements the processor: a 16-register 64-bit machine
// with four privilege levels, port I/O, and an x86-style hardware
// interrupt protocol, stepped one instruction at a time over a paging
// MMU.

package cpu

import (
	"fmt"
	"io"
	"log/slog"

	"gox86/dev"
	"gox86/logger"
	"gox86/mask"
	"gox86/mem"
	"gox86/trap"
)

// Register indices. The file is flat; the classic names are just
// conventions over indices 0..15.
//
//	0 rax   1 rcx   2 rdx   3 rbx   4 rsp   5 rbp   6 rsi   7 rdi
//	8..15 r8..r15
const (
	RegA  = 0 // implicit operand of in/out
	RegDX = 2 // implicit port register of the in/out D forms
	RegSP = 4 // stack pointer, used by push/pop/iret and interrupt entry
)

var regNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// The Cpu owns every piece of architectural state except physical memory
// contents (the MMU's bus) and device internals. It is single-threaded:
// the only thing another goroutine may touch is the pending-IRQ cell in
// package trap.
type Cpu struct {
	Mem   *mem.MMU
	Ports *dev.PortBus

	// The primary register file, always available.
	Regs [16]uint64

	// Latched faulting address of the last page fault. Privileged.
	CR2 uint64

	RFlags uint64

	// The next instruction to execute. Always, at the top of a step.
	RIP uint64

	// Current privilege level, 0 (most) to 3 (least).
	CPL int8

	// Virtual address of the interrupt descriptor table.
	IDT uint64

	// Where to put the stack frame when an interrupt arrives at CPL > 0.
	InterruptStack uint64

	// The address of the instruction after the current one. Valid only
	// during execution of a step: rip-relative operands resolve against
	// it, control transfers overwrite it, and Step commits it to RIP
	// when the instruction retires without faulting.
	nextRIP uint64
}

func New(m *mem.MMU, ports *dev.PortBus) *Cpu {
	return &Cpu{Mem: m, Ports: ports}
}

// Narrow register writes follow x86 lane semantics: 8- and 16-bit writes
// merge into the low lanes, 32-bit writes zero the upper half, 64-bit
// writes replace. Reads just truncate.

func (c *Cpu) WriteReg8(reg byte, v byte) {
	c.Regs[reg] = mask.Insert(c.Regs[reg], uint64(v), 8)
}

func (c *Cpu) WriteReg16(reg byte, v uint16) {
	c.Regs[reg] = mask.Insert(c.Regs[reg], uint64(v), 16)
}

func (c *Cpu) WriteReg32(reg byte, v uint32) {
	c.Regs[reg] = uint64(v)
}

func (c *Cpu) WriteReg64(reg byte, v uint64) {
	c.Regs[reg] = v
}

func (c *Cpu) ReadReg8(reg byte) byte    { return byte(c.Regs[reg]) }
func (c *Cpu) ReadReg16(reg byte) uint16 { return uint16(c.Regs[reg]) }
func (c *Cpu) ReadReg32(reg byte) uint32 { return uint32(c.Regs[reg]) }
func (c *Cpu) ReadReg64(reg byte) uint64 { return c.Regs[reg] }

// effAddr evaluates the effective address of a memory-form RM.
// Rip-relative operands are relative to the instruction after this one.
// The 16-bit truncation under the address override follows the ISA
// document as written.
func (c *Cpu) effAddr(rm RM) uint64 {
	var ea uint64
	switch rm.Kind {
	case RMRipRel:
		ea = c.nextRIP + uint64(rm.Disp)
	case RMMem:
		var base, index uint64
		if rm.Base != NoBase {
			base = c.Regs[rm.Base]
		}
		if rm.Index != NoIndex {
			index = c.Regs[rm.Index]
		}
		// rm.Seg is carried but not applied: fsbase/gsbase are not
		// modeled, so FS/GS contribute a zero base
		ea = base + index<<rm.Scale + uint64(rm.Disp)
	}
	if rm.AddrOverride {
		ea &= 0xFFFF
	}
	return ea
}

// readRM reads an RM operand of the given byte width (1, 2, 4 or 8),
// zero-extended. Register forms can't fault; memory forms can.
func (c *Cpu) readRM(rm RM, width uint) (uint64, error) {
	if rm.Kind == RMReg {
		switch width {
		case 1:
			return uint64(c.ReadReg8(rm.Reg)), nil
		case 2:
			return uint64(c.ReadReg16(rm.Reg)), nil
		case 4:
			return uint64(c.ReadReg32(rm.Reg)), nil
		default:
			return c.ReadReg64(rm.Reg), nil
		}
	}
	ea := c.effAddr(rm)
	switch width {
	case 1:
		v, err := c.Mem.ReadU8(ea)
		return uint64(v), err
	case 2:
		v, err := c.Mem.ReadU16(ea)
		return uint64(v), err
	case 4:
		v, err := c.Mem.ReadU32(ea)
		return uint64(v), err
	default:
		return c.Mem.ReadU64(ea)
	}
}

// writeRM writes the low width bytes of v to an RM operand, with the
// narrow-write register rules applied on register forms.
func (c *Cpu) writeRM(rm RM, width uint, v uint64) error {
	if rm.Kind == RMReg {
		switch width {
		case 1:
			c.WriteReg8(rm.Reg, byte(v))
		case 2:
			c.WriteReg16(rm.Reg, uint16(v))
		case 4:
			c.WriteReg32(rm.Reg, uint32(v))
		default:
			c.WriteReg64(rm.Reg, v)
		}
		return nil
	}
	ea := c.effAddr(rm)
	switch width {
	case 1:
		return c.Mem.WriteU8(ea, byte(v))
	case 2:
		return c.Mem.WriteU16(ea, uint16(v))
	case 4:
		return c.Mem.WriteU32(ea, uint32(v))
	default:
		return c.Mem.WriteU64(ea, v)
	}
}

// Step runs one instruction: deliver a pending IRQ if there is one, else
// fetch-decode-execute at RIP. Architectural failures anywhere along the
// way divert through the interrupt engine; Step itself never fails.
func (c *Cpu) Step() {
	if vector := trap.TakePending(); vector != 0 {
		c.interrupt(trap.Irq(vector))
		return
	}

	in, size, err := Decode(c.Mem, c.RIP)
	if err != nil {
		c.interrupt(toInterrupt(err))
		return
	}

	c.nextRIP = c.RIP + size
	if err := execTable[in.Op](c, in); err != nil {
		// RIP still points at the faulting instruction, so the frame
		// the handler sees allows a retry after fixing the fault
		c.interrupt(toInterrupt(err))
		return
	}
	c.RIP = c.nextRIP
}

// toInterrupt recovers the architectural interrupt carried by err. The
// core has no other error kind; anything else reaching here is a host
// bug, not guest behavior.
func toInterrupt(err error) *trap.Interrupt {
	intr, ok := err.(*trap.Interrupt)
	if !ok {
		logger.Fatal("non-architectural error escaped the core", "err", err)
	}
	return intr
}

// interrupt delivers intr: vector lookup, stack framing, privilege drop.
// A failure during delivery escalates to a double fault; a failure during
// double-fault delivery is a triple fault and ends the simulation.
func (c *Cpu) interrupt(intr *trap.Interrupt) {
	slog.Info("interrupt",
		"rip", fmt.Sprintf("%#x", c.RIP), "cause", intr.Error())

	vector, errorCode := intr.Slot()
	if intr.Kind == trap.PageFault {
		c.CR2 = intr.CR2
	}

	if err := c.enter(vector, errorCode); err != nil {
		if intr.Kind == trap.DoubleFault {
			logger.Fatal("triple fault")
		}
		c.interrupt(trap.DF())
	}
}

// enter performs the delivery protocol. Every memory access goes through
// the MMU, so any of them can fault; the caller decides how bad that is.
func (c *Cpu) enter(vector uint64, errorCode uint32) error {
	var raw [trap.IDTEntrySize]byte
	base := c.IDT + trap.IDTEntrySize*vector
	for i := range raw {
		b, err := c.Mem.ReadU8(base + uint64(i))
		if err != nil {
			return err
		}
		raw[i] = b
	}
	entry := trap.DecodeIDTEntry(raw)
	if !entry.Present || entry.RPL < c.CPL {
		return trap.DF()
	}

	// at CPL 0 the current stack is trusted; above it, switch to the
	// dedicated interrupt stack
	sp := c.Regs[RegSP]
	newSP := sp
	if c.CPL > 0 {
		newSP = c.InterruptStack
	}

	if err := c.Mem.WriteU64(newSP-8, sp); err != nil {
		return err
	}
	saved := uint64(int64(c.CPL))<<32 | c.RFlags
	if err := c.Mem.WriteU64(newSP-16, saved); err != nil {
		return err
	}
	if err := c.Mem.WriteU64(newSP-24, c.RIP); err != nil {
		return err
	}
	if err := c.Mem.WriteU64(newSP-32, uint64(errorCode)); err != nil {
		return err
	}

	c.RIP = entry.ServiceRoutine
	c.Regs[RegSP] = newSP - 32
	c.CPL = 0
	return nil
}

// DumpRegisters writes the register file in the classic order, for crash
// reports.
func (c *Cpu) DumpRegisters(w io.Writer) {
	for _, i := range []byte{0, 3, 1, 2, 7, 6, 5, 4, 8, 9, 10, 11, 12, 13, 14, 15} {
		fmt.Fprintf(w, "%-3s: %#016x\n", regNames[i], c.Regs[i])
	}
	fmt.Fprintf(w, "rip: %#016x cpl: %d rflags: %#x cr2: %#x\n",
		c.RIP, c.CPL, c.RFlags, c.CR2)
}
