package cpu

// Per-variant execution semantics. Handlers mutate processor state and
// return nil, or return the architectural interrupt that stops the
// instruction. They never advance RIP themselves -- Step commits nextRIP
// afterwards -- but control transfers rewrite nextRIP to redirect it.

import (
	"fmt"
	"log/slog"

	"gox86/logger"
	"gox86/mask"
	"gox86/trap"
)

// checkIO gates the privileged instructions: port I/O and
// control-register writes (swi4, wrcr) are ring-0 only.
func (c *Cpu) checkIO() error {
	if c.CPL > 0 {
		return trap.GP()
	}
	return nil
}

// in/out -- fixed-port forms take the port from an immediate, the D forms
// from dx. Only the 8-bit data path (and the 32-bit out) exist; wider
// device transfers are a bring-up error until a device needs them.

func (c *Cpu) execIn8(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	c.WriteReg8(RegA, c.Ports.InU8(uint16(in.Imm)))
	return nil
}

func (c *Cpu) execIn16(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	logger.Fatal("16-bit port input is not implemented")
	return nil
}

func (c *Cpu) execIn32(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	logger.Fatal("32-bit port input is not implemented")
	return nil
}

func (c *Cpu) execIn8D(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	c.WriteReg8(RegA, c.Ports.InU8(c.ReadReg16(RegDX)))
	return nil
}

func (c *Cpu) execIn16D(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	logger.Fatal("16-bit port input is not implemented")
	return nil
}

func (c *Cpu) execIn32D(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	logger.Fatal("32-bit port input is not implemented")
	return nil
}

func (c *Cpu) execOut8(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	c.Ports.OutU8(uint16(in.Imm), c.ReadReg8(RegA))
	return nil
}

func (c *Cpu) execOut16(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	logger.Fatal("16-bit port output is not implemented")
	return nil
}

func (c *Cpu) execOut32(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	c.Ports.OutU32(uint16(in.Imm), c.ReadReg32(RegA))
	return nil
}

// inc -- read, wrapping add, write back. Flags are not modeled, so there
// is nothing else to update.

func (c *Cpu) incRM(rm RM, width uint) error {
	v, err := c.readRM(rm, width)
	if err != nil {
		return err
	}
	// widths below 8 wrap by truncation in writeRM
	return c.writeRM(rm, width, v+1)
}

func (c *Cpu) execIncRM8(in Instruction) error  { return c.incRM(in.RM, 1) }
func (c *Cpu) execIncRM16(in Instruction) error { return c.incRM(in.RM, 2) }
func (c *Cpu) execIncRM32(in Instruction) error { return c.incRM(in.RM, 4) }
func (c *Cpu) execIncRM64(in Instruction) error { return c.incRM(in.RM, 8) }

// execIret unwinds the frame the interrupt engine pushed: rip, saved
// cpl|rflags, and the pre-interrupt stack pointer, in that order above
// the error code rsp points at.
func (c *Cpu) execIret(in Instruction) error {
	rsp := c.ReadReg64(RegSP)
	rip, err := c.Mem.ReadU64(rsp + 8)
	if err != nil {
		return err
	}
	rflags, err := c.Mem.ReadU64(rsp + 16)
	if err != nil {
		return err
	}
	sp, err := c.Mem.ReadU64(rsp + 24)
	if err != nil {
		return err
	}
	c.nextRIP = rip
	c.RFlags = rflags
	c.WriteReg64(RegSP, sp)
	c.CPL = int8(int64(rflags) >> 32)
	return nil
}

func (c *Cpu) execJmpRel8(in Instruction) error {
	c.nextRIP += mask.SignExtend8(byte(in.Imm))
	return nil
}

func (c *Cpu) execJmpRel32(in Instruction) error {
	c.nextRIP += mask.SignExtend32(uint32(in.Imm))
	return nil
}

// mov, all twelve of it

func (c *Cpu) execMovReg8Imm(in Instruction) error {
	c.WriteReg8(in.Reg, byte(in.Imm))
	return nil
}

func (c *Cpu) execMovReg16Imm(in Instruction) error {
	c.WriteReg16(in.Reg, uint16(in.Imm))
	return nil
}

func (c *Cpu) execMovReg32Imm(in Instruction) error {
	c.WriteReg32(in.Reg, uint32(in.Imm))
	return nil
}

func (c *Cpu) execMovReg64Imm(in Instruction) error {
	c.WriteReg64(in.Reg, in.Imm)
	return nil
}

func (c *Cpu) movRegRM(in Instruction, width uint) error {
	v, err := c.readRM(in.RM, width)
	if err != nil {
		return err
	}
	switch width {
	case 1:
		c.WriteReg8(in.Reg, byte(v))
	case 2:
		c.WriteReg16(in.Reg, uint16(v))
	case 4:
		c.WriteReg32(in.Reg, uint32(v))
	default:
		c.WriteReg64(in.Reg, v)
	}
	return nil
}

func (c *Cpu) execMovReg8RM(in Instruction) error  { return c.movRegRM(in, 1) }
func (c *Cpu) execMovReg16RM(in Instruction) error { return c.movRegRM(in, 2) }
func (c *Cpu) execMovReg32RM(in Instruction) error { return c.movRegRM(in, 4) }
func (c *Cpu) execMovReg64RM(in Instruction) error { return c.movRegRM(in, 8) }

func (c *Cpu) execMovRM8Reg(in Instruction) error {
	return c.writeRM(in.RM, 1, uint64(c.ReadReg8(in.Reg)))
}

func (c *Cpu) execMovRM16Reg(in Instruction) error {
	return c.writeRM(in.RM, 2, uint64(c.ReadReg16(in.Reg)))
}

func (c *Cpu) execMovRM32Reg(in Instruction) error {
	return c.writeRM(in.RM, 4, uint64(c.ReadReg32(in.Reg)))
}

func (c *Cpu) execMovRM64Reg(in Instruction) error {
	return c.writeRM(in.RM, 8, c.ReadReg64(in.Reg))
}

// push/pop. The store happens before rsp moves, so a faulting push
// leaves rsp where it was and the instruction can be retried cleanly.

func (c *Cpu) execPushReg16(in Instruction) error {
	sp := c.ReadReg64(RegSP) - 2
	if err := c.Mem.WriteU16(sp, c.ReadReg16(in.Reg)); err != nil {
		return err
	}
	c.WriteReg64(RegSP, sp)
	return nil
}

func (c *Cpu) execPushReg64(in Instruction) error {
	sp := c.ReadReg64(RegSP) - 8
	if err := c.Mem.WriteU64(sp, c.ReadReg64(in.Reg)); err != nil {
		return err
	}
	c.WriteReg64(RegSP, sp)
	return nil
}

func (c *Cpu) execPopReg16(in Instruction) error {
	sp := c.ReadReg64(RegSP)
	v, err := c.Mem.ReadU16(sp)
	if err != nil {
		return err
	}
	c.WriteReg64(RegSP, sp+2)
	c.WriteReg16(in.Reg, v)
	return nil
}

func (c *Cpu) execPopReg64(in Instruction) error {
	sp := c.ReadReg64(RegSP)
	v, err := c.Mem.ReadU64(sp)
	if err != nil {
		return err
	}
	c.WriteReg64(RegSP, sp+8)
	c.WriteReg64(in.Reg, v)
	return nil
}

// execSwi4 loads the page-table root from the operand. Switching address
// spaces is how the guest context-switches, so this is the one privileged
// register with its own instruction.
func (c *Cpu) execSwi4(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	v, err := c.readRM(in.RM, 8)
	if err != nil {
		return err
	}
	c.Mem.SetPageRoot(v)
	return nil
}

// execWrcr is write-config-register. No config registers are modeled
// beyond the paging root, so for now the write is a logged side effect.
func (c *Cpu) execWrcr(in Instruction) error {
	if err := c.checkIO(); err != nil {
		return err
	}
	v, err := c.readRM(in.RM, 8)
	if err != nil {
		return err
	}
	slog.Info("config register written",
		"cr", fmt.Sprintf("%#x", in.Imm), "value", fmt.Sprintf("%#x", v))
	return nil
}
