package cpu

// The decoder turns the byte stream at RIP into an Instruction. It reads
// through the MMU on purpose: instruction bytes live in paged memory, so
// a fetch can page-fault halfway through an instruction and must surface
// that fault at exactly that byte. No prefetch window.
//
// Layout of a long-mode instruction:
//
//	[legacy prefixes] [REX] opcode [ModR/M] [SIB] [disp] [imm]
//
// https://wiki.osdev.org/X86-64_Instruction_Encoding

import (
	"gox86/mask"
	"gox86/mem"
	"gox86/trap"
)

// maxInstructionLen bounds the total encoded length, prefixes included.
// The hardware rejects anything longer, which also keeps decode total: a
// page full of 0x66 terminates with #UD instead of walking forever.
const maxInstructionLen = 15

type lockRep byte

const (
	lockNone lockRep = iota
	lockLock
	lockRepne
	lockRepe
)

// decoder carries the fetch cursor and the prefix state accumulated so
// far. One per Decode call; it never outlives it.
type decoder struct {
	mem  *mem.MMU
	rip  uint64
	size uint64

	sizeOverride bool
	addrOverride bool
	lockRep      lockRep
	seg          SegmentOverride

	rex    byte
	hasRex bool
}

func (d *decoder) fetch() (byte, error) {
	if d.size >= maxInstructionLen {
		return 0, trap.UD()
	}
	b, err := d.mem.ReadU8(d.rip + d.size)
	if err != nil {
		return 0, err
	}
	d.size++
	return b, nil
}

// rexBit returns REX bit pos as 0 or 1. Absent REX reads as all-zero.
func (d *decoder) rexBit(pos uint) byte {
	if d.hasRex && mask.Bit(d.rex, pos) {
		return 1
	}
	return 0
}

func (d *decoder) rexW() bool { return d.rexBit(3) == 1 }

// prefix absorbs b into the context if it is a prefix byte, reporting
// whether it was one. A REX that turns out not to immediately precede the
// opcode is discarded: only the last chance counts.
func (d *decoder) prefix(b byte) bool {
	if b >= 0x40 && b <= 0x4F {
		d.rex = b
		d.hasRex = true
		return true
	}
	switch b {
	case 0x26, 0x2E, 0x36, 0x3E:
		// ES/CS/SS/DS overrides; those segments don't exist here
	case 0x64:
		d.seg = SegFS
	case 0x65:
		d.seg = SegGS
	case 0x66:
		d.sizeOverride = true
	case 0x67:
		d.addrOverride = true
	case 0xF0:
		d.lockRep = lockLock
	case 0xF2:
		d.lockRep = lockRepne
	case 0xF3:
		d.lockRep = lockRepe
	default:
		return false
	}
	// a legacy prefix after a REX kills the REX: only the position
	// immediately before the opcode counts
	d.hasRex = false
	return true
}

func (d *decoder) disp8() (uint32, error) {
	b, err := d.fetch()
	// the 8-bit displacement is zero-extended, matching the ISA document
	// rather than stock x86 (which sign-extends)
	return uint32(b), err
}

func (d *decoder) disp32() (uint32, error) {
	var v uint32
	for i := uint(0); i < 4; i++ {
		b, err := d.fetch()
		if err != nil {
			return 0, err
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

func (d *decoder) immediate(n uint64) (uint64, error) {
	var v uint64
	for i := uint64(0); i < n; i++ {
		b, err := d.fetch()
		if err != nil {
			return 0, err
		}
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

// sib decodes a SIB byte into a Mem form. An index field of 4 (before
// REX.X) means no index; a base of NoBase means the caller detected the
// no-base form and already collected its displacement.
func (d *decoder) sib(sb byte, disp uint32, noBase bool) RM {
	rm := RM{
		Kind:         RMMem,
		Scale:        mask.Field(sb, 6, 2),
		Index:        mask.Field(sb, 3, 3) | d.rexBit(1)<<3,
		Base:         mask.Field(sb, 0, 3) | d.rexBit(0)<<3,
		Disp:         disp,
		AddrOverride: d.addrOverride,
		Seg:          d.seg,
	}
	if noBase {
		rm.Base = NoBase
	}
	return rm
}

// modRM decodes the ModR/M byte and whatever SIB/displacement it implies.
// The returned reg field is REX.R-extended to 4 bits.
func (d *decoder) modRM() (reg byte, rm RM, err error) {
	b, err := d.fetch()
	if err != nil {
		return 0, RM{}, err
	}
	mod := mask.Field(b, 6, 2)
	reg = mask.Field(b, 3, 3) | d.rexBit(2)<<3
	rmField := mask.Field(b, 0, 3)

	direct := func(disp uint32) RM {
		return RM{
			Kind:         RMMem,
			Index:        NoIndex,
			Base:         rmField | d.rexBit(0)<<3,
			Disp:         disp,
			AddrOverride: d.addrOverride,
			Seg:          d.seg,
		}
	}

	switch mod {
	case 0:
		switch rmField {
		case 4:
			sb, err := d.fetch()
			if err != nil {
				return 0, RM{}, err
			}
			if mask.Field(sb, 0, 3) == 5 {
				// no base register; a 4-byte displacement instead
				disp, err := d.disp32()
				if err != nil {
					return 0, RM{}, err
				}
				rm = d.sib(sb, disp, true)
			} else {
				rm = d.sib(sb, 0, false)
			}
		case 5:
			disp, err := d.disp32()
			if err != nil {
				return 0, RM{}, err
			}
			rm = RM{Kind: RMRipRel, Disp: disp, AddrOverride: d.addrOverride}
		default:
			rm = direct(0)
		}
	case 1:
		if rmField == 4 {
			sb, err := d.fetch()
			if err != nil {
				return 0, RM{}, err
			}
			disp, err := d.disp8()
			if err != nil {
				return 0, RM{}, err
			}
			rm = d.sib(sb, disp, false)
		} else {
			disp, err := d.disp8()
			if err != nil {
				return 0, RM{}, err
			}
			rm = direct(disp)
		}
	case 2:
		if rmField == 4 {
			sb, err := d.fetch()
			if err != nil {
				return 0, RM{}, err
			}
			disp, err := d.disp32()
			if err != nil {
				return 0, RM{}, err
			}
			rm = d.sib(sb, disp, false)
		} else {
			disp, err := d.disp32()
			if err != nil {
				return 0, RM{}, err
			}
			rm = direct(disp)
		}
	case 3:
		rm = RM{Kind: RMReg, Reg: rmField | d.rexBit(0)<<3}
	}
	return reg, rm, nil
}

// Decode parses one instruction starting at rip, returning it together
// with the number of bytes consumed (prefixes included). It is a pure
// function of the bytes the MMU serves; the only failures are
// architectural interrupts (#UD, or a fault from the fetch itself).
func Decode(m *mem.MMU, rip uint64) (Instruction, uint64, error) {
	d := decoder{mem: m, rip: rip}

	var opcode byte
	for {
		b, err := d.fetch()
		if err != nil {
			return Instruction{}, 0, err
		}
		if !d.prefix(b) {
			opcode = b
			break
		}
	}

	rows := opcodeSlots[opcode]
	if len(rows) == 0 {
		return Instruction{}, 0, trap.UD()
	}

	// If the reg field extends the opcode, ModR/M comes before we even
	// know which variant we have.
	var reg byte
	var rm RM
	haveModRM := false
	if rows[0].ext != noExt {
		var err error
		reg, rm, err = d.modRM()
		if err != nil {
			return Instruction{}, 0, err
		}
		haveModRM = true
		matched := rows[:0:0]
		for _, e := range rows {
			// reg is REX.R-extended, so values 8..15 match no group
			if e.ext == int8(reg) {
				matched = append(matched, e)
			}
		}
		if len(matched) == 0 {
			return Instruction{}, 0, trap.UD()
		}
		rows = matched
	}

	enc := pickVariant(rows, d.rexW(), d.sizeOverride)
	if enc == nil {
		return Instruction{}, 0, trap.UD()
	}

	if enc.usesModRM() && !haveModRM {
		var err error
		reg, rm, err = d.modRM()
		if err != nil {
			return Instruction{}, 0, err
		}
	}

	imm, err := d.immediate(enc.immBytes())
	if err != nil {
		return Instruction{}, 0, err
	}

	in := Instruction{Op: enc.op}
	for _, o := range enc.operands {
		switch o {
		case opSuffixReg:
			in.Reg = opcode&0x07 | d.rexBit(0)<<3
		case opModReg:
			in.Reg = reg
		case opModRM:
			in.RM = rm
		case opImm8, opImm16, opImm32, opImm64:
			in.Imm = imm
		}
	}
	return in, d.size, nil
}

// pickVariant chooses among the rows sharing a dispatch slot: REX.W wins
// if a wide row exists, the 0x66 prefix wins next, and the unmodified row
// is the fallback. An unsatisfiable combination is #UD.
func pickVariant(rows []*encoding, rexW, sizeOverride bool) *encoding {
	if rexW {
		for _, e := range rows {
			if e.wide {
				return e
			}
		}
	}
	if sizeOverride {
		for _, e := range rows {
			if e.so {
				return e
			}
		}
	}
	for _, e := range rows {
		if !e.so && !e.wide {
			return e
		}
	}
	return nil
}
