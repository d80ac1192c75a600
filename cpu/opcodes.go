package cpu

// The opcode table. Each encoding row says how one instruction variant is
// spelled on the wire: the opcode byte, whether the ModR/M reg field acts
// as an opcode extension (ext >= 0), the two operand encodings, and the
// prefix requirements that select between variants sharing a byte.
//
// Variant selection within a slot is by precedence: REX.W picks the wide
// row if one exists, else the 0x66 prefix picks the so row if one exists,
// else the unmodified row. No match decodes to #UD.
//
// http://ref.x86asm.net/coder64.html
// https://www.felixcloutier.com/x86/

type operand byte

const (
	opNone      operand = iota
	opSuffixReg         // register number in the low 3 opcode bits (+REX.B)
	opModReg            // the ModR/M reg field (+REX.R)
	opModRM             // the full ModR/M (+SIB) operand
	opImm8
	opImm16
	opImm32
	opImm64
)

const noExt = -1

type encoding struct {
	op       Op
	opcode   byte
	ext      int8 // ModR/M reg value this row answers to, or noExt
	operands [2]operand
	so       bool // requires the 0x66 operand-size prefix
	wide     bool // requires REX.W
	exec     func(*Cpu, Instruction) error
}

var encodings = []encoding{
	{op: OpIn8, opcode: 0xE4, ext: noExt, operands: [2]operand{opImm8, opNone}, exec: (*Cpu).execIn8},
	{op: OpIn16, opcode: 0xE5, ext: noExt, operands: [2]operand{opImm8, opNone}, so: true, exec: (*Cpu).execIn16},
	{op: OpIn32, opcode: 0xE5, ext: noExt, operands: [2]operand{opImm8, opNone}, exec: (*Cpu).execIn32},

	{op: OpIn8D, opcode: 0xEC, ext: noExt, exec: (*Cpu).execIn8D},
	{op: OpIn16D, opcode: 0xED, ext: noExt, so: true, exec: (*Cpu).execIn16D},
	{op: OpIn32D, opcode: 0xED, ext: noExt, exec: (*Cpu).execIn32D},

	{op: OpIncRM8, opcode: 0xFE, ext: 0, operands: [2]operand{opModRM, opNone}, exec: (*Cpu).execIncRM8},
	{op: OpIncRM16, opcode: 0xFF, ext: 0, operands: [2]operand{opModRM, opNone}, so: true, exec: (*Cpu).execIncRM16},
	{op: OpIncRM32, opcode: 0xFF, ext: 0, operands: [2]operand{opModRM, opNone}, exec: (*Cpu).execIncRM32},
	{op: OpIncRM64, opcode: 0xFF, ext: 0, operands: [2]operand{opModRM, opNone}, wide: true, exec: (*Cpu).execIncRM64},

	{op: OpIret, opcode: 0xCF, ext: noExt, exec: (*Cpu).execIret},

	{op: OpJmpRel8, opcode: 0xEB, ext: noExt, operands: [2]operand{opImm8, opNone}, exec: (*Cpu).execJmpRel8},
	{op: OpJmpRel32, opcode: 0xE9, ext: noExt, operands: [2]operand{opImm32, opNone}, exec: (*Cpu).execJmpRel32},

	{op: OpMovReg8Imm, opcode: 0xB0, ext: noExt, operands: [2]operand{opSuffixReg, opImm8}, exec: (*Cpu).execMovReg8Imm},
	{op: OpMovReg16Imm, opcode: 0xB8, ext: noExt, operands: [2]operand{opSuffixReg, opImm16}, so: true, exec: (*Cpu).execMovReg16Imm},
	{op: OpMovReg32Imm, opcode: 0xB8, ext: noExt, operands: [2]operand{opSuffixReg, opImm32}, exec: (*Cpu).execMovReg32Imm},
	{op: OpMovReg64Imm, opcode: 0xB8, ext: noExt, operands: [2]operand{opSuffixReg, opImm64}, wide: true, exec: (*Cpu).execMovReg64Imm},

	{op: OpMovReg8RM, opcode: 0x8A, ext: noExt, operands: [2]operand{opModReg, opModRM}, exec: (*Cpu).execMovReg8RM},
	{op: OpMovReg16RM, opcode: 0x8B, ext: noExt, operands: [2]operand{opModReg, opModRM}, so: true, exec: (*Cpu).execMovReg16RM},
	{op: OpMovReg32RM, opcode: 0x8B, ext: noExt, operands: [2]operand{opModReg, opModRM}, exec: (*Cpu).execMovReg32RM},
	{op: OpMovReg64RM, opcode: 0x8B, ext: noExt, operands: [2]operand{opModReg, opModRM}, wide: true, exec: (*Cpu).execMovReg64RM},

	{op: OpMovRM8Reg, opcode: 0x88, ext: noExt, operands: [2]operand{opModRM, opModReg}, exec: (*Cpu).execMovRM8Reg},
	{op: OpMovRM16Reg, opcode: 0x89, ext: noExt, operands: [2]operand{opModRM, opModReg}, so: true, exec: (*Cpu).execMovRM16Reg},
	{op: OpMovRM32Reg, opcode: 0x89, ext: noExt, operands: [2]operand{opModRM, opModReg}, exec: (*Cpu).execMovRM32Reg},
	{op: OpMovRM64Reg, opcode: 0x89, ext: noExt, operands: [2]operand{opModRM, opModReg}, wide: true, exec: (*Cpu).execMovRM64Reg},

	{op: OpOut8, opcode: 0xE6, ext: noExt, operands: [2]operand{opImm8, opNone}, exec: (*Cpu).execOut8},
	{op: OpOut16, opcode: 0xE7, ext: noExt, operands: [2]operand{opImm8, opNone}, so: true, exec: (*Cpu).execOut16},
	{op: OpOut32, opcode: 0xE7, ext: noExt, operands: [2]operand{opImm8, opNone}, exec: (*Cpu).execOut32},

	{op: OpPushReg16, opcode: 0x50, ext: noExt, operands: [2]operand{opSuffixReg, opNone}, so: true, exec: (*Cpu).execPushReg16},
	{op: OpPushReg64, opcode: 0x50, ext: noExt, operands: [2]operand{opSuffixReg, opNone}, exec: (*Cpu).execPushReg64},
	{op: OpPopReg16, opcode: 0x58, ext: noExt, operands: [2]operand{opSuffixReg, opNone}, so: true, exec: (*Cpu).execPopReg16},
	{op: OpPopReg64, opcode: 0x58, ext: noExt, operands: [2]operand{opSuffixReg, opNone}, exec: (*Cpu).execPopReg64},

	{op: OpWrcr, opcode: 0x3F, ext: 0, operands: [2]operand{opImm8, opModRM}, exec: (*Cpu).execWrcr},
	{op: OpSwi4, opcode: 0x3F, ext: 1, operands: [2]operand{opModRM, opNone}, exec: (*Cpu).execSwi4},
}

func (e *encoding) suffixReg() bool {
	return e.operands[0] == opSuffixReg || e.operands[1] == opSuffixReg
}

func (e *encoding) usesModRM() bool {
	for _, o := range e.operands {
		if o == opModReg || o == opModRM {
			return true
		}
	}
	return false
}

// immBytes returns how many immediate bytes the encoding trails with.
func (e *encoding) immBytes() uint64 {
	for _, o := range e.operands {
		switch o {
		case opImm8:
			return 1
		case opImm16:
			return 2
		case opImm32:
			return 4
		case opImm64:
			return 8
		}
	}
	return 0
}

// opcodeSlots is the first dispatch level: all rows answering to a given
// first opcode byte. SuffixReg rows occupy 8 consecutive slots, since the
// low 3 opcode bits carry the register number.
var opcodeSlots [256][]*encoding

// execTable is the executor's dispatch, one handler per variant.
var execTable [opCount]func(*Cpu, Instruction) error

func init() {
	for i := range encodings {
		e := &encodings[i]
		if e.suffixReg() {
			for off := byte(0); off < 8; off++ {
				opcodeSlots[e.opcode+off] = append(opcodeSlots[e.opcode+off], e)
			}
		} else {
			opcodeSlots[e.opcode] = append(opcodeSlots[e.opcode], e)
		}
		execTable[e.op] = e.exec
	}
}
