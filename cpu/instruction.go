package cpu

// Decoded-instruction data model. The decoder produces an Instruction; the
// executor never looks at raw bytes again.

// Op identifies one instruction variant. Variants are per-width because
// the width decides both the operand encoding and the register-write
// semantics; collapsing them would just move the switch somewhere worse.
type Op int

const (
	OpIn8 Op = iota
	OpIn16
	OpIn32
	OpIn8D
	OpIn16D
	OpIn32D
	OpIncRM8
	OpIncRM16
	OpIncRM32
	OpIncRM64
	OpIret
	OpJmpRel8
	OpJmpRel32
	OpMovReg8Imm
	OpMovReg16Imm
	OpMovReg32Imm
	OpMovReg64Imm
	OpMovReg8RM
	OpMovReg16RM
	OpMovReg32RM
	OpMovReg64RM
	OpMovRM8Reg
	OpMovRM16Reg
	OpMovRM32Reg
	OpMovRM64Reg
	OpOut8
	OpOut16
	OpOut32
	OpPushReg16
	OpPushReg64
	OpPopReg16
	OpPopReg64
	OpSwi4
	OpWrcr

	opCount
)

var opNames = [opCount]string{
	OpIn8:         "In8",
	OpIn16:        "In16",
	OpIn32:        "In32",
	OpIn8D:        "In8D",
	OpIn16D:       "In16D",
	OpIn32D:       "In32D",
	OpIncRM8:      "IncRM8",
	OpIncRM16:     "IncRM16",
	OpIncRM32:     "IncRM32",
	OpIncRM64:     "IncRM64",
	OpIret:        "Iret",
	OpJmpRel8:     "JmpRel8",
	OpJmpRel32:    "JmpRel32",
	OpMovReg8Imm:  "MovReg8Imm",
	OpMovReg16Imm: "MovReg16Imm",
	OpMovReg32Imm: "MovReg32Imm",
	OpMovReg64Imm: "MovReg64Imm",
	OpMovReg8RM:   "MovReg8RM",
	OpMovReg16RM:  "MovReg16RM",
	OpMovReg32RM:  "MovReg32RM",
	OpMovReg64RM:  "MovReg64RM",
	OpMovRM8Reg:   "MovRM8Reg",
	OpMovRM16Reg:  "MovRM16Reg",
	OpMovRM32Reg:  "MovRM32Reg",
	OpMovRM64Reg:  "MovRM64Reg",
	OpOut8:        "Out8",
	OpOut16:       "Out16",
	OpOut32:       "Out32",
	OpPushReg16:   "PushReg16",
	OpPushReg64:   "PushReg64",
	OpPopReg16:    "PopReg16",
	OpPopReg64:    "PopReg64",
	OpSwi4:        "Swi4",
	OpWrcr:        "Wrcr",
}

func (o Op) String() string {
	if o < 0 || o >= opCount {
		return "?"
	}
	return opNames[o]
}

// SegmentOverride records an FS/GS prefix. Execution carries it but does
// not apply a segment base yet; fsbase/gsbase are not modeled.
type SegmentOverride byte

const (
	SegNone SegmentOverride = iota
	SegFS
	SegGS
)

// RMKind discriminates the three addressing forms an RM operand can take.
type RMKind byte

const (
	RMReg    RMKind = iota // the operand is a register
	RMRipRel               // address = next RIP + displacement
	RMMem                  // address = base + (index << scale) + displacement
)

const (
	// NoIndex in the Index field means the scale term is zero. 4 is
	// the hardware encoding: rsp can never be an index.
	NoIndex = 4

	// NoBase in the Base field means the base term is zero (the
	// SIB.base == 5, mod == 0 form). 0xFF is out of register range.
	NoBase = 0xFF
)

// RM is the memory-or-register operand described by ModR/M (+SIB).
type RM struct {
	Kind RMKind

	Reg byte // RMReg only; REX.B-extended

	// RMMem fields; Index and Base are REX-extended
	Index byte
	Scale byte
	Base  byte

	Disp uint32

	// If set, the effective address is truncated to 16 bits.
	AddrOverride bool

	Seg SegmentOverride
}

// An Instruction is one decoded instruction: the variant plus whichever
// operand slots its encoding fills. Unused slots stay zero.
type Instruction struct {
	Op  Op
	Reg byte // SuffixReg or ModReg operand; REX-extended
	RM  RM
	Imm uint64 // immediates are zero-extended to 64 bits
}
