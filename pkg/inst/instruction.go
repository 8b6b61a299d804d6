// Package inst defines the MSP430 decoded-instruction types and the
// variable-length decoder, split between instruction identity (this
// file) and per-opcode metadata (catalog.go).
package inst

// Register identifies one of the sixteen MSP430 general-purpose
// registers. R0 is the program counter, R1 the stack pointer, R2 the
// status register (and constant-generator partner of R3).
type Register uint8

const (
	R0 Register = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

const (
	PC = R0
	SP = R1
	SR = R2
	CG = R3
)

var registerNames = [16]string{
	"R0", "R1", "R2", "R3", "R4", "R5", "R6", "R7",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
}

func (r Register) String() string {
	if int(r) < len(registerNames) {
		return registerNames[r]
	}
	return "R?"
}

// OperandWidth distinguishes word (16-bit) and byte (8-bit) access.
type OperandWidth uint8

const (
	Word OperandWidth = iota
	Byte
)

func (w OperandWidth) Bits() uint32 {
	if w == Byte {
		return 8
	}
	return 16
}

// AddressingMode is the fully-resolved addressing mode of an operand,
// after folding the R2/R3 constant-generator special cases the raw mode
// bits + register combination imply — the executor never sees "register
// R3, mode bits 01" as a DIRECT register read of R3.
type AddressingMode uint8

const (
	Direct AddressingMode = iota
	Indexed
	Indirect
	Autoincrement
	Symbolic // PC-relative; R0 + mode-bits-01
	Immediate
	Absolute
	Constant4
	Constant8
	Constant0
	Constant1
	Constant2
	ConstantNeg1
)

// Opcode is the tagged instruction identity across all three MSP430
// instruction families.
type Opcode uint8

const (
	// Single-operand family (top 6 bits == 0b000100).
	RRC Opcode = iota
	SWPB
	RRA
	SXT
	PUSH
	CALL
	RETI

	// Jump family (top 3 bits == 0b001).
	JNZ
	JZ
	JNC
	JC
	JN
	JGE
	JL
	JMP

	// Double-operand family (everything else).
	MOV
	ADD
	ADDC
	SUBC
	SUB
	CMP
	DADD
	BIT
	BIC
	BIS
	XOR
	AND

	opcodeCount
)

// Family classifies which of the three decode shapes an Opcode belongs
// to; used by Decode's dispatch and by disassembly.
type Family uint8

const (
	FamilySingleOperand Family = iota
	FamilyJump
	FamilyDoubleOperand
)

// Instruction is the tagged decode result. Only the fields relevant to
// Family are meaningful; see the per-family field groups below. Operands are always carried as resolved fields rather
// than a union, since Go has no compact sum type and MSP430 instructions
// are small enough that the unused fields cost nothing worth avoiding.
type Instruction struct {
	Raw     []byte
	Address uint16
	Opcode  Opcode
	Family  Family
	Width   OperandWidth

	// Single-operand family.
	Mode     AddressingMode
	Reg      Register
	Operand  uint16 // raw 16-bit operand, meaning depends on Mode
	HasOperand bool

	// Jump family.
	Target uint16

	// Double-operand family.
	SrcMode      AddressingMode
	SrcReg       Register
	SrcOperand   uint16
	HasSrcOperand bool
	DstMode      AddressingMode
	DstReg       Register
	DstOperand   uint16
	HasDstOperand bool
}

// Len returns the instruction's encoded length in bytes: 2 plus 2 for
// each operand word present in the instruction stream.
func (in *Instruction) Len() int {
	n := 2
	if in.HasOperand {
		n += 2
	}
	if in.HasSrcOperand {
		n += 2
	}
	if in.HasDstOperand {
		n += 2
	}
	return n
}

// IsReturnLike reports whether this instruction ends a straight-line
// run for the purposes of the flag-relevance lookahead and CFG-free
// disassembly: RETI, or the RET pseudo-instruction (MOV @SP+, PC).
func (in *Instruction) IsReturnLike() bool {
	if in.Opcode == RETI {
		return true
	}
	return in.Opcode == MOV &&
		in.SrcMode == Autoincrement && in.SrcReg == SP &&
		in.DstMode == Direct && in.DstReg == PC
}
