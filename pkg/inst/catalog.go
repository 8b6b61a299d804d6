package inst

import "fmt"

// Info holds the static metadata the rest of the engine (disassembly and
// the cmd/msp430symex disasm subcommand built on it) needs about an Opcode without re-deriving it from the raw bits every
// time. Populated once in init().
type Info struct {
	Mnemonic      string
	Family        Family
	ProducesFlags bool
}

var Catalog [opcodeCount]Info

func init() {
	entries := []struct {
		op   Opcode
		info Info
	}{
		{RRC, Info{"rrc", FamilySingleOperand, true}},
		{SWPB, Info{"swpb", FamilySingleOperand, false}},
		{RRA, Info{"rra", FamilySingleOperand, true}},
		{SXT, Info{"sxt", FamilySingleOperand, true}},
		{PUSH, Info{"push", FamilySingleOperand, false}},
		{CALL, Info{"call", FamilySingleOperand, false}},
		{RETI, Info{"reti", FamilySingleOperand, false}},

		{JNZ, Info{"jnz", FamilyJump, false}},
		{JZ, Info{"jz", FamilyJump, false}},
		{JNC, Info{"jnc", FamilyJump, false}},
		{JC, Info{"jc", FamilyJump, false}},
		{JN, Info{"jn", FamilyJump, false}},
		{JGE, Info{"jge", FamilyJump, false}},
		{JL, Info{"jl", FamilyJump, false}},
		{JMP, Info{"jmp", FamilyJump, false}},

		{MOV, Info{"mov", FamilyDoubleOperand, false}},
		{ADD, Info{"add", FamilyDoubleOperand, true}},
		{ADDC, Info{"addc", FamilyDoubleOperand, true}},
		{SUBC, Info{"subc", FamilyDoubleOperand, true}},
		{SUB, Info{"sub", FamilyDoubleOperand, true}},
		{CMP, Info{"cmp", FamilyDoubleOperand, true}},
		{DADD, Info{"dadd", FamilyDoubleOperand, false}},
		{BIT, Info{"bit", FamilyDoubleOperand, true}},
		{BIC, Info{"bic", FamilyDoubleOperand, false}},
		{BIS, Info{"bis", FamilyDoubleOperand, false}},
		{XOR, Info{"xor", FamilyDoubleOperand, true}},
		{AND, Info{"and", FamilyDoubleOperand, false}},
	}
	for _, e := range entries {
		Catalog[e.op] = e.info
	}
}

// singleOperandOpcodes maps the 3-bit opcode field (bits 9..7) of a
// single-operand instruction to its Opcode.
var singleOperandOpcodes = map[uint16]Opcode{
	0b000: RRC,
	0b001: SWPB,
	0b010: RRA,
	0b011: SXT,
	0b100: PUSH,
	0b101: CALL,
	0b110: RETI,
}

// jumpOpcodes maps the 3-bit opcode field (bits 12..10) of a jump
// instruction to its Opcode.
var jumpOpcodes = map[uint16]Opcode{
	0b000: JNZ,
	0b001: JZ,
	0b010: JNC,
	0b011: JC,
	0b100: JN,
	0b101: JGE,
	0b110: JL,
	0b111: JMP,
}

// doubleOperandOpcodes maps the 4-bit opcode field (bits 15..12) of a
// double-operand instruction to its Opcode.
var doubleOperandOpcodes = map[uint16]Opcode{
	0b0100: MOV,
	0b0101: ADD,
	0b0110: ADDC,
	0b0111: SUBC,
	0b1000: SUB,
	0b1001: CMP,
	0b1010: DADD,
	0b1011: BIT,
	0b1100: BIC,
	0b1101: BIS,
	0b1110: XOR,
	0b1111: AND,
}

// normalModes maps the 2-bit As/Ad field to an AddressingMode for a
// register other than R0/R2/R3.
var normalModes = map[uint16]AddressingMode{
	0b00: Direct,
	0b01: Indexed,
	0b10: Indirect,
	0b11: Autoincrement,
}

// pcModes is R0 (the program counter)'s addressing-mode table: mode bits
// 01 mean PC-relative ("symbolic") addressing rather than plain indexed,
// and mode bits 11 mean an immediate word (the extension word itself is
// the value) rather than autoincrementing the PC.
var pcModes = map[uint16]AddressingMode{
	0b00: Direct,
	0b01: Symbolic,
	0b10: Indirect,
	0b11: Immediate,
}

// srModes is R2 (the status register)'s table: mode bits 01 are absolute
// addressing, 10 and 11 are the constant generator's CONSTANT4/CONSTANT8
// forms.
var srModes = map[uint16]AddressingMode{
	0b00: Direct,
	0b01: Absolute,
	0b10: Constant4,
	0b11: Constant8,
}

// cgModes is R3 (the constant generator proper)'s table: every mode
// selects a distinct baked-in constant, and the register field is never
// actually read as a register in this case.
var cgModes = map[uint16]AddressingMode{
	0b00: Constant0,
	0b01: Constant1,
	0b10: Constant2,
	0b11: ConstantNeg1,
}

func addressingMode(reg Register, bits uint16) AddressingMode {
	switch reg {
	case R0:
		return pcModes[bits]
	case R2:
		return srModes[bits]
	case R3:
		return cgModes[bits]
	default:
		return normalModes[bits]
	}
}

// operandCarriesExtensionWord reports whether an operand in the given
// mode consumes a trailing 16-bit word from the instruction stream
// (index/offset, immediate value, or absolute address).
func operandCarriesExtensionWord(mode AddressingMode) bool {
	switch mode {
	case Indexed, Symbolic, Immediate, Absolute:
		return true
	default:
		return false
	}
}

func word(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("inst: truncated instruction stream")
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

// Decode decodes one instruction from data (which must contain at least
// the instruction's full encoded bytes) located at address, returning the
// decoded Instruction. The first word's top bits classify it into the
// single-operand, jump, or double-operand family before the rest of the
// encoding is parsed.
func Decode(address uint16, data []byte) (Instruction, error) {
	w, err := word(data)
	if err != nil {
		return Instruction{}, err
	}

	switch {
	case w>>10 == 0b000100:
		return decodeSingleOperand(address, data, w)
	case w>>13 == 0b001:
		return decodeJump(address, data, w)
	default:
		return decodeDoubleOperand(address, data, w)
	}
}

func decodeSingleOperand(address uint16, data []byte, w uint16) (Instruction, error) {
	opBits := (w >> 7) & 0b111
	op, ok := singleOperandOpcodes[opBits]
	if !ok {
		return Instruction{}, fmt.Errorf("inst: unknown single-operand opcode bits %03b at 0x%04x", opBits, address)
	}

	width := Word
	if (w>>6)&1 == 1 {
		width = Byte
	}
	// RETI ignores the width bit and the register/mode fields entirely;
	// it always operates on the full saved-SR/PC pair on the stack.
	if op == RETI {
		return Instruction{
			Raw: data[:2], Address: address,
			Opcode: op, Family: FamilySingleOperand, Width: Word,
		}, nil
	}

	reg := Register(w & 0xF)
	modeBits := (w >> 4) & 0b11
	mode := addressingMode(reg, modeBits)

	in := Instruction{
		Address: address,
		Opcode:  op,
		Family:  FamilySingleOperand,
		Width:   width,
		Mode:    mode,
		Reg:     reg,
	}

	n := 2
	if operandCarriesExtensionWord(mode) {
		ext, err := word(data[2:])
		if err != nil {
			return Instruction{}, err
		}
		in.Operand = ext
		in.HasOperand = true
		n += 2
	}
	in.Raw = data[:n]
	return in, nil
}

func decodeJump(address uint16, data []byte, w uint16) (Instruction, error) {
	opBits := (w >> 10) & 0b111
	op, ok := jumpOpcodes[opBits]
	if !ok {
		return Instruction{}, fmt.Errorf("inst: unknown jump opcode bits %03b at 0x%04x", opBits, address)
	}

	magnitude := w & 0x1FF
	offset := int32(magnitude) * 2
	if (w>>9)&1 == 1 {
		offset -= 1024 // sign bit set: 10-bit two's complement, scaled by 2
	}
	target := uint16(int32(address) + 2 + offset)

	return Instruction{
		Raw: data[:2], Address: address,
		Opcode: op, Family: FamilyJump, Target: target,
	}, nil
}

func decodeDoubleOperand(address uint16, data []byte, w uint16) (Instruction, error) {
	opBits := (w >> 12) & 0xF
	op, ok := doubleOperandOpcodes[opBits]
	if !ok {
		return Instruction{}, fmt.Errorf("inst: unknown double-operand opcode bits %04b at 0x%04x", opBits, address)
	}

	srcReg := Register((w >> 8) & 0xF)
	dstReg := Register(w & 0xF)
	adBit := (w >> 7) & 1
	srcModeBits := (w >> 4) & 0b11

	width := Word
	if (w>>6)&1 == 1 {
		width = Byte
	}

	srcMode := addressingMode(srcReg, srcModeBits)
	// The destination has its own, narrower table: R0 -> Direct/Symbolic,
	// R2 -> Direct/Absolute, every other register (R3 included) ->
	// Direct/Indexed.
	dstMode := Direct
	if adBit == 1 {
		switch dstReg {
		case PC:
			dstMode = Symbolic
		case SR:
			dstMode = Absolute
		default:
			dstMode = Indexed
		}
	}

	in := Instruction{
		Address: address,
		Opcode:  op,
		Family:  FamilyDoubleOperand,
		Width:   width,
		SrcMode: srcMode,
		SrcReg:  srcReg,
		DstMode: dstMode,
		DstReg:  dstReg,
	}

	n := 2
	if operandCarriesExtensionWord(srcMode) {
		ext, err := word(data[n:])
		if err != nil {
			return Instruction{}, err
		}
		in.SrcOperand = ext
		in.HasSrcOperand = true
		n += 2
	}
	// INDEXED, ABSOLUTE, and SYMBOLIC (R0 destination with Ad=1) all carry
	// a trailing extension word; destinations can never be AUTOINCREMENT,
	// IMMEDIATE, or a constant-generator mode, since Ad is a single bit.
	if dstMode == Indexed || dstMode == Absolute || dstMode == Symbolic {
		ext, err := word(data[n:])
		if err != nil {
			return Instruction{}, err
		}
		in.DstOperand = ext
		in.HasDstOperand = true
		n += 2
	}
	in.Raw = data[:n]
	return in, nil
}
