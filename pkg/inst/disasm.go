package inst

import "fmt"

// Disassemble renders a decoded Instruction back into MSP430 assembly
// text: mnemonic lookup in Catalog, operand text appended per
// addressing mode.
func Disassemble(in Instruction) string {
	mnemonic := Catalog[in.Opcode].Mnemonic
	suffix := ""
	if in.Family != FamilyJump && in.Width == Byte {
		suffix = ".b"
	}

	switch in.Family {
	case FamilySingleOperand:
		if in.Opcode == RETI {
			return mnemonic
		}
		return fmt.Sprintf("%s%s %s", mnemonic, suffix, operandText(in.Mode, in.Reg, in.Operand))
	case FamilyJump:
		return fmt.Sprintf("%s #0x%04x", mnemonic, in.Target)
	case FamilyDoubleOperand:
		return fmt.Sprintf("%s%s %s, %s", mnemonic, suffix,
			operandText(in.SrcMode, in.SrcReg, in.SrcOperand),
			operandText(in.DstMode, in.DstReg, in.DstOperand))
	default:
		return mnemonic
	}
}

func operandText(mode AddressingMode, reg Register, operand uint16) string {
	switch mode {
	case Direct:
		return reg.String()
	case Indexed:
		return fmt.Sprintf("0x%04x(%s)", operand, reg)
	case Indirect:
		return fmt.Sprintf("@%s", reg)
	case Autoincrement:
		return fmt.Sprintf("@%s+", reg)
	case Symbolic:
		return fmt.Sprintf("0x%04x(pc)", operand)
	case Immediate:
		return fmt.Sprintf("#0x%04x", operand)
	case Absolute:
		return fmt.Sprintf("&0x%04x", operand)
	case Constant0:
		return "#0"
	case Constant1:
		return "#1"
	case Constant2:
		return "#2"
	case Constant4:
		return "#4"
	case Constant8:
		return "#8"
	case ConstantNeg1:
		return "#-1"
	default:
		return "?"
	}
}
