package cpu

import (
	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
)

// destKind distinguishes a resolved double-operand destination that
// lands in a register from one that lands in memory.
type destKind uint8

const (
	destRegister destKind = iota
	destAddress
)

// dest is a destination location resolved once (before any flag fork),
// so every forked successor writes through the same address/register
// without recomputing it from registers that flag-forking never
// mutates.
type dest struct {
	kind destKind
	reg  inst.Register
	addr *bitvec.Expr
}

// wordAligned builds the constraint every word-width memory access adds
// to its path: bit 0 of the address is zero.
func wordAligned(addr *bitvec.Expr) *bitvec.Expr {
	return bitvec.Eq(bitvec.Extract(0, 0, addr), bitvec.Const(0, 1))
}

// operandAddress resolves the memory address an addressing mode refers
// to, given the current register file. Returns nil for modes with no
// address (DIRECT, IMMEDIATE, the constant-generator modes).
func operandAddress(s *State, mode inst.AddressingMode, reg inst.Register, operand uint16) *bitvec.Expr {
	switch mode {
	case inst.Indexed, inst.Indirect, inst.Autoincrement:
		return bitvec.Add(s.CPU.Regs.Get(reg), bitvec.Const(uint64(operand), 16))
	case inst.Symbolic:
		return bitvec.Add(s.CPU.Regs.Get(inst.PC), bitvec.Const(uint64(operand), 16))
	case inst.Absolute:
		return bitvec.Const(uint64(operand), 16)
	default:
		return nil
	}
}

func constantValue(mode inst.AddressingMode, width inst.OperandWidth) *bitvec.Expr {
	var v uint64
	switch mode {
	case inst.Constant0:
		v = 0
	case inst.Constant1:
		v = 1
	case inst.Constant2:
		v = 2
	case inst.Constant4:
		v = 4
	case inst.Constant8:
		v = 8
	case inst.ConstantNeg1:
		v = ^uint64(0)
	}
	return bitvec.Const(v, width.Bits())
}

func readMem(s *State, addr *bitvec.Expr, width inst.OperandWidth, errAddr uint16) (*bitvec.Expr, error) {
	if width == inst.Word {
		s.Path.Add(wordAligned(addr))
		v, err := s.Mem.ReadWord(addr)
		if err != nil {
			return nil, newError(SymbolicMemoryAddress, errAddr, err.Error(), err)
		}
		return v, nil
	}
	v, err := s.Mem.ReadByte(addr)
	if err != nil {
		return nil, newError(SymbolicMemoryAddress, errAddr, err.Error(), err)
	}
	return v, nil
}

func writeMem(s *State, addr *bitvec.Expr, width inst.OperandWidth, value *bitvec.Expr, errAddr uint16) error {
	if width == inst.Word {
		s.Path.Add(wordAligned(addr))
		if err := s.Mem.WriteWord(addr, value); err != nil {
			return newError(SymbolicMemoryAddress, errAddr, err.Error(), err)
		}
		return nil
	}
	if err := s.Mem.WriteByte(addr, value); err != nil {
		return newError(SymbolicMemoryAddress, errAddr, err.Error(), err)
	}
	return nil
}

// getOperandValue reads an operand's value for any addressing mode a
// single-operand instruction or a double-operand source can carry,
// applying AUTOINCREMENT's register side effect in place. Single-operand
// reads and double-operand source reads share this same mode table.
func getOperandValue(s *State, mode inst.AddressingMode, reg inst.Register, operand uint16, width inst.OperandWidth, errAddr uint16) (*bitvec.Expr, error) {
	switch mode {
	case inst.Direct:
		v := s.CPU.Regs.Get(reg)
		if width == inst.Byte {
			return bitvec.Extract(7, 0, v), nil
		}
		return v, nil
	case inst.Indexed, inst.Indirect, inst.Symbolic, inst.Absolute:
		return readMem(s, operandAddress(s, mode, reg, operand), width, errAddr)
	case inst.Autoincrement:
		addr := s.CPU.Regs.Get(reg)
		v, err := readMem(s, addr, width, errAddr)
		if err != nil {
			return nil, err
		}
		inc := uint64(2)
		if width == inst.Byte {
			inc = 1
		}
		s.CPU.Regs.Set(reg, bitvec.Add(addr, bitvec.Const(inc, 16)))
		return v, nil
	case inst.Immediate:
		if width == inst.Byte {
			return bitvec.Extract(7, 0, bitvec.Const(uint64(operand), 16)), nil
		}
		return bitvec.Const(uint64(operand), 16), nil
	case inst.Constant0, inst.Constant1, inst.Constant2, inst.Constant4, inst.Constant8, inst.ConstantNeg1:
		return constantValue(mode, width), nil
	default:
		return nil, newError(MalformedInstruction, errAddr, "unknown addressing mode in operand read", nil)
	}
}

// setOperandValue writes an operand's value for any addressing mode a
// single-operand instruction can target, zero-extending byte-width
// register writes per the ISA's high-byte-clear rule.
func setOperandValue(s *State, mode inst.AddressingMode, reg inst.Register, operand uint16, width inst.OperandWidth, errAddr uint16, value *bitvec.Expr) error {
	switch mode {
	case inst.Direct:
		if width == inst.Byte {
			s.CPU.Regs.Set(reg, bitvec.ZeroExtend(value, 8))
		} else {
			s.CPU.Regs.Set(reg, value)
		}
		return nil
	case inst.Indexed, inst.Indirect, inst.Symbolic, inst.Absolute:
		return writeMem(s, operandAddress(s, mode, reg, operand), width, value, errAddr)
	case inst.Autoincrement:
		addr := s.CPU.Regs.Get(reg)
		if err := writeMem(s, addr, width, value, errAddr); err != nil {
			return err
		}
		inc := uint64(2)
		if width == inst.Byte {
			inc = 1
		}
		s.CPU.Regs.Set(reg, bitvec.Add(addr, bitvec.Const(inc, 16)))
		return nil
	case inst.Immediate:
		return newError(IllegalWriteTarget, errAddr, "cannot write to an immediate operand", nil)
	default:
		return newError(IllegalWriteTarget, errAddr, "cannot write to a constant-generator operand", nil)
	}
}

// resolveDest resolves a double-operand destination to either a
// register or a memory address, adding the word-alignment constraint
// once up front (rather than at write time) since the address is fixed
// before any flag fork happens.
func resolveDest(s *State, mode inst.AddressingMode, reg inst.Register, operand uint16, width inst.OperandWidth) dest {
	if mode == inst.Direct {
		return dest{kind: destRegister, reg: reg}
	}
	addr := operandAddress(s, mode, reg, operand)
	if width == inst.Word {
		s.Path.Add(wordAligned(addr))
	}
	return dest{kind: destAddress, addr: addr}
}

func readDest(s *State, d dest, width inst.OperandWidth, errAddr uint16) (*bitvec.Expr, error) {
	if d.kind == destRegister {
		v := s.CPU.Regs.Get(d.reg)
		if width == inst.Byte {
			return bitvec.Extract(7, 0, v), nil
		}
		return v, nil
	}
	var v *bitvec.Expr
	var err error
	if width == inst.Word {
		v, err = s.Mem.ReadWord(d.addr)
	} else {
		v, err = s.Mem.ReadByte(d.addr)
	}
	if err != nil {
		return nil, newError(SymbolicMemoryAddress, errAddr, err.Error(), err)
	}
	return v, nil
}

func writeDest(s *State, d dest, width inst.OperandWidth, value *bitvec.Expr, errAddr uint16) error {
	if d.kind == destRegister {
		if width == inst.Byte {
			s.CPU.Regs.Set(d.reg, bitvec.ZeroExtend(value, 8))
		} else {
			s.CPU.Regs.Set(d.reg, value)
		}
		return nil
	}
	var err error
	if width == inst.Word {
		err = s.Mem.WriteWord(d.addr, value)
	} else {
		err = s.Mem.WriteByte(d.addr, value)
	}
	if err != nil {
		return newError(SymbolicMemoryAddress, errAddr, err.Error(), err)
	}
	return nil
}

// push decrements SP by 2 and writes value as a little-endian word at
// the new SP, the shared tail of PUSH and CALL.
func push(s *State, value *bitvec.Expr) error {
	sp := bitvec.Sub(s.CPU.Regs.Get(inst.SP), bitvec.Const(2, 16))
	s.CPU.Regs.Set(inst.SP, sp)
	s.Path.Add(wordAligned(sp))
	if err := s.Mem.WriteWord(sp, value); err != nil {
		return newError(SymbolicMemoryAddress, 0, err.Error(), err)
	}
	return nil
}
