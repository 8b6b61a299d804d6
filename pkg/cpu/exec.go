package cpu

import (
	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
)

// stepFunc is the shape of every opcode's executor: given the already-PC-
// advanced state and the decoded instruction, return the (possibly
// forked) successor states.
type stepFunc func(*State, *inst.Instruction, bool) ([]*State, error)

var stepTable map[inst.Opcode]stepFunc

func init() {
	stepTable = map[inst.Opcode]stepFunc{
		inst.RRC:  stepRrc,
		inst.SWPB: stepSwpb,
		inst.RRA:  unimplemented("rra"),
		inst.SXT:  stepSxt,
		inst.PUSH: stepPush,
		inst.CALL: stepCall,
		inst.RETI: unimplemented("reti"),

		inst.JNZ: stepJnz,
		inst.JZ:  stepJz,
		inst.JNC: stepJnc,
		inst.JC:  stepJc,
		inst.JN:  unimplemented("jn"),
		inst.JGE: unimplemented("jge"),
		inst.JL:  stepJl,
		inst.JMP: stepJmp,

		inst.MOV:  stepMov,
		inst.ADD:  stepAdd,
		inst.ADDC: unimplemented("addc"),
		inst.SUBC: unimplemented("subc"),
		inst.SUB:  stepSub,
		inst.CMP:  stepCmp,
		inst.DADD: unimplemented("dadd"),
		inst.BIT:  stepBit,
		inst.BIC:  stepBic,
		inst.BIS:  stepBis,
		inst.XOR:  stepXor,
		inst.AND:  stepAnd,
	}
}

func unimplemented(name string) stepFunc {
	return func(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
		return nil, newError(UnimplementedOpcode, in.Address, name, nil)
	}
}

// flagsFor decides which flags an instruction needs to fork on: all of
// them if unsound lookahead is disabled, otherwise only the ones a
// downstream conditional jump actually reads. The lookahead starts at
// the flag-producing instruction's own address (it re-decodes itself
// as the lookahead's first entry, harmlessly, since it isn't itself a
// conditional jump).
func flagsFor(s *State, in *inst.Instruction, unsound bool) neededFlags {
	if !unsound {
		return allFlags()
	}
	return lookaheadFlags(s, in.Address)
}

// forkZC forks each state on cond into a pair where Z is set and C is
// cleared, or Z is cleared and C is set -- SXT's Z (result == 0) and C
// (result != 0) are exact complements, so they share one fork rather
// than two independent ones.
func forkZC(states []*State, cond *bitvec.Expr) []*State {
	out := make([]*State, 0, len(states)*2)
	notCond := bitvec.BoolNot(cond)
	for _, st := range states {
		zSt := st
		cSt := st.Clone()

		zSt.Path.Add(cond)
		zSt.CPU.Regs.Set(inst.SR, withFlagSet(zSt.CPU.Regs.Get(inst.SR), flagZ))
		zSt.CPU.Regs.Set(inst.SR, withFlagClear(zSt.CPU.Regs.Get(inst.SR), flagC))

		cSt.Path.Add(notCond)
		cSt.CPU.Regs.Set(inst.SR, withFlagClear(cSt.CPU.Regs.Get(inst.SR), flagZ))
		cSt.CPU.Regs.Set(inst.SR, withFlagSet(cSt.CPU.Regs.Get(inst.SR), flagC))

		out = append(out, zSt, cSt)
	}
	return out
}

// --- single-operand family ---

func stepRrc(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	v, err := getOperandValue(s, in.Mode, in.Reg, in.Operand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	width := in.Width.Bits()

	cOld := bitvec.Ite(s.CPU.Regs.StatusFlagExpr(flagC), bitvec.Const(1, 1), bitvec.Const(0, 1))
	shifted := bitvec.Lshr(bitvec.Concat(cOld, v), bitvec.Const(1, width+1))
	newVal := bitvec.Extract(width-1, 0, shifted)
	newCFlag := bitvec.Ne(bitvec.Extract(0, 0, v), bitvec.Const(0, 1))

	sr := s.CPU.Regs.Get(inst.SR)
	newSR := bitvec.Ite(newCFlag, withFlagSet(sr, flagC), withFlagClear(sr, flagC))
	s.CPU.Regs.Set(inst.SR, newSR)

	if err := setOperandValue(s, in.Mode, in.Reg, in.Operand, in.Width, in.Address, newVal); err != nil {
		return nil, err
	}
	return []*State{s}, nil
}

func stepSwpb(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	v, err := getOperandValue(s, in.Mode, in.Reg, in.Operand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	high := bitvec.Extract(15, 8, v)
	low := bitvec.Extract(7, 0, v)
	res := bitvec.Concat(low, high)
	if err := setOperandValue(s, in.Mode, in.Reg, in.Operand, in.Width, in.Address, res); err != nil {
		return nil, err
	}
	return []*State{s}, nil
}

func stepSxt(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	v, err := getOperandValue(s, in.Mode, in.Reg, in.Operand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	low := bitvec.Extract(7, 0, v)
	ext := bitvec.SignExtend(low, 8)
	zero16 := bitvec.Const(0, 16)

	states := []*State{s}
	states = forkFlag(states, flagN, bitvec.SLT(ext, zero16))
	states = forkZC(states, bitvec.Eq(ext, zero16))
	clearFlag(states, flagV)

	for _, st := range states {
		if err := setOperandValue(st, in.Mode, in.Reg, in.Operand, in.Width, in.Address, ext); err != nil {
			return nil, err
		}
	}
	return states, nil
}

func stepPush(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	v, err := getOperandValue(s, in.Mode, in.Reg, in.Operand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	if in.Width == inst.Byte {
		v = bitvec.ZeroExtend(v, 8)
	}
	if err := push(s, v); err != nil {
		return nil, err
	}
	return []*State{s}, nil
}

func stepCall(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	target, err := getOperandValue(s, in.Mode, in.Reg, in.Operand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}

	if v, ok := bitvec.Simplify(target).IsConst(); ok && v == interruptAddress {
		num, err := interruptNumber(s)
		if err != nil {
			return nil, err
		}
		handler, ok := interruptTable[num]
		if !ok {
			return nil, newError(UnimplementedOpcode, in.Address, "interrupt", nil)
		}
		return handler(s)
	}

	if err := push(s, s.CPU.Regs.Get(inst.PC)); err != nil {
		return nil, err
	}
	s.CPU.Regs.Set(inst.PC, target)
	return []*State{s}, nil
}

// --- jump family ---

func forkConditionalJump(s *State, in *inst.Instruction, takenCond *bitvec.Expr) ([]*State, error) {
	taken := s
	notTaken := s.Clone()

	taken.Path.Add(takenCond)
	taken.CPU.Regs.Set(inst.PC, bitvec.Const(uint64(in.Target), 16))

	notTaken.Path.Add(bitvec.BoolNot(takenCond))

	return []*State{taken, notTaken}, nil
}

func stepJnz(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	return forkConditionalJump(s, in, bitvec.BoolNot(s.CPU.Regs.StatusFlagExpr(flagZ)))
}

func stepJz(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	return forkConditionalJump(s, in, s.CPU.Regs.StatusFlagExpr(flagZ))
}

func stepJnc(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	return forkConditionalJump(s, in, bitvec.BoolNot(s.CPU.Regs.StatusFlagExpr(flagC)))
}

func stepJc(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	return forkConditionalJump(s, in, s.CPU.Regs.StatusFlagExpr(flagC))
}

func stepJl(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	cond := bitvec.BoolXor(s.CPU.Regs.StatusFlagExpr(flagN), s.CPU.Regs.StatusFlagExpr(flagV))
	return forkConditionalJump(s, in, cond)
}

func stepJmp(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	s.CPU.Regs.Set(inst.PC, bitvec.Const(uint64(in.Target), 16))
	return []*State{s}, nil
}

// --- double-operand family ---

func stepMov(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	if err := writeDest(s, d, in.Width, srcVal, in.Address); err != nil {
		return nil, err
	}
	return []*State{s}, nil
}

func addCarry(srcVal, destVal *bitvec.Expr, width uint32) *bitvec.Expr {
	srcExt := bitvec.ZeroExtend(srcVal, 1)
	dstExt := bitvec.ZeroExtend(destVal, 1)
	sumExt := bitvec.Add(srcExt, dstExt)
	return bitvec.Eq(bitvec.Extract(width, width, sumExt), bitvec.Const(1, 1))
}

func addOverflow(srcVal, destVal *bitvec.Expr, width uint32) *bitvec.Expr {
	zero := bitvec.Const(0, width)
	sum := bitvec.Add(srcVal, destVal)
	condPos := bitvec.BoolAnd(bitvec.SGT(srcVal, zero), bitvec.SGT(destVal, zero), bitvec.SLT(sum, zero))
	condNeg := bitvec.BoolAnd(bitvec.SLT(srcVal, zero), bitvec.SLT(destVal, zero), bitvec.SGT(sum, zero))
	return bitvec.BoolOr(condPos, condNeg)
}

func subCarry(srcVal, destVal *bitvec.Expr, width uint32) *bitvec.Expr {
	borrow := bitvec.Add(bitvec.Not(srcVal), bitvec.Const(1, width))
	srcExt := bitvec.ZeroExtend(borrow, 1)
	dstExt := bitvec.ZeroExtend(destVal, 1)
	sumExt := bitvec.Add(srcExt, dstExt)
	return bitvec.Eq(bitvec.Extract(width, width, sumExt), bitvec.Const(1, 1))
}

func subOverflow(srcVal, destVal *bitvec.Expr, width uint32) *bitvec.Expr {
	zero := bitvec.Const(0, width)
	diff := bitvec.Sub(destVal, srcVal)
	condPos := bitvec.BoolAnd(bitvec.SLT(srcVal, zero), bitvec.SGT(destVal, zero), bitvec.SLT(diff, zero))
	condNeg := bitvec.BoolAnd(bitvec.SGT(srcVal, zero), bitvec.SLT(destVal, zero), bitvec.SGT(diff, zero))
	return bitvec.BoolOr(condPos, condNeg)
}

func stepAdd(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	destVal, err := readDest(s, d, in.Width, in.Address)
	if err != nil {
		return nil, err
	}

	need := flagsFor(s, in, unsound)
	width := in.Width.Bits()
	sum := bitvec.Add(srcVal, destVal)

	states := []*State{s}
	if need.N {
		states = forkFlag(states, flagN, bitvec.SLT(sum, bitvec.Const(0, width)))
	}
	if need.Z {
		states = forkFlag(states, flagZ, bitvec.Eq(sum, bitvec.Const(0, width)))
	}
	if need.C {
		states = forkFlag(states, flagC, addCarry(srcVal, destVal, width))
	}
	if need.V {
		states = forkFlag(states, flagV, addOverflow(srcVal, destVal, width))
	}

	for _, st := range states {
		if err := writeDest(st, d, in.Width, sum, in.Address); err != nil {
			return nil, err
		}
	}
	return states, nil
}

// subStates forks on SUB/CMP's flags (which share the same formulas --
// CMP is SUB without the write-back) and returns the resulting states
// plus the difference expression the caller may or may not store.
func subStates(s *State, in *inst.Instruction, unsound bool, srcVal, destVal *bitvec.Expr) ([]*State, *bitvec.Expr) {
	need := flagsFor(s, in, unsound)
	width := in.Width.Bits()
	diff := bitvec.Sub(destVal, srcVal)

	states := []*State{s}
	if need.N {
		states = forkFlag(states, flagN, bitvec.SGT(srcVal, destVal))
	}
	if need.Z {
		states = forkFlag(states, flagZ, bitvec.Eq(srcVal, destVal))
	}
	if need.C {
		states = forkFlag(states, flagC, subCarry(srcVal, destVal, width))
	}
	if need.V {
		states = forkFlag(states, flagV, subOverflow(srcVal, destVal, width))
	}
	return states, diff
}

func stepSub(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	destVal, err := readDest(s, d, in.Width, in.Address)
	if err != nil {
		return nil, err
	}

	states, diff := subStates(s, in, unsound, srcVal, destVal)
	for _, st := range states {
		if err := writeDest(st, d, in.Width, diff, in.Address); err != nil {
			return nil, err
		}
	}
	return states, nil
}

func stepCmp(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	destVal, err := readDest(s, d, in.Width, in.Address)
	if err != nil {
		return nil, err
	}

	states, _ := subStates(s, in, unsound, srcVal, destVal)
	return states, nil
}

func stepBit(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	destVal, err := readDest(s, d, in.Width, in.Address)
	if err != nil {
		return nil, err
	}

	need := flagsFor(s, in, unsound)
	width := in.Width.Bits()
	and := bitvec.And(srcVal, destVal)
	zero := bitvec.Const(0, width)

	states := []*State{s}
	if need.N {
		states = forkFlag(states, flagN, bitvec.Eq(bitvec.Extract(width-1, width-1, and), bitvec.Const(1, 1)))
	}
	if need.Z {
		states = forkFlag(states, flagZ, bitvec.Eq(and, zero))
	}
	if need.C {
		states = forkFlag(states, flagC, bitvec.Ne(and, zero))
	}
	clearFlag(states, flagV)
	return states, nil
}

func stepXor(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	destVal, err := readDest(s, d, in.Width, in.Address)
	if err != nil {
		return nil, err
	}

	need := flagsFor(s, in, unsound)
	width := in.Width.Bits()
	res := bitvec.Xor(srcVal, destVal)
	zero := bitvec.Const(0, width)

	states := []*State{s}
	if need.N {
		states = forkFlag(states, flagN, bitvec.Eq(bitvec.Extract(width-1, width-1, res), bitvec.Const(1, 1)))
	}
	if need.Z {
		states = forkFlag(states, flagZ, bitvec.Eq(res, zero))
	}
	if need.C {
		states = forkFlag(states, flagC, bitvec.Ne(res, zero))
	}
	if need.V {
		states = forkFlag(states, flagV, bitvec.BoolAnd(bitvec.SLT(srcVal, zero), bitvec.SLT(destVal, zero)))
	}

	for _, st := range states {
		if err := writeDest(st, d, in.Width, res, in.Address); err != nil {
			return nil, err
		}
	}
	return states, nil
}

func stepBic(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	destVal, err := readDest(s, d, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	res := bitvec.And(bitvec.Not(srcVal), destVal)
	if err := writeDest(s, d, in.Width, res, in.Address); err != nil {
		return nil, err
	}
	return []*State{s}, nil
}

func stepBis(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	destVal, err := readDest(s, d, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	res := bitvec.Or(srcVal, destVal)
	if err := writeDest(s, d, in.Width, res, in.Address); err != nil {
		return nil, err
	}
	return []*State{s}, nil
}

// stepAnd does not fork on any flag: the source's own #FIXME leaves
// AND's status-bit update unimplemented (SLAU144J 3.4.6.4), and the
// catalog marks AND as not flag-producing to match.
func stepAnd(s *State, in *inst.Instruction, unsound bool) ([]*State, error) {
	srcVal, err := getOperandValue(s, in.SrcMode, in.SrcReg, in.SrcOperand, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	d := resolveDest(s, in.DstMode, in.DstReg, in.DstOperand, in.Width)
	destVal, err := readDest(s, d, in.Width, in.Address)
	if err != nil {
		return nil, err
	}
	res := bitvec.And(srcVal, destVal)
	if err := writeDest(s, d, in.Width, res, in.Address); err != nil {
		return nil, err
	}
	return []*State{s}, nil
}
