package cpu

import (
	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
)

// argOffset is the stack displacement (relative to SP at the callgate
// CALL) of an interrupt summary's first argument. The callgate CALL
// pushes nothing here (stepCall dispatches before its push), so the
// three words below the argument are ones the firmware itself placed
// on the stack before reaching the callgate.
const argOffset = 6

type interruptFn func(*State) ([]*State, error)

var interruptTable map[uint64]interruptFn

func init() {
	interruptTable = map[uint64]interruptFn{
		0x00: intPutchar,
		0x02: intGets,
		0x7d: intHSM1Check,
		0x7e: intHSM2Check,
		0x7f: intUnlock,
		0x01: unimplementedInterrupt("getchar"),
		0x10: unimplementedInterrupt("enabledep"),
		0x11: unimplementedInterrupt("setpageperms"),
		0x20: unimplementedInterrupt("rand"),
	}
}

// interruptNumber reads the dispatch number CALL #0x10 reads out of R2
// bits 14..8 (the ">>8" byte with the top bit masked off), the way
// real Microcorruption firmware selects an interrupt summary.
func interruptNumber(s *State) (uint64, error) {
	sr := s.CPU.Regs.Get(inst.SR)
	simplified := bitvec.Simplify(bitvec.Extract(14, 8, sr))
	v, ok := simplified.IsConst()
	if !ok {
		return 0, newError(SymbolicInterruptNumber, 0, "interrupt dispatch register is symbolic", nil)
	}
	return v, nil
}

func unimplementedInterrupt(name string) interruptFn {
	return func(s *State) ([]*State, error) {
		return nil, newError(UnimplementedOpcode, 0, name+" interrupt", nil)
	}
}

// intPutchar reads the one-byte argument off the stack and appends it
// to the state's output stream.
func intPutchar(s *State) ([]*State, error) {
	addr := bitvec.Add(s.CPU.Regs.Get(inst.SP), bitvec.Const(argOffset, 16))
	v, err := s.Mem.ReadByte(addr)
	if err != nil {
		return nil, newError(SymbolicMemoryAddress, 0, err.Error(), err)
	}
	s.Output.Add(v)
	return []*State{s}, nil
}

// intGets reads a destination pointer and a length off the stack,
// generates that many fresh symbolic input bytes, writes them into
// memory, and writes a terminator byte at dest+length+1 -- an
// off-by-one from the usual C string convention that matches the
// target corpus's observed firmware behavior rather than a NUL
// immediately after the data.
func intGets(s *State) ([]*State, error) {
	sp := s.CPU.Regs.Get(inst.SP)
	destPtr := bitvec.Add(sp, bitvec.Const(argOffset, 16))
	s.Path.Add(wordAligned(destPtr))
	destAddr, err := s.Mem.ReadWord(destPtr)
	if err != nil {
		return nil, newError(SymbolicMemoryAddress, 0, err.Error(), err)
	}
	lengthPtr := bitvec.Add(sp, bitvec.Const(argOffset+2, 16))
	s.Path.Add(wordAligned(lengthPtr))
	lengthExpr, err := s.Mem.ReadWord(lengthPtr)
	if err != nil {
		return nil, newError(SymbolicMemoryAddress, 0, err.Error(), err)
	}

	fresh, err := s.Input.GenerateInput(lengthExpr)
	if err != nil {
		return nil, newError(SymbolicMemoryAddress, 0, "gets length is symbolic", err)
	}

	for i, b := range fresh {
		addr := bitvec.Add(destAddr, bitvec.Const(uint64(i), 16))
		if err := s.Mem.WriteByte(addr, b); err != nil {
			return nil, newError(SymbolicMemoryAddress, 0, err.Error(), err)
		}
	}

	length := uint64(len(fresh))
	termAddr := bitvec.Add(destAddr, bitvec.Const(length+1, 16))
	oldByte, err := s.Mem.ReadByte(termAddr)
	if err != nil {
		return nil, newError(SymbolicMemoryAddress, 0, err.Error(), err)
	}

	zero8 := bitvec.Const(0, 8)
	allNonzero := make([]*bitvec.Expr, len(fresh))
	for i, b := range fresh {
		allNonzero[i] = bitvec.Ne(b, zero8)
	}
	term := bitvec.Ite(bitvec.BoolAnd(allNonzero...), zero8, oldByte)
	if err := s.Mem.WriteByte(termAddr, term); err != nil {
		return nil, newError(SymbolicMemoryAddress, 0, err.Error(), err)
	}

	return []*State{s}, nil
}

// intHSM1Check and intHSM2Check are modeled as no-ops: the target
// corpus's hardware-security-module challenges gate on side channels
// this engine doesn't model, so both are left behaviorally inert.
func intHSM1Check(s *State) ([]*State, error) { return []*State{s}, nil }
func intHSM2Check(s *State) ([]*State, error) { return []*State{s}, nil }

// intUnlock marks the state as having reached the unlocked condition,
// which PathGroup.StepUntilUnlocked watches for.
func intUnlock(s *State) ([]*State, error) {
	s.Unlocked = true
	return []*State{s}, nil
}
