package cpu

import (
	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
	"github.com/Hypersonic/msp430-symex/pkg/regfile"
)

func withFlagSet(sr *bitvec.Expr, mask uint16) *bitvec.Expr {
	return bitvec.Or(sr, bitvec.Const(uint64(mask), 16))
}

func withFlagClear(sr *bitvec.Expr, mask uint16) *bitvec.Expr {
	return bitvec.And(sr, bitvec.Const(uint64(^mask), 16))
}

// forkFlag splits each state in states into two: one where cond holds
// (mask gets set in the status register) and one where it doesn't (mask
// gets cleared). The first branch reuses the input state object and the
// second clones it, so only one of the two branches pays for a copy.
func forkFlag(states []*State, mask uint16, cond *bitvec.Expr) []*State {
	out := make([]*State, 0, len(states)*2)
	notCond := bitvec.BoolNot(cond)
	for _, st := range states {
		setSt := st
		clearSt := st.Clone()

		setSt.Path.Add(cond)
		setSt.CPU.Regs.Set(inst.SR, withFlagSet(setSt.CPU.Regs.Get(inst.SR), mask))

		clearSt.Path.Add(notCond)
		clearSt.CPU.Regs.Set(inst.SR, withFlagClear(clearSt.CPU.Regs.Get(inst.SR), mask))

		out = append(out, setSt, clearSt)
	}
	return out
}

// clearFlag unconditionally clears mask in every state's status
// register, used by instructions whose V flag is always reset (SXT,
// BIT).
func clearFlag(states []*State, mask uint16) {
	for _, st := range states {
		st.CPU.Regs.Set(inst.SR, withFlagClear(st.CPU.Regs.Get(inst.SR), mask))
	}
}

// neededFlags mirrors the flag-relevance lookahead: rather than forking
// a state on every flag a flag-producing instruction could set, look at
// the next few instructions and only fork on the flags a jump
// downstream will actually read. This is unsound in general (a
// computed-goto could read a flag the lookahead didn't see a consumer
// for) but is an accepted tradeoff for the speedup it buys.
type neededFlags struct {
	N, Z, C, V bool
}

func allFlags() neededFlags {
	return neededFlags{N: true, Z: true, C: true, V: true}
}

func lookaheadFlags(s *State, at uint16) neededFlags {
	insns, err := s.DecodeSomeInstructions(at, 6)
	if err != nil {
		// Decoding failed partway through the lookahead window (ran off
		// memory, hit an undecodable word); fall back to forking on
		// every flag rather than risk missing one.
		return allFlags()
	}

	var need neededFlags
	for _, in := range insns {
		switch in.Opcode {
		case inst.JN, inst.JGE, inst.JL:
			need.N = true
		case inst.JNZ, inst.JZ:
			need.Z = true
		case inst.JNC, inst.JC:
			need.C = true
		}
		if in.Opcode == inst.JGE || in.Opcode == inst.JL {
			need.V = true
		}
	}
	return need
}

// regfile.FlagC etc. are re-exported here under the names the rest of
// this package's switch statements read most naturally.
const (
	flagC = regfile.FlagC
	flagZ = regfile.FlagZ
	flagN = regfile.FlagN
	flagV = regfile.FlagV
)
