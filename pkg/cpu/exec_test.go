package cpu

import (
	"testing"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
	"github.com/Hypersonic/msp430-symex/pkg/memory"
)

// fakeSolver answers CheckSat/SolverSimplify using only constant folding,
// sufficient for tests that never introduce genuinely symbolic input
// bytes into a branch condition. A test that needs real satisfiability
// over symbolic values belongs against pkg/bitvec's Z3Solver, not here.
type fakeSolver struct{}

func (fakeSolver) CheckSat(pred *bitvec.Expr) (bool, bitvec.Model, error) {
	simplified := bitvec.Simplify(pred)
	if v, ok := simplified.IsConst(); ok {
		return v != 0, fakeModel{}, nil
	}
	return true, fakeModel{}, nil
}

func (fakeSolver) SolverSimplify(e *bitvec.Expr) *bitvec.Expr {
	return bitvec.Simplify(e)
}

type fakeModel struct{}

func (fakeModel) Eval(e *bitvec.Expr) (uint64, bool) {
	if v, ok := bitvec.Simplify(e).IsConst(); ok {
		return v, true
	}
	return 0, false
}

func newTestState(t *testing.T, code []byte, startIP uint16) *State {
	t.Helper()
	mem := memory.New()
	for i, b := range code {
		mem.WriteByteAt(startIP+uint16(i), bitvec.Const(uint64(b), 8))
	}
	return NewState(mem, startIP, fakeSolver{})
}

func regVal(t *testing.T, s *State, r inst.Register) uint64 {
	t.Helper()
	v, ok := bitvec.Simplify(s.CPU.Regs.Get(r)).IsConst()
	if !ok {
		t.Fatalf("register %v is not concrete", r)
	}
	return v
}

// concreteSuccessor finds the single satisfiable successor among states
// whose status-register flag bits match want exactly, failing the test
// if none or more than one does -- the shape every flag-forking test
// needs since Step forks on every flag unless unsound lookahead prunes
// some, and the infeasible halves of those forks stay in the list.
func concreteSuccessor(t *testing.T, states []*State, mask uint16, want uint16) *State {
	t.Helper()
	var match *State
	for _, st := range states {
		sat, err := st.Path.IsSat()
		if err != nil {
			t.Fatalf("IsSat: %v", err)
		}
		if !sat {
			continue
		}
		sr := regVal(t, st, inst.SR)
		if uint16(sr)&mask == want {
			if match != nil {
				t.Fatalf("more than one successor has flags&0x%x == 0x%x", mask, want)
			}
			match = st
		}
	}
	if match == nil {
		t.Fatalf("no successor has flags&0x%x == 0x%x", mask, want)
	}
	return match
}

func TestMovImmediateToRegister(t *testing.T) {
	// mov #0x1234, r5
	s := newTestState(t, []byte{0x35, 0x40, 0x34, 0x12}, 0x4400)
	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("got %d successors, want 1", len(states))
	}
	if got := regVal(t, states[0], inst.R5); got != 0x1234 {
		t.Errorf("r5 = 0x%x, want 0x1234", got)
	}
	if got := regVal(t, states[0], inst.PC); got != 0x4404 {
		t.Errorf("pc = 0x%x, want 0x4404", got)
	}
}

func TestAddSetsCarryOnOverflow(t *testing.T) {
	// mov #0xffff, r5; add #1, r5
	s := newTestState(t, []byte{
		0x35, 0x40, 0xff, 0xff,
		0x35, 0x50, 0x01, 0x00,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("mov forked into %d states", len(states))
	}
	s = states[0]

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step add: %v", err)
	}

	match := concreteSuccessor(t, states, flagC|flagZ, flagC|flagZ)
	if got := regVal(t, match, inst.R5); got != 0 {
		t.Errorf("r5 = 0x%x, want 0", got)
	}
}

func TestSubSetsZeroWhenEqual(t *testing.T) {
	// mov #5, r5; sub #5, r5
	s := newTestState(t, []byte{
		0x35, 0x40, 0x05, 0x00,
		0x35, 0x80, 0x05, 0x00,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	s = states[0]

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step sub: %v", err)
	}
	match := concreteSuccessor(t, states, flagZ, flagZ)
	if got := regVal(t, match, inst.R5); got != 0 {
		t.Errorf("r5 = 0x%x, want 0", got)
	}
}

func TestCmpDoesNotWriteBack(t *testing.T) {
	// mov #5, r5; cmp #5, r5
	s := newTestState(t, []byte{
		0x35, 0x40, 0x05, 0x00,
		0x35, 0x90, 0x05, 0x00,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	s = states[0]

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step cmp: %v", err)
	}
	match := concreteSuccessor(t, states, flagZ, flagZ)
	if got := regVal(t, match, inst.R5); got != 5 {
		t.Errorf("r5 = 0x%x, want 5 (cmp must not write back)", got)
	}
}

func TestXorFlips(t *testing.T) {
	// mov #0xff00, r5; xor #0xffff, r5
	s := newTestState(t, []byte{
		0x35, 0x40, 0x00, 0xff,
		0x35, 0xe0, 0xff, 0xff,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	s = states[0]

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step xor: %v", err)
	}
	match := concreteSuccessor(t, states, flagN, 0)
	if got := regVal(t, match, inst.R5); got != 0x00ff {
		t.Errorf("r5 = 0x%x, want 0x00ff", got)
	}
}

func TestSwpbSwapsBytes(t *testing.T) {
	// mov #0x1234, r5; swpb r5
	s := newTestState(t, []byte{
		0x35, 0x40, 0x34, 0x12,
		0x85, 0x10,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	s = states[0]

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step swpb: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("swpb forked into %d states", len(states))
	}
	if got := regVal(t, states[0], inst.R5); got != 0x3412 {
		t.Errorf("r5 = 0x%x, want 0x3412", got)
	}
}

func TestSxtSignExtendsNegativeByte(t *testing.T) {
	// mov #0x00ff, r5; sxt r5
	s := newTestState(t, []byte{
		0x35, 0x40, 0xff, 0x00,
		0x85, 0x11,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	s = states[0]

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step sxt: %v", err)
	}
	match := concreteSuccessor(t, states, flagN, flagN)
	if got := regVal(t, match, inst.R5); got != 0xffff {
		t.Errorf("r5 = 0x%x, want 0xffff", got)
	}
}

func TestPushDecrementsSPAndWritesWord(t *testing.T) {
	// mov #0x4000, sp; mov #0xbeef, r5; push r5
	s := newTestState(t, []byte{
		0x31, 0x40, 0x00, 0x40,
		0x35, 0x40, 0xef, 0xbe,
		0x05, 0x12,
	}, 0x4400)

	for i := 0; i < 3; i++ {
		states, err := s.Step(false)
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if len(states) != 1 {
			t.Fatalf("Step %d forked into %d states", i, len(states))
		}
		s = states[0]
	}

	if got := regVal(t, s, inst.SP); got != 0x3ffe {
		t.Errorf("sp = 0x%x, want 0x3ffe", got)
	}
	word, err := s.Mem.ReadWord(bitvec.Const(0x3ffe, 16))
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	v, ok := bitvec.Simplify(word).IsConst()
	if !ok || v != 0xbeef {
		t.Errorf("stack word = %v, want 0xbeef", word)
	}
}

func TestCallPushesReturnAddressAndJumps(t *testing.T) {
	// mov #0x4000, sp; call #0x4500
	s := newTestState(t, []byte{
		0x31, 0x40, 0x00, 0x40,
		0xb0, 0x12, 0x00, 0x45,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	s = states[0]

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step call: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("call forked into %d states", len(states))
	}
	s = states[0]

	if got := regVal(t, s, inst.PC); got != 0x4500 {
		t.Errorf("pc = 0x%x, want 0x4500", got)
	}
	word, err := s.Mem.ReadWord(bitvec.Const(0x3ffe, 16))
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if v, ok := bitvec.Simplify(word).IsConst(); !ok || v != 0x4408 {
		t.Errorf("saved return address = %v, want 0x4408", word)
	}
}

func TestCallGateDispatchesPutcharInterrupt(t *testing.T) {
	// mov #0x4000, sp; call #0x10, with the one-byte argument poked
	// directly onto the stack at SP+argOffset rather than emulating the
	// caller's own push sequence.
	s := newTestState(t, []byte{
		0x31, 0x40, 0x00, 0x40,
		0xb0, 0x12, 0x10, 0x00,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	s = states[0]
	s.CPU.Regs.Set(inst.SR, bitvec.Const(0, 16))
	if err := s.Mem.WriteByte(bitvec.Const(0x4000+argOffset, 16), bitvec.Const('A', 8)); err != nil {
		t.Fatalf("WriteByte: %v", err)
	}

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step call: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("call forked into %d states", len(states))
	}
	out := states[0].Output.DumpOutput(fakeModel{})
	if string(out) != "A" {
		t.Errorf("output = %q, want %q", out, "A")
	}
}

func TestJnzForksOnZeroFlag(t *testing.T) {
	// mov #0, r5; cmp #0, r5; jnz +4 (not taken since the compare result
	// is zero)
	s := newTestState(t, []byte{
		0x35, 0x40, 0x00, 0x00,
		0x35, 0x90, 0x00, 0x00,
		0x01, 0x20,
	}, 0x4400)

	states, err := s.Step(false)
	if err != nil {
		t.Fatalf("Step mov: %v", err)
	}
	s = states[0]

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step cmp: %v", err)
	}
	s = concreteSuccessor(t, states, flagZ, flagZ)

	states, err = s.Step(false)
	if err != nil {
		t.Fatalf("Step jnz: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("jnz forked into %d states, want 2", len(states))
	}

	var takenSeen, notTakenSeen bool
	for _, st := range states {
		sat, err := st.Path.IsSat()
		if err != nil {
			t.Fatalf("IsSat: %v", err)
		}
		pc := regVal(t, st, inst.PC)
		switch pc {
		case 0x440c:
			takenSeen = true
			if sat {
				t.Errorf("taken branch should be unsat when Z=1 (jnz requires Z=0)")
			}
		case 0x440a:
			notTakenSeen = true
			if !sat {
				t.Errorf("fall-through branch should stay sat when Z=1")
			}
		default:
			t.Errorf("unexpected pc 0x%x among jnz successors", pc)
		}
	}
	if !takenSeen || !notTakenSeen {
		t.Fatalf("expected one taken and one not-taken successor")
	}
}

func TestUnimplementedOpcodeReportsKind(t *testing.T) {
	// rra r5
	s := newTestState(t, []byte{0x05, 0x11}, 0x4400)
	_, err := s.Step(false)
	if err == nil {
		t.Fatal("expected an error for rra")
	}
	cpuErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error is %T, want *Error", err)
	}
	if cpuErr.Kind != UnimplementedOpcode {
		t.Errorf("kind = %v, want UnimplementedOpcode", cpuErr.Kind)
	}
}

func TestUnsoundLookaheadPrunesUnreadFlags(t *testing.T) {
	// add #1, r5; jnz +4 -- only Z is read downstream, so the unsound
	// lookahead should fork on Z alone rather than a 16-way N/Z/C/V
	// split. The trailing ret ends the lookahead window; without it the
	// window runs into undecodable zero bytes and falls back to forking
	// on every flag.
	code := []byte{
		0x35, 0x50, 0x01, 0x00, // add #1, r5
		0x01, 0x20, // jnz +4
		0x30, 0x41, // ret (mov @sp+, pc)
	}
	s := newTestState(t, code, 0x4400)
	states, err := s.Step(true)
	if err != nil {
		t.Fatalf("Step add: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d successors under unsound lookahead, want 2 (Z fork only)", len(states))
	}
}
