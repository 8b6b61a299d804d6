package cpu

import (
	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
	"github.com/Hypersonic/msp430-symex/pkg/iostream"
	"github.com/Hypersonic/msp430-symex/pkg/memory"
	"github.com/Hypersonic/msp430-symex/pkg/regfile"
)

// interruptAddress is the callgated address CALL checks for on every
// call.
const interruptAddress = 0x0010

// CPU holds the register file (the interrupt dispatch table is the
// package-level interruptTable, not a CPU field). Unlike
// State it owns no copy-on-write machinery of its own: Clone does a
// full RegisterFile copy, which is cheap.
type CPU struct {
	Regs *regfile.RegisterFile
}

func newCPU() *CPU {
	return &CPU{Regs: regfile.New()}
}

func (c *CPU) Clone() *CPU {
	return &CPU{Regs: c.Regs.Clone()}
}

// State is the entire machine snapshot a worklist entry holds: the
// register file, symbolic memory, the accumulated path predicate, the
// input/output streams, and whether this path has reached the unlocked
// state.
type State struct {
	CPU    *CPU
	Mem    *memory.Memory
	Path   *Path
	Input  *iostream.IOStream
	Output *iostream.IOStream

	Unlocked bool
	Ticks    int
}

// NewState builds the entry state for a fresh exploration: memory
// initialized from mem, PC set to startIP, empty path/streams.
func NewState(mem *memory.Memory, startIP uint16, solver bitvec.Solver) *State {
	s := &State{
		CPU:    newCPU(),
		Mem:    mem,
		Path:   NewPath(solver),
		Input:  iostream.New(iostream.Input),
		Output: iostream.New(iostream.Output),
	}
	s.CPU.Regs.Set(inst.PC, bitvec.Const(uint64(startIP), 16))
	return s
}

// Clone returns a copy-on-write clone with Ticks incremented, so the
// worklist's selection heuristic has a step count to compare across
// states.
func (s *State) Clone() *State {
	return &State{
		CPU:      s.CPU.Clone(),
		Mem:      s.Mem.Clone(),
		Path:     s.Path.Clone(),
		Input:    s.Input.Clone(),
		Output:   s.Output.Clone(),
		Unlocked: s.Unlocked,
		Ticks:    s.Ticks + 1,
	}
}

// ip concretizes the program counter, returning a SymbolicMemoryAddress
// error if it isn't currently a literal (the caller should have already
// checked HasSymbolicIP and routed the state to the symbolic bucket
// instead of stepping it).
func (s *State) ip() (uint16, error) {
	pc := bitvec.Simplify(s.CPU.Regs.Get(inst.PC))
	v, ok := pc.IsConst()
	if !ok {
		return 0, newError(SymbolicMemoryAddress, 0, "instruction pointer is symbolic", nil)
	}
	return uint16(v), nil
}

// HasSymbolicIP reports whether the program counter is not presently a
// concrete literal.
func (s *State) HasSymbolicIP() bool {
	pc := bitvec.Simplify(s.CPU.Regs.Get(inst.PC))
	_, ok := pc.IsConst()
	return !ok
}

// ConcretePC returns the program counter as a concrete literal, and false
// if it is presently symbolic. Exported for callers outside pkg/cpu (the
// worklist driver's avoid-address check and bucket classification) that
// need the same concretization ip() does internally.
func (s *State) ConcretePC() (uint16, bool) {
	pc := bitvec.Simplify(s.CPU.Regs.Get(inst.PC))
	v, ok := pc.IsConst()
	if !ok {
		return 0, false
	}
	return uint16(v), true
}

// decodeAt reads up to 6 concrete bytes (the longest possible MSP430
// instruction encoding) starting at addr and decodes one instruction
// from them.
func (s *State) decodeAt(addr uint16) (inst.Instruction, error) {
	var buf [6]byte
	for i := range buf {
		b := bitvec.Simplify(s.Mem.ReadByteAt(addr + uint16(i)))
		v, ok := b.IsConst()
		if !ok {
			// Only a hard failure if the decoder actually needs this
			// byte; most instructions are 2-4 bytes. Substitute 0 and
			// let Decode fail downstream if it actually reads this far.
			buf[i] = 0
			continue
		}
		buf[i] = byte(v)
	}
	in, err := inst.Decode(addr, buf[:])
	if err != nil {
		return inst.Instruction{}, newError(MalformedInstruction, addr, err.Error(), err)
	}
	return in, nil
}

// DecodeSomeInstructions decodes up to n instructions starting at ip
// without executing them, stopping early at a return-like instruction
// (RETI, or the MOV @SP+, PC RET idiom) since there's no way to know
// what lies past a return -- end of the memory image, or unrelated
// data. Used by the flag-relevance lookahead.
func (s *State) DecodeSomeInstructions(ip uint16, n int) ([]inst.Instruction, error) {
	instructions := make([]inst.Instruction, 0, n)
	addr := ip
	for i := 0; i < n; i++ {
		in, err := s.decodeAt(addr)
		if err != nil {
			return instructions, err
		}
		instructions = append(instructions, in)
		addr += uint16(in.Len())
		if in.IsReturnLike() {
			break
		}
	}
	return instructions, nil
}

// Step decodes and executes one instruction, returning the (possibly
// forked) successor states. unsound enables the flag-relevance
// lookahead; disabling it forks on every flag a producing instruction
// could set, which is sound but much slower.
func (s *State) Step(unsound bool) ([]*State, error) {
	ip, err := s.ip()
	if err != nil {
		return nil, err
	}

	in, err := s.decodeAt(ip)
	if err != nil {
		return nil, err
	}

	fn, ok := stepTable[in.Opcode]
	if !ok {
		return nil, newError(UnimplementedOpcode, ip, inst.Catalog[in.Opcode].Mnemonic, nil)
	}

	next := s.Clone()
	next.CPU.Regs.Set(inst.PC, bitvec.Const(uint64(ip+uint16(in.Len())), 16))

	return fn(next, &in, unsound)
}
