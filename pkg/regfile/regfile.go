// Package regfile implements the sixteen-register MSP430 register file.
// Unlike memory and the path predicate, the register file is small and
// copied wholesale on every State.Clone() rather than carrying its own
// copy-on-write flag.
package regfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
)

// Status register bit masks.
const (
	FlagC uint16 = 0x0001
	FlagZ uint16 = 0x0002
	FlagN uint16 = 0x0004
	FlagV uint16 = 0x0100
)

// RegisterFile holds all sixteen general-purpose registers as symbolic
// 16-bit values.
type RegisterFile struct {
	regs [16]*bitvec.Expr
}

// New builds a register file with every register initialized to the
// concrete value 0, matching a freshly reset MSP430 core.
func New() *RegisterFile {
	rf := &RegisterFile{}
	zero := bitvec.Const(0, 16)
	for i := range rf.regs {
		rf.regs[i] = zero
	}
	return rf
}

// Clone returns a full independent copy; registers are cheap enough
// (sixteen pointers) that copy-on-write bookkeeping isn't worth it.
func (rf *RegisterFile) Clone() *RegisterFile {
	clone := &RegisterFile{}
	clone.regs = rf.regs
	return clone
}

// Get reads register r's current symbolic value.
func (rf *RegisterFile) Get(r inst.Register) *bitvec.Expr {
	return rf.regs[r]
}

// Set writes register r's symbolic value. Callers are responsible for
// masking to 16 bits; byte-width single-operand writes to a register
// zero-extend per the MSP430 ISA and must be handled by the caller
// before calling Set.
func (rf *RegisterFile) Set(r inst.Register, value *bitvec.Expr) {
	rf.regs[r] = value
}

// StatusFlagExpr builds the boolean expression "mask's bit is set in the
// status register (R2)". It does not simplify; callers that need a
// definite answer for a concrete R2 pass the result through
// bitvec.Simplify, which folds it without invoking the solver.
func (rf *RegisterFile) StatusFlagExpr(mask uint16) *bitvec.Expr {
	sr := rf.Get(inst.SR)
	return bitvec.Ne(bitvec.And(sr, bitvec.Const(uint64(mask), 16)), bitvec.Const(0, 16))
}

// Lookup resolves a register from a 0..15 numeric index or a
// case-insensitive name (access by inst.Register value is Get/Set) ("r12", "R12", "PC", "sp", "sr", "cg" all
// accepted).
func Lookup(s string) (inst.Register, error) {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "pc":
		return inst.PC, nil
	case "sp":
		return inst.SP, nil
	case "sr":
		return inst.SR, nil
	case "cg":
		return inst.CG, nil
	}

	name := trimmed
	if len(name) > 0 && (name[0] == 'r' || name[0] == 'R') {
		name = name[1:]
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || n > 15 {
		return 0, fmt.Errorf("regfile: %q is not a valid register name", s)
	}
	return inst.Register(n), nil
}

// GetByName looks up and reads a register by name or index; see Lookup.
func (rf *RegisterFile) GetByName(s string) (*bitvec.Expr, error) {
	r, err := Lookup(s)
	if err != nil {
		return nil, err
	}
	return rf.Get(r), nil
}

// SetByName looks up and writes a register by name or index; see Lookup.
func (rf *RegisterFile) SetByName(s string, value *bitvec.Expr) error {
	r, err := Lookup(s)
	if err != nil {
		return err
	}
	rf.Set(r, value)
	return nil
}
