// Package memory implements byte-addressable symbolic memory with
// copy-on-write clone semantics.
package memory

import (
	"errors"
	"fmt"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
)

// Size is the number of addressable bytes (0x0000-0xFFFF inclusive).
const Size = 0x10000

// ErrSymbolicAddress is returned when a read or write is attempted with
// an address that does not concretize to a numeric literal. pkg/cpu
// classifies this into the engine's SymbolicMemoryAddress error kind.
var ErrSymbolicAddress = errors.New("memory: address did not concretize to a literal")

// Memory is a 64Ki-byte array of symbolic bytes (BV8). Clones share the
// backing slice until either side writes; each instance carries its own
// needsCopy flag so the first writer (whichever side it is) deep-copies
// its own view and the other side is left untouched.
type Memory struct {
	data      []*bitvec.Expr
	needsCopy bool
}

// New builds memory initialized to all-zero bytes.
func New() *Memory {
	data := make([]*bitvec.Expr, Size)
	zero := bitvec.Const(0, 8)
	for i := range data {
		data[i] = zero
	}
	return &Memory{data: data}
}

// FromBytes builds memory initialized from a concrete flat image. img
// must have length Size.
func FromBytes(img []byte) (*Memory, error) {
	if len(img) != Size {
		return nil, fmt.Errorf("memory: image length %d != %d", len(img), Size)
	}
	data := make([]*bitvec.Expr, Size)
	for i, b := range img {
		data[i] = bitvec.Const(uint64(b), 8)
	}
	return &Memory{data: data}, nil
}

// Clone returns a copy-on-write clone; see the COW invariants comment
// above.
func (m *Memory) Clone() *Memory {
	clone := &Memory{data: m.data, needsCopy: true}
	m.needsCopy = true
	return clone
}

func (m *Memory) ensureOwned() {
	if !m.needsCopy {
		return
	}
	cp := make([]*bitvec.Expr, len(m.data))
	copy(cp, m.data)
	m.data = cp
	m.needsCopy = false
}

// concretize resolves addr to a numeric index, simplifying first.
func concretize(addr *bitvec.Expr) (int, error) {
	simplified := bitvec.Simplify(addr)
	v, ok := simplified.IsConst()
	if !ok {
		return 0, ErrSymbolicAddress
	}
	return int(v) & (Size - 1), nil
}

// ReadByte reads one symbolic byte at addr.
func (m *Memory) ReadByte(addr *bitvec.Expr) (*bitvec.Expr, error) {
	idx, err := concretize(addr)
	if err != nil {
		return nil, err
	}
	return m.data[idx], nil
}

// WriteByte writes one symbolic byte at addr.
func (m *Memory) WriteByte(addr *bitvec.Expr, value *bitvec.Expr) error {
	idx, err := concretize(addr)
	if err != nil {
		return err
	}
	m.ensureOwned()
	m.data[idx] = value
	return nil
}

// ReadWord reads a little-endian 16-bit word at addr: low byte at addr,
// high byte at addr+1.
func (m *Memory) ReadWord(addr *bitvec.Expr) (*bitvec.Expr, error) {
	low, err := m.ReadByte(addr)
	if err != nil {
		return nil, err
	}
	high, err := m.ReadByte(bitvec.Add(addr, bitvec.Const(1, addr.Width)))
	if err != nil {
		return nil, err
	}
	return bitvec.Concat(high, low), nil
}

// WriteWord writes a little-endian 16-bit word at addr.
func (m *Memory) WriteWord(addr *bitvec.Expr, value *bitvec.Expr) error {
	low := bitvec.Extract(7, 0, value)
	high := bitvec.Extract(15, 8, value)
	if err := m.WriteByte(addr, low); err != nil {
		return err
	}
	return m.WriteByte(bitvec.Add(addr, bitvec.Const(1, addr.Width)), high)
}

// ReadByteAt / WriteByteAt are convenience wrappers for already-concrete
// 16-bit addresses (used by the instruction fetch in pkg/cpu and the
// loader), avoiding the caller building a throwaway
// bitvec.Const at every call site.
func (m *Memory) ReadByteAt(addr uint16) *bitvec.Expr {
	return m.data[addr]
}

func (m *Memory) WriteByteAt(addr uint16, value *bitvec.Expr) {
	m.ensureOwned()
	m.data[addr] = value
}
