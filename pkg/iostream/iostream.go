// Package iostream implements the symbolic input/output byte streams
// attached to a State -- the channel gets reads its input through and
// putchar writes its output to. Like pkg/memory, it is copy-on-write:
// clones share their backing slices until a write forces one side to
// take its own copy.
package iostream

import (
	"errors"
	"fmt"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
)

// Kind distinguishes the input channel (bytes gets wrote into memory,
// used to reconstruct a witness) from the output channel (bytes putchar
// emitted).
type Kind uint8

const (
	Input Kind = iota
	Output
)

// unconstrainedSentinel is substituted for a byte the model leaves
// unconstrained when dumping a witness -- an arbitrary fixed placeholder
// rather than a solver-chosen value.
const unconstrainedSentinel = 0xC0

// ErrSymbolicLength is returned by GenerateInput when the requested
// length does not concretize to a literal.
var ErrSymbolicLength = errors.New("iostream: input length did not concretize to a literal")

// IOStream is an append-only, copy-on-write ordered sequence of
// symbolic bytes.
type IOStream struct {
	kind          Kind
	data          []*bitvec.Expr
	groupedInputs [][]*bitvec.Expr // only meaningful for Input streams
	needsCopy     bool
}

// New builds an empty stream of the given kind.
func New(kind Kind) *IOStream {
	return &IOStream{kind: kind}
}

// Clone returns a copy-on-write clone.
func (io *IOStream) Clone() *IOStream {
	clone := &IOStream{kind: io.kind, data: io.data, groupedInputs: io.groupedInputs, needsCopy: true}
	io.needsCopy = true
	return clone
}

func (io *IOStream) ensureOwned() {
	if !io.needsCopy {
		return
	}
	data := make([]*bitvec.Expr, len(io.data))
	copy(data, io.data)
	io.data = data
	groups := make([][]*bitvec.Expr, len(io.groupedInputs))
	copy(groups, io.groupedInputs)
	io.groupedInputs = groups
	io.needsCopy = false
}

// Add appends one symbolic byte to the end of the stream.
func (io *IOStream) Add(value *bitvec.Expr) {
	io.ensureOwned()
	io.data = append(io.data, value)
}

// GenerateInput creates length fresh BV8 variables named "inp_N" (N
// continuing the stream's existing length, so names stay unique across
// every gets call in a single run), appends them to the stream, records
// them as a new input group for witness reconstruction, and returns
// them so the caller can write them into memory.
func (io *IOStream) GenerateInput(length *bitvec.Expr) ([]*bitvec.Expr, error) {
	io.ensureOwned()

	simplified := bitvec.Simplify(length)
	n, ok := simplified.IsConst()
	if !ok {
		return nil, ErrSymbolicLength
	}

	fresh := make([]*bitvec.Expr, 0, n)
	for i := uint64(0); i < n; i++ {
		v := bitvec.Fresh(fmt.Sprintf("inp_%d", len(io.data)), 8)
		io.data = append(io.data, v)
		fresh = append(fresh, v)
	}
	io.groupedInputs = append(io.groupedInputs, fresh)
	return fresh, nil
}

func resolveByte(model bitvec.Model, b *bitvec.Expr) byte {
	simplified := bitvec.Simplify(b)
	if v, ok := simplified.IsConst(); ok {
		return byte(v)
	}
	if v, ok := model.Eval(simplified); ok {
		return byte(v)
	}
	return unconstrainedSentinel
}

// DumpOutput resolves every byte of an Output stream under model into a
// concrete byte slice.
func (io *IOStream) DumpOutput(model bitvec.Model) []byte {
	out := make([]byte, len(io.data))
	for i, b := range io.data {
		out[i] = resolveByte(model, b)
	}
	return out
}

// DumpInputGroups resolves an Input stream under model, one []byte per
// gets call, in the order those calls occurred. This is the shape a
// witness needs: the exact bytes to feed at each prompt.
func (io *IOStream) DumpInputGroups(model bitvec.Model) [][]byte {
	out := make([][]byte, len(io.groupedInputs))
	for i, group := range io.groupedInputs {
		bs := make([]byte, len(group))
		for j, b := range group {
			bs[j] = resolveByte(model, b)
		}
		out[i] = bs
	}
	return out
}

// Len reports the number of bytes currently in the stream.
func (io *IOStream) Len() int {
	return len(io.data)
}
