// Package witness formats a solved State's input/output streams into a
// reproducible proof-of-concept: one byte sequence per gets call,
// unconstrained bytes reported as a fixed sentinel, plus an optional
// JSON report for machine consumption.
package witness

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/cpu"
	"github.com/Hypersonic/msp430-symex/pkg/inst"
)

// Witness is the resolved result of a solved State: the bytes to feed at
// each gets prompt, the bytes the program printed, the final register
// file, and whether the run ended unlocked or merely reached a symbolic
// instruction pointer.
type Witness struct {
	Unlocked  bool              `json:"unlocked"`
	Input     [][]byte          `json:"input"`
	Output    []byte            `json:"output"`
	Registers map[string]uint16 `json:"-"`
}

// FromState resolves s's input/output streams under its Path's model.
// The caller must have already confirmed s.Path.IsSat() returned true
// (a Witness from an unsat state's zero-value model is meaningless).
func FromState(s *cpu.State) (*Witness, error) {
	sat, err := s.Path.IsSat()
	if err != nil {
		return nil, fmt.Errorf("witness: checking satisfiability: %w", err)
	}
	if !sat {
		return nil, fmt.Errorf("witness: state's path is unsatisfiable")
	}
	model := s.Path.Model()

	return &Witness{
		Unlocked:  s.Unlocked,
		Input:     s.Input.DumpInputGroups(model),
		Output:    s.Output.DumpOutput(model),
		Registers: dumpRegisters(s, model),
	}, nil
}

// dumpRegisters resolves all sixteen registers under model, falling back
// to the sentinel-free "unresolved" omission (a symbolic register with no
// binding in model) by simply leaving it out rather than guessing a value
// the way the sentinel byte stands in for an unconstrained input/output
// byte -- a register's width (16 bits) has no corresponding CTF-witness
// convention to borrow a sentinel from.
func dumpRegisters(s *cpu.State, model bitvec.Model) map[string]uint16 {
	out := make(map[string]uint16, 16)
	for r := inst.R0; r <= inst.R15; r++ {
		v := s.CPU.Regs.Get(r)
		if n, ok := bitvec.Simplify(v).IsConst(); ok {
			out[r.String()] = uint16(n)
			continue
		}
		if n, ok := model.Eval(v); ok {
			out[r.String()] = uint16(n)
		}
	}
	return out
}

// WriteText prints the witness in the plain hex-dump format the
// external interface mandates: one line per gets call, space-separated
// hex bytes, followed by the flat output byte stream.
func WriteText(w io.Writer, wit *Witness) error {
	for i, group := range wit.Input {
		if _, err := fmt.Fprintf(w, "input[%d]: %s\n", i, hexSpaced(group)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "output: %s\n", hexSpaced(wit.Output))
	return err
}

// WriteJSON serializes the witness as a JSON report (§13's supplemented
// machine-readable mode), hex-encoding the byte slices so the document
// stays printable.
func WriteJSON(w io.Writer, wit *Witness) error {
	doc := struct {
		Unlocked  bool              `json:"unlocked"`
		Input     []string          `json:"input"`
		Output    string            `json:"output"`
		Registers map[string]uint16 `json:"registers"`
	}{
		Unlocked:  wit.Unlocked,
		Output:    hex.EncodeToString(wit.Output),
		Registers: wit.Registers,
	}
	doc.Input = make([]string, len(wit.Input))
	for i, group := range wit.Input {
		doc.Input[i] = hex.EncodeToString(group)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func hexSpaced(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	for i, v := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, []byte(fmt.Sprintf("%02X", v))...)
	}
	return string(out)
}
