package witness

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
	"github.com/Hypersonic/msp430-symex/pkg/cpu"
	"github.com/Hypersonic/msp430-symex/pkg/memory"
)

type fakeSolver struct{}

func (fakeSolver) CheckSat(pred *bitvec.Expr) (bool, bitvec.Model, error) {
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

func TestFromStateDumpsInputAndOutput(t *testing.T) {
	s := cpu.NewState(memory.New(), 0x4400, fakeSolver{})
	s.Output.Add(bitvec.Const('h', 8))
	s.Output.Add(bitvec.Const('i', 8))
	if _, err := s.Input.GenerateInput(bitvec.Const(2, 16)); err != nil {
		t.Fatalf("GenerateInput: %v", err)
	}
	s.Unlocked = true

	if _, err := s.Path.IsSat(); err != nil {
		t.Fatalf("IsSat: %v", err)
	}

	wit, err := FromState(s)
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	if !wit.Unlocked {
		t.Errorf("Unlocked = false, want true")
	}
	if string(wit.Output) != "hi" {
		t.Errorf("Output = %q, want %q", wit.Output, "hi")
	}
	if len(wit.Input) != 1 || len(wit.Input[0]) != 2 {
		t.Fatalf("Input = %v, want one group of 2 unconstrained bytes", wit.Input)
	}
	// unconstrained input bytes resolve to the sentinel
	for _, b := range wit.Input[0] {
		if b != 0xC0 {
			t.Errorf("unconstrained input byte = 0x%02X, want sentinel 0xC0", b)
		}
	}
	if got, want := wit.Registers["R0"], uint16(0x4400); got != want {
		t.Errorf("Registers[R0] (PC) = 0x%04x, want 0x%04x", got, want)
	}
	if _, ok := wit.Registers["R15"]; !ok {
		t.Errorf("Registers missing R15")
	}
}

func TestWriteTextFormatsHexLines(t *testing.T) {
	wit := &Witness{
		Unlocked: true,
		Input:    [][]byte{{0x33, 0x45}},
		Output:   []byte{0x41},
	}
	var buf bytes.Buffer
	if err := WriteText(&buf, wit); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "input[0]: 33 45") {
		t.Errorf("output = %q, missing input line", out)
	}
	if !strings.Contains(out, "output: 41") {
		t.Errorf("output = %q, missing output line", out)
	}
}

func TestWriteJSONHexEncodesPayload(t *testing.T) {
	wit := &Witness{Unlocked: false, Input: [][]byte{{0xAB}}, Output: []byte{0xCD}}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, wit); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"ab"`) || !strings.Contains(out, `"cd"`) {
		t.Errorf("json = %s, missing hex-encoded fields", out)
	}
}
