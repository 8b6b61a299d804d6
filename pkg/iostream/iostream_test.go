package iostream

import (
	"testing"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
)

type fakeModel map[string]uint64

func (m fakeModel) Eval(e *bitvec.Expr) (uint64, bool) {
	if e.Kind != bitvec.KindVar {
		return 0, false
	}
	v, ok := m[e.Name]
	return v, ok
}

func TestGenerateInputNames(t *testing.T) {
	io := New(Input)
	vars, err := io.GenerateInput(bitvec.Const(3, 16))
	if err != nil {
		t.Fatalf("GenerateInput: %v", err)
	}
	if len(vars) != 3 {
		t.Fatalf("got %d vars, want 3", len(vars))
	}
	wantNames := []string{"inp_0", "inp_1", "inp_2"}
	for i, v := range vars {
		if v.Name != wantNames[i] {
			t.Errorf("var %d name = %q, want %q", i, v.Name, wantNames[i])
		}
	}
}

func TestGenerateInputSymbolicLengthErrors(t *testing.T) {
	io := New(Input)
	_, err := io.GenerateInput(bitvec.Fresh("len", 16))
	if err != ErrSymbolicLength {
		t.Errorf("got err %v, want ErrSymbolicLength", err)
	}
}

func TestCloneIsCopyOnWrite(t *testing.T) {
	io := New(Output)
	io.Add(bitvec.Const('a', 8))

	clone := io.Clone()
	clone.Add(bitvec.Const('b', 8))

	if io.Len() != 1 {
		t.Errorf("original grew after clone write: len=%d", io.Len())
	}
	if clone.Len() != 2 {
		t.Errorf("clone.Len() = %d, want 2", clone.Len())
	}
}

func TestDumpOutputFallsBackToSentinel(t *testing.T) {
	io := New(Output)
	io.Add(bitvec.Const('x', 8))
	io.Add(bitvec.Fresh("unconstrained", 8))

	got := io.DumpOutput(fakeModel{})
	want := []byte{'x', unconstrainedSentinel}
	if string(got) != string(want) {
		t.Errorf("DumpOutput = %v, want %v", got, want)
	}
}

func TestDumpInputGroupsPreservesBoundaries(t *testing.T) {
	io := New(Input)
	if _, err := io.GenerateInput(bitvec.Const(2, 16)); err != nil {
		t.Fatalf("GenerateInput: %v", err)
	}
	if _, err := io.GenerateInput(bitvec.Const(1, 16)); err != nil {
		t.Fatalf("GenerateInput: %v", err)
	}

	model := fakeModel{"inp_0": 'a', "inp_1": 'b', "inp_2": 'c'}
	groups := io.DumpInputGroups(model)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if string(groups[0]) != "ab" || string(groups[1]) != "c" {
		t.Errorf("groups = %q, %q, want \"ab\", \"c\"", groups[0], groups[1])
	}
}
