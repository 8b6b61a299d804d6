package bitvec

import "testing"

func TestSimplifyConstantFolding(t *testing.T) {
	tests := []struct {
		name string
		expr *Expr
		want uint64
	}{
		{"add", Add(Const(3, 16), Const(4, 16)), 7},
		{"sub wraps", Sub(Const(0, 16), Const(1, 16)), 0xFFFF},
		{"and", And(Const(0xFF, 8), Const(0x0F, 8)), 0x0F},
		{"xor", Xor(Const(0xAA, 8), Const(0xFF, 8)), 0x55},
		{"concat", Concat(Const(0x12, 8), Const(0x34, 8)), 0x1234},
		{"extract high byte", Extract(15, 8, Const(0x1234, 16)), 0x12},
		{"extract low byte", Extract(7, 0, Const(0x1234, 16)), 0x34},
		{"zero extend", ZeroExtend(Const(0xFF, 8), 8), 0x00FF},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Simplify(tc.expr)
			v, ok := got.IsConst()
			if !ok {
				t.Fatalf("expected a constant, got %s", got)
			}
			if v != tc.want {
				t.Errorf("got 0x%x, want 0x%x", v, tc.want)
			}
		})
	}
}

func TestSimplifySignExtend(t *testing.T) {
	got := Simplify(SignExtend(Const(0x8C, 8), 8))
	v, ok := got.IsConst()
	if !ok || v != 0xFF8C {
		t.Errorf("SignExtend(0x8C) = 0x%x, ok=%v, want 0xff8c", v, ok)
	}

	got = Simplify(SignExtend(Const(0x7F, 8), 8))
	v, ok = got.IsConst()
	if !ok || v != 0x007F {
		t.Errorf("SignExtend(0x7F) = 0x%x, ok=%v, want 0x007f", v, ok)
	}
}

func TestSimplifyIte(t *testing.T) {
	got := Simplify(Ite(BoolConst(true), Const(1, 8), Const(2, 8)))
	if v, _ := got.IsConst(); v != 1 {
		t.Errorf("Ite(true, 1, 2) = %d, want 1", v)
	}
	got = Simplify(Ite(BoolConst(false), Const(1, 8), Const(2, 8)))
	if v, _ := got.IsConst(); v != 2 {
		t.Errorf("Ite(false, 1, 2) = %d, want 2", v)
	}
}

func TestSimplifyLeavesSymbolicAlone(t *testing.T) {
	x := Fresh("x", 16)
	got := Simplify(Add(x, Const(1, 16)))
	if _, ok := got.IsConst(); ok {
		t.Fatalf("expected a non-constant result for symbolic input")
	}
	if got.Kind != KindAdd {
		t.Errorf("expected top node to remain KindAdd, got %v", got.Kind)
	}
}
