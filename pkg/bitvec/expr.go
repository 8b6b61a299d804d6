// Package bitvec implements the symbolic bitvector value layer: a small
// immutable expression tree plus a Solver capability interface so the
// rest of the engine never touches an SMT API directly.
package bitvec

import "fmt"

// Kind tags the shape of an Expr node.
type Kind uint8

const (
	KindConst Kind = iota
	KindVar
	KindNot
	KindNeg
	KindAdd
	KindSub
	KindAnd
	KindOr
	KindXor
	KindShl
	KindLshr
	KindConcat
	KindExtract
	KindSignExtend
	KindZeroExtend
	KindIte // Args[0] bool, Args[1] then-BV, Args[2] else-BV

	// Boolean-valued (Width == 0) nodes.
	KindBoolConst
	KindBoolNot
	KindBoolAnd
	KindBoolOr
	KindBoolXor
	KindEq
	KindNe
	KindSLT
	KindSLE
	KindSGT
	KindSGE
	KindULT
	KindULE
	KindUGT
	KindUGE
)

// Expr is a node in a symbolic bitvector (or boolean) expression tree.
// Nodes are immutable once constructed; composing expressions always
// allocates a new node rather than mutating an existing one.
type Expr struct {
	Kind  Kind
	Width uint32 // bit width for BV-valued nodes; 0 for boolean-valued nodes
	Value uint64 // populated for KindConst / KindBoolConst
	Name  string // populated for KindVar
	Hi    uint32 // populated for KindExtract
	Lo    uint32 // populated for KindExtract
	Args  []*Expr
}

// Const builds a concrete bitvector literal of the given width.
func Const(value uint64, width uint32) *Expr {
	return &Expr{Kind: KindConst, Width: width, Value: value & mask(width)}
}

// BoolConst builds a concrete boolean literal.
func BoolConst(b bool) *Expr {
	v := uint64(0)
	if b {
		v = 1
	}
	return &Expr{Kind: KindBoolConst, Value: v}
}

// Fresh builds a new, uniquely-named symbolic variable of the given width.
// Callers are responsible for uniqueness of name (see iostream.IOStream,
// which names gets()-generated bytes "inp_<n>").
func Fresh(name string, width uint32) *Expr {
	return &Expr{Kind: KindVar, Width: width, Name: name}
}

func bin(k Kind, width uint32, a, b *Expr) *Expr {
	return &Expr{Kind: k, Width: width, Args: []*Expr{a, b}}
}

func un(k Kind, width uint32, a *Expr) *Expr {
	return &Expr{Kind: k, Width: width, Args: []*Expr{a}}
}

func boolBin(k Kind, a, b *Expr) *Expr { return &Expr{Kind: k, Args: []*Expr{a, b}} }
func boolUn(k Kind, a *Expr) *Expr     { return &Expr{Kind: k, Args: []*Expr{a}} }

// Arithmetic / bitwise constructors. All assume a.Width == b.Width and
// produce a result of that width; callers (pkg/cpu) are responsible for
// extending/truncating operands to matching widths first via explicit
// Concat/Extract calls.

func Add(a, b *Expr) *Expr    { return bin(KindAdd, a.Width, a, b) }
func Sub(a, b *Expr) *Expr    { return bin(KindSub, a.Width, a, b) }
func And(a, b *Expr) *Expr    { return bin(KindAnd, a.Width, a, b) }
func Or(a, b *Expr) *Expr     { return bin(KindOr, a.Width, a, b) }
func Xor(a, b *Expr) *Expr    { return bin(KindXor, a.Width, a, b) }
func Shl(a, b *Expr) *Expr    { return bin(KindShl, a.Width, a, b) }
func Lshr(a, b *Expr) *Expr   { return bin(KindLshr, a.Width, a, b) }
func Not(a *Expr) *Expr       { return un(KindNot, a.Width, a) }
func Neg(a *Expr) *Expr       { return un(KindNeg, a.Width, a) }

// Concat joins hi (most significant) and lo (least significant) into a
// single value of combined width.
func Concat(hi, lo *Expr) *Expr {
	return bin(KindConcat, hi.Width+lo.Width, hi, lo)
}

// Extract pulls bits [hi:lo] (inclusive, 0-indexed from the LSB) out of v.
func Extract(hi, lo uint32, v *Expr) *Expr {
	return &Expr{Kind: KindExtract, Width: hi - lo + 1, Hi: hi, Lo: lo, Args: []*Expr{v}}
}

// SignExtend grows v by extraBits, replicating its sign bit.
func SignExtend(v *Expr, extraBits uint32) *Expr {
	return un(KindSignExtend, v.Width+extraBits, v)
}

// ZeroExtend grows v by extraBits, padding with zero.
func ZeroExtend(v *Expr, extraBits uint32) *Expr {
	return un(KindZeroExtend, v.Width+extraBits, v)
}

// Ite is a symbolic if-then-else: cond must be boolean-valued, then/els
// must share a width.
func Ite(cond, then, els *Expr) *Expr {
	return &Expr{Kind: KindIte, Width: then.Width, Args: []*Expr{cond, then, els}}
}

// Boolean-valued comparisons.
func Eq(a, b *Expr) *Expr  { return boolBin(KindEq, a, b) }
func Ne(a, b *Expr) *Expr  { return boolBin(KindNe, a, b) }
func SLT(a, b *Expr) *Expr { return boolBin(KindSLT, a, b) }
func SLE(a, b *Expr) *Expr { return boolBin(KindSLE, a, b) }
func SGT(a, b *Expr) *Expr { return boolBin(KindSGT, a, b) }
func SGE(a, b *Expr) *Expr { return boolBin(KindSGE, a, b) }
func ULT(a, b *Expr) *Expr { return boolBin(KindULT, a, b) }
func ULE(a, b *Expr) *Expr { return boolBin(KindULE, a, b) }
func UGT(a, b *Expr) *Expr { return boolBin(KindUGT, a, b) }
func UGE(a, b *Expr) *Expr { return boolBin(KindUGE, a, b) }

func BoolAnd(terms ...*Expr) *Expr {
	if len(terms) == 0 {
		return BoolConst(true)
	}
	acc := terms[0]
	for _, t := range terms[1:] {
		acc = boolBin(KindBoolAnd, acc, t)
	}
	return acc
}

func BoolOr(terms ...*Expr) *Expr {
	if len(terms) == 0 {
		return BoolConst(false)
	}
	acc := terms[0]
	for _, t := range terms[1:] {
		acc = boolBin(KindBoolOr, acc, t)
	}
	return acc
}

func BoolNot(a *Expr) *Expr       { return boolUn(KindBoolNot, a) }
func BoolXor(a, b *Expr) *Expr    { return boolBin(KindBoolXor, a, b) }

// Method-style aliases, for call sites that read more naturally as
// verb-on-receiver (e.g. addr.Add(disp)) than as free functions.
func (e *Expr) Add(o *Expr) *Expr  { return Add(e, o) }
func (e *Expr) Sub(o *Expr) *Expr  { return Sub(e, o) }
func (e *Expr) And(o *Expr) *Expr  { return And(e, o) }
func (e *Expr) Or(o *Expr) *Expr   { return Or(e, o) }
func (e *Expr) Xor(o *Expr) *Expr  { return Xor(e, o) }
func (e *Expr) Not() *Expr         { return Not(e) }
func (e *Expr) Eq(o *Expr) *Expr   { return Eq(e, o) }
func (e *Expr) Ne(o *Expr) *Expr   { return Ne(e, o) }

// IsConst reports whether e is (after Simplify) a concrete literal, and
// if so, its value. Callers needing to index memory or dispatch an
// interrupt number must route through Simplify first; IsConst itself
// does not simplify.
func (e *Expr) IsConst() (uint64, bool) {
	if e.Kind == KindConst || e.Kind == KindBoolConst {
		return e.Value, true
	}
	return 0, false
}

func mask(width uint32) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

func (e *Expr) String() string {
	switch e.Kind {
	case KindConst, KindBoolConst:
		return fmt.Sprintf("0x%x", e.Value)
	case KindVar:
		return e.Name
	case KindExtract:
		return fmt.Sprintf("extract(%d,%d,%s)", e.Hi, e.Lo, e.Args[0])
	default:
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			args[i] = a
		}
		return fmt.Sprintf("%s%v", e.Kind.name(), args)
	}
}

func (k Kind) name() string {
	switch k {
	case KindAdd:
		return "add"
	case KindSub:
		return "sub"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindXor:
		return "xor"
	case KindNot:
		return "not"
	case KindNeg:
		return "neg"
	case KindConcat:
		return "concat"
	case KindSignExtend:
		return "sext"
	case KindZeroExtend:
		return "zext"
	case KindIte:
		return "ite"
	case KindEq:
		return "eq"
	case KindNe:
		return "ne"
	case KindSLT:
		return "slt"
	case KindSLE:
		return "sle"
	case KindSGT:
		return "sgt"
	case KindSGE:
		return "sge"
	case KindULT:
		return "ult"
	case KindULE:
		return "ule"
	case KindUGT:
		return "ugt"
	case KindUGE:
		return "uge"
	case KindBoolAnd:
		return "band"
	case KindBoolOr:
		return "bor"
	case KindBoolNot:
		return "bnot"
	case KindBoolXor:
		return "bxor"
	default:
		return "expr"
	}
}
