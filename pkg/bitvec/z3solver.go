package bitvec

import (
	"fmt"

	"github.com/aclements/go-z3/z3"
)

// Z3Solver is the only file in this tree that imports the Z3 bindings
// directly; everything else programs against the Solver interface above.
type Z3Solver struct {
	ctx *z3.Context
}

// NewZ3Solver builds a solver backed by a fresh Z3 context.
func NewZ3Solver() *Z3Solver {
	cfg := z3.NewConfig()
	return &Z3Solver{ctx: z3.NewContext(cfg)}
}

func (s *Z3Solver) CheckSat(pred *Expr) (bool, Model, error) {
	cache := make(map[*Expr]z3.Value)
	z3pred, ok := s.convert(pred, cache).(z3.Bool)
	if !ok {
		return false, nil, fmt.Errorf("bitvec: path predicate did not convert to a boolean term")
	}

	solver := z3.NewSolver(s.ctx)
	solver.Assert(z3pred)

	sat, err := solver.Check()
	if err != nil {
		return false, nil, fmt.Errorf("bitvec: z3 check failed: %w", err)
	}
	if !sat {
		return false, nil, nil
	}

	model := solver.Model()
	return true, &z3Model{ctx: s.ctx, model: model, cache: cache}, nil
}

func (s *Z3Solver) SolverSimplify(e *Expr) *Expr {
	// Only the pure-Go constant folding is applied; Z3's own simplifier
	// is not invoked, so no algebraic rewrites happen here.
	return Simplify(e)
}

type z3Model struct {
	ctx   *z3.Context
	model *z3.Model
	cache map[*Expr]z3.Value
}

func (m *z3Model) Eval(e *Expr) (uint64, bool) {
	if v, ok := e.IsConst(); ok {
		return v, true
	}
	z3e := convert(m.ctx, e, m.cache)
	bv, ok := z3e.(z3.BV)
	if !ok {
		return 0, false
	}
	resolved := m.model.Eval(bv, false)
	asBV, ok := resolved.(z3.BV)
	if !ok {
		return 0, false
	}
	n, isLit := asBV.AsInt64()
	if !isLit {
		return 0, false
	}
	return uint64(n), true
}

func (s *Z3Solver) convert(e *Expr, cache map[*Expr]z3.Value) z3.Value {
	return convert(s.ctx, e, cache)
}

// convert lowers an Expr tree into Z3 AST nodes, memoizing per call so
// that heavily-shared subexpressions (common after many clone()s of a
// path predicate) aren't re-walked exponentially.
func convert(ctx *z3.Context, e *Expr, cache map[*Expr]z3.Value) z3.Value {
	if v, ok := cache[e]; ok {
		return v
	}

	var out z3.Value
	switch e.Kind {
	case KindConst:
		out = ctx.FromInt(int64(e.Value), ctx.BVSort(int(e.Width))).(z3.BV)
	case KindBoolConst:
		if e.Value != 0 {
			out = ctx.FromBool(true)
		} else {
			out = ctx.FromBool(false)
		}
	case KindVar:
		out = ctx.Const(e.Name, ctx.BVSort(int(e.Width))).(z3.BV)
	case KindAdd:
		out = bv(ctx, e, cache).Add(bv2(ctx, e, cache))
	case KindSub:
		out = bv(ctx, e, cache).Sub(bv2(ctx, e, cache))
	case KindAnd:
		out = bv(ctx, e, cache).And(bv2(ctx, e, cache))
	case KindOr:
		out = bv(ctx, e, cache).Or(bv2(ctx, e, cache))
	case KindXor:
		out = bv(ctx, e, cache).Xor(bv2(ctx, e, cache))
	case KindShl:
		out = bv(ctx, e, cache).Lsh(bv2(ctx, e, cache))
	case KindLshr:
		out = bv(ctx, e, cache).URsh(bv2(ctx, e, cache))
	case KindNot:
		out = bv(ctx, e, cache).Not()
	case KindNeg:
		out = bv(ctx, e, cache).Neg()
	case KindConcat:
		out = bv(ctx, e, cache).Concat(bv2(ctx, e, cache))
	case KindExtract:
		out = convert(ctx, e.Args[0], cache).(z3.BV).Extract(int(e.Hi), int(e.Lo))
	case KindSignExtend:
		out = bv(ctx, e, cache).SignExtend(int(e.Width - e.Args[0].Width))
	case KindZeroExtend:
		out = bv(ctx, e, cache).ZeroExtend(int(e.Width - e.Args[0].Width))
	case KindIte:
		cond := convert(ctx, e.Args[0], cache).(z3.Bool)
		then := convert(ctx, e.Args[1], cache).(z3.BV)
		els := convert(ctx, e.Args[2], cache).(z3.BV)
		out = cond.IfThenElse(then, els).(z3.BV)
	case KindEq:
		out = bv(ctx, e, cache).Eq(bv2(ctx, e, cache))
	case KindNe:
		out = bv(ctx, e, cache).Eq(bv2(ctx, e, cache)).Not()
	case KindSLT:
		out = bv(ctx, e, cache).SLT(bv2(ctx, e, cache))
	case KindSLE:
		out = bv(ctx, e, cache).SLE(bv2(ctx, e, cache))
	case KindSGT:
		out = bv(ctx, e, cache).SGT(bv2(ctx, e, cache))
	case KindSGE:
		out = bv(ctx, e, cache).SGE(bv2(ctx, e, cache))
	case KindULT:
		out = bv(ctx, e, cache).ULT(bv2(ctx, e, cache))
	case KindULE:
		out = bv(ctx, e, cache).ULE(bv2(ctx, e, cache))
	case KindUGT:
		out = bv(ctx, e, cache).UGT(bv2(ctx, e, cache))
	case KindUGE:
		out = bv(ctx, e, cache).UGE(bv2(ctx, e, cache))
	case KindBoolAnd:
		out = boolv(ctx, e, cache).And(boolv2(ctx, e, cache))
	case KindBoolOr:
		out = boolv(ctx, e, cache).Or(boolv2(ctx, e, cache))
	case KindBoolXor:
		out = boolv(ctx, e, cache).Xor(boolv2(ctx, e, cache))
	case KindBoolNot:
		out = boolv(ctx, e, cache).Not()
	default:
		panic(fmt.Sprintf("bitvec: unhandled expr kind %d in z3 conversion", e.Kind))
	}

	cache[e] = out
	return out
}

func bv(ctx *z3.Context, e *Expr, cache map[*Expr]z3.Value) z3.BV {
	return convert(ctx, e.Args[0], cache).(z3.BV)
}
func bv2(ctx *z3.Context, e *Expr, cache map[*Expr]z3.Value) z3.BV {
	return convert(ctx, e.Args[1], cache).(z3.BV)
}
func boolv(ctx *z3.Context, e *Expr, cache map[*Expr]z3.Value) z3.Bool {
	return convert(ctx, e.Args[0], cache).(z3.Bool)
}
func boolv2(ctx *z3.Context, e *Expr, cache map[*Expr]z3.Value) z3.Bool {
	return convert(ctx, e.Args[1], cache).(z3.Bool)
}
