package bitvec

// Simplify constant-folds e bottom-up, returning an equivalent expression
// that is a literal (KindConst/KindBoolConst) whenever e is concrete. This
// is the Go-native fallback used for the frequent case of checking whether
// an address, interrupt number, or instruction pointer is concrete without
// paying for a solver round-trip; pkg/cpu additionally threads expressions
// that survive simplification through the Solver's own Simplify for the
// satisfiability-relevant case (path predicates).
func Simplify(e *Expr) *Expr {
	if e == nil {
		return nil
	}
	if e.Kind == KindConst || e.Kind == KindBoolConst || e.Kind == KindVar {
		return e
	}

	args := make([]*Expr, len(e.Args))
	allConst := true
	for i, a := range e.Args {
		args[i] = Simplify(a)
		if _, ok := args[i].IsConst(); !ok {
			allConst = false
		}
	}

	if !allConst {
		return rebuild(e, args)
	}

	switch e.Kind {
	case KindAdd:
		return Const(val(args[0])+val(args[1]), e.Width)
	case KindSub:
		return Const(val(args[0])-val(args[1]), e.Width)
	case KindAnd:
		return Const(val(args[0])&val(args[1]), e.Width)
	case KindOr:
		return Const(val(args[0])|val(args[1]), e.Width)
	case KindXor:
		return Const(val(args[0])^val(args[1]), e.Width)
	case KindShl:
		return Const(val(args[0])<<val(args[1]), e.Width)
	case KindLshr:
		return Const(val(args[0])>>val(args[1]), e.Width)
	case KindNot:
		return Const(^val(args[0]), e.Width)
	case KindNeg:
		return Const(-val(args[0]), e.Width)
	case KindConcat:
		loW := args[1].Width
		return Const((val(args[0])<<loW)|val(args[1]), e.Width)
	case KindExtract:
		v := val(args[0])
		v = (v >> e.Lo) & mask(e.Hi-e.Lo+1)
		return Const(v, e.Width)
	case KindSignExtend:
		return Const(uint64(signExtendValue(val(args[0]), args[0].Width, e.Width)), e.Width)
	case KindZeroExtend:
		return Const(val(args[0]), e.Width)
	case KindIte:
		if val(args[0]) != 0 {
			return args[1]
		}
		return args[2]
	case KindEq:
		return BoolConst(val(args[0]) == val(args[1]))
	case KindNe:
		return BoolConst(val(args[0]) != val(args[1]))
	case KindSLT:
		return BoolConst(signed(val(args[0]), args[0].Width) < signed(val(args[1]), args[1].Width))
	case KindSLE:
		return BoolConst(signed(val(args[0]), args[0].Width) <= signed(val(args[1]), args[1].Width))
	case KindSGT:
		return BoolConst(signed(val(args[0]), args[0].Width) > signed(val(args[1]), args[1].Width))
	case KindSGE:
		return BoolConst(signed(val(args[0]), args[0].Width) >= signed(val(args[1]), args[1].Width))
	case KindULT:
		return BoolConst(val(args[0]) < val(args[1]))
	case KindULE:
		return BoolConst(val(args[0]) <= val(args[1]))
	case KindUGT:
		return BoolConst(val(args[0]) > val(args[1]))
	case KindUGE:
		return BoolConst(val(args[0]) >= val(args[1]))
	case KindBoolAnd:
		return BoolConst(val(args[0]) != 0 && val(args[1]) != 0)
	case KindBoolOr:
		return BoolConst(val(args[0]) != 0 || val(args[1]) != 0)
	case KindBoolXor:
		return BoolConst((val(args[0]) != 0) != (val(args[1]) != 0))
	case KindBoolNot:
		return BoolConst(val(args[0]) == 0)
	default:
		return rebuild(e, args)
	}
}

func rebuild(e *Expr, args []*Expr) *Expr {
	cp := *e
	cp.Args = args
	return &cp
}

func val(e *Expr) uint64 {
	v, _ := e.IsConst()
	return v
}

func signed(v uint64, width uint32) int64 {
	return signExtendValue(v, width, 64)
}

func signExtendValue(v uint64, fromWidth, _ uint32) int64 {
	shift := 64 - fromWidth
	return int64(v<<shift) >> shift
}
