package bitvec

// Solver is the minimal capability interface the engine consumes an SMT
// backend through: assert, check, get the model, simplify. Every package
// outside pkg/bitvec programs against this interface, never against a
// specific solver's API, per the "minimal capability interface" design
// note — swapping backends means writing one new file here.
type Solver interface {
	// CheckSat decides satisfiability of pred in a fresh solver context,
	// returning a model when sat.
	CheckSat(pred *Expr) (sat bool, model Model, err error)

	// SolverSimplify asks the backend to simplify e; unlike the pure-Go
	// Simplify in simplify.go (constant folding only), this may apply algebraic
	// rewrites the backend knows about. Used for canonicalizing path
	// predicates before they become cache keys.
	SolverSimplify(e *Expr) *Expr
}

// Model resolves symbolic variables to concrete values for one
// satisfying assignment.
type Model interface {
	// Eval resolves e to a concrete value under this model. ok is false
	// if e is unconstrained by the model (the caller should report the
	// witness sentinel byte in that case).
	Eval(e *Expr) (value uint64, ok bool)
}
