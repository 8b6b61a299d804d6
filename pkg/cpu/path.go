package cpu

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Hypersonic/msp430-symex/pkg/bitvec"
)

// predCacheSize bounds the process-wide predicate satisfiability cache.
// The original keeps an unbounded dict keyed by the z3 AST object
// (effectively free because z3 hash-conses expressions); we don't have
// hash-consing, so the cache is keyed by the predicate's canonical
// string form and capacity-bounded instead of growing without end
// across a long exploration.
const predCacheSize = 4096

type satResult struct {
	sat   bool
	model bitvec.Model
}

// predCache is shared by every Path in the process, exactly as the
// original's per-module _model_cache dict is shared by every cloned
// Path -- Path.Clone() below never makes its own copy.
var predCache, _ = lru.New[string, satResult](predCacheSize)

// Path accumulates the branch/flag constraints a State has taken so
// far, and caches its own satisfiability once computed.
type Path struct {
	constraints []*bitvec.Expr
	needsCopy   bool

	solver bitvec.Solver

	predCached bool
	predicate  *bitvec.Expr

	satCached bool
	sat       bool
	model     bitvec.Model
}

// NewPath builds an empty (trivially satisfiable) path bound to solver.
func NewPath(solver bitvec.Solver) *Path {
	return &Path{solver: solver}
}

// Clone returns a copy-on-write clone. The clone inherits the cached
// predicate, satisfiability verdict and model (Add invalidates them on
// whichever side appends next), and the process-wide predCache is
// shared rather than duplicated.
func (p *Path) Clone() *Path {
	clone := &Path{
		constraints: p.constraints,
		needsCopy:   true,
		solver:      p.solver,
		predCached:  p.predCached,
		predicate:   p.predicate,
		satCached:   p.satCached,
		sat:         p.sat,
		model:       p.model,
	}
	p.needsCopy = true
	return clone
}

func (p *Path) ensureOwned() {
	if !p.needsCopy {
		return
	}
	cp := make([]*bitvec.Expr, len(p.constraints))
	copy(cp, p.constraints)
	p.constraints = cp
	p.needsCopy = false
}

// Add appends a constraint to the path, invalidating the cached
// predicate and satisfiability.
func (p *Path) Add(constraint *bitvec.Expr) {
	p.ensureOwned()
	p.constraints = append(p.constraints, constraint)
	p.predCached = false
	p.satCached = false
}

// MakeUnsat forces this path to report unsatisfiable without consulting
// the solver again, used when the engine decides a state must die (an
// avoided address was reached) rather than because the constraints
// themselves are contradictory.
func (p *Path) MakeUnsat() {
	p.satCached = true
	p.sat = false
	p.model = nil
}

// Predicate returns the conjunction of every constraint on the path,
// simplified and cached.
func (p *Path) Predicate() *bitvec.Expr {
	if p.predCached {
		return p.predicate
	}
	pred := p.solver.SolverSimplify(bitvec.BoolAnd(p.constraints...))
	p.predicate = pred
	p.predCached = true
	return pred
}

// IsSat reports whether the path's accumulated constraints are jointly
// satisfiable, consulting (and populating) the process-wide predicate
// cache before invoking the solver.
func (p *Path) IsSat() (bool, error) {
	if p.satCached {
		return p.sat, nil
	}

	key := p.Predicate().String()
	if cached, ok := predCache.Get(key); ok {
		p.sat, p.model = cached.sat, cached.model
		p.satCached = true
		return p.sat, nil
	}

	sat, model, err := p.solver.CheckSat(p.Predicate())
	if err != nil {
		return false, newError(SolverFailure, 0, "path satisfiability check", err)
	}

	p.sat, p.model, p.satCached = sat, model, true
	predCache.Add(key, satResult{sat: sat, model: model})
	return sat, nil
}

// Model returns the satisfying assignment found by the most recent
// IsSat call, or nil if the path is unsat or IsSat was never called.
func (p *Path) Model() bitvec.Model {
	return p.model
}
