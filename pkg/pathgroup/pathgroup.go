// Package pathgroup implements the bucketed exploration worklist that
// drives a symbolic run to completion: a struct that owns the work,
// mutates its own counters as it goes, and prints a progress ticker to
// stderr as it drains.
package pathgroup

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/Hypersonic/msp430-symex/pkg/cpu"
)

// PathGroup owns four disjoint buckets of States plus the avoid-address
// configuration both termination loops consult.
type PathGroup struct {
	Active   []*cpu.State
	Unsat    []*cpu.State
	Unlocked []*cpu.State
	Symbolic []*cpu.State

	Avoid map[uint16]struct{}

	// Unsound enables the flag-relevance lookahead on every step;
	// disabling it is slower but sound.
	Unsound bool

	Steps int

	rng *rand.Rand
}

// New builds a PathGroup with a single active state and the given avoid
// addresses. rngSeed pins the random tie-break in selectIndex for
// deterministic tests; callers exploring for real should derive it from
// time.Now().UnixNano().
func New(initial *cpu.State, unsound bool, avoid []uint16, rngSeed int64) *PathGroup {
	pg := &PathGroup{
		Active:  []*cpu.State{initial},
		Avoid:   make(map[uint16]struct{}, len(avoid)),
		Unsound: unsound,
		rng:     rand.New(rand.NewSource(rngSeed)),
	}
	for _, a := range avoid {
		pg.Avoid[a] = struct{}{}
	}
	return pg
}

// classify routes one freshly stepped successor into the right bucket,
// forcing the path unsat first if its concrete PC lies in the avoid set.
func (pg *PathGroup) classify(s *cpu.State) {
	if s.HasSymbolicIP() {
		pg.Symbolic = append(pg.Symbolic, s)
		return
	}

	if pc, ok := s.ConcretePC(); ok {
		if _, avoided := pg.Avoid[pc]; avoided {
			s.Path.MakeUnsat()
		}
	}

	sat, err := s.Path.IsSat()
	if err != nil || !sat {
		pg.Unsat = append(pg.Unsat, s)
		return
	}

	if s.Unlocked {
		pg.Unlocked = append(pg.Unlocked, s)
		return
	}

	pg.Active = append(pg.Active, s)
}

// selectIndex picks which active state to step next: deepen (maximum
// ticks) once the active set grows past 64 to help individual paths
// finish, otherwise broaden (minimum ticks) so no single branch starves
// the rest. Ties are broken uniformly at random.
func (pg *PathGroup) selectIndex() int {
	deepen := len(pg.Active) > 64

	best := 0
	bestTicks := pg.Active[0].Ticks
	ties := []int{0}
	for i := 1; i < len(pg.Active); i++ {
		t := pg.Active[i].Ticks
		better := false
		if deepen {
			better = t > bestTicks
		} else {
			better = t < bestTicks
		}
		switch {
		case better:
			best, bestTicks = i, t
			ties = []int{i}
		case t == bestTicks:
			ties = append(ties, i)
		}
	}
	if len(ties) == 1 {
		return best
	}
	return ties[pg.rng.Intn(len(ties))]
}

// Step pops one active state, runs it one instruction, and folds the
// resulting successors into the appropriate buckets. A State.Step error
// (any of pkg/cpu's typed errors) is treated as the state going unsat --
// the PathGroup keeps the exploration moving rather than aborting the
// whole run over one bad path.
func (pg *PathGroup) Step() error {
	if len(pg.Active) == 0 {
		return nil
	}

	i := pg.selectIndex()
	s := pg.Active[i]
	pg.Active[i] = pg.Active[len(pg.Active)-1]
	pg.Active = pg.Active[:len(pg.Active)-1]

	pg.Steps++

	successors, err := s.Step(pg.Unsound)
	if err != nil {
		pg.Unsat = append(pg.Unsat, s)
		return nil
	}
	for _, next := range successors {
		pg.classify(next)
	}
	return nil
}

// progressInterval is how many steps pass between stderr status lines,
// keyed on step count rather than wall-clock time since a
// single-threaded worklist has no concurrent workers to average a rate
// across.
const progressInterval = 1000

func (pg *PathGroup) maybeReportProgress(start time.Time) {
	if pg.Steps%progressInterval != 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "  [%s] steps=%d active=%d unsat=%d unlocked=%d symbolic=%d\n",
		time.Since(start).Round(time.Second), pg.Steps,
		len(pg.Active), len(pg.Unsat), len(pg.Unlocked), len(pg.Symbolic))
}

// StepUntilUnlocked runs the worklist until either some state unlocks or
// the active set drains.
func (pg *PathGroup) StepUntilUnlocked() error {
	start := time.Now()
	for len(pg.Active) > 0 && len(pg.Unlocked) == 0 {
		if err := pg.Step(); err != nil {
			return err
		}
		pg.maybeReportProgress(start)
	}
	return nil
}

// StepUntilSymbolicIP runs the worklist until either some state's PC goes
// symbolic or the active set drains.
func (pg *PathGroup) StepUntilSymbolicIP() error {
	start := time.Now()
	for len(pg.Active) > 0 && len(pg.Symbolic) == 0 {
		if err := pg.Step(); err != nil {
			return err
		}
		pg.maybeReportProgress(start)
	}
	return nil
}
