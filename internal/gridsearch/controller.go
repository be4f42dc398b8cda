package gridsearch

import (
	"context"
	"log"
	"math"

	"github.com/montanaflynn/stats"

	"synthctl/domain/estimate"
	"synthctl/domain/panel"
	"synthctl/internal/errors"
	"synthctl/ports"
)

// Search states. The controller enters searching immediately after the
// initial grid is derived and leaves only through convergence or the
// expansion cap.
type state int

const (
	stateInitializing state = iota
	stateSearching
	stateConverged
)

const (
	// fraction of the current span added to a binding end per expansion
	defaultExpandFactor = 0.20
	// hard cap on re-expansions; without one a pathological gap
	// distribution can widen the grid forever
	defaultMaxExpansions = 25
)

// Asymmetric widening of the seed grid, as a fraction of the observed
// post-treatment gap span. The lower side gets more room than the
// upper, and short-history outcomes more than long-history ones, to
// keep the true bound off the grid edge on the first pass.
var wideningFactors = map[panel.OutcomeClass]struct{ low, high float64 }{
	panel.ClassLongHistory:  {low: 0.50, high: 0.25},
	panel.ClassShortHistory: {low: 0.75, high: 0.40},
}

// Controller drives repeated interval solves, widening the candidate
// grid until neither returned bound sits on a grid edge.
type Controller struct {
	solver ports.IntervalSolver

	MaxExpansions int
	ExpandFactor  float64
	Verbose       bool
}

// NewController creates a controller around an interval solver
func NewController(solver ports.IntervalSolver) *Controller {
	return &Controller{
		solver:        solver,
		MaxExpansions: defaultMaxExpansions,
		ExpandFactor:  defaultExpandFactor,
	}
}

// InitialGrid seeds the search from the post-treatment gap extrema,
// widened asymmetrically per outcome class. Step is the configured
// precision and never changes afterwards.
func InitialGrid(gaps []float64, t0 int, step float64, class panel.OutcomeClass) (estimate.Grid, error) {
	if step <= 0 || step >= 1 {
		return estimate.Grid{}, errors.ConfigInvalidf("precision must be in (0,1), got %g", step)
	}
	if t0 <= 0 || t0 >= len(gaps) {
		return estimate.Grid{}, errors.ShapeMismatchf("gap series of length %d has no post-treatment window for T0=%d", len(gaps), t0)
	}

	post := gaps[t0:]
	lo, err := stats.Min(post)
	if err != nil {
		return estimate.Grid{}, errors.Wrap(err, "gap extrema")
	}
	hi, err := stats.Max(post)
	if err != nil {
		return estimate.Grid{}, errors.Wrap(err, "gap extrema")
	}

	span := hi - lo
	if span < step {
		// flat gap series still needs a searchable range
		span = math.Max(math.Max(math.Abs(lo), math.Abs(hi)), 10*step)
	}

	widen := wideningFactors[class]
	return estimate.NewGrid(lo-widen.low*span, hi+widen.high*span, step), nil
}

// Run executes the search loop on the seed grid and returns the
// converged bounds. Both returned bounds are strictly interior to the
// final grid.
func (c *Controller) Run(ctx context.Context, in *estimate.Input, seed estimate.Grid, mode estimate.FittingMode) (*estimate.Bounds, error) {
	if seed.Len() < 2 {
		return nil, errors.InvalidInput("seed grid needs at least two candidate points")
	}

	grid := seed
	expansions := 0

	for st := stateSearching; st != stateConverged; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := c.solver.Interval(ctx, in, grid, mode)
		if err != nil {
			return nil, err
		}

		lowerBinding, _ := grid.AtEdge(res.Lower)
		_, upperBinding := grid.AtEdge(res.Upper)

		if !lowerBinding && !upperBinding {
			if c.Verbose {
				log.Printf("[GridSearch] converged after %d expansions: [%.4f, %.4f]", expansions, res.Lower, res.Upper)
			}
			return &estimate.Bounds{
				Lower:      res.Lower,
				Upper:      res.Upper,
				Expansions: expansions,
			}, nil
		}

		expansions++
		if expansions > c.maxExpansions() {
			return nil, errors.NonConvergencef("interval bounds still binding after %d grid expansions (last grid [%.4f, %.4f])",
				c.maxExpansions(), grid.Min, grid.Max)
		}

		margin := c.expandFactor() * (grid.Max - grid.Min)
		newMin, newMax := grid.Min, grid.Max
		switch {
		case lowerBinding && upperBinding:
			// both edges binding: widen around the same center
			newMin -= margin
			newMax += margin
		case upperBinding:
			newMax += margin
		case lowerBinding:
			newMin -= margin
		}
		if c.Verbose {
			log.Printf("[GridSearch] expansion %d: grid -> [%.4f, %.4f] step %.4f", expansions, newMin, newMax, grid.Step)
		}
		grid = estimate.NewGrid(newMin, newMax, grid.Step)
	}

	// unreachable: the loop exits through return statements above
	return nil, errors.InternalError("grid search left its state machine without a result")
}

func (c *Controller) maxExpansions() int {
	if c.MaxExpansions > 0 {
		return c.MaxExpansions
	}
	return defaultMaxExpansions
}

func (c *Controller) expandFactor() float64 {
	if c.ExpandFactor > 0 {
		return c.ExpandFactor
	}
	return defaultExpandFactor
}
