package conformal

import (
	"context"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"synthctl/domain/estimate"
	"synthctl/internal/errors"
	"synthctl/internal/fitter"
	"synthctl/ports"
)

// Scheme selects how treatment assignment is permuted across time
type Scheme string

const (
	// SchemeBlock enumerates every cyclic shift of the residual series
	// (moving-block permutations), so the p-value is exact and needs no
	// random draws.
	SchemeBlock Scheme = "block"
	// SchemeIID draws a fixed count of seeded residual shuffles
	SchemeIID Scheme = "iid"
)

const (
	defaultAlpha        = 0.10
	defaultPermutations = 1000
	defaultWorkers      = 4
	permutationSeed     = 42
)

// Engine runs permutation-based inference for candidate treatment
// effects. For each candidate it subtracts the effect from the
// post-treatment treated series, refits the synthetic control on the
// full adjusted horizon, and tests whether the post-treatment residuals
// look exchangeable with the rest under permutations in time.
type Engine struct {
	fitter *fitter.Fitter
	rng    ports.RNGPort

	Alpha        float64 // significance level for the interval
	Permutations int     // draw count for the iid scheme
	Scheme       Scheme
	NullEffect   float64 // effect tested by NullPValue
	Workers      int     // concurrent grid points
}

// NewEngine creates an engine with the default 10% level and block
// permutation scheme.
func NewEngine(f *fitter.Fitter, rng ports.RNGPort) *Engine {
	return &Engine{
		fitter:       f,
		rng:          rng,
		Alpha:        defaultAlpha,
		Permutations: defaultPermutations,
		Scheme:       SchemeBlock,
		Workers:      defaultWorkers,
	}
}

// NullPValue tests the configured null effect (zero by default)
func (e *Engine) NullPValue(in *estimate.Input, mode estimate.FittingMode) (float64, error) {
	return e.TestEffect(in, e.NullEffect, mode)
}

// TestEffect returns the permutation p-value for the hypothesis that
// the true effect equals the candidate value.
func (e *Engine) TestEffect(in *estimate.Input, effect float64, mode estimate.FittingMode) (float64, error) {
	if in.T1 <= 0 {
		return 0, errors.ShapeMismatchf("permutation test needs post-treatment periods, got T1=%d", in.T1)
	}

	// under the null the adjusted series carries no effect anywhere,
	// so the fit window is the full horizon
	adjusted := make([]float64, len(in.Y1))
	copy(adjusted, in.Y1)
	for i := in.T0; i < len(adjusted); i++ {
		adjusted[i] -= effect
	}

	weights, err := e.fitter.FitWindow(adjusted, in.Y0, len(adjusted), mode)
	if err != nil {
		return 0, err
	}

	residuals := residualSeries(adjusted, in.Y0, weights)
	observed := postStatistic(residuals, len(residuals)-in.T1, in.T1)

	switch e.Scheme {
	case SchemeIID:
		return e.iidPValue(residuals, in.T1, observed), nil
	default:
		return blockPValue(residuals, in.T1, observed), nil
	}
}

// Interval tests every grid point, rejecting where the p-value falls
// below the significance level, and derives the smallest and largest
// non-rejected values. Grid points are independent and run on a small
// worker pool.
func (e *Engine) Interval(ctx context.Context, in *estimate.Input, grid estimate.Grid, mode estimate.FittingMode) (*ports.IntervalResult, error) {
	if grid.Len() == 0 {
		return nil, errors.InvalidInput("candidate grid is empty")
	}

	accepted := make([]bool, grid.Len())
	pvalues := make([]float64, grid.Len())

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for idx, effect := range grid.Points {
		idx, effect := idx, effect
		g.Go(func() error {
			p, err := e.TestEffect(in, effect, mode)
			if err != nil {
				return err
			}
			pvalues[idx] = p
			accepted[idx] = p >= e.Alpha
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// smallest and largest non-rejected candidates; when everything is
	// rejected both bounds sit on the grid edges and the controller
	// treats the pass as both-edges-binding
	lower, upper := grid.Min, grid.Max
	found := false
	for i, ok := range accepted {
		if ok {
			if !found {
				lower = grid.Points[i]
				found = true
			}
			upper = grid.Points[i]
		}
	}

	return &ports.IntervalResult{
		Lower:    lower,
		Upper:    upper,
		Accepted: accepted,
		PValues:  pvalues,
	}, nil
}

// residualSeries computes u = y1 − Y0·w
func residualSeries(y1 []float64, y0 *mat.Dense, weights []float64) []float64 {
	rows, cols := y0.Dims()
	u := make([]float64, rows)
	for i := 0; i < rows; i++ {
		synth := 0.0
		for j := 0; j < cols; j++ {
			synth += y0.At(i, j) * weights[j]
		}
		u[i] = y1[i] - synth
	}
	return u
}

// postStatistic is the mean absolute residual over the T1 entries
// starting at offset.
func postStatistic(u []float64, offset, t1 int) float64 {
	sum := 0.0
	for i := offset; i < offset+t1; i++ {
		sum += math.Abs(u[i])
	}
	return sum / float64(t1)
}

// blockPValue enumerates all cyclic shifts of the residual series and
// scores the last T1 positions of each shift. The identity shift is
// included, so p >= 1/n.
func blockPValue(u []float64, t1 int, observed float64) float64 {
	n := len(u)
	extreme := 0
	shifted := make([]float64, n)
	for s := 0; s < n; s++ {
		for i := 0; i < n; i++ {
			shifted[i] = u[(i+s)%n]
		}
		if postStatistic(shifted, n-t1, t1) >= observed-1e-12 {
			extreme++
		}
	}
	return float64(extreme) / float64(n)
}

// iidPValue draws a fixed count of full shuffles from the seeded stream
func (e *Engine) iidPValue(u []float64, t1 int, observed float64) float64 {
	draws := e.Permutations
	if draws <= 0 {
		draws = defaultPermutations
	}
	var rng *rand.Rand
	if e.rng != nil {
		rng = e.rng.SeededStream("conformal-permutations", permutationSeed)
	} else {
		rng = rand.New(rand.NewSource(permutationSeed))
	}

	n := len(u)
	shuffled := make([]float64, n)
	extreme := 0
	for d := 0; d < draws; d++ {
		copy(shuffled, u)
		for i := n - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		}
		if postStatistic(shuffled, n-t1, t1) >= observed-1e-12 {
			extreme++
		}
	}
	// add-one correction keeps the p-value off zero
	return float64(extreme+1) / float64(draws+1)
}

func (e *Engine) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return defaultWorkers
}

// Ensure Engine implements the interval solver contract
var _ ports.IntervalSolver = (*Engine)(nil)
