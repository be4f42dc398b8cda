package ports

import (
	"context"

	"synthctl/domain/estimate"
)

// IntervalResult is the outcome of testing one candidate grid against
// the data: per-point accept/reject decisions and the derived bounds.
// When no point is accepted both bounds equal the grid edges, which the
// caller must treat as a both-edges-binding pass.
type IntervalResult struct {
	Lower    float64   // smallest non-rejected effect value
	Upper    float64   // largest non-rejected effect value
	Accepted []bool    // one decision per grid point
	PValues  []float64 // one permutation p-value per grid point
}

// IntervalSolver tests a candidate effect grid and derives confidence
// bounds. The permutation machinery behind it is a black box to
// callers; only this contract is part of the core design.
type IntervalSolver interface {
	Interval(ctx context.Context, in *estimate.Input, grid estimate.Grid, mode estimate.FittingMode) (*IntervalResult, error)
}
