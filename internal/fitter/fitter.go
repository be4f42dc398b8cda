package fitter

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"synthctl/domain/estimate"
	"synthctl/internal/errors"
)

// Default cap on active-set iterations. The passive set can grow and
// shrink, so the bound is well above the donor count.
const defaultMaxIterations = 300

// Penalty weight, relative to the data scale, used to fold the
// sum-to-one equality into the NNLS objective before renormalization.
const sumToOnePenalty = 1e3

// Fitter solves the synthetic-control weight problem: minimize
// pre-treatment fit error over the feasible region selected by the
// fitting mode, then project the counterfactual over the full horizon.
type Fitter struct {
	MaxIterations int
}

// NewFitter creates a fitter with default iteration limits
func NewFitter() *Fitter {
	return &Fitter{MaxIterations: defaultMaxIterations}
}

// Fit computes donor weights on the first T0 rows and produces the
// synthetic series and gap series over all T0+T1 rows.
func (f *Fitter) Fit(in *estimate.Input, mode estimate.FittingMode) (*estimate.Fit, error) {
	if !mode.Valid() {
		return nil, errors.ConfigInvalidf("unknown fitting mode %q", mode)
	}
	if err := checkShapes(in); err != nil {
		return nil, err
	}

	weights, err := f.fitWeights(in, mode, in.T0)
	if err != nil {
		return nil, err
	}

	synthetic := project(in.Y0, weights)
	gaps := make([]float64, len(in.Y1))
	for i := range gaps {
		gaps[i] = in.Y1[i] - synthetic[i]
	}

	return &estimate.Fit{
		Weights:   weights,
		Synthetic: synthetic,
		Gaps:      gaps,
	}, nil
}

// FitWindow computes weights using the first pre rows of y1 and Y0 as
// the fitting window. The conformal engine calls this with the full
// adjusted horizon, where under the null every row is effect-free.
func (f *Fitter) FitWindow(y1 []float64, y0 *mat.Dense, pre int, mode estimate.FittingMode) ([]float64, error) {
	rows, _ := y0.Dims()
	if len(y1) != rows {
		return nil, errors.ShapeMismatchf("y1 has %d rows but Y0 has %d", len(y1), rows)
	}
	if pre <= 0 || pre > rows {
		return nil, errors.ShapeMismatchf("fitting window %d outside matrix rows %d", pre, rows)
	}
	in := &estimate.Input{Y1: y1, Y0: y0, T0: pre, T1: rows - pre}
	return f.fitWeights(in, mode, pre)
}

func (f *Fitter) fitWeights(in *estimate.Input, mode estimate.FittingMode, pre int) ([]float64, error) {
	k := in.DonorCount()

	// single donor: the simplex collapses to a point
	if k == 1 && mode != estimate.ModeNonNegative {
		return []float64{1}, nil
	}

	preA := in.Y0.Slice(0, pre, 0, k).(*mat.Dense)
	preB := mat.NewVecDense(pre, nil)
	for i := 0; i < pre; i++ {
		preB.SetVec(i, in.Y1[i])
	}

	switch mode {
	case estimate.ModeSimplex:
		return f.solveSimplex(preA, preB)
	case estimate.ModeNonNegative:
		return nnls(preA, preB, f.maxIter(k))
	case estimate.ModeAffine:
		return solveAffine(preA, preB)
	}
	return nil, errors.ConfigInvalidf("unknown fitting mode %q", mode)
}

// solveSimplex handles w >= 0, sum w = 1. The equality is folded into
// the NNLS objective as a heavily weighted extra row, then enforced
// exactly by renormalizing the returned mass.
func (f *Fitter) solveSimplex(a *mat.Dense, b *mat.VecDense) ([]float64, error) {
	m, n := a.Dims()

	rho := sumToOnePenalty * (1 + mat.Norm(a, math.Inf(1)))
	aug := mat.NewDense(m+1, n, nil)
	aug.Slice(0, m, 0, n).(*mat.Dense).Copy(a)
	for j := 0; j < n; j++ {
		aug.Set(m, j, rho)
	}
	augB := mat.NewVecDense(m+1, nil)
	for i := 0; i < m; i++ {
		augB.SetVec(i, b.AtVec(i))
	}
	augB.SetVec(m, rho)

	w, err := nnls(aug, augB, f.maxIter(n))
	if err != nil {
		return nil, err
	}

	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum < 1e-8 {
		return nil, errors.FittingFailed("simplex fit is infeasible: no donor received weight mass")
	}
	for i := range w {
		w[i] /= sum
	}
	return w, nil
}

// solveAffine handles sum w = 1 with free signs via the KKT system of
// the equality-constrained least-squares problem.
func solveAffine(a *mat.Dense, b *mat.VecDense) ([]float64, error) {
	_, n := a.Dims()

	var gram mat.Dense
	gram.Mul(a.T(), a)
	rhs := mat.NewVecDense(n, nil)
	rhs.MulVec(a.T(), b)

	kkt := mat.NewDense(n+1, n+1, nil)
	kktRHS := mat.NewVecDense(n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			kkt.Set(i, j, gram.At(i, j))
		}
		kkt.Set(i, n, 1)
		kkt.Set(n, i, 1)
		kktRHS.SetVec(i, rhs.AtVec(i))
	}
	kktRHS.SetVec(n, 1)

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, kktRHS); err != nil {
		// a finite condition number is a warning; infinite means the
		// system is singular and the solution is garbage
		if cond, ok := err.(mat.Condition); !ok || math.IsInf(float64(cond), 1) {
			return nil, errors.FittingFailedf("sum-to-one constrained solve is singular: %v", err)
		}
	}

	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = sol.AtVec(i)
	}
	return w, nil
}

// project computes Y0 · weights over the full horizon
func project(y0 *mat.Dense, weights []float64) []float64 {
	rows, _ := y0.Dims()
	wv := mat.NewVecDense(len(weights), weights)
	out := mat.NewVecDense(rows, nil)
	out.MulVec(y0, wv)

	synthetic := make([]float64, rows)
	for i := 0; i < rows; i++ {
		synthetic[i] = out.AtVec(i)
	}
	return synthetic
}

func (f *Fitter) maxIter(k int) int {
	if f.MaxIterations > 0 {
		return f.MaxIterations
	}
	if n := 10 * k; n > defaultMaxIterations {
		return n
	}
	return defaultMaxIterations
}

func checkShapes(in *estimate.Input) error {
	if in.Y0 == nil || in.DonorCount() == 0 {
		return errors.ShapeMismatch("donor matrix Y0 is empty")
	}
	rows, _ := in.Y0.Dims()
	if len(in.Y1) != rows {
		return errors.ShapeMismatchf("Y1 has %d rows but Y0 has %d", len(in.Y1), rows)
	}
	if len(in.Y1) != in.T0+in.T1 {
		return errors.ShapeMismatchf("Y1 has %d rows but T0+T1=%d", len(in.Y1), in.T0+in.T1)
	}
	if in.T0 <= 0 || in.T1 < 0 {
		return errors.ShapeMismatchf("invalid period split T0=%d T1=%d", in.T0, in.T1)
	}
	return nil
}
