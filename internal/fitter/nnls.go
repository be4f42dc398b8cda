package fitter

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"synthctl/internal/errors"
)

const kktTolerance = 1e-10

// nnls solves min ||A·x − b||₂ subject to x ≥ 0 with the Lawson-Hanson
// active-set algorithm. Unconstrained least squares can place weights
// outside the feasible region, so the passive set is grown one column
// at a time and shrunk whenever a restricted solve leaves it.
func nnls(a *mat.Dense, b *mat.VecDense, maxIter int) ([]float64, error) {
	m, n := a.Dims()
	x := make([]float64, n)
	passive := make([]bool, n)

	r := mat.NewVecDense(m, nil)
	r.CopyVec(b)
	w := mat.NewVecDense(n, nil)

	for iter := 0; iter < maxIter; iter++ {
		// gradient of the residual: w = Aᵀ(b − A·x)
		w.MulVec(a.T(), r)

		// most violated dual coordinate in the active set
		t := -1
		wMax := kktTolerance
		for j := 0; j < n; j++ {
			if !passive[j] && w.AtVec(j) > wMax {
				wMax = w.AtVec(j)
				t = j
			}
		}
		if t < 0 {
			// KKT conditions hold
			return x, nil
		}
		passive[t] = true

		for {
			z, err := solvePassive(a, b, passive)
			if err != nil {
				return nil, err
			}

			alpha := math.MaxFloat64
			feasible := true
			for j := 0; j < n; j++ {
				if passive[j] && z[j] <= 0 {
					feasible = false
					if step := x[j] / (x[j] - z[j]); step < alpha {
						alpha = step
					}
				}
			}
			if feasible {
				copy(x, z)
				break
			}

			// back off along the segment to x and drop zeroed columns
			for j := 0; j < n; j++ {
				if passive[j] {
					x[j] += alpha * (z[j] - x[j])
					if x[j] <= kktTolerance {
						x[j] = 0
						passive[j] = false
					}
				}
			}
		}

		xv := mat.NewVecDense(n, x)
		r.MulVec(a, xv)
		r.SubVec(b, r)
	}

	return nil, errors.FittingFailedf("weight optimization did not satisfy KKT conditions within %d iterations", maxIter)
}

// solvePassive solves the least-squares subproblem restricted to the
// passive columns, returning a full-length vector with zeros elsewhere.
func solvePassive(a *mat.Dense, b *mat.VecDense, passive []bool) ([]float64, error) {
	m, n := a.Dims()
	var cols []int
	for j := 0; j < n; j++ {
		if passive[j] {
			cols = append(cols, j)
		}
	}

	sub := mat.NewDense(m, len(cols), nil)
	buf := make([]float64, m)
	for idx, j := range cols {
		mat.Col(buf, j, a)
		sub.SetCol(idx, buf)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(sub, b); err != nil {
		if cond, ok := err.(mat.Condition); !ok || math.IsInf(float64(cond), 1) {
			return nil, errors.FittingFailedf("restricted least-squares solve is infeasible: %v", err)
		}
	}

	z := make([]float64, n)
	for idx, j := range cols {
		z[j] = sol.AtVec(idx)
	}
	return z, nil
}
