package estimate

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"synthctl/domain/core"
)

// FittingMode selects the feasible region for the donor weights
type FittingMode string

const (
	// ModeSimplex constrains weights to the probability simplex (w >= 0, sum w = 1)
	ModeSimplex FittingMode = "simplex"
	// ModeNonNegative constrains weights to the non-negative orthant only
	ModeNonNegative FittingMode = "nonneg"
	// ModeAffine constrains weights to sum to one with free signs
	ModeAffine FittingMode = "affine"
)

// Valid reports whether the mode is a known fitting mode
func (m FittingMode) Valid() bool {
	switch m {
	case ModeSimplex, ModeNonNegative, ModeAffine:
		return true
	}
	return false
}

// Input holds the aligned estimation matrices for one (treated entity,
// outcome) run. Rows of Y0 correspond 1:1 to entries of Y1 and Dates;
// the first T0 rows are pre-treatment, the remaining T1 rows post.
type Input struct {
	Y1     []float64  // treated outcome, length T0+T1
	Y0     *mat.Dense // donor outcomes, (T0+T1) x k
	T0     int        // pre-treatment period count
	T1     int        // post-treatment period count
	Dates  []time.Time
	Donors []core.EntityCode // column order of Y0
}

// Horizon returns the full row count T0+T1
func (in *Input) Horizon() int { return in.T0 + in.T1 }

// DonorCount returns k, the number of donor columns
func (in *Input) DonorCount() int {
	if in.Y0 == nil {
		return 0
	}
	_, k := in.Y0.Dims()
	return k
}

// Fit is the output of the synthetic-control weight optimization
type Fit struct {
	Weights   []float64 // donor weights, length k
	Synthetic []float64 // Y0 · weights over the full horizon
	Gaps      []float64 // Y1 - Synthetic over the full horizon
}

// Record is one immutable output row of an estimation call. Confidence
// bounds are nil for pre-treatment rows and whenever interval
// computation is disabled.
type Record struct {
	Date     time.Time       `db:"date" json:"date"`
	Observed float64         `db:"obs" json:"obs"`
	Synth    float64         `db:"synth" json:"synth"`
	Gap      float64         `db:"gap" json:"gap"`
	LowerCI  *float64        `db:"lower_ci" json:"lower_ci,omitempty"`
	UpperCI  *float64        `db:"upper_ci" json:"upper_ci,omitempty"`
	T0       int             `db:"t0" json:"t0"`
	Outcome  core.OutcomeKey `db:"outcome" json:"outcome"`
	Treated  core.EntityCode `db:"treated" json:"treated"`
}

// Result is the full output of one estimation call
type Result struct {
	RunID   core.RunID `json:"run_id"`
	Treated core.EntityCode
	Outcome core.OutcomeKey
	Fit     *Fit
	Bounds  *Bounds // nil when interval computation is disabled
	Records []Record
}

// Bounds is a converged confidence interval for the treatment effect
type Bounds struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Expansions int     `json:"expansions"` // grid re-expansions before convergence
}

// Table accumulates records across estimation calls. Only the
// orchestrator appends; individual calls never share state.
type Table struct {
	Records []Record
}

// Append adds one call's records to the table
func (t *Table) Append(records []Record) {
	t.Records = append(t.Records, records...)
}

// Len returns the accumulated record count
func (t *Table) Len() int { return len(t.Records) }
