package app

import (
	"context"
	"log"

	"synthctl/domain/core"
	"synthctl/domain/estimate"
	"synthctl/domain/panel"
	"synthctl/internal/errors"
	"synthctl/internal/fitter"
	"synthctl/internal/gridsearch"
)

// IntervalRunner drives the confidence-bound search for one estimation
// call. The grid-search controller is the production implementation.
type IntervalRunner interface {
	Run(ctx context.Context, in *estimate.Input, seed estimate.Grid, mode estimate.FittingMode) (*estimate.Bounds, error)
}

// EstimationService executes one (treated entity, outcome) estimation:
// fit the synthetic control, optionally search for confidence bounds,
// and assemble the immutable record rows.
type EstimationService struct {
	fitter *fitter.Fitter
	runner IntervalRunner
}

// Request is the core estimation call signature
type Request struct {
	Input     *estimate.Input
	Treated   core.EntityCode
	Outcome   core.OutcomeKey
	Class     panel.OutcomeClass
	ComputeCI bool
	Precision float64 // grid step when ComputeCI is set
	Mode      estimate.FittingMode
}

// NewEstimationService creates an estimation service
func NewEstimationService(f *fitter.Fitter, runner IntervalRunner) *EstimationService {
	return &EstimationService{fitter: f, runner: runner}
}

// Estimate runs the full pipeline for one request. Each call owns its
// matrices and grid exclusively; nothing is shared across calls.
func (s *EstimationService) Estimate(ctx context.Context, req Request) (*estimate.Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = estimate.ModeSimplex
	}
	if req.ComputeCI && (req.Precision <= 0 || req.Precision >= 1) {
		return nil, errors.ConfigInvalidf("precision must be in (0,1), got %g", req.Precision)
	}

	fit, err := s.fitter.Fit(req.Input, mode)
	if err != nil {
		return nil, err
	}

	var bounds *estimate.Bounds
	if req.ComputeCI {
		seed, err := gridsearch.InitialGrid(fit.Gaps, req.Input.T0, req.Precision, req.Class)
		if err != nil {
			return nil, err
		}
		bounds, err = s.runner.Run(ctx, req.Input, seed, mode)
		if err != nil {
			return nil, err
		}
	}

	runID := core.NewRunID()
	result := &estimate.Result{
		RunID:   runID,
		Treated: req.Treated,
		Outcome: req.Outcome,
		Fit:     fit,
		Bounds:  bounds,
		Records: buildRecords(req, fit, bounds),
	}

	log.Printf("[Estimation] run %s: treated=%s outcome=%s T0=%d T1=%d donors=%d ci=%t",
		runID, req.Treated, req.Outcome, req.Input.T0, req.Input.T1, req.Input.DonorCount(), req.ComputeCI)
	return result, nil
}

// buildRecords maps the fitted series onto per-date rows. Confidence
// bounds apply only to post-treatment rows and stay nil otherwise.
func buildRecords(req Request, fit *estimate.Fit, bounds *estimate.Bounds) []estimate.Record {
	in := req.Input
	records := make([]estimate.Record, in.Horizon())
	for i := range records {
		rec := estimate.Record{
			Observed: in.Y1[i],
			Synth:    fit.Synthetic[i],
			Gap:      fit.Gaps[i],
			T0:       in.T0,
			Outcome:  req.Outcome,
			Treated:  req.Treated,
		}
		if i < len(in.Dates) {
			rec.Date = in.Dates[i]
		}
		if bounds != nil && i >= in.T0 {
			lower, upper := bounds.Lower, bounds.Upper
			rec.LowerCI = &lower
			rec.UpperCI = &upper
		}
		records[i] = rec
	}
	return records
}
