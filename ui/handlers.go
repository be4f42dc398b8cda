package ui

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gonum.org/v1/gonum/mat"

	"synthctl/app"
	"synthctl/domain/core"
	"synthctl/domain/estimate"
	"synthctl/domain/panel"
	"synthctl/internal/errors"
)

// estimateRequest is the wire form of the core estimate call
type estimateRequest struct {
	Y1           []float64   `json:"y1"`
	Y0           [][]float64 `json:"y0"` // row-major, one row per period
	T0           int         `json:"t0"`
	T1           int         `json:"t1"`
	Dates        []string    `json:"dates,omitempty"` // YYYY-MM-DD, optional
	Treated      string      `json:"treated"`
	Outcome      string      `json:"outcome"`
	OutcomeClass string      `json:"outcome_class,omitempty"` // short_history or long_history
	ComputeCI    bool        `json:"compute_ci"`
	Precision    float64     `json:"precision,omitempty"`
	FittingMode  string      `json:"fitting_mode,omitempty"`
}

type estimateResponse struct {
	RunID   core.RunID        `json:"run_id"`
	Records []estimate.Record `json:"records"`
	Bounds  *estimate.Bounds  `json:"bounds,omitempty"`
	Weights []float64         `json:"weights"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("request body is not valid JSON"))
		return
	}

	input, err := buildInput(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	class := panel.ClassLongHistory
	if req.OutcomeClass == "short_history" {
		class = panel.ClassShortHistory
	}

	result, err := s.service.Estimate(r.Context(), app.Request{
		Input:     input,
		Treated:   core.EntityCode(req.Treated),
		Outcome:   core.OutcomeKey(req.Outcome),
		Class:     class,
		ComputeCI: req.ComputeCI,
		Precision: req.Precision,
		Mode:      estimate.FittingMode(req.FittingMode),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.remember(result)
	if s.store != nil {
		if err := s.store.SaveRecords(r.Context(), result.RunID, result.Records); err != nil {
			log.Printf("[Server] failed to persist run %s: %v", result.RunID, err)
		}
	}

	writeJSON(w, http.StatusOK, estimateResponse{
		RunID:   result.RunID,
		Records: result.Records,
		Bounds:  result.Bounds,
		Weights: result.Fit.Weights,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	runID := core.RunID(chi.URLParam(r, "runID"))
	result, ok := s.lookup(runID)
	if !ok {
		writeError(w, errors.New(errors.CodeInvalidInput, "unknown run ID"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(s.renderer.HTML(result))
}

// buildInput converts the wire request into estimation matrices
func buildInput(req *estimateRequest) (*estimate.Input, error) {
	if len(req.Y1) == 0 || len(req.Y0) == 0 {
		return nil, errors.InvalidInput("y1 and y0 are required")
	}
	if len(req.Y0) != len(req.Y1) {
		return nil, errors.ShapeMismatchf("y0 has %d rows but y1 has %d", len(req.Y0), len(req.Y1))
	}

	k := len(req.Y0[0])
	y0 := mat.NewDense(len(req.Y0), k, nil)
	for i, row := range req.Y0 {
		if len(row) != k {
			return nil, errors.ShapeMismatchf("y0 row %d has %d donors, expected %d", i, len(row), k)
		}
		for j, v := range row {
			y0.Set(i, j, v)
		}
	}

	dates := make([]time.Time, 0, len(req.Dates))
	for _, raw := range req.Dates {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, errors.InvalidInput("dates must be YYYY-MM-DD")
		}
		dates = append(dates, d.UTC())
	}

	return &estimate.Input{
		Y1:    req.Y1,
		Y0:    y0,
		T0:    req.T0,
		T1:    req.T1,
		Dates: dates,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps error codes onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeConfigInvalid, errors.CodeShapeMismatch, errors.CodeInvalidInput:
		status = http.StatusBadRequest
	case errors.CodeFittingFailed, errors.CodeNonConvergence:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
