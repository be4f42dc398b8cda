package ui

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"synthctl/app"
	"synthctl/internal/conformal"
	"synthctl/internal/fitter"
	"synthctl/internal/gridsearch"
	"synthctl/internal/rng"
)

func newTestServer() *Server {
	f := fitter.NewFitter()
	engine := conformal.NewEngine(f, rng.NewAdapter())
	service := app.NewEstimationService(f, gridsearch.NewController(engine))
	return NewServer(service, nil)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("health body is not JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("got status %q, want ok", body["status"])
	}
}

func TestHandleEstimate_PointEstimateOnly(t *testing.T) {
	srv := newTestServer()

	payload := map[string]interface{}{
		"y1":         []float64{10, 11, 12, 15, 17},
		"y0":         [][]float64{{10}, {11}, {12}, {13}, {14}},
		"t0":         3,
		"t1":         2,
		"treated":    "TR",
		"outcome":    "price_index",
		"compute_ci": false,
	}
	raw, _ := json.Marshal(payload)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/estimate", bytes.NewReader(raw)))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp estimateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("estimate body is not JSON: %v", err)
	}

	if resp.RunID == "" {
		t.Error("response misses the run ID")
	}
	if resp.Bounds != nil {
		t.Error("bounds present although compute_ci was false")
	}
	if len(resp.Weights) != 1 || resp.Weights[0] != 1 {
		t.Errorf("got weights %v, want [1]", resp.Weights)
	}
	if len(resp.Records) != 5 {
		t.Fatalf("got %d records, want 5", len(resp.Records))
	}
	for i, r := range resp.Records {
		if r.LowerCI != nil || r.UpperCI != nil {
			t.Errorf("record %d carries bounds although compute_ci was false", i)
		}
	}

	// the run is now queryable as a report
	rep := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rep, httptest.NewRequest(http.MethodGet, "/api/runs/"+string(resp.RunID)+"/report", nil))
	if rep.Code != http.StatusOK {
		t.Fatalf("report lookup got status %d, want 200", rep.Code)
	}
	if !bytes.Contains(rep.Body.Bytes(), []byte("price_index")) {
		t.Error("report does not mention the outcome")
	}
}

func TestHandleEstimate_BadShapesRejected(t *testing.T) {
	srv := newTestServer()

	payload := map[string]interface{}{
		"y1":      []float64{1, 2, 3},
		"y0":      [][]float64{{1}, {2}},
		"t0":      2,
		"t1":      1,
		"treated": "TR",
		"outcome": "x",
	}
	raw, _ := json.Marshal(payload)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/estimate", bytes.NewReader(raw)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if body["code"] != "SHAPE_MISMATCH" {
		t.Errorf("got code %q, want SHAPE_MISMATCH", body["code"])
	}
}

func TestHandleEstimate_MalformedJSON(t *testing.T) {
	srv := newTestServer()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/estimate", bytes.NewReader([]byte("{"))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestHandleReport_UnknownRun(t *testing.T) {
	srv := newTestServer()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope/report", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}
