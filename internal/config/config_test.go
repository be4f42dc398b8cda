package config

import (
	"testing"

	"synthctl/domain/estimate"
	"synthctl/domain/panel"
	"synthctl/internal/errors"
)

// clearEnv blanks every configuration variable so defaults apply
// regardless of the invoking shell.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PRECISION", "COMPUTE_CI", "FITTING_MODE", "PERMUTATIONS",
		"MAX_EXPANSIONS", "PERMUTATION_SCHEME", "DATABASE_URL", "PORT",
		"PANEL_FILE", "TREATMENT_DATE", "TREATED_ENTITIES", "OUTCOME",
		"OUTCOME_CLASS", "PRE_PERIODS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Estimation.Precision != 0.01 {
		t.Errorf("got precision %g, want 0.01", cfg.Estimation.Precision)
	}
	if !cfg.Estimation.ComputeCI {
		t.Error("confidence intervals should default on")
	}
	if cfg.Estimation.FittingMode != estimate.ModeSimplex {
		t.Errorf("got mode %s, want simplex", cfg.Estimation.FittingMode)
	}
	if cfg.Estimation.Permutations != 1000 {
		t.Errorf("got %d permutations, want 1000", cfg.Estimation.Permutations)
	}
	if cfg.Estimation.MaxExpansions != 25 {
		t.Errorf("got expansion cap %d, want 25", cfg.Estimation.MaxExpansions)
	}
	if cfg.Estimation.Scheme != "block" {
		t.Errorf("got scheme %q, want block", cfg.Estimation.Scheme)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("got port %q, want 8080", cfg.Server.Port)
	}
	if cfg.Panel.OutcomeClass != panel.ClassLongHistory {
		t.Error("outcome class should default to long_history")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRECISION", "0.05")
	t.Setenv("COMPUTE_CI", "false")
	t.Setenv("FITTING_MODE", "affine")
	t.Setenv("PERMUTATION_SCHEME", "iid")
	t.Setenv("OUTCOME_CLASS", "short_history")
	t.Setenv("TREATED_ENTITIES", "AA, BB")
	t.Setenv("TREATMENT_DATE", "2024-03-01")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Estimation.Precision != 0.05 {
		t.Errorf("got precision %g, want 0.05", cfg.Estimation.Precision)
	}
	if cfg.Estimation.ComputeCI {
		t.Error("COMPUTE_CI=false was ignored")
	}
	if cfg.Estimation.FittingMode != estimate.ModeAffine {
		t.Errorf("got mode %s, want affine", cfg.Estimation.FittingMode)
	}
	if cfg.Panel.OutcomeClass != panel.ClassShortHistory {
		t.Error("OUTCOME_CLASS=short_history was ignored")
	}
	if len(cfg.Panel.TreatedEntities) != 2 || cfg.Panel.TreatedEntities[0] != "AA" || cfg.Panel.TreatedEntities[1] != "BB" {
		t.Errorf("got treated entities %v, want [AA BB]", cfg.Panel.TreatedEntities)
	}
	if cfg.Panel.TreatmentDate.IsZero() {
		t.Error("TREATMENT_DATE was not parsed")
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	clearEnv(t)
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"precision at one", "PRECISION", "1"},
		{"negative precision", "PRECISION", "-0.1"},
		{"unknown mode", "FITTING_MODE", "ridge"},
		{"unknown scheme", "PERMUTATION_SCHEME", "bootstrap"},
		{"unknown class", "OUTCOME_CLASS", "medium_history"},
		{"bad treatment date", "TREATMENT_DATE", "March 1st"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); !errors.HasCode(err, errors.CodeConfigInvalid) {
				t.Fatalf("got %v, want CONFIG_INVALID", err)
			}
		})
	}
}

func TestValidatePanelRun(t *testing.T) {
	clearEnv(t)
	t.Setenv("PANEL_FILE", "panel.xlsx")
	t.Setenv("TREATMENT_DATE", "2024-03-01")
	t.Setenv("TREATED_ENTITIES", "AA,BB")
	t.Setenv("OUTCOME", "price_index")
	t.Setenv("PRE_PERIODS", "24")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.ValidatePanelRun(); err != nil {
		t.Fatalf("complete panel config rejected: %v", err)
	}

	cfg.Panel.TreatedEntities = cfg.Panel.TreatedEntities[:1]
	if err := cfg.ValidatePanelRun(); !errors.HasCode(err, errors.CodeConfigInvalid) {
		t.Fatalf("got %v, want CONFIG_INVALID for a single treated entity", err)
	}
}
