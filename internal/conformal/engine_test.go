package conformal

import (
	"context"
	"testing"

	"synthctl/domain/estimate"
	"synthctl/domain/panel"
	"synthctl/internal/errors"
	"synthctl/internal/fitter"
	"synthctl/internal/panelbuild"
	"synthctl/internal/rng"
	"synthctl/internal/testkit"
)

const trueEffect = 50.0

// buildEffectInput assembles matrices from a synthetic panel whose
// treated unit carries a known post-treatment effect.
func buildEffectInput(t *testing.T, t0, t1 int, effect float64) *estimate.Input {
	t.Helper()
	p := testkit.GeneratePanel(testkit.PanelSpec{
		Donors: 3, T0: t0, T1: t1, Effect: effect,
	})
	in, err := panelbuild.NewBuilder().Build(p, panel.OutcomeSpec{
		Key: "outcome", Class: panel.ClassLongHistory, PrePeriods: t0,
	}, testkit.TreatedEntity, testkit.ExcludedEntity)
	if err != nil {
		t.Fatalf("panel build failed: %v", err)
	}
	return in
}

func TestTestEffect_TrueEffectNotRejected(t *testing.T) {
	in := buildEffectInput(t, 40, 4, trueEffect)
	engine := NewEngine(fitter.NewFitter(), rng.NewAdapter())

	p, err := engine.TestEffect(in, trueEffect, estimate.ModeSimplex)
	if err != nil {
		t.Fatalf("TestEffect failed: %v", err)
	}
	if p < engine.Alpha {
		t.Errorf("true effect rejected with p=%g at alpha=%g", p, engine.Alpha)
	}
}

func TestTestEffect_GrosslyWrongEffectRejected(t *testing.T) {
	in := buildEffectInput(t, 40, 4, trueEffect)
	engine := NewEngine(fitter.NewFitter(), rng.NewAdapter())

	p, err := engine.TestEffect(in, 0, estimate.ModeSimplex)
	if err != nil {
		t.Fatalf("TestEffect failed: %v", err)
	}
	if p >= engine.Alpha {
		t.Errorf("zero-effect null survived with p=%g despite a %g-unit true effect", p, trueEffect)
	}
}

func TestNullPValue_NoEffectData(t *testing.T) {
	in := buildEffectInput(t, 40, 4, 0)
	engine := NewEngine(fitter.NewFitter(), rng.NewAdapter())

	p, err := engine.NullPValue(in, estimate.ModeSimplex)
	if err != nil {
		t.Fatalf("NullPValue failed: %v", err)
	}
	if p < engine.Alpha {
		t.Errorf("null rejected on effect-free data, p=%g", p)
	}
	if p < 0 || p > 1 {
		t.Errorf("p-value %g outside [0,1]", p)
	}
}

func TestInterval_ContainsTrueEffect(t *testing.T) {
	in := buildEffectInput(t, 40, 4, trueEffect)
	engine := NewEngine(fitter.NewFitter(), rng.NewAdapter())

	grid := estimate.NewGrid(trueEffect-10, trueEffect+10, 1)
	res, err := engine.Interval(context.Background(), in, grid, estimate.ModeSimplex)
	if err != nil {
		t.Fatalf("Interval failed: %v", err)
	}

	if res.Lower > trueEffect || res.Upper < trueEffect {
		t.Errorf("interval [%g, %g] excludes the true effect %g", res.Lower, res.Upper, trueEffect)
	}
	if res.Lower <= grid.Min || res.Upper >= grid.Max {
		t.Errorf("interval [%g, %g] binds the grid edges [%g, %g]", res.Lower, res.Upper, grid.Min, grid.Max)
	}
	if len(res.Accepted) != grid.Len() || len(res.PValues) != grid.Len() {
		t.Fatalf("decision vectors sized %d/%d, want %d", len(res.Accepted), len(res.PValues), grid.Len())
	}
	for i, p := range res.PValues {
		if p < 0 || p > 1 {
			t.Errorf("p-value %g at grid point %d outside [0,1]", p, i)
		}
		if res.Accepted[i] != (p >= engine.Alpha) {
			t.Errorf("decision at grid point %d disagrees with its p-value", i)
		}
	}
}

func TestInterval_AllRejectedFallsBackToEdges(t *testing.T) {
	in := buildEffectInput(t, 40, 4, trueEffect)
	engine := NewEngine(fitter.NewFitter(), rng.NewAdapter())

	// a grid nowhere near the true effect rejects everywhere
	grid := estimate.NewGrid(-210, -200, 1)
	res, err := engine.Interval(context.Background(), in, grid, estimate.ModeSimplex)
	if err != nil {
		t.Fatalf("Interval failed: %v", err)
	}
	if res.Lower != grid.Min || res.Upper != grid.Max {
		t.Errorf("all-rejected pass should return the grid edges, got [%g, %g]", res.Lower, res.Upper)
	}
}

func TestInterval_IIDSchemeDeterministic(t *testing.T) {
	in := buildEffectInput(t, 30, 3, trueEffect)
	engine := NewEngine(fitter.NewFitter(), rng.NewAdapter())
	engine.Scheme = SchemeIID
	engine.Permutations = 200

	grid := estimate.NewGrid(trueEffect-5, trueEffect+5, 1)
	first, err := engine.Interval(context.Background(), in, grid, estimate.ModeSimplex)
	if err != nil {
		t.Fatalf("first Interval failed: %v", err)
	}
	second, err := engine.Interval(context.Background(), in, grid, estimate.ModeSimplex)
	if err != nil {
		t.Fatalf("second Interval failed: %v", err)
	}
	for i := range first.PValues {
		if first.PValues[i] != second.PValues[i] {
			t.Errorf("iid p-values differ between identical runs at point %d", i)
		}
	}
}

func TestTestEffect_RequiresPostPeriods(t *testing.T) {
	in := buildEffectInput(t, 30, 3, 0)
	in.T0 = 33
	in.T1 = 0

	engine := NewEngine(fitter.NewFitter(), rng.NewAdapter())
	_, err := engine.TestEffect(in, 0, estimate.ModeSimplex)
	if !errors.HasCode(err, errors.CodeShapeMismatch) {
		t.Fatalf("got %v, want SHAPE_MISMATCH", err)
	}
}

func TestInterval_EmptyGridRejected(t *testing.T) {
	in := buildEffectInput(t, 30, 3, 0)
	engine := NewEngine(fitter.NewFitter(), rng.NewAdapter())

	_, err := engine.Interval(context.Background(), in, estimate.Grid{}, estimate.ModeSimplex)
	if !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("got %v, want INVALID_INPUT", err)
	}
}
