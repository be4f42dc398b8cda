package estimate

import (
	"math"
	"testing"
)

func TestNewGrid_EvenSpacing(t *testing.T) {
	g := NewGrid(-1, 1, 0.5)
	want := []float64{-1, -0.5, 0, 0.5, 1}
	if len(g.Points) != len(want) {
		t.Fatalf("got %d points, want %d", len(g.Points), len(want))
	}
	for i, v := range want {
		if math.Abs(g.Points[i]-v) > 1e-12 {
			t.Errorf("point %d = %g, want %g", i, g.Points[i], v)
		}
	}
	if g.Max != g.Points[len(g.Points)-1] {
		t.Errorf("grid max %g does not match last point %g", g.Max, g.Points[len(g.Points)-1])
	}
}

func TestNewGrid_KeepsEndpointDespiteFloatDrift(t *testing.T) {
	g := NewGrid(0, 0.3, 0.1)
	if g.Len() != 4 {
		t.Fatalf("got %d points, want 4 (0, 0.1, 0.2, 0.3)", g.Len())
	}
}

func TestGrid_AtEdge(t *testing.T) {
	g := NewGrid(0, 10, 1)

	lower, _ := g.AtEdge(0)
	if !lower {
		t.Error("grid min should be at the lower edge")
	}
	_, upper := g.AtEdge(10)
	if !upper {
		t.Error("grid max should be at the upper edge")
	}
	lower, upper = g.AtEdge(5)
	if lower || upper {
		t.Error("interior point should not be at an edge")
	}
}

func TestNewGrid_DegenerateInputs(t *testing.T) {
	if g := NewGrid(1, 0, 0.1); g.Len() != 0 {
		t.Errorf("inverted range should yield an empty grid, got %d points", g.Len())
	}
	if g := NewGrid(0, 1, 0); g.Len() != 0 {
		t.Errorf("zero step should yield an empty grid, got %d points", g.Len())
	}
}
