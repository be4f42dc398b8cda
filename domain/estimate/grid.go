package estimate

// Grid is an ordered, evenly spaced sequence of candidate effect
// magnitudes for the conformal search. Step is fixed for the life of a
// search; only the ends move between controller iterations.
type Grid struct {
	Min    float64
	Max    float64
	Step   float64
	Points []float64
}

// NewGrid builds the inclusive point sequence min, min+step, ... up to
// max. The last point may fall short of max by less than one step.
func NewGrid(min, max, step float64) Grid {
	g := Grid{Min: min, Max: max, Step: step}
	if step <= 0 || max < min {
		return g
	}
	// half-step slack keeps the endpoint despite float accumulation
	for v := min; v <= max+step/2; v += step {
		g.Points = append(g.Points, v)
	}
	g.Max = g.Points[len(g.Points)-1]
	return g
}

// Len returns the number of grid points
func (g Grid) Len() int { return len(g.Points) }

// AtEdge reports whether v sits on the grid's min or max, within half a
// step of tolerance.
func (g Grid) AtEdge(v float64) (lower, upper bool) {
	tol := g.Step / 2
	return v <= g.Min+tol && v >= g.Min-tol, v <= g.Max+tol && v >= g.Max-tol
}
