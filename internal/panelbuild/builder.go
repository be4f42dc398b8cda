package panelbuild

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"synthctl/domain/core"
	"synthctl/domain/estimate"
	"synthctl/domain/panel"
	"synthctl/internal/errors"
)

// Builder assembles the aligned estimation matrices for one (treated
// entity, outcome) run from a raw long-format panel.
type Builder struct{}

// NewBuilder creates a panel builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build produces (Y1, Y0, T0, T1, dates) for the treated entity,
// excluding the complementary treated entity from the donor universe so
// one treated unit cannot contaminate the other's counterfactual.
//
// The panel is pivoted so each donor becomes one Y0 column (sorted
// entity order), then sliced to the trailing T0+T1 dates. Any missing
// observation inside the retained range is a shape error, not a value
// to impute.
func (b *Builder) Build(p *panel.Panel, spec panel.OutcomeSpec, treated, excluded core.EntityCode) (*estimate.Input, error) {
	if spec.PrePeriods <= 0 {
		return nil, errors.ConfigInvalidf("T0 must be positive for outcome %s, got %d", spec.Key, spec.PrePeriods)
	}
	if limit := spec.Class.MaxPrePeriods(); spec.PrePeriods > limit {
		return nil, errors.ConfigInvalidf("T0=%d for outcome %s exceeds the %s cap of %d periods",
			spec.PrePeriods, spec.Key, spec.Class, limit)
	}
	if treated == excluded {
		return nil, errors.ConfigInvalidf("treated entity %s cannot equal the excluded entity", treated)
	}

	values, post := index(p, spec.Key, excluded)
	if _, ok := values[treated]; !ok {
		return nil, errors.ShapeMismatchf("treated entity %s not present in panel", treated)
	}

	dates := collectDates(values)
	donors := collectDonors(values, treated)
	if len(donors) == 0 {
		return nil, errors.ShapeMismatchf("donor pool for treated entity %s is empty after exclusions", treated)
	}

	// T1 is the count of distinct post-treatment dates present
	t1 := 0
	for _, d := range dates {
		if post[d.Unix()] {
			t1++
		}
	}
	t0 := spec.PrePeriods
	if len(dates)-t1 < t0 {
		return nil, errors.ShapeMismatchf("panel has %d pre-treatment dates for outcome %s, need T0=%d",
			len(dates)-t1, spec.Key, t0)
	}

	// keep the most recent T0+T1 periods, discard older history
	retained := dates[len(dates)-(t0+t1):]
	for i, d := range retained {
		isPost := post[d.Unix()]
		if i < t0 && isPost {
			return nil, errors.ShapeMismatchf("date %s is post-treatment but falls inside the pre window", d.Format("2006-01-02"))
		}
		if i >= t0 && !isPost {
			return nil, errors.ShapeMismatchf("date %s is pre-treatment but falls inside the post window", d.Format("2006-01-02"))
		}
	}

	y1 := make([]float64, len(retained))
	for i, d := range retained {
		v, ok := values[treated][d.Unix()]
		if !ok {
			return nil, errors.ShapeMismatchf("treated entity %s missing outcome %s at %s",
				treated, spec.Key, d.Format("2006-01-02"))
		}
		y1[i] = v
	}

	y0 := mat.NewDense(len(retained), len(donors), nil)
	for j, donor := range donors {
		for i, d := range retained {
			v, ok := values[donor][d.Unix()]
			if !ok {
				return nil, errors.ShapeMismatchf("donor %s missing outcome %s at %s",
					donor, spec.Key, d.Format("2006-01-02"))
			}
			y0.Set(i, j, v)
		}
	}

	return &estimate.Input{
		Y1:     y1,
		Y0:     y0,
		T0:     t0,
		T1:     t1,
		Dates:  retained,
		Donors: donors,
	}, nil
}

// index pivots the panel into per-entity date lookups and records which
// dates are post-treatment. Rows of the excluded entity are dropped.
func index(p *panel.Panel, outcome core.OutcomeKey, excluded core.EntityCode) (map[core.EntityCode]map[int64]float64, map[int64]bool) {
	values := make(map[core.EntityCode]map[int64]float64)
	post := make(map[int64]bool)
	for _, row := range p.Rows {
		if row.Entity == excluded {
			continue
		}
		v, ok := row.Values[outcome]
		if !ok {
			continue
		}
		if values[row.Entity] == nil {
			values[row.Entity] = make(map[int64]float64)
		}
		values[row.Entity][row.Date.Unix()] = v
		if row.PostTreatment {
			post[row.Date.Unix()] = true
		}
	}
	return values, post
}

func collectDates(values map[core.EntityCode]map[int64]float64) []time.Time {
	seen := make(map[int64]bool)
	var dates []time.Time
	for _, byDate := range values {
		for unix := range byDate {
			if !seen[unix] {
				seen[unix] = true
				dates = append(dates, time.Unix(unix, 0).UTC())
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func collectDonors(values map[core.EntityCode]map[int64]float64, treated core.EntityCode) []core.EntityCode {
	var donors []core.EntityCode
	for entity := range values {
		if entity != treated {
			donors = append(donors, entity)
		}
	}
	sort.Slice(donors, func(i, j int) bool { return donors[i] < donors[j] })
	return donors
}
