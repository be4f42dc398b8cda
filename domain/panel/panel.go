package panel

import (
	"sort"
	"time"

	"synthctl/domain/core"
)

// Observation is one raw panel row: one entity at one date with its
// outcome values and the post-treatment flag derived from the
// intervention date.
type Observation struct {
	Date          time.Time
	Entity        core.EntityCode
	Values        map[core.OutcomeKey]float64
	PostTreatment bool
}

// Panel is the raw long-format table keyed by (date, entity).
// Dates form a strictly increasing, entity-aligned grid once filtered.
type Panel struct {
	Rows []Observation
}

// Append adds an observation to the panel
func (p *Panel) Append(obs Observation) {
	p.Rows = append(p.Rows, obs)
}

// Dates returns the sorted distinct dates present in the panel
func (p *Panel) Dates() []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, row := range p.Rows {
		if !seen[row.Date] {
			seen[row.Date] = true
			dates = append(dates, row.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Entities returns the sorted distinct entity codes present in the panel
func (p *Panel) Entities() []core.EntityCode {
	seen := make(map[core.EntityCode]bool)
	var entities []core.EntityCode
	for _, row := range p.Rows {
		if !seen[row.Entity] {
			seen[row.Entity] = true
			entities = append(entities, row.Entity)
		}
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	return entities
}

// Value looks up the outcome value for (date, entity)
func (p *Panel) Value(date time.Time, entity core.EntityCode, outcome core.OutcomeKey) (float64, bool) {
	for _, row := range p.Rows {
		if row.Entity == entity && row.Date.Equal(date) {
			v, ok := row.Values[outcome]
			return v, ok
		}
	}
	return 0, false
}

// OutcomeClass distinguishes outcome series by the length of history
// the upstream data source supports.
type OutcomeClass int

const (
	ClassLongHistory OutcomeClass = iota
	ClassShortHistory
)

// MaxPrePeriods returns the largest supported T0 for the class:
// short-history series carry 89 usable pre-treatment periods, all
// others carry 114.
func (c OutcomeClass) MaxPrePeriods() int {
	if c == ClassShortHistory {
		return 89
	}
	return 114
}

func (c OutcomeClass) String() string {
	if c == ClassShortHistory {
		return "short_history"
	}
	return "long_history"
}

// OutcomeSpec selects one outcome column and its pre-treatment window
type OutcomeSpec struct {
	Key        core.OutcomeKey
	Class      OutcomeClass
	PrePeriods int // T0: count of pre-treatment periods to fit on
}
