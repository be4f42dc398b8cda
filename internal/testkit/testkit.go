package testkit

import (
	"fmt"
	"math/rand"
	"time"

	"synthctl/domain/core"
	"synthctl/domain/panel"
)

// PanelSpec describes a synthetic panel with a known true effect
type PanelSpec struct {
	Donors  int
	T0      int
	T1      int
	Effect  float64 // added to the treated unit's post-treatment rows
	Noise   float64 // stddev of iid noise on the treated series
	Seed    int64
	Outcome core.OutcomeKey
}

// Treated and excluded entity codes produced by GeneratePanel
const (
	TreatedEntity  = core.EntityCode("TR")
	ExcludedEntity = core.EntityCode("TX")
)

// GeneratePanel builds a monthly panel where the treated unit is an
// exact convex combination of the donors plus the configured effect
// after treatment. Donor j follows a distinct linear trend so the
// donor matrix has full column rank.
func GeneratePanel(spec PanelSpec) *panel.Panel {
	if spec.Outcome == "" {
		spec.Outcome = core.OutcomeKey("outcome")
	}
	rng := rand.New(rand.NewSource(spec.Seed))

	// convex weights proportional to 1..k
	weights := make([]float64, spec.Donors)
	total := 0.0
	for j := range weights {
		weights[j] = float64(j + 1)
		total += weights[j]
	}
	for j := range weights {
		weights[j] /= total
	}

	start := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	p := &panel.Panel{}
	horizon := spec.T0 + spec.T1

	for i := 0; i < horizon; i++ {
		date := start.AddDate(0, i, 0)
		isPost := i >= spec.T0

		treatedValue := 0.0
		for j := 0; j < spec.Donors; j++ {
			donorValue := 100 + 3*float64(j+1) + float64(i)*(0.5+0.1*float64(j))
			p.Append(panel.Observation{
				Date:          date,
				Entity:        donorCode(j),
				Values:        map[core.OutcomeKey]float64{spec.Outcome: donorValue},
				PostTreatment: isPost,
			})
			treatedValue += weights[j] * donorValue
		}

		if isPost {
			treatedValue += spec.Effect
		}
		if spec.Noise > 0 {
			treatedValue += rng.NormFloat64() * spec.Noise
		}
		p.Append(panel.Observation{
			Date:          date,
			Entity:        TreatedEntity,
			Values:        map[core.OutcomeKey]float64{spec.Outcome: treatedValue},
			PostTreatment: isPost,
		})

		// the complementary treated unit, excluded from donor pools
		p.Append(panel.Observation{
			Date:          date,
			Entity:        ExcludedEntity,
			Values:        map[core.OutcomeKey]float64{spec.Outcome: 500 + float64(i)},
			PostTreatment: isPost,
		})
	}

	return p
}

// donorCode returns the entity code for donor j
func donorCode(j int) core.EntityCode {
	return core.EntityCode(fmt.Sprintf("D%02d", j+1))
}

// DonorCodes lists the donor entity codes for a donor count
func DonorCodes(k int) []core.EntityCode {
	codes := make([]core.EntityCode, k)
	for j := range codes {
		codes[j] = donorCode(j)
	}
	return codes
}
