package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"synthctl/domain/estimate"
)

// Renderer turns an estimation result into a markdown summary and its
// HTML rendering for the API surface.
type Renderer struct{}

// NewRenderer creates a report renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Markdown produces the textual estimation summary
func (r *Renderer) Markdown(result *estimate.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Estimation report %s\n\n", result.RunID)
	fmt.Fprintf(&b, "Treated entity **%s**, outcome **%s**.\n\n", result.Treated, result.Outcome)

	in := result.Records
	if len(in) > 0 {
		fmt.Fprintf(&b, "- Periods: %d (T0=%d pre-treatment)\n", len(in), in[0].T0)
	}

	postGaps := postTreatmentGaps(result)
	if len(postGaps) > 0 {
		mean, _ := stats.Mean(postGaps)
		med, _ := stats.Median(postGaps)
		lo, _ := stats.Min(postGaps)
		hi, _ := stats.Max(postGaps)
		fmt.Fprintf(&b, "- Post-treatment gap: mean %.4f, median %.4f, range [%.4f, %.4f]\n", mean, med, lo, hi)
	}

	if result.Bounds != nil {
		fmt.Fprintf(&b, "- 90%% confidence interval: [%.4f, %.4f] after %d grid expansions\n",
			result.Bounds.Lower, result.Bounds.Upper, result.Bounds.Expansions)
	} else {
		b.WriteString("- Confidence interval: not computed\n")
	}

	b.WriteString("\n| date | obs | synth | gap |\n|---|---|---|---|\n")
	for _, rec := range result.Records {
		fmt.Fprintf(&b, "| %s | %.4f | %.4f | %.4f |\n",
			rec.Date.Format("2006-01-02"), rec.Observed, rec.Synth, rec.Gap)
	}

	return b.String()
}

// HTML renders the markdown summary to HTML
func (r *Renderer) HTML(result *estimate.Result) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(r.Markdown(result)))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.Render(doc, renderer)
}

func postTreatmentGaps(result *estimate.Result) []float64 {
	var gaps []float64
	for i, rec := range result.Records {
		if i >= rec.T0 {
			gaps = append(gaps, rec.Gap)
		}
	}
	return gaps
}
