package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DragonSun329/briefAI-sub001/pkg/consolidate"
)

// Markdown renders a finalized result as a markdown briefing.
type Markdown struct{}

// NewMarkdown creates a markdown renderer.
func NewMarkdown() *Markdown { return &Markdown{} }

func (m *Markdown) Render(res *consolidate.Result) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Weekly briefing — %s\n\n", res.PeriodID)
	fmt.Fprintf(&b, "Collected %d items, merged %d duplicates, deep-evaluated %d (%d failed), selected %d.\n\n",
		res.Stats.Collected, res.Stats.Merged, res.Stats.DeepEvaluated,
		res.Stats.Failed, res.Stats.Selected)

	for i, it := range res.Selected {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, it.Title)
		if it.FinalScore != nil {
			fmt.Fprintf(&b, "Score: %.2f", *it.FinalScore)
			if len(it.Dimensions) > 0 {
				fmt.Fprintf(&b, " (%s)", dimensionSummary(it.Dimensions))
			}
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Source: %s | Published: %s\n\n", it.Source, it.PublishedAt.Format("2006-01-02"))
		if it.URL != "" {
			fmt.Fprintf(&b, "<%s>\n\n", it.URL)
		}
		if len(it.AbsorbedIDs) > 0 {
			fmt.Fprintf(&b, "Also reported by %d other source(s).\n\n", len(it.AbsorbedIDs))
		}
	}

	fmt.Fprintf(&b, "---\nGenerated %s\n", res.FinalizedAt.Format("2006-01-02 15:04 UTC"))
	return b.String(), nil
}

func dimensionSummary(dims map[string]float64) string {
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s %.1f", name, dims[name])
	}
	return strings.Join(parts, ", ")
}
