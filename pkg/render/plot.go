package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/replan/pkg/plan"
)

// WriteActionChart renders an HTML bar chart summarizing how many
// commits each plan action covers.
func WriteActionChart(w io.Writer, rebasePlan *plan.Plan) error {
	counts := actionCounts(rebasePlan)

	labels := []string{string(plan.Pick), string(plan.Reword), string(plan.Squash), "drop"}

	data := make([]opts.BarData, 0, len(labels))
	for _, label := range labels {
		data = append(data, opts.BarData{Value: counts[label]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Rebase Plan Actions",
			Subtitle: "commits covered per action",
		}),
	)
	bar.SetXAxis(labels).AddSeries("commits", data)

	err := bar.Render(w)
	if err != nil {
		return fmt.Errorf("render action chart: %w", err)
	}

	return nil
}

func actionCounts(rebasePlan *plan.Plan) map[string]int {
	counts := make(map[string]int, 4)

	for i := range rebasePlan.Ops {
		op := &rebasePlan.Ops[i]

		counts[string(op.Kind)]++
		// Squashed commits ride along under the squash action.
		counts[string(plan.Squash)] += len(op.Squashed)
	}

	counts["drop"] = len(rebasePlan.Drops)

	return counts
}
