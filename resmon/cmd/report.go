package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/scenario"
)

func printResult(w io.Writer, result *scenario.Result) {
	fmt.Fprintf(w, "%s, seed %d, simulated until %g\n",
		result.Scenario, result.Seed, result.Horizon)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tCAPACITY\tUTILIZATION\tAVG QUEUE\t"+
		"SERVED\tBALKED\tRENEGED\tMEAN WAIT")

	for _, st := range result.Stations {
		util, queue := "-", "-"
		if st.HasStats {
			util = fmt.Sprintf("%.4f", st.Stats.Utilization)
			queue = fmt.Sprintf("%.4f", st.Stats.AvgQueueLength)
		}

		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\t%d\t%.4f\n",
			st.Name, st.Capacity, util, queue,
			st.Entities.Served, st.Entities.Balked, st.Entities.Reneged,
			st.Entities.MeanWait)
	}

	tw.Flush()
}

func printSummary(w io.Writer, summary *scenario.Summary, level float64) {
	if len(summary.Stations) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%s over %d runs, %g%% confidence\n",
		summary.Scenario, len(summary.Runs), level*100)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tUTILIZATION\tAVG QUEUE\tMEAN WAIT")

	for _, st := range summary.Stations {
		fmt.Fprintf(tw, "%s\t%.4f ± %.4f\t%.4f ± %.4f\t%.4f ± %.4f\n",
			st.Name,
			st.Utilization.Mean, st.Utilization.HalfWidth,
			st.AvgQueueLength.Mean, st.AvgQueueLength.HalfWidth,
			st.MeanWait.Mean, st.MeanWait.HalfWidth)
	}

	tw.Flush()
}

func printStats(w io.Writer, name string, stats monitor.Stats, err error) {
	if err != nil {
		fmt.Fprintf(w, "%s\t%v\n", name, err)
		return
	}

	fmt.Fprintf(w, "%s\t%g\t%g\t%.4f\t%.4f\n", name,
		stats.Begin, stats.End, stats.Utilization, stats.AvgQueueLength)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
