package cmd

import (
	"fmt"
	"math"
	"text/tabwriter"

	"github.com/sarchlab/resmon/datarecording"
	"github.com/sarchlab/resmon/monitor"
	"github.com/sarchlab/resmon/monitoring"
	"github.com/spf13/cobra"
)

var (
	replayBegin float64
	replayEnd   float64
	replayServe bool
	replayPort  int
)

var replayCmd = &cobra.Command{
	Use:   "replay database.sqlite3",
	Short: "Answer window queries from a recorded database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		registry := monitor.MakeBuilder().Build()

		err = datarecording.Replay(cmd.Context(), reader, registry)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RESOURCE\tBEGIN\tEND\tUTILIZATION\tAVG QUEUE")

		for _, name := range registry.Names() {
			end := replayEnd
			if math.IsInf(end, 1) {
				end = lastSampleTime(registry, name)
			}

			stats, err := registry.Query(name, replayBegin, end)
			printStats(tw, name, stats, err)
		}

		tw.Flush()

		if !replayServe {
			return nil
		}

		m := monitoring.NewMonitor().WithPortNumber(replayPort)
		m.RegisterRegistry(registry)
		port := m.StartServer()
		defer m.Shutdown()

		fmt.Fprintf(out, "\nServing http://localhost:%d/api/resources, "+
			"interrupt to stop\n", port)

		<-cmd.Context().Done()

		return nil
	},
}

func lastSampleTime(registry *monitor.Registry, name string) float64 {
	samples, err := registry.Samples(name)
	if err != nil || len(samples) == 0 {
		return 0
	}

	return samples[len(samples)-1].Time
}

func init() {
	rootCmd.AddCommand(replayCmd)

	f := replayCmd.Flags()
	f.Float64Var(&replayBegin, "begin", 0, "Start of the query window.")
	f.Float64Var(&replayEnd, "end", math.Inf(1),
		"End of the query window; the last record when unset.")
	f.BoolVar(&replayServe, "serve", false,
		"Keep serving the replayed data over HTTP.")
	f.IntVar(&replayPort, "port", 0,
		"Port of the monitoring server; a random port when unset.")
}
