package cmd

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sarchlab/resmon/analysis"
	"github.com/sarchlab/resmon/datarecording"
	"github.com/sarchlab/resmon/metrics"
	"github.com/sarchlab/resmon/scenario"
	"github.com/sarchlab/resmon/simulation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	seeds        []uint
	record       bool
	output       string
	clickHouse   string
	clickHouseDB string
	csvFile      string
	period       float64
	remoteWrite  string
	jsonOutput   bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run scenario.yaml",
	Short: "Run a scenario once per seed and report the statistics.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadScenario(args[0], runOpts.seeds)
		if err != nil {
			return err
		}

		runner, closeCSV, err := buildRunner(cmd.Context(), cfg, runOpts)
		if err != nil {
			return err
		}
		defer closeCSV()

		summary, err := runner.RunReplications(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if runOpts.jsonOutput {
			return printJSON(out, summary)
		}

		for _, result := range summary.Runs {
			printResult(out, result)
		}
		printSummary(out, summary, cfg.Report.Level)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.UintSliceVar(&runOpts.seeds, "seeds", nil,
		"Seeds to run, replacing the seeds of the scenario.")
	f.BoolVar(&runOpts.record, "record", false,
		"Record every run into a SQLite database.")
	f.StringVar(&runOpts.output, "output", "",
		"Database name prefix; the seed is appended.")
	f.StringVar(&runOpts.clickHouse, "clickhouse", "",
		"Record into the ClickHouse server at this address.")
	f.StringVar(&runOpts.clickHouseDB, "clickhouse-db", "default",
		"ClickHouse database.")
	f.StringVar(&runOpts.csvFile, "csv", "",
		"Write per-period statistics of every resource to this CSV file.")
	f.Float64Var(&runOpts.period, "period", 0,
		"Period of the CSV report and of the remote-write series.")
	f.StringVar(&runOpts.remoteWrite, "remote-write", "",
		"Push the utilization series to this Prometheus remote-write URL.")
	f.BoolVar(&runOpts.jsonOutput, "json", false, "Print the results as JSON.")
}

func loadScenario(path string, seeds []uint) (*scenario.Config, error) {
	cfg, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}

	if len(seeds) > 0 {
		cfg.Seeds = cfg.Seeds[:0]
		for _, s := range seeds {
			cfg.Seeds = append(cfg.Seeds, uint64(s))
		}
	}

	return cfg, nil
}

func buildRunner(
	ctx context.Context,
	cfg *scenario.Config,
	opts runOptions,
) (*scenario.Runner, func(), error) {
	logger := logrus.StandardLogger()
	closeCSV := func() {}

	b := simulation.MakeBuilder().WithoutMonitoring()
	switch {
	case opts.clickHouse != "":
		b = b.WithClickHouse(datarecording.ClickHouseOptions{
			Addr:     opts.clickHouse,
			Database: opts.clickHouseDB,
			Username: os.Getenv("RESMON_CLICKHOUSE_USER"),
			Password: os.Getenv("RESMON_CLICKHOUSE_PASSWORD"),
		})
	case !opts.record:
		b = b.WithoutRecording()
	}

	runner := scenario.NewRunner(cfg).
		WithSimulationBuilder(b).
		WithLogger(logger)
	if opts.record && opts.clickHouse == "" {
		prefix := opts.output
		if prefix == "" {
			prefix = "resmon_" + cfg.Name
		}
		runner.WithOutputPrefix(prefix)
	}

	period := opts.period
	if period == 0 {
		period = cfg.Report.Step
	}

	if opts.csvFile != "" {
		file, err := os.Create(opts.csvFile)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "creating %s", opts.csvFile)
		}
		closeCSV = func() { _ = file.Close() }

		backend := analysis.NewCSVBackend(file)
		runner.WithAfterRun(func(s *simulation.Simulation, _ *scenario.Result) error {
			rb := analysis.MakePeriodReporterBuilder().
				WithQuerier(s.Registry()).
				WithBackend(backend)
			if period > 0 {
				rb = rb.WithPeriod(period)
			}

			return rb.Build().Report(cfg.Horizon)
		})
	}

	if opts.remoteWrite != "" {
		if !(period > 0) || period >= cfg.Horizon {
			closeCSV()
			return nil, nil, errors.New(
				"--remote-write needs a period below the horizon")
		}

		pusher := metrics.MakePusherBuilder().
			WithURL(opts.remoteWrite).
			WithScenario(cfg.Name).
			WithBaseTime(time.Now()).
			WithLogger(logger).
			Build()

		runner.WithAfterRun(func(s *simulation.Simulation, _ *scenario.Result) error {
			for _, name := range s.Registry().Names() {
				points, err := s.Registry().Series(name, period, cfg.Horizon)
				if err != nil {
					logger.WithError(err).WithField("resource", name).
						Warn("no series to push")
					continue
				}

				if err := pusher.Push(ctx, name, points); err != nil {
					return err
				}
			}

			return nil
		})
	}

	return runner, closeCSV, nil
}
