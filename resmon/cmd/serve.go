package cmd

import (
	"fmt"

	"github.com/pkg/browser"
	"github.com/sarchlab/resmon/scenario"
	"github.com/sarchlab/resmon/simulation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	servePort   int
	serveOpen   bool
	serveSeed   uint64
	serveRecord bool
)

var serveCmd = &cobra.Command{
	Use:   "serve scenario.yaml",
	Short: "Run a scenario once and keep serving its records over HTTP.",
	Long: `Run a scenario with one seed while the monitoring server is up. ` +
		`The server keeps running after the simulation finishes, until ` +
		`the process is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := scenario.Load(args[0])
		if err != nil {
			return err
		}

		b := cfg.SimulationBuilder(simulation.MakeBuilder()).
			WithMonitorPort(servePort)
		if !serveRecord {
			b = b.WithoutRecording()
		}

		s, err := b.Build()
		if err != nil {
			return err
		}
		defer s.Terminate()

		url := fmt.Sprintf("http://localhost:%d/api/resources", s.MonitorPort())
		if serveOpen {
			if err := browser.OpenURL(url); err != nil {
				logrus.WithError(err).Warn("cannot open browser")
			}
		}

		seed := serveSeed
		if !cmd.Flags().Changed("seed") {
			seed = cfg.Seeds[0]
		}

		result, err := scenario.NewRunner(cfg).RunSimulation(s, seed)
		if err != nil {
			return err
		}

		printResult(cmd.OutOrStdout(), result)
		fmt.Fprintf(cmd.OutOrStdout(),
			"\nServing %s, interrupt to stop\n", url)

		<-cmd.Context().Done()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.IntVar(&servePort, "port", 0,
		"Port of the monitoring server; a random port when unset.")
	f.BoolVar(&serveOpen, "open", false, "Open the server in a browser.")
	f.Uint64Var(&serveSeed, "seed", 0,
		"Seed of the run; the first seed of the scenario when unset.")
	f.BoolVar(&serveRecord, "record", false,
		"Record the run into a SQLite database.")
}
