// Package cmd provides the command-line interface of resmon.
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	envFile  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "resmon",
	Short: "resmon runs monitored queueing scenarios and queries their records.",
	Long: `resmon runs queueing scenarios described in YAML files, measures ` +
		`the time-weighted utilization and queue length of every station, ` +
		`and can serve or replay the recorded data.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "loading %s", envFile)
		}

		level := logLevel
		if !cmd.Flags().Changed("log-level") {
			if fromEnv, ok := os.LookupEnv("RESMON_LOG_LEVEL"); ok {
				level = fromEnv
			}
		}

		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return err
		}

		logrus.SetLevel(parsed)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace, debug, info, warn, error). "+
			"Defaults to RESMON_LOG_LEVEL when set.")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"File of environment defaults, ignored when missing.")
}

// Execute runs the command line and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		return 1
	}

	return 0
}
