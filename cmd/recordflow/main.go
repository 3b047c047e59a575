// Command recordflow validates and runs job files.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/recordflow/pkg/logger"

	// Register the bundled controller services
	_ "github.com/ajitpratap0/recordflow/pkg/service/cache"
	_ "github.com/ajitpratap0/recordflow/pkg/service/kafka"
)

var version = "0.1.0"

// Setting keys resolved by viper from flags, RECORDFLOW_* variables and the
// optional settings file.
const (
	keyLogLevel    = "log-level"
	keyLogEncoding = "log-encoding"
	keyMetricsAddr = "metrics-addr"
	keyTracing     = "tracing"
	keyTraceRate   = "trace-sampling"
)

func main() {
	err := newRootCmd(viper.New()).Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var settingsFile string

	root := &cobra.Command{
		Use:           "recordflow",
		Short:         "recordflow - record processing streams with shared controller services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadSettings(v, settingsFile); err != nil {
				return err
			}
			return logger.Init(logger.Config{
				Level:       v.GetString(keyLogLevel),
				Encoding:    v.GetString(keyLogEncoding),
				OutputPaths: []string{"stderr"},
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&settingsFile, "settings", "", "Path to a settings file (yaml, json or toml)")
	flags.String(keyLogLevel, "info", "Log level (debug, info, warn, error)")
	flags.String(keyLogEncoding, "json", "Log encoding (json, console)")
	flags.String(keyMetricsAddr, "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool(keyTracing, false, "Export OpenTelemetry spans to stderr")
	flags.Float64(keyTraceRate, 1.0, "Fraction of batches traced when tracing is enabled")
	_ = v.BindPFlags(flags)

	v.SetEnvPrefix("RECORDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(newVersionCmd(), newListCmd(), newValidateCmd(), newRunCmd(v))
	return root
}

func loadSettings(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	return nil
}
