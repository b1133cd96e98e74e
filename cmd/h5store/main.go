// Command h5store inspects HDF5 files written by the h5store package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robert-malhotra/go-h5store/h5store"
)

type rootFlags struct {
	logLevel   string
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "h5store",
		Short:         "Inspect entries and attributes of HDF5 files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML configuration file")

	rootCmd.AddCommand(
		newLsCmd(),
		newInfoCmd(flags),
		newCatCmd(),
		newAttrsCmd(),
	)
	return rootCmd
}

// load reads the configuration and builds the logger it asks for. The
// --log-level flag overrides the configured level.
func (f *rootFlags) load() (h5store.Config, *zap.Logger, error) {
	cfg, err := h5store.LoadConfig(f.configPath)
	if err != nil {
		return h5store.Config{}, nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return h5store.Config{}, nil, err
	}
	return cfg, log, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
