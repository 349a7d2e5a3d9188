// Package cmd provides the CLI commands for ScholarSearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scholargraph/scholarsearch/internal/config"
	"github.com/scholargraph/scholarsearch/internal/logging"
	"github.com/scholargraph/scholarsearch/internal/profiling"
	"github.com/scholargraph/scholarsearch/pkg/version"
)

var (
	cfgFile        string
	debugMode      bool
	loggingCleanup func()

	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the scholarsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scholarsearch",
		Short: "Hybrid retrieval engine for academic corpora",
		Long: `ScholarSearch answers free-text queries over an indexed corpus of
researcher profiles and publications.

Lexical (BM25) and vector search run concurrently, their rankings are
combined with Reciprocal Rank Fusion, an optional cross-encoder reranker
rescores the top candidates, and results come back as citations with
provenance.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("scholarsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.scholarsearch/scholarsearch.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.scholarsearch/logs/")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the file logger and starts any
// requested profiling before a command runs.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	if logger, cleanup, err := logging.Setup(logCfg); err != nil {
		// Logging must never block the command itself.
		slog.Warn("failed to set up file logging", "error", err)
	} else {
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		if debugMode {
			slog.Debug("debug logging enabled",
				slog.String("log_file", logging.DefaultLogPath()),
				slog.String("version", version.Version))
		}
	}

	var err error
	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig resolves and loads the configuration.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if def := defaultConfigPath(); fileExists(def) {
			path = def
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// defaultConfigPath returns ~/.scholarsearch/scholarsearch.yaml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".scholarsearch", "scholarsearch.yaml")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
