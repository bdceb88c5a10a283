package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/iprec/internal/config"
	"github.com/OpenTraceLab/iprec/internal/logging"
	"github.com/OpenTraceLab/iprec/pkg/checkpoint"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

var (
	// Global flags
	verbose    bool
	configPath string
	logLevel   string
	libraryDir string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "iprec",
	Short: "IP core recognition in elaborated netlists",
	Long: `Recognize known IP cores in flattened FPGA netlists.

A template library is mined from sample designs that still carry their
hierarchy. The library is then swept over a flat target design, and the
best match is grown back into the module tree it came from.

Examples:
  iprec build samples/ --library lib/           # Mine a template library
  iprec search target.json --library lib/       # Recover the hierarchy of a design
  iprec resume target.json --index 3            # Continue from checkpoint 3
  iprec inspect --library lib/                  # Show what a library holds`,
	Version:            "0.1.0",
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: writeMetrics,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&libraryDir, "library", "l", "library", "template library directory")
}

// setup loads the configuration, applies the global flags over it and
// installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	switch {
	case cmd.Flags().Changed("log-level"):
		c.Log.Level = logLevel
	case verbose:
		c.Log.Level = "debug"
	}
	if cmd.Flags().Changed("library") {
		c.Library.Dir = libraryDir
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	l, err := logging.Setup(os.Stderr, c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// writeMetrics exports the default registry when a metrics file is
// configured.
func writeMetrics(cmd *cobra.Command, args []string) error {
	if cfg == nil || cfg.Metrics.File == "" {
		return nil
	}
	if err := ensureDir(cfg.Metrics.File); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(cfg.Metrics.File, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	if verbose {
		fmt.Printf("✓ Metrics written to: %s\n", cfg.Metrics.File)
	}
	return nil
}

func banner(title string) {
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║ %-62s ║\n", title)
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func loadDesign(path string) (*netgraph.Graph, error) {
	opts := cfg.ImportOptions()
	opts.Logger = logger
	g, err := netgraph.ImportFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load design: %w", err)
	}
	return g, nil
}

// openCheckpoints returns nil when checkpoints are disabled.
func openCheckpoints() (*checkpoint.Manager, error) {
	if !cfg.Checkpoint.Enabled {
		return nil, nil
	}
	var store checkpoint.Store
	var err error
	switch cfg.Checkpoint.Backend {
	case config.BackendBadger:
		store, err = checkpoint.OpenBadger(checkpoint.BadgerConfig{
			Path:       cfg.Checkpoint.Dir,
			SyncWrites: true,
			Logger:     logger,
		})
	default:
		store, err = checkpoint.NewFileStore(cfg.Checkpoint.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoints: %w", err)
	}
	return checkpoint.NewManager(store, logger), nil
}

// withTimeout returns ctx bounded by seconds, or unbounded when seconds
// is zero.
func withTimeout(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}

// explainTimeout turns a deadline error into a hint about --timeout.
func explainTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w (raise --timeout or resume from the last checkpoint)", err)
	}
	return err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return nil
}
