package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/iprec/pkg/library"
	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/search"
)

var resumeIndex int

var resumeCmd = &cobra.Command{
	Use:   "resume <design.json>",
	Short: "Continue a search from a checkpoint",
	Long: `Load a checkpointed mapping and skeleton and run the replacement
engine on it again. The outcome is checkpointed under a new index.

The design must be the one the checkpoint was taken on.

Examples:
  iprec resume target.json --checkpoints checkpoints/             # latest checkpoint
  iprec resume target.json --index 3 --output hierarchy.json
  iprec resume target.json --checkpoint-backend badger --checkpoints state/`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	addRunFlags(resumeCmd)

	resumeCmd.Flags().IntVar(&resumeIndex, "index", -1,
		"checkpoint index to resume from (-1 = latest)")
}

func runResume(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	if err := applyRunFlags(cmd); err != nil {
		return err
	}
	if !cfg.Checkpoint.Enabled {
		return fmt.Errorf("resume needs checkpoints; drop --no-checkpoints")
	}

	lib, err := library.Open(cfg.Library.Dir)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	design, err := loadDesign(args[0])
	if err != nil {
		return err
	}
	mgr, err := openCheckpoints()
	if err != nil {
		return err
	}
	defer mgr.Close()

	opts := cfg.SearchOptions()
	opts.Logger = logger
	driver := search.NewDriver(lib, match.NewMatcher(cfg.MatchOptions()), mgr, opts)

	ctx, cancel := withTimeout(cmd.Context(), timeout)
	defer cancel()

	which := "latest checkpoint"
	if resumeIndex >= 0 {
		which = fmt.Sprintf("checkpoint %d", resumeIndex)
	}
	banner("Resuming IP Core Search")
	fmt.Printf("Resuming from %s in %s\n", which, cfg.Checkpoint.Dir)

	result, err := driver.Resume(ctx, design, resumeIndex)
	if err != nil {
		return fmt.Errorf("resume failed: %w", explainTimeout(err))
	}
	return printResult(result, design, time.Since(startTime))
}
