package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/iprec/pkg/library"
	"github.com/OpenTraceLab/iprec/pkg/match"
)

var buildCmd = &cobra.Command{
	Use:   "build <samples-dir>",
	Short: "Mine a template library from hierarchical sample designs",
	Long: `Walk a directory of design JSON files that still carry their module
hierarchy, and turn every module instance into a template.

Instances of the same module with the same structure are merged into one
template version; their configurable properties are collected. A module
whose structure differs gets a new version. Building into an existing
library extends it.

Files whose name contains "properties" are skipped.

Examples:
  iprec build samples/ --library lib/
  iprec build more-samples/ --library lib/ -v   # extend and list templates`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	importOpts := cfg.ImportOptions()
	importOpts.Flat = false // samples must keep their hierarchy
	importOpts.Logger = logger
	b, err := library.NewBuilder(cfg.Library.Dir, library.Options{
		Matcher: match.NewMatcher(cfg.MatchOptions()),
		Import:  importOpts,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}

	banner("Building Template Library")
	fmt.Printf("Samples: %s\n", args[0])
	fmt.Printf("Library: %s\n\n", cfg.Library.Dir)

	stats, err := b.BuildDir(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if err := b.Save(); err != nil {
		return fmt.Errorf("failed to save library: %w", err)
	}

	templates := b.Templates()
	fmt.Printf("Designs read:          %d\n", stats.Designs)
	fmt.Printf("Designs skipped:       %d\n", stats.Skipped)
	fmt.Printf("Instances seen:        %d\n", stats.Instances)
	fmt.Printf("Templates created:     %d\n", stats.Created)
	fmt.Printf("Instances merged:      %d\n", stats.Merged)
	fmt.Printf("Library templates:     %d\n", len(templates))
	fmt.Printf("Time elapsed:          %s\n", time.Since(startTime).Round(time.Millisecond))

	if verbose {
		fmt.Println("\nTemplates:")
		for _, t := range templates {
			fmt.Printf("  • %s v%d (%d primitives", t.Ref, t.Version, t.PrimitiveCount)
			if contains := t.Contains(); len(contains) > 0 {
				fmt.Printf(", contains %s", strings.Join(contains, ", "))
			}
			fmt.Println(")")
		}
	}

	fmt.Printf("\n✓ Library saved to: %s\n", cfg.Library.Dir)
	return nil
}
