package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/iprec/pkg/library"
	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
	"github.com/OpenTraceLab/iprec/pkg/search"
)

var (
	// Flags shared by search and resume
	outputPath    string
	checkpointDir string
	backend       string
	noCheckpoints bool
	timeout       int // timeout in seconds
	workers       int
	maxDepth      int
	exhaustive    bool
	flat          bool

	// Flags for search command
	minSpan     int
	specialRefs []string
	seedSpans   string
)

var searchCmd = &cobra.Command{
	Use:   "search <design.json>",
	Short: "Recover the module hierarchy of a flat design",
	Long: `Sweep every template of the library over a design.

Each template span seeds a match at every design cell of the span
anchor's type. Accepted seeds are grown by descending into the
hierarchical cells of the template and ascending into templates that
instantiate it. The largest mapping over the whole sweep wins, and the
hierarchy it implies is written as JSON.

Spans of at most --min-span cells are skipped unless they contain one of
--special-refs, since tiny spans match almost anywhere.

Examples:
  iprec search target.json --library lib/ --output hierarchy.json
  iprec search target.json --min-span 0 --exhaustive
  iprec search flat_target.json --flat
  iprec search target.json --checkpoint-backend badger --checkpoints state/`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	addRunFlags(searchCmd)

	searchCmd.Flags().IntVar(&minSpan, "min-span", 5,
		"skip template spans of at most this many cells")
	searchCmd.Flags().StringSliceVar(&specialRefs, "special-refs", nil,
		"cell types that qualify a span regardless of size (default DSP48E1)")
	searchCmd.Flags().StringVar(&seedSpans, "seed-spans", "primitive",
		"spans to seed from (primitive, all)")
}

// addRunFlags registers the engine and output flags of search and resume.
func addRunFlags(c *cobra.Command) {
	c.Flags().StringVarP(&outputPath, "output", "o", "",
		"write the recovered hierarchy to this JSON file (default: stdout)")
	c.Flags().StringVar(&checkpointDir, "checkpoints", "checkpoints",
		"checkpoint directory")
	c.Flags().StringVar(&backend, "checkpoint-backend", "file",
		"checkpoint store (file, badger)")
	c.Flags().BoolVar(&noCheckpoints, "no-checkpoints", false,
		"do not write checkpoints")
	c.Flags().IntVar(&timeout, "timeout", 0,
		"timeout in seconds (0 = no timeout)")
	c.Flags().IntVarP(&workers, "workers", "w", 8,
		"descend candidates evaluated in parallel")
	c.Flags().IntVar(&maxDepth, "max-depth", 2,
		"greedy ascend exploration depth")
	c.Flags().BoolVar(&exhaustive, "exhaustive", false,
		"explore every decision instead of resolving greedily")
	c.Flags().BoolVar(&flat, "flat", false,
		"read the design as a flattened netlist (LEAF.0 drivers only)")
}

// applyRunFlags copies explicitly set flags over the configuration.
func applyRunFlags(c *cobra.Command) error {
	f := c.Flags()
	if f.Changed("checkpoints") {
		cfg.Checkpoint.Dir = checkpointDir
	}
	if f.Changed("checkpoint-backend") {
		cfg.Checkpoint.Backend = backend
	}
	if f.Changed("no-checkpoints") {
		cfg.Checkpoint.Enabled = !noCheckpoints
	}
	if f.Changed("workers") {
		cfg.Search.Workers = workers
	}
	if f.Changed("max-depth") {
		cfg.Search.MaxDepth = maxDepth
	}
	if f.Changed("exhaustive") {
		cfg.Search.Greedy = !exhaustive
	}
	if f.Changed("flat") {
		cfg.Match.Flat = flat
	}
	if f.Changed("min-span") {
		cfg.Search.MinSeedSpan = minSpan
	}
	if f.Changed("special-refs") {
		cfg.Search.SpecialRefs = specialRefs
	}
	if f.Changed("seed-spans") {
		cfg.Search.SeedSpans = seedSpans
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	if err := applyRunFlags(cmd); err != nil {
		return err
	}

	lib, err := library.Open(cfg.Library.Dir)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	design, err := loadDesign(args[0])
	if err != nil {
		return err
	}
	templates := 0
	for _, ref := range lib.Refs() {
		templates += len(lib.Versions(ref))
	}
	fmt.Printf("Design:    %s (%d cells, %d primitives)\n",
		args[0], design.Len(), design.CountColor(netgraph.ColorPrimitive))
	fmt.Printf("Library:   %s (%d templates)\n", cfg.Library.Dir, templates)
	printSearchSettings()

	mgr, err := openCheckpoints()
	if err != nil {
		return err
	}
	if mgr != nil {
		defer mgr.Close()
	}

	opts := cfg.SearchOptions()
	opts.Logger = logger
	driver := search.NewDriver(lib, match.NewMatcher(cfg.MatchOptions()), mgr, opts)

	ctx, cancel := withTimeout(cmd.Context(), timeout)
	defer cancel()

	banner("Starting IP Core Search")

	progressCh := make(chan search.Progress, 10)
	displayed := make(chan struct{})
	go func() {
		displayProgress(progressCh)
		close(displayed)
	}()

	result, err := driver.Search(ctx, design, progressCh)
	close(progressCh)
	<-displayed

	if err != nil {
		return fmt.Errorf("search failed: %w", explainTimeout(err))
	}
	return printResult(result, design, time.Since(startTime))
}

func printSearchSettings() {
	mode := "greedy"
	if !cfg.Search.Greedy {
		mode = "exhaustive"
	}
	fmt.Printf("Mode:      %s (max depth %d, %d workers)\n", mode, cfg.Search.MaxDepth, cfg.Search.Workers)
	fmt.Printf("Seeds:     %s spans > %d cells", cfg.Search.SeedSpans, cfg.Search.MinSeedSpan)
	if len(cfg.Search.SpecialRefs) > 0 {
		fmt.Printf(" or containing %s", strings.Join(cfg.Search.SpecialRefs, ", "))
	}
	fmt.Println()
	if cfg.Checkpoint.Enabled {
		fmt.Printf("Checkpoints: %s (%s)\n", cfg.Checkpoint.Dir, cfg.Checkpoint.Backend)
	}
	fmt.Println()
}

// displayProgress shows real-time progress updates
func displayProgress(progressCh <-chan search.Progress) {
	lastPercent := -1
	lastBest := -1

	for p := range progressCh {
		if p.Phase == "done" {
			fmt.Printf("\r%-80s\r", "") // Clear line
			fmt.Println("Sweep finished")
			continue
		}

		percent := 0
		if p.Total > 0 {
			percent = (p.Index * 100) / p.Total
		}

		// Only update on change to reduce flicker
		if percent != lastPercent || p.Best != lastBest {
			barWidth := 30
			filled := (percent * barWidth) / 100
			bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

			fmt.Printf("\r[%s] %3d%% | Template %d/%d | %s v%d | Seeds: %d | Best: %d",
				bar, percent, p.Index+1, p.Total, p.Ref, p.Version, p.Seeds, p.Best)

			lastPercent = percent
			lastBest = p.Best
		}
	}

	fmt.Println() // New line after progress
}

// printResult displays the search summary and writes the hierarchy.
func printResult(result *search.Result, design *netgraph.Graph, elapsed time.Duration) error {
	fmt.Println()
	banner("Search Complete")

	if !result.Found {
		fmt.Println("✗ No match: no template could be seeded in this design")
		fmt.Printf("Time elapsed:          %s\n", elapsed.Round(time.Millisecond))
		return nil
	}

	fmt.Printf("Best template:         %s v%d\n", result.Ref, result.Version)
	fmt.Printf("Mapped cells:          %d\n", result.Size())
	if result.Seeds > 0 {
		fmt.Printf("Accepted seeds:        %d\n", result.Seeds)
	}
	fmt.Printf("Session:               %s\n", result.SessionID)
	fmt.Printf("Time elapsed:          %s\n\n", elapsed.Round(time.Millisecond))

	if err := search.WriteReport(os.Stdout, result.Coverage(design), verbose); err != nil {
		return err
	}

	data, err := json.MarshalIndent(result.Hierarchy(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode hierarchy: %w", err)
	}
	if outputPath == "" {
		fmt.Println()
		fmt.Println(string(data))
		return nil
	}
	if err := ensureDir(outputPath); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write hierarchy: %w", err)
	}
	fmt.Printf("\n✓ Hierarchy saved to: %s\n", outputPath)
	return nil
}
