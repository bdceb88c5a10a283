package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chewxy/sexp"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/iprec/pkg/eqn"
	"github.com/OpenTraceLab/iprec/pkg/library"
)

var inspectEquations []string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the templates of a library",
	Long: `List every template version of a library with its primitive count,
seeding spans and the templates that instantiate it. The s-expression
graph dumps written next to the templates are parsed as a sanity check.

With --eqn, LUT equations are also shown in the canonical form used for
pin-swap tolerant comparison.

Examples:
  iprec inspect --library lib/
  iprec inspect --library lib/ --eqn "O6=(A1*A2)" --eqn "O6=(A2*A1)"`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringArrayVar(&inspectEquations, "eqn", nil,
		"equation to canonicalize (repeatable)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	lib, err := library.Open(cfg.Library.Dir)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	manifest := lib.Manifest()

	banner("Template Library")
	fmt.Printf("Library: %s\n\n", cfg.Library.Dir)

	total := 0
	for _, ref := range lib.Refs() {
		for _, v := range lib.Versions(ref) {
			t, err := lib.Template(ref, v)
			if err != nil {
				return err
			}
			total++
			sizes := make([]string, len(t.PrimitiveSpan))
			for i, s := range t.PrimitiveSpan {
				sizes[i] = fmt.Sprint(len(s))
			}
			fmt.Printf("  %-20s v%-3d primitives: %-5d spans: [%s]\n",
				ref, v, t.PrimitiveCount, strings.Join(sizes, " "))
			if verbose && len(t.UserProperties) > 0 {
				for _, p := range sortedKeys(t.UserProperties) {
					fmt.Printf("      %s = %s\n", p, strings.Join(t.UserProperties[p], " | "))
				}
			}
		}
		if users := manifest.Used[ref]; len(users) > 0 {
			fmt.Printf("  %-20s used by: %s\n", "", strings.Join(users, ", "))
		}
	}
	fmt.Printf("\nTemplates: %d\n", total)

	if err := inspectDumps(lib); err != nil {
		return err
	}

	if len(inspectEquations) > 0 {
		if err := inspectEqns(); err != nil {
			return err
		}
	}
	return nil
}

// inspectDumps parses every graph dump and reports its size.
func inspectDumps(lib *library.Library) error {
	files, err := lib.DumpFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	fmt.Println("\nGraph dumps:")
	bad := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read dump: %w", err)
		}
		rel, _ := filepath.Rel(lib.Dir(), path)
		exprs, err := sexp.ParseString(string(data))
		if err != nil {
			fmt.Printf("  ✗ %s: %v\n", rel, err)
			bad++
			continue
		}
		leaves := 0
		for _, e := range exprs {
			if !e.IsLeaf() {
				leaves += e.LeafCount()
			}
		}
		fmt.Printf("  ✓ %s: %d expression(s), %d leaves\n", rel, len(exprs), leaves)
	}
	if bad > 0 {
		return fmt.Errorf("%d graph dump(s) failed to parse", bad)
	}
	return nil
}

func inspectEqns() error {
	parser, err := eqn.NewParser()
	if err != nil {
		return err
	}
	fmt.Println("\nEquations:")
	for _, e := range inspectEquations {
		c, err := eqn.Canonicalize(e)
		if err != nil {
			fmt.Printf("  ✗ %s: %v\n", e, err)
			continue
		}
		pins := "?"
		if parsed, err := parser.ParseString(e); err == nil {
			pins = strings.Join(parsed.Pins(), " ")
		}
		fmt.Printf("  %s\n      canonical: %s\n      pins:      %s\n", e, c.Text, pins)
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
