package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/novella/internal/cli"
	"github.com/aretw0/novella/internal/logging"
	"github.com/aretw0/novella/internal/validator"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check every story for consistency",
	Long: `Loads every story of the project. Broken references, dead ends and cycles
that can never terminate fail the command; unreachable nodes and other
warnings are listed and fail it only with --strict.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		strict, _ := cmd.Flags().GetBool("strict")

		engine, err := cli.NewEngine(cfg, logging.NewNop(), domain.LifecycleHooks{})
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		warnings := 0
		for _, id := range engine.Stories() {
			store, err := engine.Inspect(id, "")
			if err != nil {
				return err
			}
			warnings += report(os.Stdout, store, cfg.Engine.ReachabilityDepth)
		}
		if strict && warnings > 0 {
			return fmt.Errorf("validation failed: %d warnings", warnings)
		}
		fmt.Fprintf(os.Stdout, "%d stories are valid.\n", len(engine.Stories()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Fail on warnings")
}

// report prints the findings for one story and returns how many there were.
func report(w io.Writer, store *graph.Store, depth int) int {
	var lines []string
	for _, d := range store.Diagnostics() {
		lines = append(lines, d.String())
	}
	r := validator.Reachability(store, depth)
	if r.Truncated {
		lines = append(lines, fmt.Sprintf("warning depth_limit: reachability stopped at depth %d", depth))
	}
	deepest := 0
	for _, d := range r.Depth {
		deepest = max(deepest, d)
	}

	fmt.Fprintf(w, "%s (version %s, %d nodes, depth %d)\n", store.ID(), store.Version(), len(store.Nodes()), deepest)
	for _, line := range lines {
		fmt.Fprintln(w, "  "+line)
	}
	return len(lines)
}
