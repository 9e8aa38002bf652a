package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/novella/internal/cli"
	"github.com/aretw0/novella/internal/logging"
	"github.com/aretw0/novella/internal/presentation/graph"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Export the story graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of a story. With --playthrough, the
nodes that playthrough visited and its current node are highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		storyID, _ := cmd.Flags().GetString("story")
		version, _ := cmd.Flags().GetString("version")
		playthroughID, _ := cmd.Flags().GetString("playthrough")

		engine, err := cli.NewEngine(cfg, logging.NewNop(), domain.LifecycleHooks{})
		if err != nil {
			return err
		}

		var state *domain.GameState
		if playthroughID != "" {
			sessions, closeStore, err := cli.NewSessions(projectStore(cfg), logging.NewNop())
			if err != nil {
				return err
			}
			defer closeStore()
			if state, err = sessions.Load(context.Background(), playthroughID); err != nil {
				return err
			}
			if storyID == "" {
				storyID, version = state.StoryID, state.GraphVersion
			}
		}

		storyID, err = cli.ResolveStory(engine, storyID)
		if err != nil {
			return err
		}
		store, err := engine.Inspect(storyID, version)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, graph.GenerateMermaid(store.Document(), graph.OverlayFromState(state)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("story", "s", "", "Story id (optional when the project holds one story)")
	graphCmd.Flags().String("version", "", "Story version (default: latest)")
	graphCmd.Flags().String("playthrough", "", "Highlight the path of a saved playthrough")
}
