package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/novella/internal/cli"
	"github.com/aretw0/novella/internal/config"
	"github.com/aretw0/novella/internal/presentation/tui"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/runner"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [dir]",
	Short: "Play a story in the terminal",
	Long: `Starts a playthrough of a story and reads choices from standard input.
Progress is saved after every step; run again with the same --id to resume.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		storyID, _ := flags.GetString("story")
		playthroughID, _ := flags.GetString("id")
		version, _ := flags.GetString("version")
		headless, _ := flags.GetBool("headless")
		jsonMode, _ := flags.GetBool("json")

		logger, _, err := cli.NewLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		engine, err := cli.NewEngine(cfg, logger, domain.LifecycleHooks{})
		if err != nil {
			return err
		}
		storyID, err = cli.ResolveStory(engine, storyID)
		if err != nil {
			return err
		}
		sessions, closeStore, err := cli.NewSessions(projectStore(cfg), logger)
		if err != nil {
			return err
		}
		defer closeStore()

		opts := []runner.Option{
			runner.WithLogger(logger),
			runner.WithSessions(sessions),
			runner.WithPlaythroughID(playthroughID),
			runner.WithVersion(version),
			runner.WithHeadless(headless),
		}
		if flags.Changed("seed") {
			seed, _ := flags.GetInt64("seed")
			opts = append(opts, runner.WithSeed(seed))
		}

		if jsonMode {
			opts = append(opts, runner.WithInputHandler(runner.NewJSONHandler(os.Stdin, os.Stdout)))
		} else {
			if !headless {
				tui.PrintBanner(os.Stdout)
			}
			render := tui.Plain
			if r, err := tui.NewRenderer(tui.TerminalWidth(os.Stdout)); err == nil {
				render = r
			}
			handler := runner.NewTextHandler(os.Stdin, os.Stdout,
				runner.WithTextHandlerRenderer(runner.ContentRenderer(render)))
			opts = append(opts, runner.WithInputHandler(handler))
		}

		state, err := runner.NewRunner(opts...).Run(cmd.Context(), engine, storyID)
		if err != nil {
			return err
		}
		if !state.Ended() && !jsonMode {
			fmt.Fprintf(os.Stderr, "Saved. Resume with: novella play --story %s --id %s\n", state.StoryID, state.PlaythroughID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringP("story", "s", "", "Story id to play (optional when the project holds one story)")
	playCmd.Flags().String("id", "", "Playthrough id; an existing playthrough is resumed")
	playCmd.Flags().String("version", "", "Story version for a new playthrough (default: latest)")
	playCmd.Flags().Int64("seed", 0, "Random seed for a new playthrough")
	playCmd.Flags().Bool("headless", false, "Run in headless mode (no banner, scenes do not wait)")
	playCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")

	// 'play' is the default command.
	rootCmd.Args = cobra.MaximumNArgs(1)
	rootCmd.Flags().AddFlagSet(playCmd.Flags())
	rootCmd.RunE = playCmd.RunE
}

// projectStore places the default file store inside the story project.
func projectStore(cfg *config.Config) *config.Config {
	if cfg.Store.Kind == config.StoreFile && cfg.Store.Dir == config.Default().Store.Dir {
		out := *cfg
		out.Store.Dir = filepath.Join(cfg.Stories, cfg.Store.Dir)
		return &out
	}
	return cfg
}
