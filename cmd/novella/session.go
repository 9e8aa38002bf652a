package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/novella/internal/cli"
	"github.com/aretw0/novella/pkg/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage saved playthroughs",
	Long:  `List, inspect, and remove playthroughs kept by the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List saved playthroughs",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closeStore, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		ids, err := sessions.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing playthroughs: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No saved playthroughs found.")
			return nil
		}
		fmt.Println("Saved playthroughs:")
		for _, id := range ids {
			state, err := sessions.Load(cmd.Context(), id)
			if err != nil {
				fmt.Printf("- %s (unreadable: %v)\n", id, err)
				continue
			}
			status := "at " + state.CurrentNodeID
			if state.Ended() && state.Ending != nil {
				status = "ended: " + state.Ending.EndingID
			}
			fmt.Printf("- %s  %s v%s  %s\n", id, state.StoryID, state.GraphVersion, status)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <playthrough-id>",
	Short: "Print the state of a playthrough",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, closeStore, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		state, err := sessions.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading playthrough '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <playthrough-id>...",
	Short: "Remove one or more playthroughs",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return errors.New("name at least one playthrough or pass --all")
		}
		sessions, closeStore, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		ids := args
		if all {
			if ids, err = sessions.List(cmd.Context()); err != nil {
				return fmt.Errorf("error listing playthroughs: %w", err)
			}
		}
		var errs []error
		for _, id := range ids {
			if err := sessions.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Printf("Removed playthrough '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionRmCmd.Flags().Bool("all", false, "Remove every saved playthrough")
}

func openSessions(cmd *cobra.Command) (*session.Manager, func() error, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, nil, err
	}
	logger, _, err := cli.NewLogger(cfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cli.NewSessions(projectStore(cfg), logger)
}
