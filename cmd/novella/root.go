package main

import (
	"fmt"
	"os"

	"github.com/aretw0/novella/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "novella",
	Short: "Novella runs branching narratives authored as node graphs",
	Long: `Novella plays visual novel stories: scenes, choices, stats and relationships
wired together as a graph. Stories are read from a loam project or plain
YAML/JSON files and can be played in the terminal, served over HTTP, or
exposed to agents through MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	addConfigFlags(rootCmd.PersistentFlags())
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Path to a novella.yaml config file")
	fs.String("dir", "", "Directory containing the story project")
	fs.String("loader", "", "Story source: 'loam' or 'file'")
	fs.String("store", "", "Playthrough store: 'memory', 'file' or 'redis'")
	fs.String("log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly. A positional argument names the story directory
// when --dir is absent.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.Stories, _ = flags.GetString("dir")
	} else if len(args) > 0 {
		cfg.Stories = args[0]
	}
	if flags.Changed("loader") {
		cfg.Loader, _ = flags.GetString("loader")
	}
	if flags.Changed("store") {
		cfg.Store.Kind, _ = flags.GetString("store")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
