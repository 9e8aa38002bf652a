package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/novella"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of novella",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("novella version %s\n", strings.TrimSpace(novella.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
