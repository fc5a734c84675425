package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/hetcore"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of hetcore",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hetcore version %s\n", strings.TrimSpace(hetcore.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
