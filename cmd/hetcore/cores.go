package main

import (
	"os"

	"github.com/aretw0/hetcore/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var coresCmd = &cobra.Command{
	Use:   "cores",
	Short: "List the cores, their state and the kernels they run",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine(eng)
		return tui.Print(os.Stdout, tui.CoresReport(eng.QueryCores()))
	},
}

func init() {
	rootCmd.AddCommand(coresCmd)
}
