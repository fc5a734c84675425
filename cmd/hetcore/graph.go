package main

import (
	"fmt"

	"github.com/aretw0/hetcore/internal/presentation/graph"
	"github.com/aretw0/hetcore/internal/validator"
	loamAdapter "github.com/aretw0/hetcore/pkg/adapters/loam"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [manifest]",
	Short: "Export a manifest as a Mermaid flowchart",
	Long:  `Outputs a Mermaid diagram (graph TD) with one subgraph per section and edges following the data between nodes.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var m *domain.GraphManifest
		if len(args) == 0 {
			m = demoManifest()
		} else {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.Manifests
			if dir == "" {
				dir = "."
			}
			loader, err := loamAdapter.Open(dir)
			if err != nil {
				return err
			}
			if m, err = loader.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
		}
		if err := validator.ValidateManifest(m); err != nil {
			return err
		}
		fmt.Print(graph.GenerateMermaid(m, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
