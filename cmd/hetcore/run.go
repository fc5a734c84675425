package main

import (
	"fmt"
	"os"

	"github.com/aretw0/hetcore/internal/presentation/graph"
	"github.com/aretw0/hetcore/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [manifest]",
	Short: "Run a graph manifest once and print a report",
	Long: `Loads the named manifest from the manifest directory, runs it on the
configured cores and prints a report. Without a name the built-in echo demo runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		quiet, _ := cmd.Flags().GetBool("quiet")

		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closeEngine(eng)

		manifest := demoManifest()
		if len(args) > 0 {
			if eng.Loader() == nil {
				return fmt.Errorf("no manifest directory configured; pass --dir or set 'manifests'")
			}
			manifest, err = eng.Loader().Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
		}

		if !quiet && tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout)
		}
		run, runErr := eng.RunGraphManifest(cmd.Context(), manifest)
		if run == nil {
			return runErr
		}

		if err := tui.Print(os.Stdout, tui.RunReport(run)); err != nil {
			return err
		}
		if mermaid {
			fmt.Println()
			fmt.Print(graph.GenerateMermaid(manifest, &graph.RunOverlay{Run: run}))
		}
		if runErr != nil {
			return fmt.Errorf("run %s stopped: %w", run.ID, runErr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("mermaid", false, "Also print the graph as a Mermaid flowchart coloured by the run")
	runCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
