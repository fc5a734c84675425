package main

import (
	"log"
	"os"

	"github.com/aretw0/hetcore"
	"github.com/aretw0/hetcore/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP server over standard input and output, so
agents can list cores, inspect translation statistics and run manifests as tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// Stdout carries JSON-RPC.
		log.SetOutput(os.Stderr)

		eng, err := hetcore.New(cmd.Context(), cfg, hetcore.WithLogger(logger))
		if err != nil {
			return err
		}
		defer closeEngine(eng)

		srv := mcp.NewServer(eng, eng.Loader(), hetcore.Version, mcp.WithLogger(logger))
		logger.Info("Starting hetcore MCP server (stdio)")
		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
