package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/hetcore"
	"github.com/aretw0/hetcore/internal/config"
	"github.com/aretw0/hetcore/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hetcore",
	Short: "hetcore runs kernel graphs across heterogeneous cores",
	Long: `hetcore dispatches image-processing kernel graphs to remote accelerator
cores, keeping buffer translations and cache coherency in step with every call.`,
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
	rootCmd.PersistentFlags().StringP("config", "c", "hetcore.yaml", "Engine configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("dir", "", "Directory containing graph manifests (overrides the config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides the config)")
}

// loadConfig reads the configuration named by the persistent flags and
// applies the flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Manifests = dir
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(level), nil
}

// openEngine builds an engine from the command's configuration.
func openEngine(cmd *cobra.Command) (*hetcore.Engine, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	eng, err := hetcore.New(cmd.Context(), cfg, hetcore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return eng, nil
}

func closeEngine(eng *hetcore.Engine) {
	if err := eng.Close(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping engine: %v\n", err)
	}
}
