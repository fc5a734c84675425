package main

import (
	"fmt"

	"github.com/aretw0/hetcore/internal/validator"
	loamAdapter "github.com/aretw0/hetcore/pkg/adapters/loam"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check every graph manifest for consistency",
	Long:  `Loads every manifest in the directory and reports undeclared operands, bad sizes, formats and operand kinds.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir := cfg.Manifests
		if len(args) > 0 {
			dir = args[0]
		}
		if dir == "" {
			dir = "."
		}

		loader, err := loamAdapter.Open(dir)
		if err != nil {
			return err
		}
		if err := validator.ValidateAll(cmd.Context(), loader); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Println("All manifests are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
