package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/hetcore/internal/config"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter configuration and the demo manifest",
	Long: `Creates hetcore.yaml with the default core table and a manifests directory
holding the echo demo as a markdown document with YAML frontmatter.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		return initProject(cmd.Context(), dir, force)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Overwrite an existing hetcore.yaml")
}

func initProject(ctx context.Context, dir string, force bool) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	manifests := filepath.Join(absPath, "manifests")
	if err := os.MkdirAll(manifests, 0o755); err != nil {
		return err
	}

	cfgPath := filepath.Join(absPath, "hetcore.yaml")
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", cfgPath)
	}
	cfg := config.Default()
	cfg.Manifests = "manifests"
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return err
	}

	// Plain file generation: no history and no sandbox.
	repo, err := loam.Init(manifests, loam.WithVersioning(false), loam.WithForceTemp(false))
	if err != nil {
		return fmt.Errorf("failed to initialize loam: %w", err)
	}
	doc, err := manifestDocument(demoManifest())
	if err != nil {
		return err
	}
	if err := repo.Save(ctx, core.Document{ID: "echo-demo.md", Content: doc}); err != nil {
		return fmt.Errorf("failed to save demo manifest: %w", err)
	}

	fmt.Printf("Wrote %s and %s\n", cfgPath, filepath.Join(manifests, "echo-demo.md"))
	return nil
}

// manifestDocument renders m as YAML frontmatter with the description as the
// markdown body.
func manifestDocument(m *domain.GraphManifest) (string, error) {
	body := m.Description
	meta := *m
	meta.Description = ""
	front, err := yaml.Marshal(&meta)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(front)
	sb.WriteString("---\n")
	sb.WriteString(body)
	sb.WriteString("\n")
	return sb.String(), nil
}
