package tests

import (
	"context"
	"testing"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
)

// ManifestLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.ManifestLoader.
// expected maps manifest names to the number of sections each one declares.
func ManifestLoaderContractTest(t *testing.T, loader ports.ManifestLoader, expected map[string]int) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_Success", func(t *testing.T) {
		for name, sections := range expected {
			m, err := loader.Load(ctx, name)
			if err != nil {
				t.Fatalf("unexpected error loading manifest %s: %v", name, err)
			}
			if m.Name != name {
				t.Errorf("name mismatch: got %q, want %q", m.Name, name)
			}
			if len(m.Sections) != sections {
				t.Errorf("manifest %s: got %d sections, want %d", name, len(m.Sections), sections)
			}
		}
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := loader.Load(ctx, "non-existent-manifest")
		if err == nil {
			t.Error("expected error for non-existent manifest, got nil")
		}
	})

	t.Run("List", func(t *testing.T) {
		names, err := loader.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing manifests: %v", err)
		}
		if len(names) != len(expected) {
			t.Errorf("expected %d manifests, got %d", len(expected), len(names))
		}
		lookup := make(map[string]bool)
		for _, name := range names {
			lookup[name] = true
		}
		for name := range expected {
			if !lookup[name] {
				t.Errorf("manifest %s missing from list", name)
			}
		}
	})
}

// SampleManifest returns a small two section echo graph used across adapter tests.
func SampleManifest(name string) *domain.GraphManifest {
	return &domain.GraphManifest{
		Name: name,
		Images: []domain.ImageManifest{
			{Name: "in", Size: "64x16", Color: "Y800", Fill: "ramp"},
			{Name: "out", Size: "64x16", Color: "Y800"},
			{Name: "inv", Size: "64x16", Color: "Y800"},
		},
		Sections: []domain.SectionManifest{
			{Order: 0, Nodes: []domain.NodeManifest{{Kernel: "echo", Operands: []string{"in", "out"}}}},
			{Order: 1, Nodes: []domain.NodeManifest{{Kernel: "invert", Affinity: "cpu", Operands: []string{"out", "inv"}}}},
		},
	}
}
