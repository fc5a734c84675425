package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/hetcore/pkg/domain"
)

// Loader implements ports.ManifestLoader using an in-memory map.
type Loader struct {
	manifests map[string]*domain.GraphManifest
}

// NewLoader creates a loader serving the given manifests by name.
func NewLoader(manifests ...*domain.GraphManifest) (*Loader, error) {
	data := make(map[string]*domain.GraphManifest, len(manifests))
	for _, m := range manifests {
		if m.Name == "" {
			return nil, fmt.Errorf("%w: manifest missing name", domain.ErrManifestFormat)
		}
		data[m.Name] = m
	}
	return &Loader{manifests: data}, nil
}

// Load returns the manifest registered under name.
func (l *Loader) Load(ctx context.Context, name string) (*domain.GraphManifest, error) {
	m, ok := l.manifests[name]
	if !ok {
		return nil, fmt.Errorf("manifest not found: %s", name)
	}
	return m, nil
}

// List returns all manifest names.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(l.manifests))
	for k := range l.manifests {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
