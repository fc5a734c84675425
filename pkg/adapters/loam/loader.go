// Package loam loads graph manifests from a Loam repository: markdown files
// with YAML frontmatter, or plain JSON documents.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/loam"
)

// Loader adapts the Loam library to the ports.ManifestLoader interface.
type Loader struct {
	Repo *loam.TypedRepository[ManifestMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[ManifestMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only repository at dir.
func Open(dir string) (*Loader, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(abs, loam.WithReadOnly(true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[ManifestMetadata](repo)), nil
}

// Load resolves a manifest by name. The name is first tried as a document
// id, then matched against the declared names of every document.
func (l *Loader) Load(ctx context.Context, name string) (*domain.GraphManifest, error) {
	doc, err := l.Repo.Get(ctx, name)
	if err == nil {
		return toManifest(doc.ID, doc.Data, doc.Content), nil
	}

	docs, lerr := l.Repo.List(ctx)
	if lerr != nil {
		return nil, fmt.Errorf("loam get failed for %s: %w", name, err)
	}
	for _, d := range docs {
		if d.Data.Name == name {
			return toManifest(d.ID, d.Data, d.Content), nil
		}
	}
	return nil, fmt.Errorf("manifest not found: %s: %w", name, err)
}

// List returns the names of every manifest in the repository.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		name := manifestName(doc.ID, doc.Data)
		if existing, ok := seen[name]; ok {
			return nil, fmt.Errorf("collision detected: manifest '%s' is defined in both '%s' and '%s'", name, existing, doc.ID)
		}
		seen[name] = doc.ID
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func manifestName(docID string, meta ManifestMetadata) string {
	if meta.Name != "" {
		return meta.Name
	}
	return trimExtension(docID)
}

func toManifest(docID string, meta ManifestMetadata, content string) *domain.GraphManifest {
	m := &domain.GraphManifest{
		Name:        manifestName(docID, meta),
		Description: meta.Description,
		Images:      meta.Images,
		Buffers:     meta.Buffers,
		Sections:    meta.Sections,
	}
	if m.Description == "" {
		m.Description = strings.TrimSpace(content)
	}
	if len(meta.Nodes) > 0 {
		m.Sections = append([]domain.SectionManifest{{Order: 0, Nodes: meta.Nodes}}, m.Sections...)
	}
	return m
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
