package ports

import (
	"context"

	"github.com/aretw0/hetcore/pkg/domain"
)

// RunStore persists run records so past graph executions can be inspected.
type RunStore interface {
	// Save persists the record under its ID.
	Save(ctx context.Context, run *domain.RunRecord) error

	// Load retrieves a record.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, id string) (*domain.RunRecord, error)

	// Delete removes a record.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of the stored runs, oldest first.
	List(ctx context.Context) ([]string, error)
}

// ManifestLoader resolves graph manifests by name.
type ManifestLoader interface {
	Load(ctx context.Context, name string) (*domain.GraphManifest, error)
	List(ctx context.Context) ([]string, error)
}
