package loam

import (
	"github.com/aretw0/hetcore/pkg/domain"
)

// ManifestMetadata is the frontmatter of a graph manifest document. The
// document body, if any, becomes the manifest description.
// It uses "mapstructure" tags to match standard Frontmatter/YAML keys.
type ManifestMetadata struct {
	Name        string                   `json:"name" mapstructure:"name"`
	Description string                   `json:"description" mapstructure:"description"`
	Images      []domain.ImageManifest   `json:"images" mapstructure:"images"`
	Buffers     []domain.BufferManifest  `json:"buffers" mapstructure:"buffers"`
	Sections    []domain.SectionManifest `json:"sections" mapstructure:"sections"`

	// Nodes is shorthand for a graph with a single section at order 0.
	Nodes []domain.NodeManifest `json:"nodes" mapstructure:"nodes"`
}
