package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// GraphManifest is the declarative form of a graph. Loaders produce it and
// the engine turns it into allocated images and nodes.
type GraphManifest struct {
	Name        string            `json:"name" yaml:"name" mapstructure:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Images      []ImageManifest   `json:"images" yaml:"images" mapstructure:"images"`
	Buffers     []BufferManifest  `json:"buffers,omitempty" yaml:"buffers,omitempty" mapstructure:"buffers"`
	Sections    []SectionManifest `json:"sections" yaml:"sections" mapstructure:"sections"`
}

// ImageManifest declares an image to allocate. Size is written "WxH".
type ImageManifest struct {
	Name   string `json:"name" yaml:"name" mapstructure:"name"`
	Size   string `json:"size" yaml:"size" mapstructure:"size"`
	Color  string `json:"color" yaml:"color" mapstructure:"color"`
	Memory string `json:"memory,omitempty" yaml:"memory,omitempty" mapstructure:"memory"`
	// Fill seeds every byte of the image with a pattern: "ramp", "zero" or a byte value.
	Fill string `json:"fill,omitempty" yaml:"fill,omitempty" mapstructure:"fill"`
}

// BufferManifest declares a flat buffer to allocate.
type BufferManifest struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	Bytes    int    `json:"bytes" yaml:"bytes" mapstructure:"bytes"`
	ElemSize int    `json:"elem_size,omitempty" yaml:"elem_size,omitempty" mapstructure:"elem_size"`
	Memory   string `json:"memory,omitempty" yaml:"memory,omitempty" mapstructure:"memory"`
}

// SectionManifest lists the nodes of one section.
type SectionManifest struct {
	Order int            `json:"order" yaml:"order" mapstructure:"order"`
	Skip  bool           `json:"skip,omitempty" yaml:"skip,omitempty" mapstructure:"skip"`
	Nodes []NodeManifest `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
}

// NodeManifest binds a kernel to named images and buffers, in operand order.
type NodeManifest struct {
	Kernel   string   `json:"kernel" yaml:"kernel" mapstructure:"kernel"`
	Affinity string   `json:"affinity,omitempty" yaml:"affinity,omitempty" mapstructure:"affinity"`
	Operands []string `json:"operands" yaml:"operands" mapstructure:"operands"`
}

// ParseSize reads a "WxH" image size.
func ParseSize(s string) (w, h uint32, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: size %q is not WxH", ErrManifestFormat, s)
	}
	w64, err := strconv.ParseUint(ws, 10, 32)
	if err != nil || w64 == 0 {
		return 0, 0, fmt.Errorf("%w: bad width in %q", ErrManifestFormat, s)
	}
	h64, err := strconv.ParseUint(hs, 10, 32)
	if err != nil || h64 == 0 {
		return 0, 0, fmt.Errorf("%w: bad height in %q", ErrManifestFormat, s)
	}
	return uint32(w64), uint32(h64), nil
}
