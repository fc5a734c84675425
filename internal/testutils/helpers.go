// Package testutils holds fixtures shared by adapter and engine tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory and initializes a Loam repository in it.
// It returns the absolute path to the temp dir and the initialized repository.
// It fails the test immediately on error.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// WriteFiles seeds dir with the given name to content pairs.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// InvertManifest is a one section graph inverting a ramp, written as a
// markdown document with YAML frontmatter.
const InvertManifest = `---
name: invert
images:
  - name: in
    size: 16x8
    color: Y800
    fill: ramp
  - name: out
    size: 16x8
    color: Y800
nodes:
  - kernel: invert
    operands: [in, out]
---
Inverts a luma ramp on whichever core takes it.
`

// EdgesManifest is a three section graph written as JSON.
const EdgesManifest = `{
  "name": "edges",
  "images": [
    {"name": "frame", "size": "32x16", "color": "UYVY", "fill": "ramp"},
    {"name": "luma", "size": "32x16", "color": "Y800"},
    {"name": "gx", "size": "32x16", "color": "Y16"},
    {"name": "gy", "size": "32x16", "color": "Y16"},
    {"name": "mag", "size": "32x16", "color": "Y16"}
  ],
  "buffers": [{"name": "hist", "bytes": 1024, "elem_size": 4}],
  "sections": [
    {"order": 0, "nodes": [{"kernel": "xyxy_to_y800", "operands": ["frame", "luma"]}]},
    {"order": 1, "nodes": [{"kernel": "canny_gradient", "operands": ["luma", "gx", "gy", "mag"]}]},
    {"order": 1, "nodes": [{"kernel": "histogram8", "operands": ["luma", "hist"]}]}
  ]
}
`
