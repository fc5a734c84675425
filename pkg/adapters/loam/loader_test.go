package loam

import (
	"context"
	"testing"

	"github.com/aretw0/hetcore/internal/testutils"
	"github.com/aretw0/hetcore/internal/validator"
	"github.com/aretw0/hetcore/pkg/ports/tests"
	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoader(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	dir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, dir, files)
	return New(loam.NewTypedRepository[ManifestMetadata](repo))
}

func TestLoader_Contract(t *testing.T) {
	loader := newLoader(t, map[string]string{
		"invert.md":  testutils.InvertManifest,
		"edges.json": testutils.EdgesManifest,
	})
	tests.ManifestLoaderContractTest(t, loader, map[string]int{
		"invert": 1,
		"edges":  3,
	})
}

func TestLoader_Load_Decodes(t *testing.T) {
	loader := newLoader(t, map[string]string{"invert.md": testutils.InvertManifest})

	m, err := loader.Load(context.Background(), "invert")
	require.NoError(t, err)
	assert.Equal(t, "Inverts a luma ramp on whichever core takes it.", m.Description)
	require.Len(t, m.Images, 2)
	assert.Equal(t, "16x8", m.Images[0].Size)
	assert.Equal(t, "ramp", m.Images[0].Fill)
	require.Len(t, m.Sections, 1)
	assert.Equal(t, []string{"in", "out"}, m.Sections[0].Nodes[0].Operands)
	assert.NoError(t, validator.ValidateManifest(m))
}

func TestLoader_NameFromFilename(t *testing.T) {
	loader := newLoader(t, map[string]string{
		"blur.md": `---
images:
  - name: a
    size: 8x8
    color: Y800
nodes:
  - kernel: noop
    operands: []
---
`,
		"renamed.md": `---
name: sharpen
nodes:
  - kernel: noop
---
`,
	})
	ctx := context.Background()

	names, err := loader.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"blur", "sharpen"}, names)

	m, err := loader.Load(ctx, "blur")
	require.NoError(t, err)
	assert.Equal(t, "blur", m.Name)

	// Declared names win over file names.
	m, err = loader.Load(ctx, "sharpen")
	require.NoError(t, err)
	assert.Equal(t, "sharpen", m.Name)
}

func TestLoader_List_DetectsCollisions(t *testing.T) {
	loader := newLoader(t, map[string]string{
		"a.md":   "---\nname: same\n---\n",
		"b.json": `{"name": "same"}`,
	})

	_, err := loader.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
	assert.Contains(t, err.Error(), "same")
}
