package validator

import (
	"context"
	"testing"

	"github.com/aretw0/hetcore/pkg/adapters/memory"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edgeManifest() *domain.GraphManifest {
	return &domain.GraphManifest{
		Name: "edges",
		Images: []domain.ImageManifest{
			{Name: "frame", Size: "64x48", Color: "UYVY", Fill: "ramp"},
			{Name: "luma", Size: "64x48", Color: "Y800", Memory: "cached-virtual"},
			{Name: "gx", Size: "64x48", Color: "Y16"},
			{Name: "gy", Size: "64x48", Color: "Y16"},
			{Name: "mag", Size: "64x48", Color: "Y16"},
		},
		Buffers: []domain.BufferManifest{{Name: "hist", Bytes: 1024, ElemSize: 4}},
		Sections: []domain.SectionManifest{
			{Order: 0, Nodes: []domain.NodeManifest{
				{Kernel: "xyxy_to_y800", Operands: []string{"frame", "luma"}},
			}},
			{Order: 1, Nodes: []domain.NodeManifest{
				{Kernel: "canny_gradient", Affinity: "dsp", Operands: []string{"luma", "gx", "gy", "mag"}},
			}},
			{Order: 1, Nodes: []domain.NodeManifest{
				{Kernel: "histogram8", Operands: []string{"luma", "hist"}},
			}},
		},
	}
}

func TestValidateManifest(t *testing.T) {
	// Scenario A: a valid three section graph.
	require.NoError(t, ValidateManifest(edgeManifest()))

	// Scenario B: every kind of mistake is reported at once.
	m := edgeManifest()
	m.Images = append(m.Images, domain.ImageManifest{Name: "luma", Size: "0x4", Color: "ABCDE", Memory: "sram", Fill: "lots"})
	m.Sections[0].Nodes = append(m.Sections[0].Nodes,
		domain.NodeManifest{Kernel: "warp"},
		domain.NodeManifest{Kernel: "invert", Operands: []string{"luma"}},
		domain.NodeManifest{Kernel: "invert", Affinity: "npu", Operands: []string{"ghost", "hist"}},
	)
	m.Sections[1].Order = -1

	err := ValidateManifest(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrManifestFormat)
	for _, want := range []string{
		"operand 'luma' declared twice",
		"bad width",
		"invalid fourcc",
		"unknown memory class",
		`fill "lots"`,
		"unknown kernel",
		"invert takes 2 operands, got 1",
		"unknown core",
		"undeclared operand 'ghost'",
		"operand 'hist' is not usable as output",
		"section 1: negative order -1",
	} {
		assert.Contains(t, err.Error(), want)
	}
	assert.Contains(t, err.Error(), "found 11 errors")
}

func TestValidateManifest_Empty(t *testing.T) {
	err := ValidateManifest(&domain.GraphManifest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest has no name")
	assert.Contains(t, err.Error(), "manifest has no sections")
}

func TestParseFill(t *testing.T) {
	cases := map[string]Fill{
		"":     {},
		"zero": {},
		"ramp": {Ramp: true},
		"128":  {Value: 128},
		"0xff": {Value: 255},
	}
	for in, want := range cases {
		got, err := ParseFill(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFill("256")
	assert.Error(t, err)
}

func TestValidateAll(t *testing.T) {
	bad := edgeManifest()
	bad.Name = "broken"
	bad.Sections[0].Nodes[0].Operands = nil
	loader, err := memory.NewLoader(edgeManifest(), bad)
	require.NoError(t, err)

	err = ValidateAll(context.Background(), loader)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 1 invalid manifests")
	assert.Contains(t, err.Error(), "'broken'")
}
