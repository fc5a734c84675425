package verifier

import (
	"testing"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var next domain.Addr = 0x1000_0000

func image(t *testing.T, w, h uint32, color domain.FourCC) domain.Image {
	t.Helper()
	img, sizes, err := geometry.Layout(w, h, color, domain.MPUCachedVirtual)
	require.NoError(t, err)
	for p, size := range sizes {
		img.Buffer[p] = next
		next += domain.Addr(size+domain.PageSize-1) &^ (domain.PageSize - 1)
	}
	img.Rebase()
	return img
}

func transformNode(t *testing.T, k domain.Kernel, in, out domain.Image) domain.KernelNode {
	t.Helper()
	n, err := domain.NewTransformNode(k, in, out)
	require.NoError(t, err)
	return n
}

func TestVerify_Valid(t *testing.T) {
	v := New()
	y800 := image(t, 64, 32, domain.FourCCY800)
	nodes := []domain.KernelNode{
		transformNode(t, domain.KernelEcho, y800, image(t, 64, 32, domain.FourCCY800)),
		transformNode(t, domain.KernelInvert, y800, image(t, 64, 32, domain.FourCCY800)),
		transformNode(t, domain.KernelXYXYToY800, image(t, 64, 32, domain.FourCCUYVY), image(t, 64, 32, domain.FourCCY800)),
		transformNode(t, domain.KernelDilateSquare, y800, image(t, 64, 32, domain.FourCCY800)),
		domain.NewNode(domain.KernelNoop),
	}
	grad := domain.NewNode(domain.KernelCannyGradient)
	require.NoError(t, grad.SetImage(0, y800))
	for i := 1; i <= 3; i++ {
		require.NoError(t, grad.SetImage(i, image(t, 64, 32, domain.FourCCY16)))
	}
	hist := domain.NewNode(domain.KernelHistogram8)
	require.NoError(t, hist.SetImage(0, y800))
	require.NoError(t, hist.SetBuffer(1, domain.Buffer{Data: 0x9000_0000, ElemSize: 4, NumBytes: 1024, MemClass: domain.MPUCachedVirtual}))
	mask := transformNode(t, domain.KernelErodeMask, y800, image(t, 64, 32, domain.FourCCY800))
	require.NoError(t, mask.SetImage(2, image(t, 3, 3, domain.FourCCY800)))
	nodes = append(nodes, grad, hist, mask)

	assert.Equal(t, len(nodes), v.Verify(nodes, 0, len(nodes)))
	for i := range nodes {
		assert.Equal(t, domain.StatusSuccess, nodes[i].Header.Error, "node %d", i)
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := New()
	y800 := func() domain.Image { return image(t, 64, 32, domain.FourCCY800) }

	outside := y800()
	outside.Data[0] = outside.Buffer[0] + domain.Addr(64*32)

	roi := y800()
	roi.XStart = 8

	tests := []struct {
		name string
		node domain.KernelNode
		want domain.Status
	}{
		{"data outside buffer", transformNode(t, domain.KernelEcho, outside, y800()), domain.StatusInvalidParameter},
		{"region exceeds buffer", transformNode(t, domain.KernelEcho, roi, y800()), domain.StatusInvalidParameter},
		{"wrong input color", transformNode(t, domain.KernelInvert, image(t, 64, 32, domain.FourCCYUY2), y800()), domain.StatusInvalidParameter},
		{"wrong output color", transformNode(t, domain.KernelXYXYToY800, image(t, 64, 32, domain.FourCCUYVY), image(t, 64, 32, domain.FourCCUYVY)), domain.StatusInvalidParameter},
		{"odd width for packed input", transformNode(t, domain.KernelXYXYToY800, image(t, 63, 32, domain.FourCCUYVY), image(t, 63, 32, domain.FourCCY800)), domain.StatusInvalidParameter},
		{"output shorter than input", transformNode(t, domain.KernelEcho, y800(), image(t, 64, 16, domain.FourCCY800)), domain.StatusInvalidParameter},
		{"output narrower than input", transformNode(t, domain.KernelEcho, y800(), image(t, 32, 32, domain.FourCCY800)), domain.StatusInvalidParameter},
		{"echo changes color", transformNode(t, domain.KernelEcho, y800(), image(t, 64, 32, domain.FourCCY16)), domain.StatusInvalidParameter},
		{"echo on a two plane image", transformNode(t, domain.KernelEcho, image(t, 64, 32, domain.FourCCNV12), image(t, 64, 32, domain.FourCCNV12)), domain.StatusInvalidParameter},
		{"echo on packed 16-bit pixels", transformNode(t, domain.KernelEcho, image(t, 64, 32, domain.FourCCUYVY), image(t, 64, 32, domain.FourCCUYVY)), domain.StatusInvalidParameter},
		{"copy on 16-bit luma", transformNode(t, domain.KernelCopy, image(t, 64, 32, domain.FourCCY16), image(t, 64, 32, domain.FourCCY16)), domain.StatusInvalidParameter},
		{"missing mask", transformNode(t, domain.KernelDilateMask, y800(), y800()), domain.StatusInvalidParameter},
		{"unknown kernel", domain.NewNode(domain.Kernel(77)), domain.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := []domain.KernelNode{tt.node}
			assert.Zero(t, v.Verify(nodes, 0, 1))
			assert.Equal(t, tt.want, nodes[0].Header.Error)
		})
	}
}

func TestVerify_Histogram(t *testing.T) {
	v := New()
	n := domain.NewNode(domain.KernelHistogram8)
	require.NoError(t, n.SetImage(0, image(t, 8, 8, domain.FourCCY800)))
	require.NoError(t, n.SetBuffer(1, domain.Buffer{Data: 0x9000_0000, ElemSize: 4, NumBytes: 64, MemClass: domain.MPUCachedVirtual}))
	assert.ErrorIs(t, v.Check(&n), domain.ErrValidation)

	require.NoError(t, n.SetBuffer(1, domain.Buffer{ElemSize: 4, NumBytes: 1024}))
	assert.ErrorIs(t, v.Check(&n), domain.ErrValidation)
}

func TestVerify_Range(t *testing.T) {
	v := New()
	good := transformNode(t, domain.KernelEcho, image(t, 16, 16, domain.FourCCY800), image(t, 16, 16, domain.FourCCY800))
	bad := domain.NewNode(domain.Kernel(500))
	nodes := []domain.KernelNode{bad, good, good, bad, good}
	for i := range nodes {
		nodes[i].Header.Error = domain.StatusFailure
	}

	assert.Equal(t, 2, v.Verify(nodes, 1, 3))
	assert.Equal(t, domain.StatusFailure, nodes[0].Header.Error, "outside the range")
	assert.Equal(t, domain.StatusNotImplemented, nodes[3].Header.Error)
	assert.Equal(t, domain.StatusFailure, nodes[4].Header.Error, "outside the range")

	assert.Equal(t, 1, v.Verify(nodes, 4, 10), "count is clipped")
	assert.Equal(t, 2, v.Verify(nodes, 0, 3), "valid nodes after a rejected one still count")
}

// TestVerify_NonDestructive checks that only the error field changes.
func TestVerify_NonDestructive(t *testing.T) {
	v := New()
	in := image(t, 64, 32, domain.FourCCY800)
	broken := in
	broken.Data[0] = 0x42
	nodes := []domain.KernelNode{
		transformNode(t, domain.KernelInvert, in, image(t, 64, 32, domain.FourCCY800)),
		transformNode(t, domain.KernelEcho, broken, image(t, 64, 32, domain.FourCCY800)),
		domain.NewNode(domain.Kernel(1234)),
	}
	nodes[0].Header.Affinity = domain.CoreDSP
	nodes[0].Header.Configured = true
	nodes[0].Header.MgrIndex = 3
	before := append([]domain.KernelNode(nil), nodes...)

	assert.Equal(t, 1, v.Verify(nodes, 0, len(nodes)))

	if diff := cmp.Diff(before, nodes, cmpopts.IgnoreFields(domain.Header{}, "Error")); diff != "" {
		t.Errorf("verify changed more than node errors (-before +after):\n%s", diff)
	}
	assert.NotEqual(t, before[1].Header.Error, nodes[1].Header.Error)
}
