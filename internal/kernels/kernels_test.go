package kernels

import (
	"testing"

	"github.com/aretw0/hetcore/pkg/adapters/memory"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const class = domain.MPUNonCached1DTiled

func newImage(t *testing.T, f *memory.Fabric, w, h uint32, color domain.FourCC, pixels []byte) domain.Image {
	t.Helper()
	img, sizes, err := geometry.Layout(w, h, color, class)
	require.NoError(t, err)
	addr, err := f.Alloc(sizes[0], class)
	require.NoError(t, err)
	img.Buffer[0] = addr
	img.Rebase()
	if pixels != nil {
		require.NoError(t, f.Write(addr, pixels))
	}
	return img
}

func pixels(t *testing.T, f *memory.Fabric, img domain.Image) []byte {
	t.Helper()
	b, err := f.Read(img.Buffer[0], int(img.NumBytes))
	require.NoError(t, err)
	return b
}

func node(t *testing.T, k domain.Kernel, imgs ...domain.Image) domain.KernelNode {
	t.Helper()
	n := domain.NewNode(k)
	for i, img := range imgs {
		require.NoError(t, n.SetImage(i, img))
	}
	return n
}

func TestExecute_Pointwise(t *testing.T) {
	f := memory.NewFabric()
	in := newImage(t, f, 4, 2, domain.FourCCY800, []byte{0, 1, 2, 3, 250, 251, 252, 255})
	out := newImage(t, f, 4, 2, domain.FourCCY800, nil)

	n := node(t, domain.KernelInvert, in, out)
	assert.Equal(t, domain.StatusSuccess, Execute(f, &n))
	assert.Equal(t, []byte{255, 254, 253, 252, 5, 4, 3, 0}, pixels(t, f, out))

	n = node(t, domain.KernelEcho, in, out)
	assert.Equal(t, domain.StatusSuccess, Execute(f, &n))
	assert.Equal(t, pixels(t, f, in), pixels(t, f, out))
}

func TestExecute_RegionOfInterest(t *testing.T) {
	f := memory.NewFabric()
	in := newImage(t, f, 4, 4, domain.FourCCY800, []byte{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})
	in.Width, in.Height, in.XStart, in.YStart = 2, 2, 1, 1
	in.Rebase()
	out := newImage(t, f, 2, 2, domain.FourCCY800, nil)

	n := node(t, domain.KernelCopy, in, out)
	require.Equal(t, domain.StatusSuccess, Execute(f, &n))
	assert.Equal(t, []byte{6, 7, 10, 11}, pixels(t, f, out))
}

func TestExecute_ExtractLuma(t *testing.T) {
	f := memory.NewFabric()
	uyvy := newImage(t, f, 2, 1, domain.FourCCUYVY, []byte{128, 10, 128, 20})
	yuy2 := newImage(t, f, 2, 1, domain.FourCCYUY2, []byte{30, 128, 40, 128})
	out := newImage(t, f, 2, 1, domain.FourCCY800, nil)

	n := node(t, domain.KernelXYXYToY800, uyvy, out)
	require.Equal(t, domain.StatusSuccess, Execute(f, &n))
	assert.Equal(t, []byte{10, 20}, pixels(t, f, out))

	n = node(t, domain.KernelXYXYToY800, yuy2, out)
	require.Equal(t, domain.StatusSuccess, Execute(f, &n))
	assert.Equal(t, []byte{30, 40}, pixels(t, f, out))
}

func TestExecute_Morphology(t *testing.T) {
	f := memory.NewFabric()
	dot := []byte{
		0, 0, 0, 0,
		0, 9, 0, 0,
		0, 0, 0, 0,
	}
	in := newImage(t, f, 4, 3, domain.FourCCY800, dot)
	out := newImage(t, f, 4, 3, domain.FourCCY800, nil)

	n := node(t, domain.KernelDilateSquare, in, out)
	require.Equal(t, domain.StatusSuccess, Execute(f, &n))
	assert.Equal(t, []byte{
		9, 9, 9, 0,
		9, 9, 9, 0,
		9, 9, 9, 0,
	}, pixels(t, f, out))

	n = node(t, domain.KernelErodeSquare, in, out)
	require.Equal(t, domain.StatusSuccess, Execute(f, &n))
	assert.Equal(t, make([]byte, 12), pixels(t, f, out))

	// A horizontal line element only spreads sideways.
	mask := newImage(t, f, 3, 1, domain.FourCCY800, []byte{1, 1, 1})
	n = node(t, domain.KernelDilateMask, in, out, mask)
	require.Equal(t, domain.StatusSuccess, Execute(f, &n))
	assert.Equal(t, []byte{
		0, 0, 0, 0,
		9, 9, 9, 0,
		0, 0, 0, 0,
	}, pixels(t, f, out))
}

func TestExecute_Sobel(t *testing.T) {
	f := memory.NewFabric()
	edge := []byte{
		0, 0, 100, 100,
		0, 0, 100, 100,
		0, 0, 100, 100,
	}
	in := newImage(t, f, 4, 3, domain.FourCCY800, edge)
	gx := newImage(t, f, 4, 3, domain.FourCCY16, nil)
	gy := newImage(t, f, 4, 3, domain.FourCCY16, nil)
	mag := newImage(t, f, 4, 3, domain.FourCCY16, nil)

	n := node(t, domain.KernelCannyGradient, in, gx, gy, mag)
	require.Equal(t, domain.StatusSuccess, Execute(f, &n))

	x := pixels(t, f, gx)
	assert.EqualValues(t, 0, int16(le.Uint16(x[0:])))
	assert.EqualValues(t, 400, int16(le.Uint16(x[2:])))
	assert.EqualValues(t, 400, int16(le.Uint16(x[4:])))
	assert.Equal(t, make([]byte, 24), pixels(t, f, gy))
	assert.EqualValues(t, 400, le.Uint16(pixels(t, f, mag)[2:]))
}

func TestExecute_Histogram(t *testing.T) {
	f := memory.NewFabric()
	in := newImage(t, f, 4, 1, domain.FourCCY800, []byte{7, 7, 7, 200})
	addr, err := f.Alloc(4*HistogramBins, class)
	require.NoError(t, err)

	n := domain.NewNode(domain.KernelHistogram8)
	require.NoError(t, n.SetImage(0, in))
	require.NoError(t, n.SetBuffer(1, domain.Buffer{Data: addr, ElemSize: 4, NumBytes: 4 * HistogramBins, MemClass: class}))
	require.Equal(t, domain.StatusSuccess, Execute(f, &n))

	b, err := f.Read(addr, 4*HistogramBins)
	require.NoError(t, err)
	assert.EqualValues(t, 3, le.Uint32(b[4*7:]))
	assert.EqualValues(t, 1, le.Uint32(b[4*200:]))
	assert.EqualValues(t, 0, le.Uint32(b[0:]))

	require.NoError(t, n.SetBuffer(1, domain.Buffer{Data: addr, NumBytes: 16, MemClass: class}))
	assert.Equal(t, domain.StatusInvalidParameter, Execute(f, &n))
}

func TestExecute_Unknown(t *testing.T) {
	n := domain.NewNode(domain.Kernel(999))
	assert.Equal(t, domain.StatusNotImplemented, Execute(memory.NewFabric(), &n))
}

