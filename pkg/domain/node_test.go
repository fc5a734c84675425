package domain_test

import (
	"testing"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(base domain.Addr) domain.Image {
	img := domain.Image{
		Planes:    2,
		Width:     16,
		Height:    8,
		BufWidth:  20,
		BufHeight: 10,
		XStart:    2,
		YStart:    1,
		XStride:   1,
		YStride:   20,
		Color:     domain.FourCCNV12,
		NumBytes:  300,
		MemClass:  domain.MPUCachedVirtual,
		SkipFlush: true,
	}
	img.Buffer[0] = base
	img.Buffer[1] = base + domain.PageSize
	img.Rebase()
	return img
}

func TestNode_WireLayout(t *testing.T) {
	node := domain.NewNode(domain.KernelHistogram8)
	node.Header.Affinity = domain.CoreSIMCOP
	node.Header.Error = domain.StatusInvalidParameter
	node.Header.Configured = true
	node.Header.MgrIndex = 3
	node.Header.FuncIndex = 7

	img := testImage(0x10000)
	hist := domain.Buffer{Data: 0x40000, ElemSize: 4, NumBytes: 1024, MemClass: domain.MPUNonCached1DTiled, SkipInvalidate: true}
	require.NoError(t, node.SetImage(0, img))
	require.NoError(t, node.SetBuffer(1, hist))

	raw := domain.EncodeNodes([]domain.KernelNode{node, domain.NewNode(domain.KernelNoop)})
	require.Len(t, raw, 2*domain.NodeSize)

	nodes, err := domain.DecodeNodes(raw, 2)
	require.NoError(t, err)
	assert.Equal(t, node.Header, nodes[0].Header)
	assert.Equal(t, domain.CoreAny, nodes[1].Header.Affinity)

	gotImg, err := nodes[0].Image(0)
	require.NoError(t, err)
	assert.Equal(t, img, gotImg)
	gotBuf, err := nodes[0].Buffer(1)
	require.NoError(t, err)
	assert.Equal(t, hist, gotBuf)

	_, err = domain.DecodeNodes(raw[:domain.NodeSize], 2)
	assert.ErrorIs(t, err, domain.ErrBadPayload)
}

func TestNode_SlotMismatch(t *testing.T) {
	node := domain.NewNode(domain.KernelHistogram8)

	// Slot 1 of histogram8 holds a buffer, not an image.
	err := node.SetImage(1, testImage(0x1000))
	assert.ErrorIs(t, err, domain.ErrBadPayload)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = node.Buffer(2)
	assert.ErrorIs(t, err, domain.ErrBadPayload)

	bogus := domain.NewNode(domain.Kernel(999))
	_, err = bogus.Image(0)
	assert.ErrorIs(t, err, domain.ErrUnknownKernel)

	_, err = domain.NewTransformNode(domain.KernelNoop, testImage(0x1000), testImage(0x9000))
	assert.ErrorIs(t, err, domain.ErrBadPayload)
}

func TestImage_Rebase(t *testing.T) {
	img := testImage(0x20000)
	assert.EqualValues(t, 1*20+2*1, img.DataOffset())
	assert.Equal(t, domain.Addr(0x20000+22), img.Data[0])
	assert.Equal(t, domain.Addr(0x20000+domain.PageSize+22), img.Data[1])

	img.Buffer[1] = 0
	img.Rebase()
	assert.Zero(t, img.Data[1], "a null plane stays null")
}

func TestFourCC(t *testing.T) {
	assert.Equal(t, "Y800", domain.FourCCY800.String())
	assert.Equal(t, "Y16 ", domain.FourCCY16.String())
	assert.Equal(t, "0x00000001", domain.FourCC(1).String())

	f, err := domain.ParseFourCC("Y16")
	require.NoError(t, err)
	assert.Equal(t, domain.FourCCY16, f)

	_, err = domain.ParseFourCC("")
	assert.Error(t, err)
	_, err = domain.ParseFourCC("TOOLONG")
	assert.Error(t, err)
}

func TestCoreStats_Encode(t *testing.T) {
	s := domain.CoreStats{Calls: 4, Nodes: 9, Busy: 1500}
	b := make([]byte, domain.CoreStatsSize)
	s.Encode(b)
	assert.Equal(t, s, domain.DecodeCoreStats(b))
	assert.Equal(t, domain.CoreStats{}, domain.DecodeCoreStats(b[:8]))
}
