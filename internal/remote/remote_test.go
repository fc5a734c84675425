package remote

import (
	"context"
	"testing"

	"github.com/aretw0/hetcore/pkg/adapters/memory"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/aretw0/hetcore/pkg/rpc"
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

// stage copies nodes into memory the core can reach and returns the core's
// address for them.
func stage(t *testing.T, f *memory.Fabric, core domain.Core, nodes []domain.KernelNode) (domain.Addr, domain.Addr) {
	t.Helper()
	local, err := f.Alloc(len(nodes)*domain.NodeSize, class)
	require.NoError(t, err)
	require.NoError(t, f.Write(local, domain.EncodeNodes(nodes)))
	remote, err := f.Map(core, local, len(nodes)*domain.NodeSize, class)
	require.NoError(t, err)
	return local, remote
}

func mapImage(t *testing.T, f *memory.Fabric, core domain.Core, img domain.Image) domain.Image {
	t.Helper()
	remote, err := f.Map(core, img.Buffer[0], int(img.NumBytes), class)
	require.NoError(t, err)
	img.Buffer[0] = remote
	img.Rebase()
	return img
}

func TestCore_EntryPoints(t *testing.T) {
	f := memory.NewFabric()
	dsp := New(domain.CoreDSP, f.Space(domain.CoreDSP), WithKernels(domain.KernelInvert))
	client := rpc.NewClient(rpc.NewLoopback(dsp.Server()))
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx, domain.CoreDSP))

	eps := dsp.Server().Registry().Functions()
	require.Len(t, eps, 4)
	assert.Equal(t, domain.FnManagerInit, eps[0].Name)
	assert.Equal(t, domain.FnManagerDeinit, eps[1].Name)
	assert.Equal(t, domain.FnManagerExec, eps[2].Name)
	assert.Equal(t, domain.FnManagerStats, eps[3].Name)

	in := newImage(t, f, 2, 1, domain.FourCCY800, []byte{1, 2})
	out := newImage(t, f, 2, 1, domain.FourCCY800, nil)
	nodes := []domain.KernelNode{
		node(t, domain.KernelInvert, mapImage(t, f, domain.CoreDSP, in), mapImage(t, f, domain.CoreDSP, out)),
		node(t, domain.KernelEcho, mapImage(t, f, domain.CoreDSP, in), mapImage(t, f, domain.CoreDSP, out)),
	}
	local, remote := stage(t, f, domain.CoreDSP, nodes)

	status, err := client.CallName(ctx, domain.CoreDSP, domain.FnManagerExec, rpc.Uint64(uint64(remote)), rpc.Uint32(2))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNoResource, status, "not initialized")

	version := rpc.InOutUint32(domain.ManagerVersion + 1)
	status, err = client.CallName(ctx, domain.CoreDSP, domain.FnManagerInit, rpc.Uint32(640), rpc.Uint32(480), version)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVersionMismatch, status)
	assert.Equal(t, domain.ManagerVersion+1, version.AsUint32(), "a refused call leaves InOut params untouched")

	status, err = client.CallName(ctx, domain.CoreDSP, domain.FnManagerInit, rpc.Uint32(640), rpc.Uint32(480), rpc.InOutUint32(domain.ManagerVersion))
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, status)
	assert.True(t, dsp.Ready())

	status, err = client.CallName(ctx, domain.CoreDSP, domain.FnManagerExec, rpc.Uint64(uint64(remote)), rpc.Uint32(2))
	require.NoError(t, err)
	assert.EqualValues(t, 1, status, "echo is not implemented on this core")

	raw, err := f.Read(local, 2*domain.NodeSize)
	require.NoError(t, err)
	back, err := domain.DecodeNodes(raw, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, back[0].Header.Error)
	assert.Equal(t, domain.StatusNotImplemented, back[1].Header.Error)
	assert.Equal(t, []byte{254, 253}, pixels(t, f, out))

	stats := rpc.Out(domain.CoreStatsSize)
	status, err = client.CallName(ctx, domain.CoreDSP, domain.FnManagerStats, stats)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, status)
	s := domain.DecodeCoreStats(stats.Data)
	assert.EqualValues(t, 1, s.Calls)
	assert.EqualValues(t, 1, s.Nodes)

	status, err = client.CallName(ctx, domain.CoreDSP, domain.FnManagerDeinit)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, status)
	assert.False(t, dsp.Ready())
}
