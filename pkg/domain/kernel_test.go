package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelTable(t *testing.T) {
	kernels := domain.Kernels()
	require.NotEmpty(t, kernels)
	assert.Equal(t, domain.KernelNoop, kernels[0])

	for _, k := range kernels {
		spec, ok := domain.LookupKernel(k)
		require.True(t, ok, k.String())

		parsed, err := domain.ParseKernel(spec.Name)
		require.NoError(t, err)
		assert.Equal(t, k, parsed)

		// Operands are packed back to back and every multiple is at least one.
		end := 0
		for i, op := range spec.Operands {
			assert.Equal(t, end, op.Offset, "%s operand %d", spec.Name, i)
			if op.Kind == domain.KindBuffer {
				end += domain.BufferWireSize
			} else {
				end += domain.ImageWireSize
			}
		}
		assert.LessOrEqual(t, end, domain.PayloadSize)
		assert.NotZero(t, spec.Align)
		assert.NotZero(t, spec.WidthMult)
	}

	spec, _ := domain.LookupKernel(domain.KernelCannyGradient)
	idx, ok := spec.Lookup("magnitude")
	require.True(t, ok)
	assert.Equal(t, 3, idx)
	_, ok = spec.Lookup("missing")
	assert.False(t, ok)

	_, err := domain.ParseKernel("sharpen")
	assert.ErrorIs(t, err, domain.ErrUnknownKernel)
	assert.Equal(t, "kernel(999)", domain.Kernel(999).String())
}

func TestDirection(t *testing.T) {
	assert.True(t, domain.DirIn.Reads())
	assert.False(t, domain.DirIn.Writes())
	assert.True(t, domain.DirOut.Writes())
	assert.False(t, domain.DirOut.Reads())
	assert.True(t, domain.DirInOut.Reads() && domain.DirInOut.Writes())
}

func TestCore_Names(t *testing.T) {
	cores := domain.Cores()
	require.Len(t, cores, domain.NumCores)
	assert.Equal(t, domain.CoreCPU, cores[len(cores)-1])
	assert.False(t, domain.CoreCPU.Remote())
	assert.True(t, domain.CoreDSP.Remote())
	assert.False(t, domain.CoreAny.Valid())

	c, err := domain.ParseCore(" SIMCOP ")
	require.NoError(t, err)
	assert.Equal(t, domain.CoreSIMCOP, c)
	c, err = domain.ParseCore("")
	require.NoError(t, err)
	assert.Equal(t, domain.CoreAny, c)
	_, err = domain.ParseCore("npu")
	assert.ErrorIs(t, err, domain.ErrUnknownCore)
	assert.Equal(t, "core(42)", domain.Core(42).String())
}

func TestTextMarshaling(t *testing.T) {
	type doc struct {
		Core   domain.Core     `json:"core"`
		Kernel domain.Kernel   `json:"kernel"`
		Class  domain.MemClass `json:"class"`
	}
	raw, err := json.Marshal(doc{Core: domain.CoreEVE, Kernel: domain.KernelInvert, Class: domain.Camera1DTiled})
	require.NoError(t, err)
	assert.JSONEq(t, `{"core":"eve","kernel":"invert","class":"camera-1d-tiled"}`, string(raw))

	var back struct {
		Core   domain.Core   `json:"core"`
		Kernel domain.Kernel `json:"kernel"`
	}
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, domain.CoreEVE, back.Core)
	assert.Equal(t, domain.KernelInvert, back.Kernel)

	assert.Error(t, json.Unmarshal([]byte(`{"core":"npu"}`), &back))
}

func TestMemClass(t *testing.T) {
	for _, m := range domain.MemClasses() {
		parsed, err := domain.ParseMemClass(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	m, err := domain.ParseMemClass("")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultMemClass, m)
	m, err = domain.ParseMemClass("kernelgraph")
	require.NoError(t, err)
	assert.Equal(t, domain.KernelGraphMemClass, m)

	assert.True(t, domain.MPUCachedVirtual.Cached())
	assert.False(t, domain.Display2DTiled.Cached())
	assert.True(t, domain.MPUCached1DTiled.TwoHop())
	assert.False(t, domain.MPUCachedVirtual.TwoHop())

	_, err = domain.ParseMemClass("sram")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	assert.True(t, domain.StatusSuccess.OK())
	assert.False(t, domain.StatusFailure.OK())
	assert.True(t, domain.StatusTimeout.Transport())
	assert.False(t, domain.StatusNoResource.Transport())
	assert.Equal(t, "core unavailable", domain.StatusCoreUnavailable.String())
	assert.Equal(t, "status(-55)", domain.Status(-55).String())
}

func TestParseSize(t *testing.T) {
	w, h, err := domain.ParseSize("640X480")
	require.NoError(t, err)
	assert.EqualValues(t, 640, w)
	assert.EqualValues(t, 480, h)

	for _, bad := range []string{"", "640", "0x480", "640x", "ax1", "-1x4"} {
		_, _, err := domain.ParseSize(bad)
		assert.ErrorIs(t, err, domain.ErrManifestFormat, bad)
	}
}

func TestGraph_Check(t *testing.T) {
	a := &domain.Section{Nodes: []domain.KernelNode{domain.NewNode(domain.KernelNoop)}}
	b := &domain.Section{Nodes: []domain.KernelNode{domain.NewNode(domain.KernelNoop), domain.NewNode(domain.KernelNoop)}, Skip: true}
	g := domain.NewGraph("serial", a, b)
	require.NoError(t, g.Check())
	assert.Equal(t, []int{0, 1}, g.Order)
	assert.Equal(t, 1, g.NumNodes())

	g.Order = []int{0}
	assert.ErrorIs(t, g.Check(), domain.ErrValidation)
	g.Order = []int{0, -1}
	assert.ErrorIs(t, g.Check(), domain.ErrValidation)
	g.Order = []int{0, 1}
	g.Sections[1] = nil
	assert.ErrorIs(t, g.Check(), domain.ErrValidation)
}

func TestPerf(t *testing.T) {
	var p domain.Perf
	assert.Zero(t, p.Avg())
	p.Record(4 * time.Millisecond)
	p.Record(2 * time.Millisecond)

	s := p.Snapshot()
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 2*time.Millisecond, s.Last)
	assert.Equal(t, 2*time.Millisecond, s.Min)
	assert.Equal(t, 4*time.Millisecond, s.Max)
	assert.Equal(t, 3*time.Millisecond, p.Avg())
}

func TestRunRecord_Complete(t *testing.T) {
	run := domain.RunRecord{Nodes: 3, Executed: 3}
	assert.True(t, run.Complete())
	run.Executed = 2
	assert.False(t, run.Complete())
	run.Executed, run.Error = 3, "boom"
	assert.False(t, run.Complete())
}
