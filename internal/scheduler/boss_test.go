package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/hetcore/internal/dispatch"
	"github.com/aretw0/hetcore/pkg/adapters/memory"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	start, count int
	sync         bool
}

// fakeExec executes nothing; it marks nodes successful and records calls.
type fakeExec struct {
	core     domain.Core
	priority int
	kernels  map[domain.Kernel]bool
	short    int // when >= 0, execute at most this many nodes per call
	err      error

	mu    sync.Mutex
	calls []call
}

func newFake(core domain.Core, priority int, kernels ...domain.Kernel) *fakeExec {
	f := &fakeExec{core: core, priority: priority, short: -1}
	if len(kernels) > 0 {
		f.kernels = make(map[domain.Kernel]bool)
		for _, k := range kernels {
			f.kernels[k] = true
		}
	}
	return f
}

func (f *fakeExec) Core() domain.Core     { return f.core }
func (f *fakeExec) Name() string          { return "fake-" + f.core.String() }
func (f *fakeExec) Priority() int         { return f.priority }
func (f *fakeExec) State() dispatch.State { return dispatch.StateIdle }
func (f *fakeExec) QueueDepth() int       { return 0 }

func (f *fakeExec) Supports(k domain.Kernel) bool {
	if _, ok := domain.LookupKernel(k); !ok {
		return false
	}
	return f.kernels == nil || f.kernels[k]
}

func (f *fakeExec) Submit(ctx context.Context, nodes []domain.KernelNode, start, count int, sync bool) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{start: start, count: count, sync: sync})
	f.mu.Unlock()
	n := count
	if f.short >= 0 {
		n = min(n, f.short)
	}
	for i := start; i < start+n; i++ {
		nodes[i].Header.Error = domain.StatusSuccess
	}
	return n, f.err
}

func (f *fakeExec) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func section(kernels ...domain.Kernel) *domain.Section {
	s := &domain.Section{}
	for _, k := range kernels {
		s.Nodes = append(s.Nodes, domain.NewNode(k))
	}
	return s
}

func TestConfigureNodes_Priority(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 2, domain.KernelInvert)
	simcop := newFake(domain.CoreSIMCOP, 1)
	b := New([]dispatch.Executor{simcop, dsp})

	s := section(domain.KernelInvert, domain.KernelEcho, domain.KernelInvert)
	require.Zero(t, b.ConfigureNodes(s, false))

	assert.EqualValues(t, 0, s.Nodes[0].Header.MgrIndex, "dsp ranks first")
	assert.EqualValues(t, 1, s.Nodes[1].Header.MgrIndex)
	assert.EqualValues(t, 0, s.Nodes[2].Header.MgrIndex)
	for _, n := range s.Nodes {
		assert.True(t, n.Header.Configured)
		assert.Equal(t, uint32(n.Header.Kernel), n.Header.FuncIndex)
	}
	assert.EqualValues(t, 40, s.CoreLoad[domain.CoreDSP])
	assert.EqualValues(t, 10, s.CoreLoad[domain.CoreSIMCOP])
}

func TestConfigureNodes_Affinity(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 2, domain.KernelInvert)
	simcop := newFake(domain.CoreSIMCOP, 1)
	b := New([]dispatch.Executor{dsp, simcop})

	s := section(domain.KernelInvert, domain.KernelEcho, domain.KernelEcho)
	s.Nodes[0].Header.Affinity = domain.CoreSIMCOP
	s.Nodes[1].Header.Affinity = domain.CoreDSP
	s.Nodes[2].Header.Affinity = domain.CoreEVE
	require.Zero(t, b.ConfigureNodes(s, false))

	assert.EqualValues(t, 1, s.Nodes[0].Header.MgrIndex, "affinity beats priority")
	assert.Equal(t, domain.CoreSIMCOP, s.Nodes[0].Header.Affinity)
	for i := 1; i < 3; i++ {
		assert.Equal(t, domain.CoreAny, s.Nodes[i].Header.Affinity, "node %d affinity cannot be honoured", i)
		assert.EqualValues(t, 1, s.Nodes[i].Header.MgrIndex)
	}
}

func TestConfigureNodes_Unsupported(t *testing.T) {
	b := New([]dispatch.Executor{newFake(domain.CoreDSP, 1, domain.KernelInvert)})
	assert.Equal(t, 1, b.ConfigureNodes(section(domain.KernelInvert, domain.KernelEcho), false))
	assert.Equal(t, 1, b.ConfigureNodes(section(domain.Kernel(4242)), false))
}

func TestConfigureNodes_Force(t *testing.T) {
	b := New([]dispatch.Executor{newFake(domain.CoreDSP, 1)})
	s := section(domain.KernelEcho)
	require.Zero(t, b.ConfigureNodes(s, false))
	require.Zero(t, b.ConfigureNodes(s, false))
	assert.EqualValues(t, 10, s.CoreLoad[domain.CoreDSP], "configured nodes are not charged twice")

	require.Zero(t, b.ConfigureNodes(s, true))
	assert.EqualValues(t, 10, s.CoreLoad[domain.CoreDSP], "force starts from an empty load")
}

func TestCommitLoad(t *testing.T) {
	b := New([]dispatch.Executor{newFake(domain.CoreDSP, 2), newFake(domain.CoreSIMCOP, 1)})
	s := section(domain.KernelInvert, domain.KernelInvert)
	require.Zero(t, b.ConfigureNodes(s, false))
	s.CoreLoad[domain.CoreSIMCOP] = 5

	require.NoError(t, b.SetMaxLoad(domain.CoreDSP, 30))
	assert.False(t, b.CommitLoad(s))
	for _, c := range []domain.Core{domain.CoreDSP, domain.CoreSIMCOP} {
		l, err := b.GetMaxLoad(c)
		require.NoError(t, err)
		assert.Zero(t, l.Current, "failed commit is unwound on %s", c)
	}

	require.NoError(t, b.SetMaxLoad(domain.CoreDSP, 40))
	assert.True(t, b.CommitLoad(s))
	l, err := b.GetMaxLoad(domain.CoreDSP)
	require.NoError(t, err)
	assert.Equal(t, Load{Current: 40, Max: 40}, l)

	b.DecommitLoad(s)
	l, err = b.GetMaxLoad(domain.CoreDSP)
	require.NoError(t, err)
	assert.Zero(t, l.Current)
}

func TestMaxLoad_UnknownCore(t *testing.T) {
	b := New([]dispatch.Executor{newFake(domain.CoreDSP, 1)})
	assert.ErrorIs(t, b.SetMaxLoad(domain.CoreEVE, 10), domain.ErrUnknownCore)
	_, err := b.GetMaxLoad(domain.CoreEVE)
	assert.ErrorIs(t, err, domain.ErrUnknownCore)
}

func TestProcessSection_Runs(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 2, domain.KernelInvert)
	simcop := newFake(domain.CoreSIMCOP, 1)
	b := New([]dispatch.Executor{dsp, simcop})

	s := section(domain.KernelInvert, domain.KernelInvert, domain.KernelEcho, domain.KernelInvert)
	processed, err := b.ProcessSection(context.Background(), s, true)
	require.NoError(t, err)
	assert.Equal(t, 4, processed)

	assert.Equal(t, []call{{0, 2, true}, {3, 1, true}}, dsp.recorded())
	assert.Equal(t, []call{{2, 1, true}}, simcop.recorded())
	assert.Equal(t, 1, s.Perf.Snapshot().Runs)

	l, err := b.GetMaxLoad(domain.CoreDSP)
	require.NoError(t, err)
	assert.Zero(t, l.Current, "load is released after the section")
}

func TestProcessSection_StopsAtPartialRun(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 2, domain.KernelInvert)
	simcop := newFake(domain.CoreSIMCOP, 1)
	simcop.short = 0
	b := New([]dispatch.Executor{dsp, simcop})

	s := section(domain.KernelInvert, domain.KernelInvert, domain.KernelEcho, domain.KernelInvert)
	processed, err := b.ProcessSection(context.Background(), s, false)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Len(t, dsp.recorded(), 1, "nothing runs after the partial run")
}

func TestProcessSection_ExecutorError(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 1)
	dsp.short = 1
	dsp.err = domain.ErrTransport
	b := New([]dispatch.Executor{dsp})

	processed, err := b.ProcessSection(context.Background(), section(domain.KernelEcho, domain.KernelEcho), true)
	assert.Equal(t, 1, processed)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestProcessSection_OverloadMovesWork(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 2)
	simcop := newFake(domain.CoreSIMCOP, 1)
	b := New([]dispatch.Executor{dsp, simcop})
	require.NoError(t, b.SetMaxLoad(domain.CoreDSP, 10))

	s := section(domain.KernelInvert)
	processed, err := b.ProcessSection(context.Background(), s, true)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Empty(t, dsp.recorded())
	assert.Len(t, simcop.recorded(), 1)
	assert.Zero(t, s.CoreLoad[domain.CoreDSP])
	assert.EqualValues(t, 20, s.CoreLoad[domain.CoreSIMCOP])
}

func TestProcessSection_LoadExceeded(t *testing.T) {
	b := New([]dispatch.Executor{newFake(domain.CoreDSP, 2), newFake(domain.CoreSIMCOP, 1)})
	require.NoError(t, b.SetMaxLoad(domain.CoreDSP, 5))
	require.NoError(t, b.SetMaxLoad(domain.CoreSIMCOP, 5))

	processed, err := b.ProcessSection(context.Background(), section(domain.KernelInvert), true)
	assert.Zero(t, processed)
	assert.ErrorIs(t, err, domain.ErrLoadExceeded)
	for _, info := range b.QueryCores() {
		assert.Zero(t, info.Load.Current, info.ID)
	}
}

func TestProcessSection_NoManager(t *testing.T) {
	b := New([]dispatch.Executor{newFake(domain.CoreDSP, 1, domain.KernelInvert)})
	_, err := b.ProcessSection(context.Background(), section(domain.KernelEcho), true)
	assert.ErrorIs(t, err, domain.ErrNoManager)
}

func TestProcessGraph_Orders(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 1)
	b := New([]dispatch.Executor{dsp})

	g := domain.NewGraph("ordered",
		section(domain.KernelNoop, domain.KernelNoop),
		section(domain.KernelNoop),
		section(domain.KernelNoop, domain.KernelNoop, domain.KernelNoop),
		section(domain.KernelNoop),
	)
	g.Order = []int{5, 0, 5, 9}
	g.Sections[3].Skip = true

	var mu sync.Mutex
	var seen []int
	executed := make(map[int]int)
	run, err := b.ProcessGraph(context.Background(), g, func(index, n int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, index)
		executed[index] = n
	})
	require.NoError(t, err)
	assert.Equal(t, 3, run)
	assert.True(t, g.Verified)

	require.Len(t, seen, 3)
	assert.Equal(t, 1, seen[0], "order 0 runs first")
	assert.ElementsMatch(t, []int{0, 2}, seen[1:])
	assert.Equal(t, map[int]int{0: 2, 1: 1, 2: 3}, executed)
	assert.Equal(t, 1, g.TotalPerf.Snapshot().Runs)
	assert.Zero(t, g.Sections[3].Perf.Snapshot().Runs, "skipped sections do not run")

	calls := dsp.recorded()
	require.Len(t, calls, 3)
	assert.True(t, calls[0].sync, "a lone section runs inline")
	assert.False(t, calls[1].sync, "parallel sections are queued")
	assert.False(t, calls[2].sync)
}

func TestProcessGraph_VerifiesFirst(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 1)
	b := New([]dispatch.Executor{dsp})

	s := section(domain.KernelNoop, domain.KernelEcho)
	g := domain.NewGraph("bad", s)
	run, err := b.ProcessGraph(context.Background(), g, nil)
	assert.Zero(t, run)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, g.Verified)
	assert.Empty(t, dsp.recorded())
	assert.Equal(t, domain.StatusSuccess, s.Nodes[0].Header.Error)
	assert.Equal(t, domain.StatusInvalidParameter, s.Nodes[1].Header.Error)
}

func TestProcessGraph_StopsAfterFailedOrder(t *testing.T) {
	dsp := newFake(domain.CoreDSP, 1)
	dsp.err = errors.New("core reset")
	b := New([]dispatch.Executor{dsp})

	g := domain.NewGraph("failing", section(domain.KernelNoop), section(domain.KernelNoop))
	run, err := b.ProcessGraph(context.Background(), g, nil)
	assert.Equal(t, 1, run)
	assert.ErrorContains(t, err, "core reset")
	assert.Len(t, dsp.recorded(), 1)
}

func TestQueryCores(t *testing.T) {
	b := New([]dispatch.Executor{newFake(domain.CoreDSP, 1, domain.KernelInvert, domain.KernelEcho)})
	require.NoError(t, b.SetMaxLoad(domain.CoreDSP, 500))

	infos := b.QueryCores()
	require.Len(t, infos, domain.NumCores)
	for _, info := range infos {
		if info.Core != domain.CoreDSP {
			assert.False(t, info.Enabled, info.ID)
			continue
		}
		assert.True(t, info.Enabled)
		assert.Equal(t, "fake-dsp", info.Name)
		assert.Equal(t, "idle", info.State)
		assert.Equal(t, uint32(500), info.Load.Max)
		assert.Equal(t, []domain.Kernel{domain.KernelEcho, domain.KernelInvert}, info.Kernels)
	}

	assert.True(t, b.QueryCoreForKernel(domain.KernelInvert, domain.CoreDSP))
	assert.False(t, b.QueryCoreForKernel(domain.KernelCopy, domain.CoreDSP))
	assert.False(t, b.QueryCoreForKernel(domain.KernelInvert, domain.CoreEVE))
}

// TestProcessGraph_Local runs a real two section pipeline on the CPU
// executor: invert, then invert back.
func TestProcessGraph_Local(t *testing.T) {
	f := memory.NewFabric()
	image := func() domain.Image {
		img, sizes, err := geometry.Layout(16, 4, domain.FourCCY800, domain.MPUCachedVirtual)
		require.NoError(t, err)
		img.Buffer[0], err = f.Alloc(sizes[0], domain.MPUCachedVirtual)
		require.NoError(t, err)
		img.Rebase()
		return img
	}
	a, tmp, c := image(), image(), image()
	src := make([]byte, 64)
	for i := range src {
		src[i] = byte(i)
	}
	require.NoError(t, f.Write(a.Buffer[0], src))

	first, err := domain.NewTransformNode(domain.KernelInvert, a, tmp)
	require.NoError(t, err)
	second, err := domain.NewTransformNode(domain.KernelInvert, tmp, c)
	require.NoError(t, err)
	g := domain.NewGraph("roundtrip",
		&domain.Section{Nodes: []domain.KernelNode{first}},
		&domain.Section{Nodes: []domain.KernelNode{second}},
	)

	b := New([]dispatch.Executor{dispatch.NewLocal(f)})
	run, err := b.ProcessGraph(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, run)

	got, err := f.Read(c.Buffer[0], 64)
	require.NoError(t, err)
	assert.Equal(t, src, got)
	mid, err := f.Read(tmp.Buffer[0], 1)
	require.NoError(t, err)
	assert.Equal(t, byte(255), mid[0])
}
