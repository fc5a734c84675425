// Package remote simulates the software side of a remote core: the kernel
// graph manager entry points it exports over rpc, running the reference
// kernels against the core's own address space.
package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/hetcore/internal/kernels"
	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
	"github.com/aretw0/hetcore/pkg/rpc"
)

// Core is a simulated remote core.
type Core struct {
	id      domain.Core
	space   ports.AddressSpace
	server  *rpc.Server
	version uint32
	kernels map[domain.Kernel]bool // nil means every reference kernel
	latency time.Duration

	mu            sync.Mutex
	ready         bool
	width, height uint32
	stats         domain.CoreStats

	logger *slog.Logger
}

// Option configures a Core.
type Option func(*Core)

// WithVersion overrides the protocol version the core accepts.
func WithVersion(v uint32) Option {
	return func(c *Core) {
		c.version = v
	}
}

// WithKernels restricts the kernels the core implements.
func WithKernels(kernels ...domain.Kernel) Option {
	return func(c *Core) {
		c.kernels = make(map[domain.Kernel]bool, len(kernels))
		for _, k := range kernels {
			c.kernels[k] = true
		}
	}
}

// WithLatency adds a fixed delay to every graph manager call.
func WithLatency(d time.Duration) Option {
	return func(c *Core) {
		c.latency = d
	}
}

// WithLogger configures a logger for the Core.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// New creates core id working on space and registers its entry points.
func New(id domain.Core, space ports.AddressSpace, opts ...Option) *Core {
	c := &Core{
		id:      id,
		space:   space,
		version: domain.ManagerVersion,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	reg := rpc.NewRegistry()
	reg.Register(domain.FnManagerInit, 1, rpc.Signature{
		{Dir: domain.DirIn, Size: 4},
		{Dir: domain.DirIn, Size: 4},
		{Dir: domain.DirInOut, Size: 4},
	}, c.init)
	reg.Register(domain.FnManagerDeinit, 1, nil, c.deinit)
	reg.Register(domain.FnManagerExec, 0, rpc.Signature{
		{Dir: domain.DirIn, Size: 8},
		{Dir: domain.DirIn, Size: 4},
	}, c.exec)
	reg.Register(domain.FnManagerStats, 1, rpc.Signature{
		{Dir: domain.DirOut, Size: domain.CoreStatsSize},
	}, c.statsFn)
	c.server = rpc.NewServer(id, reg, rpc.WithServerLogger(c.logger))
	return c
}

// Server returns the rpc endpoint of the core.
func (c *Core) Server() *rpc.Server { return c.server }

// ID returns which core this is.
func (c *Core) ID() domain.Core { return c.id }

// Supports reports whether the core implements k.
func (c *Core) Supports(k domain.Kernel) bool {
	if _, ok := domain.LookupKernel(k); !ok {
		return false
	}
	return c.kernels == nil || c.kernels[k]
}

// Ready reports whether the graph manager has been initialized.
func (c *Core) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Core) init(ctx context.Context, p []rpc.Param) domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if got := p[2].AsUint32(); got != c.version {
		c.logger.Warn("Version mismatch", "core", c.id, "want", c.version, "got", got)
		p[2].PutUint32(c.version)
		return domain.StatusVersionMismatch
	}
	c.width, c.height = p[0].AsUint32(), p[1].AsUint32()
	c.ready = true
	c.logger.Debug("Graph manager initialized", "core", c.id, "width", c.width, "height", c.height)
	return domain.StatusSuccess
}

func (c *Core) deinit(ctx context.Context, _ []rpc.Param) domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	return domain.StatusSuccess
}

// exec runs the staged node array and returns how many nodes it processed.
// It stops at the first node whose kernel the core does not implement. An
// uninitialized manager refuses the call with StatusNoResource.
func (c *Core) exec(ctx context.Context, p []rpc.Param) domain.Status {
	start := time.Now()
	if c.latency > 0 {
		time.Sleep(c.latency)
	}
	if !c.Ready() {
		c.logger.Warn("Graph manager not initialized", "core", c.id)
		return domain.StatusNoResource
	}
	addr, count := domain.Addr(p[0].AsUint64()), int(p[1].AsUint32())
	raw, err := c.space.Read(addr, count*domain.NodeSize)
	if err != nil {
		c.logger.Warn("Cannot read node array", "core", c.id, "addr", addr, "count", count, "err", err)
		return domain.StatusInvalidParameter
	}
	nodes, err := domain.DecodeNodes(raw, count)
	if err != nil {
		return domain.StatusInvalidParameter
	}

	processed := 0
	for i := range nodes {
		n := &nodes[i]
		if !c.Supports(n.Header.Kernel) {
			n.Header.Error = domain.StatusNotImplemented
			break
		}
		n.Header.Error = kernels.Execute(c.space, n)
		processed++
	}
	if err := c.space.Write(addr, domain.EncodeNodes(nodes)); err != nil {
		c.logger.Warn("Cannot write node array back", "core", c.id, "err", err)
		return domain.StatusInvalidParameter
	}

	c.mu.Lock()
	c.stats.Calls++
	c.stats.Nodes += uint64(processed)
	c.stats.Busy += time.Since(start)
	c.mu.Unlock()
	return domain.Status(processed)
}

func (c *Core) statsFn(ctx context.Context, p []rpc.Param) domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Encode(p[0].Data)
	return domain.StatusSuccess
}
