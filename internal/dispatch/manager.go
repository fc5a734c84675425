package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/hetcore/internal/coherency"
	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/corelock"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
	"github.com/aretw0/hetcore/pkg/rpc"
)

// Defaults for Config fields left zero.
const (
	DefaultQueueDepth = 10
	DefaultCapacity   = 32
)

// Memory is the issuing core's memory as the manager needs it: allocation
// for the staging buffer and byte access to it.
type Memory interface {
	ports.Allocator
	ports.AddressSpace
}

// Translator makes the staging buffer visible to the remote core.
type Translator interface {
	Translate(core domain.Core, local domain.Addr, size int, class domain.MemClass) (domain.Addr, error)
	Remove(local domain.Addr, size int, class domain.MemClass) error
}

// Config describes one remote core.
type Config struct {
	Core     domain.Core
	Name     string
	Priority int
	// Kernels lists the kernels the core implements. Empty means all.
	Kernels    []domain.Kernel
	QueueDepth int
	// Capacity is how many nodes fit in one staged call.
	Capacity int
	Version  uint32
	Width    uint32
	Height   uint32
}

type workItem struct {
	ctx   context.Context
	id    identity
	nodes []domain.KernelNode
	start int
	count int
}

type entryPoints struct {
	init, deinit, exec, stats int
}

// Manager drives one remote core. Synchronous submissions run on the
// caller's goroutine; asynchronous ones go through a bounded queue consumed
// by the manager's worker and come back through the mailbox.
type Manager struct {
	cfg     Config
	client  *rpc.Client
	coh     *coherency.Controller
	xlate   Translator
	mem     Memory
	locks   *corelock.Manager
	kernels map[domain.Kernel]bool

	fn      entryPoints
	staging domain.Addr

	queue     chan *workItem
	mailbox   *mailbox
	enqueueMu sync.Mutex
	mu        sync.RWMutex // guards closed against enqueue
	closed    bool
	started   bool
	done      chan struct{}

	state atomic.Int32

	observer Observer
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocks shares an execution lock manager between submitters.
func WithLocks(l *corelock.Manager) Option {
	return func(m *Manager) {
		m.locks = l
	}
}

// WithObserver reports dispatch events to o.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager for cfg.Core. Start must be called before
// Submit.
func NewManager(cfg Config, client *rpc.Client, coh *coherency.Controller, xlate Translator, mem Memory, opts ...Option) *Manager {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Version == 0 {
		cfg.Version = domain.ManagerVersion
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Core.String()
	}
	m := &Manager{
		cfg:     cfg,
		client:  client,
		coh:     coh,
		xlate:   xlate,
		mem:     mem,
		queue:   make(chan *workItem, cfg.QueueDepth),
		mailbox: newMailbox(),
		done:    make(chan struct{}),
		logger:  logging.NewNop(),
	}
	if len(cfg.Kernels) > 0 {
		m.kernels = make(map[domain.Kernel]bool, len(cfg.Kernels))
		for _, k := range cfg.Kernels {
			m.kernels[k] = true
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.locks == nil {
		m.locks = corelock.NewManager(corelock.WithLogger(m.logger))
	}
	m.logger = logging.ForCore(m.logger, cfg.Core)
	return m
}

func (m *Manager) Core() domain.Core { return m.cfg.Core }
func (m *Manager) Name() string      { return m.cfg.Name }
func (m *Manager) Priority() int     { return m.cfg.Priority }

// Supports reports whether the core implements k.
func (m *Manager) Supports(k domain.Kernel) bool {
	if _, ok := domain.LookupKernel(k); !ok {
		return false
	}
	return m.kernels == nil || m.kernels[k]
}

// State returns the current execution state.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) != s && m.observer != nil {
		m.observer.StateChanged(m.cfg.Core, s)
	}
}

// QueueDepth is the number of work items waiting for the worker.
func (m *Manager) QueueDepth() int { return len(m.queue) }

// Pending is the number of submitters waiting for a result.
func (m *Manager) Pending() int { return m.mailbox.pending() }

func (m *Manager) stagingSize() int { return m.cfg.Capacity * domain.NodeSize }

// Start connects to the core, negotiates the protocol version, allocates
// the staging buffer and launches the worker.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.connect(ctx); err != nil {
		m.setState(StateFailed)
		return err
	}
	staging, err := m.mem.Alloc(m.stagingSize(), domain.KernelGraphMemClass)
	if err != nil {
		return fmt.Errorf("allocate staging for %s: %w", m.cfg.Name, err)
	}
	m.staging = staging

	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	go m.work()
	m.setState(StateIdle)
	m.logger.Info("Core manager started", "name", m.cfg.Name, "queue_depth", m.cfg.QueueDepth, "capacity", m.cfg.Capacity)
	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	if err := m.client.Connect(ctx, m.cfg.Core); err != nil {
		return err
	}
	for _, r := range []struct {
		name string
		dst  *int
	}{
		{domain.FnManagerInit, &m.fn.init},
		{domain.FnManagerDeinit, &m.fn.deinit},
		{domain.FnManagerExec, &m.fn.exec},
		{domain.FnManagerStats, &m.fn.stats},
	} {
		ep, err := m.client.Resolve(m.cfg.Core, r.name)
		if err != nil {
			return err
		}
		*r.dst = ep.Index
	}

	version := rpc.InOutUint32(m.cfg.Version)
	status, err := m.client.Call(ctx, m.cfg.Core, m.fn.init, rpc.Uint32(m.cfg.Width), rpc.Uint32(m.cfg.Height), version)
	if err != nil {
		return err
	}
	if status == domain.StatusVersionMismatch {
		return fmt.Errorf("%s: %w: core rejected engine version 0x%x", m.cfg.Name, domain.ErrVersionMismatch, m.cfg.Version)
	}
	if !status.OK() {
		return fmt.Errorf("%s: %w: init returned %s", m.cfg.Name, domain.ErrRemote, status)
	}
	return nil
}

// Restart re-runs the connect and init handshake, for a core that was
// reset underneath the engine.
func (m *Manager) Restart(ctx context.Context) error {
	err := m.locks.WithLock(ctx, m.lockKey(), func(ctx context.Context) error {
		return m.connect(ctx)
	})
	if err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("restart %s: %w", m.cfg.Name, err)
	}
	m.setState(StateIdle)
	m.logger.Info("Core manager restarted")
	return nil
}

// Stats fetches the core's activity record.
func (m *Manager) Stats(ctx context.Context) (domain.CoreStats, error) {
	out := rpc.Out(domain.CoreStatsSize)
	status, err := m.client.Call(ctx, m.cfg.Core, m.fn.stats, out)
	if err != nil {
		return domain.CoreStats{}, err
	}
	if !status.OK() {
		return domain.CoreStats{}, fmt.Errorf("%w: stats returned %s", domain.ErrRemote, status)
	}
	return domain.DecodeCoreStats(out.Data), nil
}

// Close stops accepting work, lets the worker drain the queue and releases
// the core.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	close(m.queue)
	m.mu.Unlock()

	if !started {
		m.setState(StateStopped)
		return nil
	}
	select {
	case <-m.done:
	case <-ctx.Done():
		return fmt.Errorf("close %s: %w", m.cfg.Name, ctx.Err())
	}

	var errs []error
	if _, err := m.client.Call(ctx, m.cfg.Core, m.fn.deinit); err != nil {
		errs = append(errs, err)
	}
	if err := m.xlate.Remove(m.staging, m.stagingSize(), domain.KernelGraphMemClass); err != nil {
		errs = append(errs, err)
	}
	if err := m.mem.Free(m.staging); err != nil {
		errs = append(errs, err)
	}
	m.setState(StateStopped)
	m.logger.Info("Core manager stopped")
	return errors.Join(errs...)
}

func (m *Manager) lockKey() string { return "core:" + m.cfg.Core.String() }

// Submit runs nodes[start:start+count] on the core and returns how many
// nodes executed. With sync false the work is queued for the worker and
// the caller waits for its own result; a cancelled ctx stops the wait but
// not the work.
func (m *Manager) Submit(ctx context.Context, nodes []domain.KernelNode, start, count int, sync bool) (int, error) {
	if err := checkRange(nodes, start, count); err != nil {
		return 0, err
	}
	m.mu.RLock()
	if m.closed || !m.started {
		m.mu.RUnlock()
		return 0, fmt.Errorf("%s: %w", m.cfg.Name, domain.ErrClosed)
	}
	if sync {
		defer m.mu.RUnlock()
		return m.run(ctx, nodes, start, count)
	}

	id := identityOf(nodes, start, count)
	item := &workItem{ctx: context.WithoutCancel(ctx), id: id, nodes: nodes, start: start, count: count}
	m.enqueueMu.Lock()
	f := m.mailbox.register(id)
	select {
	case m.queue <- item:
	case <-ctx.Done():
		m.mailbox.withdraw(id, f)
		m.enqueueMu.Unlock()
		m.mu.RUnlock()
		return 0, ctx.Err()
	}
	m.enqueueMu.Unlock()
	m.mu.RUnlock()

	select {
	case r := <-f.ch:
		return r.executed, r.err
	case <-ctx.Done():
		m.mailbox.abandon(f)
		return 0, ctx.Err()
	}
}

func (m *Manager) work() {
	defer close(m.done)
	for item := range m.queue {
		n, err := m.run(item.ctx, item.nodes, item.start, item.count)
		if !m.mailbox.deliver(item.id, result{executed: n, err: err}) {
			m.logger.Debug("Result discarded", "start", item.start, "count", item.count)
		}
	}
}

// run dispatches the known prefix of the window in staging-sized chunks and
// stops at the first partial chunk.
func (m *Manager) run(ctx context.Context, nodes []domain.KernelNode, start, count int) (int, error) {
	sub := nodes[start : start+count]
	n, kerr := knownPrefix(sub, start)
	if n == 0 {
		return 0, kerr
	}

	began := time.Now()
	executed := 0
	err := m.locks.WithLock(ctx, m.lockKey(), func(ctx context.Context) error {
		for off := 0; off < n; {
			size := min(n-off, m.cfg.Capacity)
			got, err := m.execChunk(ctx, sub[off:off+size])
			executed += got
			if err != nil {
				return err
			}
			if got < size {
				return nil
			}
			off += size
		}
		return nil
	})
	if err == nil && executed == n {
		err = kerr
	}
	if m.observer != nil {
		m.observer.Dispatched(m.cfg.Core, executed, err, time.Since(began).Seconds())
	}
	return executed, err
}

func (m *Manager) fail(err error) error {
	m.setState(StateFailed)
	m.logger.Warn("Dispatch failed", "err", err)
	return err
}

// execChunk is one round trip: translate and flush every operand, stage
// the nodes, call the graph manager, then read the nodes back and restore
// the operands.
func (m *Manager) execChunk(ctx context.Context, chunk []domain.KernelNode) (int, error) {
	m.setState(StateExecuting)
	core := m.cfg.Core

	staged := make([]domain.KernelNode, len(chunk))
	copy(staged, chunk)
	for i := range staged {
		if err := m.prepare(&staged[i]); err != nil {
			return 0, m.fail(fmt.Errorf("prepare node %d: %w", i, err))
		}
	}

	size := len(staged) * domain.NodeSize
	if err := m.mem.Write(m.staging, domain.EncodeNodes(staged)); err != nil {
		return 0, m.fail(fmt.Errorf("stage nodes: %w", err))
	}
	if err := m.coh.Flush(core, m.staging, size, domain.KernelGraphMemClass); err != nil {
		return 0, m.fail(err)
	}
	remote, err := m.xlate.Translate(core, m.staging, m.stagingSize(), domain.KernelGraphMemClass)
	if err != nil {
		return 0, m.fail(fmt.Errorf("translate staging: %w", err))
	}

	status, err := m.client.Call(ctx, core, m.fn.exec, rpc.Uint64(uint64(remote)), rpc.Uint32(uint32(len(staged))))
	if err != nil {
		return 0, m.fail(err)
	}
	if status < 0 {
		return 0, m.fail(fmt.Errorf("%w: graph manager returned %s", domain.ErrRemote, status))
	}
	m.setState(StateReturning)
	processed := min(int(status), len(staged))

	if err := m.coh.Invalidate(core, m.staging, size, domain.KernelGraphMemClass); err != nil {
		return processed, m.fail(err)
	}
	raw, err := m.mem.Read(m.staging, size)
	if err != nil {
		return processed, m.fail(fmt.Errorf("read back nodes: %w", err))
	}
	back, err := domain.DecodeNodes(raw, len(staged))
	if err != nil {
		return processed, m.fail(err)
	}
	for i := range chunk {
		chunk[i].Header.Error = back[i].Header.Error
	}

	var errs []error
	for i := 0; i < processed; i++ {
		if err := m.restore(&staged[i]); err != nil {
			errs = append(errs, fmt.Errorf("restore node %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return processed, m.fail(err)
	}
	m.setState(StateIdle)
	return processed, nil
}

// prepare rewrites every operand of n into the core's address space,
// flushing what the core reads.
func (m *Manager) prepare(n *domain.KernelNode) error {
	spec, _ := domain.LookupKernel(n.Header.Kernel)
	for slot, op := range spec.Operands {
		switch op.Kind {
		case domain.KindImage:
			img, err := n.Image(slot)
			if err != nil {
				return err
			}
			if err := m.coh.PrepareImage(m.cfg.Core, &img, op.Dir); err != nil {
				return fmt.Errorf("%s: %w", op.Name, err)
			}
			if err := n.SetImage(slot, img); err != nil {
				return err
			}
		case domain.KindBuffer:
			b, err := n.Buffer(slot)
			if err != nil {
				return err
			}
			if err := m.coh.PrepareBuffer(m.cfg.Core, &b, op.Dir); err != nil {
				return fmt.Errorf("%s: %w", op.Name, err)
			}
			if err := n.SetBuffer(slot, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// restore maps a prepared node's operands back and invalidates what the
// core wrote.
func (m *Manager) restore(n *domain.KernelNode) error {
	spec, _ := domain.LookupKernel(n.Header.Kernel)
	for slot, op := range spec.Operands {
		switch op.Kind {
		case domain.KindImage:
			img, err := n.Image(slot)
			if err != nil {
				return err
			}
			if err := m.coh.ReturnImage(m.cfg.Core, &img, op.Dir); err != nil {
				return fmt.Errorf("%s: %w", op.Name, err)
			}
		case domain.KindBuffer:
			b, err := n.Buffer(slot)
			if err != nil {
				return err
			}
			if err := m.coh.ReturnBuffer(m.cfg.Core, &b, op.Dir); err != nil {
				return fmt.Errorf("%s: %w", op.Name, err)
			}
		}
	}
	return nil
}
