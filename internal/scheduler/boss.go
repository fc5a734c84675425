// Package scheduler places kernel nodes on cores and runs graphs section by
// section.
//
// The Boss keeps a load table per core. A section charges each core the
// summed load of the kernels placed there for as long as it runs; a section
// that would push a core past its maximum is re-placed without that core.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/hetcore/internal/dispatch"
	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/internal/verifier"
	"github.com/aretw0/hetcore/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// Load is one core's entry in the load table. A zero Max means unlimited.
type Load struct {
	Current uint32 `json:"current"`
	Max     uint32 `json:"max"`
}

// SectionFunc is told how many nodes of graph section index executed. It
// may be called concurrently for sections sharing an order.
type SectionFunc func(index, executed int)

// Observer receives scheduling events.
type Observer interface {
	SectionProcessed(nodes, executed int, seconds float64)
	GraphProcessed(sections int, seconds float64)
}

// Boss owns the executors and the load table.
type Boss struct {
	execs    []dispatch.Executor // highest priority first
	verifier *verifier.Verifier

	mu    sync.Mutex
	loads [domain.NumCores]Load

	observer Observer
	logger   *slog.Logger
}

// Option configures a Boss.
type Option func(*Boss)

// WithVerifier replaces the default node verifier.
func WithVerifier(v *verifier.Verifier) Option {
	return func(b *Boss) {
		b.verifier = v
	}
}

// WithObserver reports scheduling events to o.
func WithObserver(o Observer) Option {
	return func(b *Boss) {
		b.observer = o
	}
}

// WithLogger configures a logger for the Boss.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Boss) {
		b.logger = logger
	}
}

// New creates a Boss over execs. Executors are ranked by priority; ties keep
// the given order.
func New(execs []dispatch.Executor, opts ...Option) *Boss {
	b := &Boss{
		execs:  slices.Clone(execs),
		logger: logging.NewNop(),
	}
	sort.SliceStable(b.execs, func(i, j int) bool {
		return b.execs[i].Priority() > b.execs[j].Priority()
	})
	for _, opt := range opts {
		opt(b)
	}
	if b.verifier == nil {
		b.verifier = verifier.New(verifier.WithLogger(b.logger))
	}
	return b
}

// Executors returns the executors in priority order.
func (b *Boss) Executors() []dispatch.Executor { return slices.Clone(b.execs) }

// Executor finds the executor driving core.
func (b *Boss) Executor(core domain.Core) (dispatch.Executor, bool) {
	for _, e := range b.execs {
		if e.Core() == core {
			return e, true
		}
	}
	return nil, false
}

// ConfigureNodes assigns an executor to every node of s that has none, or
// to every node when force is set. It returns the number of nodes no
// executor supports; placement stops at the first of them.
func (b *Boss) ConfigureNodes(s *domain.Section, force bool) int {
	return b.configure(s, force, nil)
}

func (b *Boss) configure(s *domain.Section, force bool, excluded map[domain.Core]bool) int {
	if force {
		s.CoreLoad = [domain.NumCores]uint32{}
	}
	for i := range s.Nodes {
		h := &s.Nodes[i].Header
		if h.Configured && !force && int(h.MgrIndex) < len(b.execs) {
			continue
		}
		spec, ok := domain.LookupKernel(h.Kernel)
		if !ok {
			b.logger.Warn("No core supports kernel", "node", i, "kernel", h.Kernel)
			return 1
		}

		m := -1
		if h.Affinity != domain.CoreAny {
			m = b.find(h.Kernel, excluded, func(e dispatch.Executor) bool { return e.Core() == h.Affinity })
			if m < 0 {
				b.logger.Debug("Affinity dropped", "node", i, "kernel", h.Kernel, "affinity", h.Affinity)
				h.Affinity = domain.CoreAny
			}
		}
		if m < 0 {
			m = b.find(h.Kernel, excluded, nil)
		}
		if m < 0 {
			b.logger.Warn("No core supports kernel", "node", i, "kernel", h.Kernel)
			return 1
		}

		h.MgrIndex = uint32(m)
		h.FuncIndex = uint32(h.Kernel)
		h.Configured = true
		s.CoreLoad[b.execs[m].Core()] += spec.Load
		b.logger.Debug("Node placed", "node", i, "kernel", h.Kernel, "core", b.execs[m].Core(), "load", spec.Load)
	}
	return 0
}

// find returns the index of the highest priority executor supporting k,
// not excluded, and accepted by match.
func (b *Boss) find(k domain.Kernel, excluded map[domain.Core]bool, match func(dispatch.Executor) bool) int {
	for m, e := range b.execs {
		if excluded[e.Core()] || !e.Supports(k) {
			continue
		}
		if match == nil || match(e) {
			return m
		}
	}
	return -1
}

// CommitLoad charges s's load against the table. It reports false, and
// charges nothing, if any core would exceed its maximum.
func (b *Boss) CommitLoad(s *domain.Section) bool {
	_, ok := b.commit(s)
	return ok
}

func (b *Boss) commit(s *domain.Section) (domain.Core, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.loads {
		b.loads[c].Current += s.CoreLoad[c]
		if b.loads[c].Max != 0 && b.loads[c].Current > b.loads[c].Max {
			for u := c; u >= 0; u-- {
				b.loads[u].Current -= s.CoreLoad[u]
			}
			return domain.Core(c), false
		}
	}
	return domain.CoreAny, true
}

// DecommitLoad releases what CommitLoad charged for s.
func (b *Boss) DecommitLoad(s *domain.Section) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.loads {
		b.loads[c].Current -= min(s.CoreLoad[c], b.loads[c].Current)
	}
}

// ProcessSection places, charges and runs s. Consecutive nodes placed on
// the same executor are submitted together; execution stops at the first
// run that does not complete. It returns how many nodes executed.
func (b *Boss) ProcessSection(ctx context.Context, s *domain.Section, sync bool) (int, error) {
	if s.Skip || len(s.Nodes) == 0 {
		return 0, nil
	}
	began := time.Now()
	defer func() { s.Perf.Record(time.Since(began)) }()

	faults := b.configure(s, false, nil)
	excluded := make(map[domain.Core]bool)
	for {
		if faults > 0 {
			if len(excluded) > 0 {
				return 0, fmt.Errorf("%w: no core left with room for the section", domain.ErrLoadExceeded)
			}
			return 0, fmt.Errorf("%w: section has an unplaceable node", domain.ErrNoManager)
		}
		core, ok := b.commit(s)
		if ok {
			break
		}
		if len(excluded) >= len(b.execs) {
			return 0, fmt.Errorf("%w: %s", domain.ErrLoadExceeded, core)
		}
		b.logger.Info("Core overloaded, re-placing section", "core", core, "load", s.CoreLoad[core])
		excluded[core] = true
		faults = b.configure(s, true, excluded)
	}
	defer b.DecommitLoad(s)

	processed := 0
	var err error
	for n := 0; n < len(s.Nodes); {
		target := s.Nodes[n].Header.MgrIndex
		run := 1
		for n+run < len(s.Nodes) && s.Nodes[n+run].Header.MgrIndex == target {
			run++
		}
		e := b.execs[target]
		var got int
		got, err = e.Submit(ctx, s.Nodes, n, run, sync)
		processed += got
		b.logger.Debug("Run executed", "core", e.Core(), "start", n, "count", run, "executed", got)
		if err != nil || got != run {
			break
		}
		n += run
	}
	if b.observer != nil {
		b.observer.SectionProcessed(len(s.Nodes), processed, time.Since(began).Seconds())
	}
	return processed, err
}

// VerifySection checks every node of s and returns how many passed.
func (b *Boss) VerifySection(s *domain.Section) int {
	return b.verifier.Verify(s.Nodes, 0, len(s.Nodes))
}

// VerifyGraph checks every section and marks g verified if all nodes pass.
func (b *Boss) VerifyGraph(g *domain.Graph) bool {
	if g.Verified {
		return true
	}
	total, verified := 0, 0
	for _, s := range g.Sections {
		total += len(s.Nodes)
		verified += b.VerifySection(s)
	}
	g.Verified = total == verified
	return g.Verified
}

// ProcessGraph runs g's sections in ascending order. Sections sharing an
// order run in parallel; a lone section runs on the caller's goroutine.
// Skipped sections are not run. It returns the number of sections run and
// stops after the first order in which a section failed.
func (b *Boss) ProcessGraph(ctx context.Context, g *domain.Graph, fn SectionFunc) (int, error) {
	if err := g.Check(); err != nil {
		return 0, err
	}
	if !b.VerifyGraph(g) {
		return 0, fmt.Errorf("%w: graph %q did not verify", domain.ErrValidation, g.Name)
	}

	began := time.Now()
	run := 0
	for _, order := range orders(g) {
		var batch []int
		for i, s := range g.Sections {
			if g.Order[i] == order && !s.Skip {
				batch = append(batch, i)
			}
		}
		if len(batch) == 0 {
			continue
		}

		if len(batch) == 1 {
			i := batch[0]
			executed, err := b.ProcessSection(ctx, g.Sections[i], true)
			if fn != nil {
				fn(i, executed)
			}
			run++
			if err != nil {
				return run, fmt.Errorf("section %d: %w", i, err)
			}
			continue
		}

		eg, ectx := errgroup.WithContext(ctx)
		for _, i := range batch {
			eg.Go(func() error {
				executed, err := b.ProcessSection(ectx, g.Sections[i], false)
				if fn != nil {
					fn(i, executed)
				}
				if err != nil {
					return fmt.Errorf("section %d: %w", i, err)
				}
				return nil
			})
		}
		err := eg.Wait()
		run += len(batch)
		if err != nil {
			return run, err
		}
	}

	elapsed := time.Since(began)
	g.TotalPerf.Record(elapsed)
	if b.observer != nil {
		b.observer.GraphProcessed(run, elapsed.Seconds())
	}
	b.logger.Debug("Graph processed", "graph", g.Name, "sections", run, "elapsed", elapsed)
	return run, nil
}

func orders(g *domain.Graph) []int {
	out := slices.Clone(g.Order)
	slices.Sort(out)
	return slices.Compact(out)
}

// SetMaxLoad caps the load the table accepts for core. Zero lifts the cap.
func (b *Boss) SetMaxLoad(core domain.Core, limit uint32) error {
	if _, ok := b.Executor(core); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCore, core)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads[core].Max = limit
	b.logger.Info("Core load limit set", "core", core, "max", limit)
	return nil
}

// GetMaxLoad returns core's load entry.
func (b *Boss) GetMaxLoad(core domain.Core) (Load, error) {
	if _, ok := b.Executor(core); !ok {
		return Load{}, fmt.Errorf("%w: %s", domain.ErrUnknownCore, core)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads[core], nil
}

// CoreInfo describes one core as the scheduler sees it.
type CoreInfo struct {
	Core       domain.Core     `json:"-"`
	ID         string          `json:"core"`
	Name       string          `json:"name,omitempty"`
	Enabled    bool            `json:"enabled"`
	Priority   int             `json:"priority,omitempty"`
	Load       Load            `json:"load"`
	State      string          `json:"state,omitempty"`
	QueueDepth int             `json:"queue_depth"`
	Kernels    []domain.Kernel `json:"kernels,omitempty"`
}

// QueryCores reports on every known core, enabled or not.
func (b *Boss) QueryCores() []CoreInfo {
	b.mu.Lock()
	loads := b.loads
	b.mu.Unlock()

	out := make([]CoreInfo, 0, domain.NumCores)
	for _, core := range domain.Cores() {
		info := CoreInfo{Core: core, ID: core.String(), Load: loads[core]}
		if e, ok := b.Executor(core); ok {
			info.Name = e.Name()
			info.Enabled = true
			info.Priority = e.Priority()
			info.State = e.State().String()
			info.QueueDepth = e.QueueDepth()
			for _, k := range domain.Kernels() {
				if e.Supports(k) {
					info.Kernels = append(info.Kernels, k)
				}
			}
		}
		out = append(out, info)
	}
	return out
}

// QueryCoreForKernel reports whether an enabled executor for core runs k.
func (b *Boss) QueryCoreForKernel(k domain.Kernel, core domain.Core) bool {
	e, ok := b.Executor(core)
	return ok && e.Supports(k)
}
