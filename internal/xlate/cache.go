// Package xlate keeps the bidirectional address translations between the
// issuing core and every remote core.
package xlate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
)

type key struct {
	core  domain.Core
	class domain.MemClass
}

type entry struct {
	remote domain.Addr
	size   int
	class  domain.MemClass
}

// Observer receives translation events. internal/metrics implements it.
type Observer interface {
	TranslationHit(core domain.Core, class domain.MemClass)
	TranslationMiss(core domain.Core, class domain.MemClass)
	MapFailure(core domain.Core, class domain.MemClass)
	Unwind(class domain.MemClass)
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits     int64         `json:"hits"`
	Misses   int64         `json:"misses"`
	Failures int64         `json:"failures"`
	Unwinds  int64         `json:"unwinds"`
	Shared   int           `json:"shared"`
	Live     []LiveCount   `json:"live"`
	Cores    []domain.Core `json:"cores"`
	Fanout   bool          `json:"fanout"`
}

// LiveCount is the number of translations held for one (core, class).
type LiveCount struct {
	Core    domain.Core     `json:"core"`
	Class   domain.MemClass `json:"class"`
	Entries int             `json:"entries"`
}

// Cache translates issuing-core addresses into remote-core addresses and
// back. A miss maps the buffer on every enabled core (fan-out priming) unless
// fan-out is disabled. A failure on any core unwinds every entry of the buffer.
//
// All maps are guarded by one mutex.
type Cache struct {
	mu     sync.Mutex
	mapper ports.Mapper
	shared ports.SharedMapper
	cores  []domain.Core
	fanout bool

	fwd  map[key]map[domain.Addr]entry
	back map[key]map[domain.Addr]domain.Addr

	// two-hop chain: local <-> intermediate, shared by all cores
	toShared   map[domain.Addr]entry
	fromShared map[domain.Addr]domain.Addr

	hits, misses, failures, unwinds int64

	observer Observer
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithFanout toggles fan-out priming. It is on by default.
func WithFanout(enabled bool) Option {
	return func(c *Cache) {
		c.fanout = enabled
	}
}

// WithSharedMapper enables the two-hop path for classes that need it.
func WithSharedMapper(m ports.SharedMapper) Option {
	return func(c *Cache) {
		c.shared = m
	}
}

// WithObserver reports events to o.
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		c.observer = o
	}
}

// WithLogger configures a logger for the Cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache that maps through mapper onto the enabled remote cores.
func New(mapper ports.Mapper, cores []domain.Core, opts ...Option) *Cache {
	enabled := make([]domain.Core, 0, len(cores))
	for _, core := range cores {
		if core.Remote() {
			enabled = append(enabled, core)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i] < enabled[j] })

	c := &Cache{
		mapper:     mapper,
		cores:      enabled,
		fanout:     true,
		fwd:        make(map[key]map[domain.Addr]entry),
		back:       make(map[key]map[domain.Addr]domain.Addr),
		toShared:   make(map[domain.Addr]entry),
		fromShared: make(map[domain.Addr]domain.Addr),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) enabled(core domain.Core) bool {
	for _, e := range c.cores {
		if e == core {
			return true
		}
	}
	return false
}

func (c *Cache) twoHop(class domain.MemClass) bool {
	return c.shared != nil && class.TwoHop()
}

// Translate returns core's address for size bytes at local. Translating for
// the CPU is the identity. A mapping is never grown: asking for more bytes
// than the cached mapping covers fails with ErrMapping.
func (c *Cache) Translate(core domain.Core, local domain.Addr, size int, class domain.MemClass) (domain.Addr, error) {
	if local == 0 {
		return 0, domain.ErrNullAddress
	}
	if core == domain.CoreCPU {
		return local, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled(core) {
		return 0, fmt.Errorf("translate for %s: %w", core, domain.ErrCoreDisabled)
	}

	k := key{core, class}
	if src, ok := c.sourceLocked(local, class); ok {
		if e, ok := c.fwd[k][src]; ok {
			if size > e.size {
				return 0, fmt.Errorf("translate 0x%x on %s: %w: %d bytes requested, %d mapped",
					uint64(local), core, domain.ErrMapping, size, e.size)
			}
			c.hits++
			if c.observer != nil {
				c.observer.TranslationHit(core, class)
			}
			return e.remote, nil
		}
	}

	c.misses++
	if c.observer != nil {
		c.observer.TranslationMiss(core, class)
	}

	targets := []domain.Core{core}
	if c.fanout {
		targets = c.cores
	}
	if err := c.mapLocked(targets, local, size, class); err != nil {
		return 0, err
	}
	src, _ := c.sourceLocked(local, class)
	return c.fwd[k][src].remote, nil
}

// sourceLocked returns the address per-core maps are keyed by: the local
// address, or its intermediate address for two-hop classes.
func (c *Cache) sourceLocked(local domain.Addr, class domain.MemClass) (domain.Addr, bool) {
	if !c.twoHop(class) {
		return local, true
	}
	e, ok := c.toShared[local]
	return e.remote, ok
}

// Prime maps local on every enabled core without translating for any one of
// them.
func (c *Cache) Prime(local domain.Addr, size int, class domain.MemClass) error {
	if local == 0 || size <= 0 {
		return fmt.Errorf("prime: %w", domain.ErrNullAddress)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mapLocked(c.cores, local, size, class)
}

// mapLocked maps local on each target core that does not hold it yet. Any
// failure unwinds every entry of local.
func (c *Cache) mapLocked(targets []domain.Core, local domain.Addr, size int, class domain.MemClass) error {
	src := local
	if c.twoHop(class) {
		e, ok := c.toShared[local]
		if !ok {
			shared, err := c.shared.MapShared(local, size, class)
			if err != nil {
				c.failures++
				c.logger.Warn("Intermediate mapping failed", "local", local, "size", size, "class", class, "err", err)
				return fmt.Errorf("map 0x%x to shared space: %w: %w", uint64(local), domain.ErrMapping, err)
			}
			e = entry{remote: shared, size: size, class: class}
			c.toShared[local] = e
			c.fromShared[shared] = local
		}
		src = e.remote
	}

	for _, core := range targets {
		k := key{core, class}
		if _, ok := c.fwd[k][src]; ok {
			continue
		}
		remote, err := c.mapper.Map(core, src, size, class)
		if err != nil {
			c.failures++
			if c.observer != nil {
				c.observer.MapFailure(core, class)
			}
			c.logger.Warn("Mapping failed, unwinding buffer", "core", core, "local", local, "class", class, "err", err)
			if uerr := c.removeLocked(local, class); uerr != nil {
				c.logger.Error("Unwind incomplete", "local", local, "err", uerr)
			}
			c.unwinds++
			if c.observer != nil {
				c.observer.Unwind(class)
			}
			return fmt.Errorf("map 0x%x on %s: %w: %w", uint64(local), core, domain.ErrMapping, err)
		}
		if c.fwd[k] == nil {
			c.fwd[k] = make(map[domain.Addr]entry)
			c.back[k] = make(map[domain.Addr]domain.Addr)
		}
		c.fwd[k][src] = entry{remote: remote, size: size, class: class}
		c.back[k][remote] = src
		c.logger.Debug("Mapped buffer", "core", core, "local", local, "remote", remote, "size", size, "class", class)
	}
	return nil
}

// TranslateBack returns the issuing-core address for an address previously
// produced by Translate.
func (c *Cache) TranslateBack(core domain.Core, remote domain.Addr, class domain.MemClass) (domain.Addr, error) {
	if remote == 0 {
		return 0, domain.ErrNullAddress
	}
	if core == domain.CoreCPU {
		return remote, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	src, ok := c.back[key{core, class}][remote]
	if !ok {
		return 0, fmt.Errorf("translate back 0x%x on %s: %w: no entry", uint64(remote), core, domain.ErrMapping)
	}
	if !c.twoHop(class) {
		return src, nil
	}
	local, ok := c.fromShared[src]
	if !ok {
		return 0, fmt.Errorf("translate back 0x%x on %s: %w: no intermediate entry", uint64(remote), core, domain.ErrMapping)
	}
	return local, nil
}

// Remove unmaps local from every core and forgets both directions. Removing
// an unknown buffer is a no-op.
func (c *Cache) Remove(local domain.Addr, size int, class domain.MemClass) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(local, class)
}

func (c *Cache) removeLocked(local domain.Addr, class domain.MemClass) error {
	var errs []error
	src := local
	hop, chained := c.toShared[local]
	chained = chained && c.twoHop(class)
	if chained {
		src = hop.remote
	}
	for k, fwd := range c.fwd {
		if k.class != class {
			continue
		}
		e, ok := fwd[src]
		if !ok {
			continue
		}
		if err := c.mapper.Unmap(k.core, e.remote, e.size, class); err != nil {
			errs = append(errs, fmt.Errorf("unmap on %s: %w", k.core, err))
		}
		delete(fwd, src)
		delete(c.back[k], e.remote)
	}
	if chained {
		if err := c.shared.UnmapShared(hop.remote, hop.size, class); err != nil {
			errs = append(errs, fmt.Errorf("unmap shared: %w", err))
		}
		delete(c.toShared, local)
		delete(c.fromShared, hop.remote)
	}
	return errors.Join(errs...)
}

// Clear removes every translation. Used at engine shutdown.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for k, fwd := range c.fwd {
		for src, e := range fwd {
			if err := c.mapper.Unmap(k.core, e.remote, e.size, k.class); err != nil {
				errs = append(errs, err)
			}
			delete(fwd, src)
		}
		delete(c.back, k)
		delete(c.fwd, k)
	}
	for local, e := range c.toShared {
		if err := c.shared.UnmapShared(e.remote, e.size, e.class); err != nil {
			errs = append(errs, err)
		}
		delete(c.toShared, local)
		delete(c.fromShared, e.remote)
	}
	return errors.Join(errs...)
}

// Cores returns the cores translations fan out to.
func (c *Cache) Cores() []domain.Core {
	return append([]domain.Core(nil), c.cores...)
}

// Stats snapshots the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Failures: c.failures,
		Unwinds:  c.unwinds,
		Shared:   len(c.toShared),
		Cores:    append([]domain.Core(nil), c.cores...),
		Fanout:   c.fanout,
	}
	for k, fwd := range c.fwd {
		if len(fwd) > 0 {
			s.Live = append(s.Live, LiveCount{Core: k.core, Class: k.class, Entries: len(fwd)})
		}
	}
	sort.Slice(s.Live, func(i, j int) bool {
		if s.Live[i].Core != s.Live[j].Core {
			return s.Live[i].Core < s.Live[j].Core
		}
		return s.Live[i].Class < s.Live[j].Class
	})
	return s
}
