package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/domain"
)

// Address space bases. Every space hands out page aligned addresses from its
// own range so addresses from different spaces never collide.
const (
	localBase  domain.Addr = 0x0000_1000_0000
	sharedBase domain.Addr = 0x7000_0000_0000
)

func coreBase(c domain.Core) domain.Addr { return domain.Addr(uint64(c)+1) << 40 }

func pageAlign(n int) int {
	if n <= 0 {
		return domain.PageSize
	}
	return (n + domain.PageSize - 1) &^ (domain.PageSize - 1)
}

// region is a run of physical bytes visible at base inside one space.
type region struct {
	base  domain.Addr
	phys  []byte
	cache []byte // the issuing core's cached copy, nil for uncached classes
	class domain.MemClass
}

func (r *region) end() domain.Addr { return r.base + domain.Addr(len(r.phys)) }

type space struct {
	name    string
	regions []*region // sorted by base
	next    domain.Addr
}

func newSpace(name string, base domain.Addr) *space {
	return &space{name: name, next: base}
}

func (s *space) reserve(size int) domain.Addr {
	base := s.next
	s.next += domain.Addr(pageAlign(size))
	return base
}

func (s *space) insert(r *region) {
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].base >= r.base })
	s.regions = append(s.regions, nil)
	copy(s.regions[i+1:], s.regions[i:])
	s.regions[i] = r
}

// find returns the region containing addr and the offset of addr in it.
func (s *space) find(addr domain.Addr) (*region, int, bool) {
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].end() > addr })
	if i == len(s.regions) || s.regions[i].base > addr {
		return nil, 0, false
	}
	r := s.regions[i]
	return r, int(addr - r.base), true
}

func (s *space) remove(base domain.Addr) (*region, bool) {
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].base >= base })
	if i == len(s.regions) || s.regions[i].base != base {
		return nil, false
	}
	r := s.regions[i]
	s.regions = append(s.regions[:i], s.regions[i+1:]...)
	return r, true
}

// span checks that [addr, addr+n) lies inside one region.
func (s *space) span(addr domain.Addr, n int) (*region, int, error) {
	if addr == 0 {
		return nil, 0, fmt.Errorf("%s: %w", s.name, domain.ErrNullAddress)
	}
	r, off, ok := s.find(addr)
	if !ok || n < 0 || off+n > len(r.phys) {
		return nil, 0, fmt.Errorf("%s: %w: 0x%x+%d", s.name, domain.ErrOutOfRange, uint64(addr), n)
	}
	return r, off, nil
}

// MapFault lets tests make the mapping service fail for chosen cores.
type MapFault func(core domain.Core, addr domain.Addr, size int) error

// Fabric simulates the memory system of a multi-core SoC: the issuing core's
// cached virtual memory, the intermediate shared container space and one
// address space per remote core. Mappings alias physical bytes, so a remote
// write is visible locally once the local cache is invalidated.
//
// Fabric implements ports.Mapper, ports.SharedMapper, ports.CacheOps and, for
// the issuing core, ports.AddressSpace.
type Fabric struct {
	mu       sync.RWMutex
	local    *space
	shared   *space
	cores    map[domain.Core]*space
	capacity int64
	used     int64

	fault       MapFault
	mapCalls    map[domain.Core]int
	sharedCalls int
	flushed     int64
	invalidated int64

	logger *slog.Logger
}

// Option configures a Fabric.
type Option func(*Fabric)

// WithCapacity bounds the bytes the local arena may hand out.
func WithCapacity(bytes int64) Option {
	return func(f *Fabric) {
		f.capacity = bytes
	}
}

// WithMapFault installs a failure hook consulted on every Map.
func WithMapFault(fault MapFault) Option {
	return func(f *Fabric) {
		f.fault = fault
	}
}

// WithLogger configures a logger for the Fabric.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fabric) {
		f.logger = logger
	}
}

// NewFabric creates an empty memory system.
func NewFabric(opts ...Option) *Fabric {
	f := &Fabric{
		local:    newSpace("local", localBase),
		shared:   newSpace("shared", sharedBase),
		cores:    make(map[domain.Core]*space),
		mapCalls: make(map[domain.Core]int),
		capacity: 256 << 20,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetMapFault replaces the failure hook.
func (f *Fabric) SetMapFault(fault MapFault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault = fault
}

// Alloc reserves size bytes of local memory of the given class.
func (f *Fabric) Alloc(size int, class domain.MemClass) (domain.Addr, error) {
	if size <= 0 {
		return 0, fmt.Errorf("alloc: invalid size %d", size)
	}
	if !class.Valid() {
		return 0, fmt.Errorf("alloc: invalid memory class %d", class)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.used+int64(size) > f.capacity {
		return 0, fmt.Errorf("alloc: insufficient memory: need %d, available %d", size, f.capacity-f.used)
	}
	r := &region{base: f.local.reserve(size), phys: make([]byte, size), class: class}
	if class.Cached() {
		r.cache = make([]byte, size)
	}
	f.local.insert(r)
	f.used += int64(size)
	return r.base, nil
}

// Free releases a local allocation. Live remote mappings keep aliasing the
// physical bytes until they are unmapped.
func (f *Fabric) Free(addr domain.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.local.remove(addr)
	if !ok {
		return fmt.Errorf("free: %w: 0x%x", domain.ErrOutOfRange, uint64(addr))
	}
	f.used -= int64(len(r.phys))
	return nil
}

// Read returns n bytes of local memory as the issuing core sees them.
func (f *Fabric) Read(addr domain.Addr, n int) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, off, err := f.local.span(addr, n)
	if err != nil {
		return nil, err
	}
	src := r.phys
	if r.cache != nil {
		src = r.cache
	}
	out := make([]byte, n)
	copy(out, src[off:off+n])
	return out, nil
}

// Write stores data at addr through the issuing core's cache.
func (f *Fabric) Write(addr domain.Addr, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, off, err := f.local.span(addr, len(data))
	if err != nil {
		return err
	}
	dst := r.phys
	if r.cache != nil {
		dst = r.cache
	}
	copy(dst[off:], data)
	return nil
}

// Flush writes cached bytes back to physical memory.
func (f *Fabric) Flush(addr domain.Addr, size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, off, err := f.local.span(addr, size)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if r.cache != nil {
		copy(r.phys[off:off+size], r.cache[off:off+size])
		f.flushed += int64(size)
	}
	return nil
}

// Invalidate drops cached bytes so the next read observes physical memory.
func (f *Fabric) Invalidate(addr domain.Addr, size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, off, err := f.local.span(addr, size)
	if err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	if r.cache != nil {
		copy(r.cache[off:off+size], r.phys[off:off+size])
		f.invalidated += int64(size)
	}
	return nil
}

// MapShared exposes local memory in the intermediate container space.
func (f *Fabric) MapShared(local domain.Addr, size int, class domain.MemClass) (domain.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, off, err := f.local.span(local, size)
	if err != nil {
		return 0, fmt.Errorf("map shared: %w", err)
	}
	r := &region{base: f.shared.reserve(size), phys: src.phys[off : off+size : off+size], class: class}
	f.shared.insert(r)
	f.sharedCalls++
	f.logger.Debug("Mapped shared", "local", local, "shared", r.base, "size", size)
	return r.base, nil
}

// UnmapShared releases an intermediate mapping.
func (f *Fabric) UnmapShared(shared domain.Addr, size int, class domain.MemClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.shared.remove(shared); !ok {
		return fmt.Errorf("unmap shared: %w: 0x%x", domain.ErrOutOfRange, uint64(shared))
	}
	return nil
}

// Map exposes size bytes at addr (local or intermediate) to core.
func (f *Fabric) Map(core domain.Core, addr domain.Addr, size int, class domain.MemClass) (domain.Addr, error) {
	if !core.Remote() {
		return 0, fmt.Errorf("map: %w: %s", domain.ErrUnknownCore, core)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapCalls[core]++
	if f.fault != nil {
		if err := f.fault(core, addr, size); err != nil {
			return 0, fmt.Errorf("map on %s: %w", core, err)
		}
	}

	src := f.local
	if addr >= sharedBase {
		src = f.shared
	}
	from, off, err := src.span(addr, size)
	if err != nil {
		return 0, fmt.Errorf("map on %s: %w", core, err)
	}
	dst, ok := f.cores[core]
	if !ok {
		dst = newSpace(core.String(), coreBase(core))
		f.cores[core] = dst
	}
	r := &region{base: dst.reserve(size), phys: from.phys[off : off+size : off+size], class: class}
	dst.insert(r)
	return r.base, nil
}

// Unmap releases a mapping made by Map.
func (f *Fabric) Unmap(core domain.Core, remote domain.Addr, size int, class domain.MemClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.cores[core]
	if !ok {
		return fmt.Errorf("unmap: no mappings on %s", core)
	}
	if _, ok := s.remove(remote); !ok {
		return fmt.Errorf("unmap on %s: %w: 0x%x", core, domain.ErrOutOfRange, uint64(remote))
	}
	return nil
}

// Space returns core's view of memory. For CoreCPU it is the Fabric itself.
func (f *Fabric) Space(core domain.Core) *CoreView {
	return &CoreView{fabric: f, core: core}
}

// MapCalls reports how many times Map was invoked for core.
func (f *Fabric) MapCalls(core domain.Core) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mapCalls[core]
}

// SharedMaps reports how many intermediate mappings were created.
func (f *Fabric) SharedMaps() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sharedCalls
}

// Live reports how many mappings core currently holds.
func (f *Fabric) Live(core domain.Core) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.cores[core]; ok {
		return len(s.regions)
	}
	return 0
}

// Usage is the fraction of capacity handed out.
func (f *Fabric) Usage() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.capacity == 0 {
		return 0
	}
	return float64(f.used) / float64(f.capacity)
}

// CoreView is one remote core's byte level access to the fabric. Remote cores
// bypass the issuing core's cache.
type CoreView struct {
	fabric *Fabric
	core   domain.Core
}

// Read copies n bytes at addr in the core's space.
func (v *CoreView) Read(addr domain.Addr, n int) ([]byte, error) {
	if v.core == domain.CoreCPU {
		return v.fabric.Read(addr, n)
	}
	f := v.fabric
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.cores[v.core]
	if !ok {
		return nil, fmt.Errorf("%s: %w: 0x%x", v.core, domain.ErrOutOfRange, uint64(addr))
	}
	r, off, err := s.span(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.phys[off:off+n])
	return out, nil
}

// Write stores data at addr in the core's space.
func (v *CoreView) Write(addr domain.Addr, data []byte) error {
	if v.core == domain.CoreCPU {
		return v.fabric.Write(addr, data)
	}
	f := v.fabric
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.cores[v.core]
	if !ok {
		return fmt.Errorf("%s: %w: 0x%x", v.core, domain.ErrOutOfRange, uint64(addr))
	}
	r, off, err := s.span(addr, len(data))
	if err != nil {
		return err
	}
	copy(r.phys[off:], data)
	return nil
}

// CacheTraffic reports the bytes written back and dropped by cache maintenance.
func (f *Fabric) CacheTraffic() (flushed, invalidated int64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.flushed, f.invalidated
}
