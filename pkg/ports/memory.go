package ports

import "github.com/aretw0/hetcore/pkg/domain"

// Mapper is the platform's cross-core mapping service.
type Mapper interface {
	// Map makes size bytes at addr visible to core and returns the address
	// the core must use. addr is either a local or an intermediate address.
	Map(core domain.Core, addr domain.Addr, size int, class domain.MemClass) (domain.Addr, error)
	// Unmap releases a mapping previously returned by Map.
	Unmap(core domain.Core, remote domain.Addr, size int, class domain.MemClass) error
}

// SharedMapper maps local memory into the intermediate container space used
// by two-hop memory classes.
type SharedMapper interface {
	MapShared(local domain.Addr, size int, class domain.MemClass) (domain.Addr, error)
	UnmapShared(shared domain.Addr, size int, class domain.MemClass) error
}

// CacheOps performs data cache maintenance on the issuing core.
type CacheOps interface {
	Flush(addr domain.Addr, size int) error
	Invalidate(addr domain.Addr, size int) error
}

// AddressSpace gives byte level access to one core's view of memory.
type AddressSpace interface {
	Read(addr domain.Addr, n int) ([]byte, error)
	Write(addr domain.Addr, data []byte) error
}

// Geometry computes image plane extents.
type Geometry interface {
	PlaneSize(img *domain.Image, plane int) int
}

// Allocator hands out memory in the issuing core's address space.
type Allocator interface {
	Alloc(size int, class domain.MemClass) (domain.Addr, error)
	Free(addr domain.Addr) error
}
