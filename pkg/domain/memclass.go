package domain

import (
	"fmt"
	"strings"
)

// MemClass categorizes the memory backing a buffer. The class decides which
// mapping path and which cache maintenance rules apply.
type MemClass uint32

const (
	MPUCachedVirtual MemClass = iota
	MPUCached1DTiled
	MPUNonCached1DTiled
	MPUNonCached2DTiled
	Display2DTiled
	Gralloc2DTiled
	MPUCachedVirtualShared
	Camera1DTiled
	memClassMax
)

const (
	// DefaultMemClass is used for image and buffer allocations that do not ask
	// for anything specific.
	DefaultMemClass = MPUCached1DTiled
	// KernelGraphMemClass backs the node arrays shared with remote cores.
	KernelGraphMemClass = MPUNonCached1DTiled
)

var memClassNames = [...]string{
	MPUCachedVirtual:       "cached-virtual",
	MPUCached1DTiled:       "cached-1d-tiled",
	MPUNonCached1DTiled:    "uncached-1d-tiled",
	MPUNonCached2DTiled:    "uncached-2d-tiled",
	Display2DTiled:         "display-2d-tiled",
	Gralloc2DTiled:         "gralloc-2d-tiled",
	MPUCachedVirtualShared: "cached-virtual-shared",
	Camera1DTiled:          "camera-1d-tiled",
}

// Valid reports whether m is a known memory class.
func (m MemClass) Valid() bool { return m < memClassMax }

// Cached reports whether the issuing core accesses m through its data cache.
// Uncached, display and graphics owned memory is coherent by construction.
func (m MemClass) Cached() bool {
	switch m {
	case MPUNonCached1DTiled, MPUNonCached2DTiled, Display2DTiled, Gralloc2DTiled:
		return false
	}
	return m.Valid()
}

// TwoHop reports whether buffers of class m reach remote cores through the
// intermediate shared container space.
func (m MemClass) TwoHop() bool { return m == MPUCached1DTiled }

func (m MemClass) String() string {
	if !m.Valid() {
		return fmt.Sprintf("memclass(%d)", uint32(m))
	}
	return memClassNames[m]
}

// ParseMemClass resolves a memory class by name. An empty name yields the
// default class.
func ParseMemClass(name string) (MemClass, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "default":
		return DefaultMemClass, nil
	case "kernelgraph", "kernel-graph":
		return KernelGraphMemClass, nil
	}
	for i, n := range memClassNames {
		if n == name {
			return MemClass(i), nil
		}
	}
	return 0, fmt.Errorf("unknown memory class %q", name)
}

// MemClasses returns every valid memory class in declaration order.
func MemClasses() []MemClass {
	out := make([]MemClass, 0, memClassMax)
	for m := MPUCachedVirtual; m < memClassMax; m++ {
		out = append(out, m)
	}
	return out
}

// MarshalText encodes m by name.
func (m MemClass) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
