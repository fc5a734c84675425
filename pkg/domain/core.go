package domain

import (
	"fmt"
	"strings"
)

// Core identifies an independent execution unit with its own address space.
type Core int32

// Known cores. CoreCPU is the issuing (local) core and is always last.
const (
	CoreAny Core = iota - 1
	CoreDSP
	CoreSIMCOP
	CoreMCU0
	CoreMCU1
	CoreGPU
	CoreEVE
	CoreCPU
	coreMax
)

var coreNames = [...]string{
	CoreDSP:    "dsp",
	CoreSIMCOP: "simcop",
	CoreMCU0:   "mcu0",
	CoreMCU1:   "mcu1",
	CoreGPU:    "gpu",
	CoreEVE:    "eve",
	CoreCPU:    "cpu",
}

// NumCores is the number of addressable cores, including the CPU.
const NumCores = int(coreMax)

// Valid reports whether c names a real core.
func (c Core) Valid() bool { return c >= CoreDSP && c < coreMax }

// Remote reports whether c lives in a separate address space.
func (c Core) Remote() bool { return c.Valid() && c != CoreCPU }

func (c Core) String() string {
	if c == CoreAny {
		return "any"
	}
	if !c.Valid() {
		return fmt.Sprintf("core(%d)", int32(c))
	}
	return coreNames[c]
}

// ParseCore resolves a core by its lower-case name.
func ParseCore(name string) (Core, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "any" {
		return CoreAny, nil
	}
	for i, n := range coreNames {
		if n == name {
			return Core(i), nil
		}
	}
	return CoreAny, fmt.Errorf("%w: %q", ErrUnknownCore, name)
}

// Cores returns every valid core in index order.
func Cores() []Core {
	out := make([]Core, 0, NumCores)
	for c := CoreDSP; c < coreMax; c++ {
		out = append(out, c)
	}
	return out
}

// MarshalText encodes c by name.
func (c Core) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText resolves a core name.
func (c *Core) UnmarshalText(b []byte) error {
	v, err := ParseCore(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
