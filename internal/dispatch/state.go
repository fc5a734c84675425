// Package dispatch runs node sub-graphs on one core: the per-core worker
// with its bounded queue and result mailbox for remote cores, and a local
// executor for the issuing CPU.
package dispatch

import (
	"context"
	"fmt"

	"github.com/aretw0/hetcore/pkg/domain"
)

// State is where a core's manager is in its execution cycle.
type State int32

const (
	StateIdle State = iota
	StateExecuting
	StateReturning
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateReturning:
		return "returning"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Executor is what the scheduler drives. Both Manager and Local implement it.
type Executor interface {
	Core() domain.Core
	Name() string
	Priority() int
	Supports(k domain.Kernel) bool
	Submit(ctx context.Context, nodes []domain.KernelNode, start, count int, sync bool) (int, error)
	State() State
	QueueDepth() int
}

// Observer receives dispatch events.
type Observer interface {
	Dispatched(core domain.Core, nodes int, err error, seconds float64)
	StateChanged(core domain.Core, s State)
}

// checkRange validates a (start, count) window over nodes.
func checkRange(nodes []domain.KernelNode, start, count int) error {
	if start < 0 || count < 0 || start+count > len(nodes) {
		return fmt.Errorf("%w: window [%d, %d) over %d nodes", domain.ErrValidation, start, start+count, len(nodes))
	}
	return nil
}

// knownPrefix returns how many leading nodes have a kernel in the table and,
// if it stops early, the error naming the offending node.
func knownPrefix(sub []domain.KernelNode, start int) (int, error) {
	for i := range sub {
		if _, ok := domain.LookupKernel(sub[i].Header.Kernel); !ok {
			return i, fmt.Errorf("node %d: %w: %d", start+i, domain.ErrUnknownKernel, sub[i].Header.Kernel)
		}
	}
	return len(sub), nil
}
