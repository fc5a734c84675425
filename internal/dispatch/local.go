package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/hetcore/internal/kernels"
	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/corelock"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
)

// LocalPriority ranks the CPU below every remote core.
const LocalPriority = -1

// Local executes nodes on the issuing CPU with the reference kernels. Every
// submission runs on the caller's goroutine.
type Local struct {
	space    ports.AddressSpace
	name     string
	locks    *corelock.Manager
	state    atomic.Int32
	observer Observer
	logger   *slog.Logger
}

// LocalOption configures a Local executor.
type LocalOption func(*Local)

// WithLocalName overrides the display name.
func WithLocalName(name string) LocalOption {
	return func(l *Local) {
		l.name = name
	}
}

// WithLocalLocks shares an execution lock manager.
func WithLocalLocks(m *corelock.Manager) LocalOption {
	return func(l *Local) {
		l.locks = m
	}
}

// WithLocalObserver reports dispatch events to o.
func WithLocalObserver(o Observer) LocalOption {
	return func(l *Local) {
		l.observer = o
	}
}

// WithLocalLogger configures a logger for the executor.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// NewLocal creates the CPU executor over the issuing core's memory.
func NewLocal(space ports.AddressSpace, opts ...LocalOption) *Local {
	l := &Local{space: space, name: domain.CoreCPU.String(), logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.locks == nil {
		l.locks = corelock.NewManager()
	}
	return l
}

func (l *Local) Core() domain.Core { return domain.CoreCPU }
func (l *Local) Name() string      { return l.name }
func (l *Local) Priority() int     { return LocalPriority }
func (l *Local) QueueDepth() int   { return 0 }
func (l *Local) State() State      { return State(l.state.Load()) }

// Supports reports whether k is in the kernel table.
func (l *Local) Supports(k domain.Kernel) bool {
	_, ok := domain.LookupKernel(k)
	return ok
}

// Submit runs the window in place. sync is ignored.
func (l *Local) Submit(ctx context.Context, nodes []domain.KernelNode, start, count int, sync bool) (int, error) {
	if err := checkRange(nodes, start, count); err != nil {
		return 0, err
	}
	sub := nodes[start : start+count]
	n, kerr := knownPrefix(sub, start)
	if n == 0 {
		return 0, kerr
	}

	began := time.Now()
	executed := 0
	err := l.locks.WithLock(ctx, "core:"+domain.CoreCPU.String(), func(ctx context.Context) error {
		l.setState(StateExecuting)
		defer l.setState(StateIdle)
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			status := kernels.Execute(l.space, &sub[i])
			sub[i].Header.Error = status
			if status == domain.StatusNotImplemented {
				return nil
			}
			executed++
		}
		return nil
	})
	if err == nil && executed == n {
		err = kerr
	}
	if err != nil {
		l.logger.Debug("Local dispatch stopped", "executed", executed, "err", err)
		err = fmt.Errorf("%s: %w", l.name, err)
	}
	if l.observer != nil {
		l.observer.Dispatched(domain.CoreCPU, executed, err, time.Since(began).Seconds())
	}
	return executed, err
}

func (l *Local) setState(s State) {
	if State(l.state.Swap(int32(s))) != s && l.observer != nil {
		l.observer.StateChanged(domain.CoreCPU, s)
	}
}
