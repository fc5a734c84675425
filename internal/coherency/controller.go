// Package coherency keeps the issuing core's data cache consistent with the
// memory remote cores read and write, and moves buffer descriptors between
// address spaces.
package coherency

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/aretw0/hetcore/pkg/ports"
)

// Translator moves addresses between the issuing core and a remote core.
// *xlate.Cache implements it.
type Translator interface {
	Translate(core domain.Core, local domain.Addr, size int, class domain.MemClass) (domain.Addr, error)
	TranslateBack(core domain.Core, remote domain.Addr, class domain.MemClass) (domain.Addr, error)
}

// Op is a cache maintenance operation.
type Op int

const (
	OpFlush Op = iota
	OpInvalidate
)

func (o Op) String() string {
	if o == OpInvalidate {
		return "invalidate"
	}
	return "flush"
}

// Observer receives cache maintenance events.
type Observer interface {
	CacheOp(op Op, class domain.MemClass, bytes int)
}

// Controller performs cache maintenance around remote calls.
type Controller struct {
	ops      ports.CacheOps
	xlate    Translator
	geom     ports.Geometry
	observer Observer
	logger   *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithGeometry replaces the default plane geometry.
func WithGeometry(g ports.Geometry) Option {
	return func(c *Controller) {
		c.geom = g
	}
}

// WithObserver reports maintenance events to o.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithLogger configures a logger for the Controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a controller.
func New(ops ports.CacheOps, xlate Translator, opts ...Option) *Controller {
	c := &Controller{
		ops:    ops,
		xlate:  xlate,
		geom:   geometry.Planar{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Flush writes back size bytes at addr before core reads them. Uncached
// classes need no maintenance.
func (c *Controller) Flush(core domain.Core, addr domain.Addr, size int, class domain.MemClass) error {
	return c.do(OpFlush, core, addr, size, class)
}

// Invalidate discards cached bytes at addr after core wrote them.
func (c *Controller) Invalidate(core domain.Core, addr domain.Addr, size int, class domain.MemClass) error {
	return c.do(OpInvalidate, core, addr, size, class)
}

func (c *Controller) do(op Op, core domain.Core, addr domain.Addr, size int, class domain.MemClass) error {
	if !class.Cached() || size <= 0 {
		return nil
	}
	var err error
	if op == OpFlush {
		err = c.ops.Flush(addr, size)
	} else {
		err = c.ops.Invalidate(addr, size)
	}
	if err != nil {
		return fmt.Errorf("%s 0x%x for %s: %w", op, uint64(addr), core, err)
	}
	if c.observer != nil {
		c.observer.CacheOp(op, class, size)
	}
	c.logger.Debug("Cache maintenance", "op", op, "core", core, "addr", addr, "size", size, "class", class)
	return nil
}

// PrepareImage flushes img's planes if the remote core reads them and
// rewrites its addresses into core's space.
func (c *Controller) PrepareImage(core domain.Core, img *domain.Image, dir domain.Direction) error {
	for p := 0; p < int(img.Planes) && p < domain.MaxPlanes; p++ {
		local := img.Buffer[p]
		size := c.geom.PlaneSize(img, p)
		if dir.Reads() && !img.SkipFlush {
			if err := c.Flush(core, local, size, img.MemClass); err != nil {
				return fmt.Errorf("plane %d: %w", p, err)
			}
		}
		remote, err := c.xlate.Translate(core, local, size, img.MemClass)
		if err != nil {
			return fmt.Errorf("plane %d: %w", p, err)
		}
		img.Buffer[p] = remote
	}
	img.Rebase()
	return nil
}

// ReturnImage restores img's local addresses and invalidates the planes core
// wrote.
func (c *Controller) ReturnImage(core domain.Core, img *domain.Image, dir domain.Direction) error {
	for p := 0; p < int(img.Planes) && p < domain.MaxPlanes; p++ {
		local, err := c.xlate.TranslateBack(core, img.Buffer[p], img.MemClass)
		if err != nil {
			return fmt.Errorf("plane %d: %w", p, err)
		}
		img.Buffer[p] = local
	}
	img.Rebase()
	if !dir.Writes() || img.SkipInvalidate {
		return nil
	}
	for p := 0; p < int(img.Planes) && p < domain.MaxPlanes; p++ {
		if err := c.Invalidate(core, img.Buffer[p], c.geom.PlaneSize(img, p), img.MemClass); err != nil {
			return fmt.Errorf("plane %d: %w", p, err)
		}
	}
	return nil
}

// PrepareBuffer is PrepareImage for a flat buffer.
func (c *Controller) PrepareBuffer(core domain.Core, b *domain.Buffer, dir domain.Direction) error {
	size := int(b.NumBytes)
	if dir.Reads() && !b.SkipFlush {
		if err := c.Flush(core, b.Data, size, b.MemClass); err != nil {
			return err
		}
	}
	remote, err := c.xlate.Translate(core, b.Data, size, b.MemClass)
	if err != nil {
		return err
	}
	b.Data = remote
	return nil
}

// ReturnBuffer is ReturnImage for a flat buffer.
func (c *Controller) ReturnBuffer(core domain.Core, b *domain.Buffer, dir domain.Direction) error {
	local, err := c.xlate.TranslateBack(core, b.Data, b.MemClass)
	if err != nil {
		return err
	}
	b.Data = local
	if dir.Writes() && !b.SkipInvalidate {
		return c.Invalidate(core, b.Data, int(b.NumBytes), b.MemClass)
	}
	return nil
}
