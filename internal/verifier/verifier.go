// Package verifier checks kernel nodes before they are dispatched.
package verifier

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/aretw0/hetcore/pkg/ports"
)

// Verifier validates node operands against the kernel table. It only ever
// writes Header.Error.
type Verifier struct {
	geom   ports.Geometry
	logger *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithGeometry replaces the default plane geometry.
func WithGeometry(g ports.Geometry) Option {
	return func(v *Verifier) {
		v.geom = g
	}
}

// WithLogger configures a logger for the Verifier.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// New creates a Verifier.
func New(opts ...Option) *Verifier {
	v := &Verifier{geom: geometry.Planar{}, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks nodes[start:start+count], records each verdict in the node's
// error field and returns how many nodes passed. The range is clipped to the
// slice.
func (v *Verifier) Verify(nodes []domain.KernelNode, start, count int) int {
	if start < 0 {
		start = 0
	}
	end := min(start+count, len(nodes))
	verified := 0
	for i := start; i < end; i++ {
		n := &nodes[i]
		n.Header.Error = domain.StatusSuccess
		status, err := v.check(n)
		if err != nil {
			n.Header.Error = status
			v.logger.Debug("Node rejected", "index", i, "kernel", n.Header.Kernel, "status", status, "err", err)
			continue
		}
		verified++
	}
	return verified
}

// Check reports why n would be rejected, or nil.
func (v *Verifier) Check(n *domain.KernelNode) error {
	_, err := v.check(n)
	return err
}

func (v *Verifier) check(n *domain.KernelNode) (domain.Status, error) {
	spec, ok := domain.LookupKernel(n.Header.Kernel)
	if !ok {
		return domain.StatusNotImplemented, fmt.Errorf("%w: %d", domain.ErrUnknownKernel, n.Header.Kernel)
	}
	if err := v.checkKernel(spec, n); err != nil {
		return domain.StatusInvalidParameter, fmt.Errorf("%s: %w", spec.Name, err)
	}
	return domain.StatusSuccess, nil
}

func (v *Verifier) checkKernel(spec *domain.KernelSpec, n *domain.KernelNode) error {
	var imgs []domain.Image
	var bufs []domain.Buffer
	for slot, op := range spec.Operands {
		if op.Kind == domain.KindBuffer {
			b, err := n.Buffer(slot)
			if err != nil {
				return err
			}
			if err := checkBuffer(op.Name, &b); err != nil {
				return err
			}
			bufs = append(bufs, b)
			continue
		}
		img, err := n.Image(slot)
		if err != nil {
			return err
		}
		if err := v.checkImage(spec, op.Name, &img); err != nil {
			return err
		}
		imgs = append(imgs, img)
	}

	switch spec.Group {
	case domain.GroupTransform:
		return transform(spec, &imgs[0], &imgs[1])
	case domain.GroupMorphology:
		if err := formats(spec, &imgs[0], imgs[1:2]); err != nil {
			return err
		}
		if len(imgs) > 2 && imgs[2].Color != domain.FourCCY800 {
			return fmt.Errorf("%w: mask must be Y800, got %s", domain.ErrValidation, imgs[2].Color)
		}
		return covers(&imgs[0], &imgs[1])
	case domain.GroupGradient:
		if err := formats(spec, &imgs[0], imgs[1:]); err != nil {
			return err
		}
		for i := 1; i < len(imgs); i++ {
			if err := covers(&imgs[0], &imgs[i]); err != nil {
				return err
			}
		}
	case domain.GroupHistogram:
		if err := formats(spec, &imgs[0], nil); err != nil {
			return err
		}
		if bufs[0].NumBytes < 4*256 {
			return fmt.Errorf("%w: histogram needs %d bytes, buffer has %d", domain.ErrValidation, 4*256, bufs[0].NumBytes)
		}
	}
	return nil
}

func transform(spec *domain.KernelSpec, in, out *domain.Image) error {
	if len(spec.From) == 0 && len(spec.To) == 0 {
		if in.Color != out.Color {
			return fmt.Errorf("%w: %s cannot convert %s to %s", domain.ErrValidation, spec.Name, in.Color, out.Color)
		}
		// Colour agnostic kernels move bytes of plane 0 only.
		for _, img := range []*domain.Image{in, out} {
			if img.Planes != 1 || abs64(int64(img.XStride)) != 1 {
				return fmt.Errorf("%w: %s needs single plane 8-bit images, got %s with %d planes", domain.ErrValidation, spec.Name, img.Color, img.Planes)
			}
		}
	}
	if err := formats(spec, in, []domain.Image{*out}); err != nil {
		return err
	}
	return covers(in, out)
}

func formats(spec *domain.KernelSpec, in *domain.Image, outs []domain.Image) error {
	if len(spec.From) > 0 && !slices.Contains(spec.From, in.Color) {
		return fmt.Errorf("%w: input color %s not accepted", domain.ErrValidation, in.Color)
	}
	for _, out := range outs {
		if len(spec.To) > 0 && !slices.Contains(spec.To, out.Color) {
			return fmt.Errorf("%w: output color %s not accepted", domain.ErrValidation, out.Color)
		}
	}
	return nil
}

// covers checks that out is at least as large as in.
func covers(in, out *domain.Image) error {
	if out.Width < in.Width || out.Height < in.Height {
		return fmt.Errorf("%w: output %dx%d smaller than input %dx%d", domain.ErrValidation, out.Width, out.Height, in.Width, in.Height)
	}
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (v *Verifier) checkImage(spec *domain.KernelSpec, name string, img *domain.Image) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", domain.ErrValidation, name, fmt.Sprintf(format, args...))
	}
	if img.Planes == 0 || img.Planes > domain.MaxPlanes {
		return fail("invalid plane count %d", img.Planes)
	}
	if !img.MemClass.Valid() {
		return fail("invalid memory class %d", img.MemClass)
	}
	if img.Width == 0 || img.Height == 0 {
		return fail("empty image")
	}
	if img.XStride == 0 || img.YStride == 0 {
		return fail("zero stride")
	}
	if int64(img.XStart)+int64(img.Width) > int64(img.BufWidth) || int64(img.YStart)+int64(img.Height) > int64(img.BufHeight) {
		return fail("region %dx%d+%d+%d exceeds buffer %dx%d", img.Width, img.Height, img.XStart, img.YStart, img.BufWidth, img.BufHeight)
	}
	if abs64(int64(img.YStride)) < int64(img.BufWidth)*abs64(int64(img.XStride)) {
		return fail("line stride %d shorter than %d pixels", img.YStride, img.BufWidth)
	}
	if uint32(abs64(int64(img.YStride)))%spec.StrideMult != 0 {
		return fail("stride %d not a multiple of %d", img.YStride, spec.StrideMult)
	}
	if img.Width%spec.WidthMult != 0 || img.Height%spec.HeightMult != 0 {
		return fail("size %dx%d not a multiple of %dx%d", img.Width, img.Height, spec.WidthMult, spec.HeightMult)
	}
	for p := 0; p < int(img.Planes); p++ {
		if img.Buffer[p] == 0 || img.Data[p] == 0 {
			return fail("plane %d has no memory", p)
		}
		if uint64(img.Buffer[p])%uint64(spec.Align) != 0 {
			return fail("plane %d not aligned to %d", p, spec.Align)
		}
		size := v.geom.PlaneSize(img, p)
		lo, hi := img.Buffer[p], img.Buffer[p]+domain.Addr(size)
		if img.Data[p] < lo || img.Data[p] >= hi {
			return fail("plane %d data 0x%x outside buffer [0x%x, 0x%x)", p, uint64(img.Data[p]), uint64(lo), uint64(hi))
		}
	}
	return nil
}

func checkBuffer(name string, b *domain.Buffer) error {
	switch {
	case b.Data == 0:
		return fmt.Errorf("%w: %s: no memory", domain.ErrValidation, name)
	case b.NumBytes == 0:
		return fmt.Errorf("%w: %s: empty buffer", domain.ErrValidation, name)
	case !b.MemClass.Valid():
		return fmt.Errorf("%w: %s: invalid memory class %d", domain.ErrValidation, name, b.MemClass)
	case b.ElemSize != 0 && b.NumBytes%b.ElemSize != 0:
		return fmt.Errorf("%w: %s: %d bytes is not a whole number of %d byte elements", domain.ErrValidation, name, b.NumBytes, b.ElemSize)
	}
	return nil
}
