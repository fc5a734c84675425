// Package geometry computes image plane layouts and extents.
package geometry

import (
	"fmt"

	"github.com/aretw0/hetcore/pkg/domain"
)

// Planar is the default ports.Geometry. All planes of an image share
// YStride; chroma planes of subsampled formats shrink from it.
type Planar struct{}

func abs32(v int32) int {
	if v < 0 {
		return int(-v)
	}
	return int(v)
}

// PlaneSize returns the byte extent of plane p, starting at Buffer[p].
func (Planar) PlaneSize(img *domain.Image, p int) int {
	line := abs32(img.YStride)
	h := int(img.BufHeight)
	if p == 0 {
		return line * h
	}
	switch img.Color {
	case domain.FourCCNV12, domain.FourCCNV21:
		return line * h / 2
	case domain.FourCCYV12, domain.FourCCIYUV:
		return (line / 2) * (h / 2)
	case domain.FourCCYU16, domain.FourCCYV16:
		return (line / 2) * h
	}
	return line * h
}

// Extent is the byte range of one plane.
type Extent struct {
	Plane int
	Start domain.Addr
	Size  int
}

// Extents lists every plane's range of img.
func (g Planar) Extents(img *domain.Image) []Extent {
	out := make([]Extent, 0, img.Planes)
	for p := 0; p < int(img.Planes) && p < domain.MaxPlanes; p++ {
		out = append(out, Extent{Plane: p, Start: img.Buffer[p], Size: g.PlaneSize(img, p)})
	}
	return out
}

// Format describes how a color is laid out in memory.
type Format struct {
	Planes        int
	BytesPerPixel int // in plane 0
}

var formats = map[domain.FourCC]Format{
	domain.FourCCY800: {1, 1},
	domain.FourCCY16:  {1, 2},
	domain.FourCCUYVY: {1, 2},
	domain.FourCCVYUY: {1, 2},
	domain.FourCCYUY2: {1, 2},
	domain.FourCCNV12: {2, 1},
	domain.FourCCNV21: {2, 1},
	domain.FourCCIYUV: {3, 1},
	domain.FourCCYV12: {3, 1},
	domain.FourCCYU16: {3, 1},
	domain.FourCCYV16: {3, 1},
	domain.FourCCRGBP: {3, 1},
}

// Lookup returns the layout of color.
func Lookup(color domain.FourCC) (Format, bool) {
	f, ok := formats[color]
	return f, ok
}

// Layout fills in the shape fields of an image descriptor for a tightly
// packed w x h image of the given color. Addresses are left zero and the
// per-plane sizes are returned for the caller to allocate.
func Layout(w, h uint32, color domain.FourCC, class domain.MemClass) (domain.Image, []int, error) {
	f, ok := formats[color]
	if !ok {
		return domain.Image{}, nil, fmt.Errorf("%w: unsupported color %s", domain.ErrValidation, color)
	}
	if w == 0 || h == 0 {
		return domain.Image{}, nil, fmt.Errorf("%w: empty image %dx%d", domain.ErrValidation, w, h)
	}
	img := domain.Image{
		Planes:    uint32(f.Planes),
		Width:     w,
		Height:    h,
		BufWidth:  w,
		BufHeight: h,
		XStride:   int32(f.BytesPerPixel),
		YStride:   int32(w) * int32(f.BytesPerPixel),
		Color:     color,
		MemClass:  class,
	}
	sizes := make([]int, f.Planes)
	total := 0
	var g Planar
	for p := range sizes {
		sizes[p] = g.PlaneSize(&img, p)
		total += sizes[p]
	}
	img.NumBytes = uint32(total)
	return img, sizes, nil
}
