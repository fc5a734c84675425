// Package kernels holds the reference implementations every core runs.
package kernels

import (
	"encoding/binary"
	"errors"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
)

var le = binary.LittleEndian

var errShape = errors.New("operand shape")

// KernelFunc runs one node against a core's view of memory.
type KernelFunc func(space ports.AddressSpace, n *domain.KernelNode) domain.Status

var reference = map[domain.Kernel]KernelFunc{
	domain.KernelNoop:          func(ports.AddressSpace, *domain.KernelNode) domain.Status { return domain.StatusSuccess },
	domain.KernelEcho:          pointwise(func(b byte) byte { return b }),
	domain.KernelCopy:          pointwise(func(b byte) byte { return b }),
	domain.KernelInvert:        pointwise(func(b byte) byte { return 255 - b }),
	domain.KernelXYXYToY800:    extractLuma,
	domain.KernelDilateSquare:  morph(maxOf, false),
	domain.KernelErodeSquare:   morph(minOf, false),
	domain.KernelDilateMask:    morph(maxOf, true),
	domain.KernelErodeMask:     morph(minOf, true),
	domain.KernelCannyGradient: sobel,
	domain.KernelHistogram8:    histogram,
}

// Execute runs n with the reference kernels and returns its status. An
// unknown kernel yields StatusNotImplemented.
func Execute(space ports.AddressSpace, n *domain.KernelNode) domain.Status {
	fn, ok := reference[n.Header.Kernel]
	if !ok {
		return domain.StatusNotImplemented
	}
	return fn(space, n)
}

// rows reads the region of interest of plane 0, one slice per line.
func rows(space ports.AddressSpace, img *domain.Image) ([][]byte, error) {
	width := int(img.Width) * int(img.XStride)
	if img.Data[0] == 0 || width <= 0 {
		return nil, errShape
	}
	out := make([][]byte, img.Height)
	for y := range out {
		line, err := space.Read(lineAddr(img, y), width)
		if err != nil {
			return nil, err
		}
		out[y] = line
	}
	return out, nil
}

func writeRows(space ports.AddressSpace, img *domain.Image, lines [][]byte) error {
	for y, line := range lines {
		if y >= int(img.Height) {
			break
		}
		if err := space.Write(lineAddr(img, y), line); err != nil {
			return err
		}
	}
	return nil
}

func lineAddr(img *domain.Image, y int) domain.Addr {
	return domain.Addr(int64(img.Data[0]) + int64(y)*int64(img.YStride))
}

func operands(n *domain.KernelNode, count int) ([]domain.Image, bool) {
	imgs := make([]domain.Image, count)
	for i := range imgs {
		img, err := n.Image(i)
		if err != nil {
			return nil, false
		}
		imgs[i] = img
	}
	return imgs, true
}

func statusOf(err error) domain.Status {
	if err != nil {
		return domain.StatusInvalidParameter
	}
	return domain.StatusSuccess
}

func pointwise(f func(byte) byte) KernelFunc {
	return func(space ports.AddressSpace, n *domain.KernelNode) domain.Status {
		imgs, ok := operands(n, 2)
		if !ok {
			return domain.StatusInvalidParameter
		}
		in, out := &imgs[0], &imgs[1]
		src, err := rows(space, in)
		if err != nil {
			return domain.StatusInvalidParameter
		}
		width := int(out.Width) * int(out.XStride)
		dst := make([][]byte, min(len(src), int(out.Height)))
		for y := range dst {
			dst[y] = make([]byte, min(width, len(src[y])))
			for x := range dst[y] {
				dst[y][x] = f(src[y][x])
			}
		}
		return statusOf(writeRows(space, out, dst))
	}
}

func extractLuma(space ports.AddressSpace, n *domain.KernelNode) domain.Status {
	imgs, ok := operands(n, 2)
	if !ok {
		return domain.StatusInvalidParameter
	}
	in, out := &imgs[0], &imgs[1]
	off := 1
	if in.Color == domain.FourCCYUY2 {
		off = 0
	}
	src, err := rows(space, in)
	if err != nil {
		return domain.StatusInvalidParameter
	}
	dst := make([][]byte, min(len(src), int(out.Height)))
	for y := range dst {
		dst[y] = make([]byte, 0, out.Width)
		for x := 0; x < int(out.Width) && 2*x+off < len(src[y]); x++ {
			dst[y] = append(dst[y], src[y][2*x+off])
		}
	}
	return statusOf(writeRows(space, out, dst))
}

func maxOf(a, b byte) byte { return max(a, b) }
func minOf(a, b byte) byte { return min(a, b) }

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v >= hi {
		return hi - 1
	}
	return v
}

// morph applies a 3x3 structuring element, or the mask image when masked.
// Edges replicate the border pixel.
func morph(pick func(a, b byte) byte, masked bool) KernelFunc {
	return func(space ports.AddressSpace, n *domain.KernelNode) domain.Status {
		count := 2
		if masked {
			count = 3
		}
		imgs, ok := operands(n, count)
		if !ok {
			return domain.StatusInvalidParameter
		}
		src, err := rows(space, &imgs[0])
		if err != nil {
			return domain.StatusInvalidParameter
		}
		element := [][]byte{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}}
		if masked {
			if element, err = rows(space, &imgs[2]); err != nil {
				return domain.StatusInvalidParameter
			}
		}
		h, w := len(src), int(imgs[0].Width)
		cy, cx := len(element)/2, len(element[0])/2
		out := &imgs[1]
		dst := make([][]byte, min(h, int(out.Height)))
		for y := range dst {
			dst[y] = make([]byte, min(w, int(out.Width)))
			for x := range dst[y] {
				v := src[y][x]
				for my, mrow := range element {
					for mx, m := range mrow {
						if m == 0 {
							continue
						}
						v = pick(v, src[clamp(y+my-cy, h)][clamp(x+mx-cx, w)])
					}
				}
				dst[y][x] = v
			}
		}
		return statusOf(writeRows(space, out, dst))
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// sobel writes the horizontal and vertical Sobel responses as signed 16 bit
// samples and their L1 magnitude as unsigned 16 bit samples.
func sobel(space ports.AddressSpace, n *domain.KernelNode) domain.Status {
	imgs, ok := operands(n, 4)
	if !ok {
		return domain.StatusInvalidParameter
	}
	src, err := rows(space, &imgs[0])
	if err != nil {
		return domain.StatusInvalidParameter
	}
	h, w := len(src), int(imgs[0].Width)
	px := func(y, x int) int { return int(src[clamp(y, h)][clamp(x, w)]) }

	gx := make([][]byte, h)
	gy := make([][]byte, h)
	mag := make([][]byte, h)
	for y := 0; y < h; y++ {
		gx[y], gy[y], mag[y] = make([]byte, 2*w), make([]byte, 2*w), make([]byte, 2*w)
		for x := 0; x < w; x++ {
			dx := px(y-1, x+1) + 2*px(y, x+1) + px(y+1, x+1) - px(y-1, x-1) - 2*px(y, x-1) - px(y+1, x-1)
			dy := px(y+1, x-1) + 2*px(y+1, x) + px(y+1, x+1) - px(y-1, x-1) - 2*px(y-1, x) - px(y-1, x+1)
			le.PutUint16(gx[y][2*x:], uint16(int16(dx)))
			le.PutUint16(gy[y][2*x:], uint16(int16(dy)))
			le.PutUint16(mag[y][2*x:], uint16(abs(dx)+abs(dy)))
		}
	}
	for i, lines := range [][][]byte{gx, gy, mag} {
		if err := writeRows(space, &imgs[i+1], lines); err != nil {
			return domain.StatusInvalidParameter
		}
	}
	return domain.StatusSuccess
}

// HistogramBins is the number of u32 counters written by Histogram8.
const HistogramBins = 256

func histogram(space ports.AddressSpace, n *domain.KernelNode) domain.Status {
	in, err := n.Image(0)
	if err != nil {
		return domain.StatusInvalidParameter
	}
	out, err := n.Buffer(1)
	if err != nil || out.NumBytes < 4*HistogramBins {
		return domain.StatusInvalidParameter
	}
	src, err := rows(space, &in)
	if err != nil {
		return domain.StatusInvalidParameter
	}
	var bins [HistogramBins]uint32
	for _, line := range src {
		for _, v := range line {
			bins[v]++
		}
	}
	b := make([]byte, 4*HistogramBins)
	for i, c := range bins {
		le.PutUint32(b[4*i:], c)
	}
	return statusOf(space.Write(out.Data, b))
}
