package domain

import (
	"encoding/binary"
	"fmt"
)

// Addr is an address in some core's virtual address space. The zero value is
// the null address.
type Addr uint64

// PageSize is the granule of every mapping and the size of a kernel node.
const PageSize = 4096

// MaxPlanes is the largest plane count an image descriptor can carry.
const MaxPlanes = 4

// FourCC is a packed four character pixel format code.
type FourCC uint32

// MakeFourCC packs four characters little-endian first.
func MakeFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	FourCCY800 = MakeFourCC('Y', '8', '0', '0')
	FourCCY16  = MakeFourCC('Y', '1', '6', ' ')
	FourCCUYVY = MakeFourCC('U', 'Y', 'V', 'Y')
	FourCCVYUY = MakeFourCC('V', 'Y', 'U', 'Y')
	FourCCYUY2 = MakeFourCC('Y', 'U', 'Y', '2')
	FourCCNV12 = MakeFourCC('N', 'V', '1', '2')
	FourCCNV21 = MakeFourCC('N', 'V', '2', '1')
	FourCCIYUV = MakeFourCC('I', 'Y', 'U', 'V')
	FourCCYV12 = MakeFourCC('Y', 'V', '1', '2')
	FourCCYU16 = MakeFourCC('Y', 'U', '1', '6')
	FourCCYV16 = MakeFourCC('Y', 'V', '1', '6')
	FourCCRGBP = MakeFourCC('R', 'G', 'B', 'P')
)

func (f FourCC) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return string(b[:])
}

// ParseFourCC reads a four character code. Shorter names are space padded.
func ParseFourCC(s string) (FourCC, error) {
	if len(s) == 0 || len(s) > 4 {
		return 0, fmt.Errorf("invalid fourcc %q", s)
	}
	var b [4]byte
	for i := range b {
		b[i] = ' '
	}
	copy(b[:], s)
	return MakeFourCC(b[0], b[1], b[2], b[3]), nil
}

// Image describes a (possibly multi-planar) image living in the issuing
// core's address space.
type Image struct {
	Planes    uint32
	Data      [MaxPlanes]Addr // first pixel of the region of interest
	Buffer    [MaxPlanes]Addr // start of the plane allocation
	Width     uint32
	Height    uint32
	BufWidth  uint32
	BufHeight uint32
	XStart    uint32
	YStart    uint32
	XStride   int32
	YStride   int32
	Color     FourCC
	NumBytes  uint32
	MemClass  MemClass

	SkipFlush      bool
	SkipInvalidate bool
}

// DataOffset is the byte distance from a plane's Buffer to its Data.
func (img *Image) DataOffset() int64 {
	return int64(img.YStart)*int64(img.YStride) + int64(img.XStart)*int64(img.XStride)
}

// Rebase recomputes Data from Buffer for every plane.
func (img *Image) Rebase() {
	off := img.DataOffset()
	for p := uint32(0); p < img.Planes && p < MaxPlanes; p++ {
		if img.Buffer[p] == 0 {
			img.Data[p] = 0
			continue
		}
		img.Data[p] = Addr(int64(img.Buffer[p]) + off)
	}
}

// Buffer describes a flat run of bytes.
type Buffer struct {
	Data     Addr
	ElemSize uint32
	NumBytes uint32
	MemClass MemClass

	SkipFlush      bool
	SkipInvalidate bool
}

// Wire sizes of the descriptors inside a node payload.
const (
	ImageWireSize  = 128
	BufferWireSize = 32
)

var le = binary.LittleEndian

func (img *Image) encode(b []byte) {
	le.PutUint32(b[0:], img.Planes)
	off := 4
	for p := 0; p < MaxPlanes; p++ {
		le.PutUint64(b[off:], uint64(img.Data[p]))
		le.PutUint64(b[off+32:], uint64(img.Buffer[p]))
		off += 8
	}
	off = 68
	for _, v := range []uint32{img.Width, img.Height, img.BufWidth, img.BufHeight, img.XStart, img.YStart,
		uint32(img.XStride), uint32(img.YStride), uint32(img.Color), img.NumBytes, uint32(img.MemClass)} {
		le.PutUint32(b[off:], v)
		off += 4
	}
	b[off] = boolByte(img.SkipFlush)
	b[off+1] = boolByte(img.SkipInvalidate)
}

func (img *Image) decode(b []byte) {
	img.Planes = le.Uint32(b[0:])
	off := 4
	for p := 0; p < MaxPlanes; p++ {
		img.Data[p] = Addr(le.Uint64(b[off:]))
		img.Buffer[p] = Addr(le.Uint64(b[off+32:]))
		off += 8
	}
	off = 68
	u := func() uint32 { v := le.Uint32(b[off:]); off += 4; return v }
	img.Width, img.Height, img.BufWidth, img.BufHeight = u(), u(), u(), u()
	img.XStart, img.YStart = u(), u()
	img.XStride, img.YStride = int32(u()), int32(u())
	img.Color, img.NumBytes, img.MemClass = FourCC(u()), u(), MemClass(u())
	img.SkipFlush = b[off] != 0
	img.SkipInvalidate = b[off+1] != 0
}

func (buf *Buffer) encode(b []byte) {
	le.PutUint64(b[0:], uint64(buf.Data))
	le.PutUint32(b[8:], buf.ElemSize)
	le.PutUint32(b[12:], buf.NumBytes)
	le.PutUint32(b[16:], uint32(buf.MemClass))
	b[20] = boolByte(buf.SkipFlush)
	b[21] = boolByte(buf.SkipInvalidate)
}

func (buf *Buffer) decode(b []byte) {
	buf.Data = Addr(le.Uint64(b[0:]))
	buf.ElemSize = le.Uint32(b[8:])
	buf.NumBytes = le.Uint32(b[12:])
	buf.MemClass = MemClass(le.Uint32(b[16:]))
	buf.SkipFlush = b[20] != 0
	buf.SkipInvalidate = b[21] != 0
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
