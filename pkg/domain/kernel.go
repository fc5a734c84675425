package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Kernel identifies the operation a node performs.
type Kernel uint32

const (
	KernelNoop Kernel = iota
	KernelEcho
	KernelCopy
	KernelInvert
	KernelXYXYToY800
	KernelDilateSquare
	KernelErodeSquare
	KernelDilateMask
	KernelErodeMask
	KernelCannyGradient
	KernelHistogram8
)

// Group names the validation and payload family a kernel belongs to.
type Group int

const (
	GroupNone Group = iota
	GroupTransform
	GroupMorphology
	GroupGradient
	GroupHistogram
)

// OperandKind is the descriptor type stored in a payload slot.
type OperandKind int

const (
	KindImage OperandKind = iota
	KindBuffer
)

func (k OperandKind) wireSize() int {
	if k == KindBuffer {
		return BufferWireSize
	}
	return ImageWireSize
}

// Direction tells the dispatch sequence how a remote core touches an operand.
type Direction int

const (
	DirIn    Direction = iota // read by the remote: flushed before send
	DirOut                    // written by the remote: invalidated after return
	DirInOut                  // both
)

// Reads reports whether the remote core reads the operand.
func (d Direction) Reads() bool { return d == DirIn || d == DirInOut }

// Writes reports whether the remote core writes the operand.
func (d Direction) Writes() bool { return d == DirOut || d == DirInOut }

// Operand describes one buffer descriptor embedded in a node payload.
type Operand struct {
	Name   string
	Kind   OperandKind
	Dir    Direction
	Offset int // byte offset inside the payload
}

// KernelSpec is the static description of a kernel.
type KernelSpec struct {
	Kernel   Kernel
	Name     string
	Group    Group
	Operands []Operand
	// From and To list the accepted input and output colors. Empty means any.
	From []FourCC
	To   []FourCC
	// Load is the cost charged against a core's budget, in MHz.
	Load uint32
	// Alignment and multiples required of the image operands.
	Align      uint32
	StrideMult uint32
	WidthMult  uint32
	HeightMult uint32
}

// Slot returns the index-th operand.
func (s *KernelSpec) Slot(index int) (Operand, bool) {
	if index < 0 || index >= len(s.Operands) {
		return Operand{}, false
	}
	return s.Operands[index], true
}

// Lookup finds an operand by name.
func (s *KernelSpec) Lookup(name string) (int, bool) {
	for i, op := range s.Operands {
		if op.Name == name {
			return i, true
		}
	}
	return -1, false
}

func imageOperand(name string, dir Direction) Operand {
	return Operand{Name: name, Kind: KindImage, Dir: dir}
}

var (
	anyLuma   = []FourCC{FourCCY800}
	xyxy      = []FourCC{FourCCUYVY, FourCCVYUY, FourCCYUY2}
	gradients = []FourCC{FourCCY16}
)

var kernelTable = map[Kernel]*KernelSpec{
	KernelNoop: {Kernel: KernelNoop, Name: "noop", Load: 1},
	KernelEcho: {Kernel: KernelEcho, Name: "echo", Group: GroupTransform, Load: 10,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("output", DirOut)}},
	KernelCopy: {Kernel: KernelCopy, Name: "copy", Group: GroupTransform, Load: 10,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("output", DirOut)}},
	KernelInvert: {Kernel: KernelInvert, Name: "invert", Group: GroupTransform, Load: 20,
		From: anyLuma, To: anyLuma,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("output", DirOut)}},
	KernelXYXYToY800: {Kernel: KernelXYXYToY800, Name: "xyxy_to_y800", Group: GroupTransform, Load: 30,
		From: xyxy, To: anyLuma, WidthMult: 2,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("output", DirOut)}},
	KernelDilateSquare: {Kernel: KernelDilateSquare, Name: "dilate_square", Group: GroupMorphology, Load: 60,
		From: anyLuma, To: anyLuma,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("output", DirOut)}},
	KernelErodeSquare: {Kernel: KernelErodeSquare, Name: "erode_square", Group: GroupMorphology, Load: 60,
		From: anyLuma, To: anyLuma,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("output", DirOut)}},
	KernelDilateMask: {Kernel: KernelDilateMask, Name: "dilate_mask", Group: GroupMorphology, Load: 80,
		From: anyLuma, To: anyLuma,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("output", DirOut), imageOperand("mask", DirIn)}},
	KernelErodeMask: {Kernel: KernelErodeMask, Name: "erode_mask", Group: GroupMorphology, Load: 80,
		From: anyLuma, To: anyLuma,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("output", DirOut), imageOperand("mask", DirIn)}},
	KernelCannyGradient: {Kernel: KernelCannyGradient, Name: "canny_gradient", Group: GroupGradient, Load: 120,
		From: anyLuma, To: gradients,
		Operands: []Operand{imageOperand("input", DirIn), imageOperand("grad_x", DirOut), imageOperand("grad_y", DirOut), imageOperand("magnitude", DirOut)}},
	KernelHistogram8: {Kernel: KernelHistogram8, Name: "histogram8", Group: GroupHistogram, Load: 40,
		From: anyLuma,
		Operands: []Operand{imageOperand("input", DirIn), {Name: "histogram", Kind: KindBuffer, Dir: DirOut}}},
}

func init() {
	for _, spec := range kernelTable {
		off := 0
		for i := range spec.Operands {
			spec.Operands[i].Offset = off
			off += spec.Operands[i].Kind.wireSize()
		}
		if off > PayloadSize {
			panic(fmt.Sprintf("kernel %s payload overflows node", spec.Name))
		}
		for _, m := range []*uint32{&spec.Align, &spec.StrideMult, &spec.WidthMult, &spec.HeightMult} {
			if *m == 0 {
				*m = 1
			}
		}
	}
}

// LookupKernel returns the static description of k.
func LookupKernel(k Kernel) (*KernelSpec, bool) {
	spec, ok := kernelTable[k]
	return spec, ok
}

// ParseKernel resolves a kernel by name.
func ParseKernel(name string) (Kernel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, spec := range kernelTable {
		if spec.Name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
}

// Kernels lists every known kernel in id order.
func Kernels() []Kernel {
	out := make([]Kernel, 0, len(kernelTable))
	for k := range kernelTable {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (k Kernel) String() string {
	if spec, ok := kernelTable[k]; ok {
		return spec.Name
	}
	return fmt.Sprintf("kernel(%d)", uint32(k))
}

// MarshalText encodes k by name.
func (k Kernel) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText resolves a kernel name.
func (k *Kernel) UnmarshalText(b []byte) error {
	v, err := ParseKernel(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
