package domain

import "fmt"

// HeaderSize is the wire size of a node header.
const HeaderSize = 24

// PayloadSize is the room left for kernel parameters in a node.
const PayloadSize = PageSize - HeaderSize

// NodeSize is the wire size of a complete node.
const NodeSize = PageSize

// Header is the fixed part of every kernel node.
type Header struct {
	Kernel   Kernel
	Affinity Core
	Error    Status
	// Configured is set once a manager has been chosen for the node.
	Configured bool
	MgrIndex   uint32
	FuncIndex  uint32
}

// KernelNode is one scheduled unit of work. Payload layout is selected by
// Header.Kernel through the kernel table.
type KernelNode struct {
	Header  Header
	Payload [PayloadSize]byte
}

// NewNode returns a node for kernel k with no affinity.
func NewNode(k Kernel) KernelNode {
	return KernelNode{Header: Header{Kernel: k, Affinity: CoreAny}}
}

// NewTransformNode builds a two operand node (input, output).
func NewTransformNode(k Kernel, in, out Image) (KernelNode, error) {
	n := NewNode(k)
	if err := n.SetImage(0, in); err != nil {
		return n, err
	}
	if err := n.SetImage(1, out); err != nil {
		return n, err
	}
	return n, nil
}

func (n *KernelNode) slot(index int, kind OperandKind) (Operand, error) {
	spec, ok := LookupKernel(n.Header.Kernel)
	if !ok {
		return Operand{}, fmt.Errorf("%w: %d", ErrUnknownKernel, n.Header.Kernel)
	}
	op, ok := spec.Slot(index)
	if !ok || op.Kind != kind {
		return Operand{}, fmt.Errorf("%w: %s slot %d", ErrBadPayload, spec.Name, index)
	}
	return op, nil
}

// Image reads the image stored in payload slot index.
func (n *KernelNode) Image(index int) (Image, error) {
	op, err := n.slot(index, KindImage)
	if err != nil {
		return Image{}, err
	}
	var img Image
	img.decode(n.Payload[op.Offset : op.Offset+ImageWireSize])
	return img, nil
}

// SetImage stores img in payload slot index.
func (n *KernelNode) SetImage(index int, img Image) error {
	op, err := n.slot(index, KindImage)
	if err != nil {
		return err
	}
	img.encode(n.Payload[op.Offset : op.Offset+ImageWireSize])
	return nil
}

// Buffer reads the flat buffer stored in payload slot index.
func (n *KernelNode) Buffer(index int) (Buffer, error) {
	op, err := n.slot(index, KindBuffer)
	if err != nil {
		return Buffer{}, err
	}
	var b Buffer
	b.decode(n.Payload[op.Offset : op.Offset+BufferWireSize])
	return b, nil
}

// SetBuffer stores b in payload slot index.
func (n *KernelNode) SetBuffer(index int, b Buffer) error {
	op, err := n.slot(index, KindBuffer)
	if err != nil {
		return err
	}
	b.encode(n.Payload[op.Offset : op.Offset+BufferWireSize])
	return nil
}

// MarshalTo writes the node's wire form into b, which must hold NodeSize bytes.
func (n *KernelNode) MarshalTo(b []byte) {
	le.PutUint32(b[0:], uint32(n.Header.Kernel))
	le.PutUint32(b[4:], uint32(n.Header.Affinity))
	le.PutUint32(b[8:], uint32(n.Header.Error))
	le.PutUint32(b[12:], uint32(boolByte(n.Header.Configured)))
	le.PutUint32(b[16:], n.Header.MgrIndex)
	le.PutUint32(b[20:], n.Header.FuncIndex)
	copy(b[HeaderSize:NodeSize], n.Payload[:])
}

// UnmarshalFrom reads a node's wire form from b.
func (n *KernelNode) UnmarshalFrom(b []byte) error {
	if len(b) < NodeSize {
		return fmt.Errorf("%w: node needs %d bytes, have %d", ErrBadPayload, NodeSize, len(b))
	}
	n.Header.Kernel = Kernel(le.Uint32(b[0:]))
	n.Header.Affinity = Core(int32(le.Uint32(b[4:])))
	n.Header.Error = Status(int32(le.Uint32(b[8:])))
	n.Header.Configured = le.Uint32(b[12:]) != 0
	n.Header.MgrIndex = le.Uint32(b[16:])
	n.Header.FuncIndex = le.Uint32(b[20:])
	copy(n.Payload[:], b[HeaderSize:NodeSize])
	return nil
}

// EncodeNodes packs nodes back to back.
func EncodeNodes(nodes []KernelNode) []byte {
	out := make([]byte, len(nodes)*NodeSize)
	for i := range nodes {
		nodes[i].MarshalTo(out[i*NodeSize:])
	}
	return out
}

// DecodeNodes unpacks count nodes from b.
func DecodeNodes(b []byte, count int) ([]KernelNode, error) {
	if len(b) < count*NodeSize {
		return nil, fmt.Errorf("%w: %d nodes need %d bytes, have %d", ErrBadPayload, count, count*NodeSize, len(b))
	}
	nodes := make([]KernelNode, count)
	for i := range nodes {
		if err := nodes[i].UnmarshalFrom(b[i*NodeSize:]); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}
