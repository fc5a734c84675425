// Package rpc carries calls to remote cores: typed parameter lists, their
// asymmetric wire form, the entry point registry a core exports and the
// client the issuing core calls through.
package rpc

import (
	"encoding/binary"
	"fmt"

	"github.com/aretw0/hetcore/pkg/domain"
)

var le = binary.LittleEndian

// Param is one argument of a remote call. Dir says which way its bytes
// travel: In params go out with the request, Out params come back with the
// response and InOut params do both. Size is the wire size; Data must hold
// Size bytes. Handle is an opaque tag the transport never inspects.
type Param struct {
	Dir    domain.Direction
	Size   int
	Data   []byte
	Handle uint64
}

// In returns a read-only param holding data.
func In(data []byte) Param { return Param{Dir: domain.DirIn, Size: len(data), Data: data} }

// Out returns a write-only param of n zero bytes.
func Out(n int) Param { return Param{Dir: domain.DirOut, Size: n, Data: make([]byte, n)} }

// InOut returns a read-write param holding data.
func InOut(data []byte) Param { return Param{Dir: domain.DirInOut, Size: len(data), Data: data} }

// Uint32 returns a 4 byte In param.
func Uint32(v uint32) Param {
	b := make([]byte, 4)
	le.PutUint32(b, v)
	return In(b)
}

// Uint64 returns an 8 byte In param.
func Uint64(v uint64) Param {
	b := make([]byte, 8)
	le.PutUint64(b, v)
	return In(b)
}

// InOutUint32 returns a 4 byte InOut param.
func InOutUint32(v uint32) Param {
	p := Uint32(v)
	p.Dir = domain.DirInOut
	return p
}

// AsUint32 decodes the param as a little endian u32.
func (p Param) AsUint32() uint32 {
	if len(p.Data) < 4 {
		return 0
	}
	return le.Uint32(p.Data)
}

// AsUint64 decodes the param as a little endian u64.
func (p Param) AsUint64() uint64 {
	if len(p.Data) < 8 {
		return 0
	}
	return le.Uint64(p.Data)
}

// PutUint32 overwrites the first four bytes of the param.
func (p Param) PutUint32(v uint32) {
	if len(p.Data) >= 4 {
		le.PutUint32(p.Data, v)
	}
}

func (p Param) check(i int) error {
	if p.Size < 0 || len(p.Data) < p.Size {
		return fmt.Errorf("%w: param %d holds %d of %d bytes", domain.ErrBadPayload, i, len(p.Data), p.Size)
	}
	return nil
}

// RequestSize is the wire size of the In and InOut params.
func RequestSize(params []Param) int {
	n := 0
	for _, p := range params {
		if p.Dir.Reads() {
			n += p.Size
		}
	}
	return n
}

// ResponseSize is the wire size of the Out and InOut params.
func ResponseSize(params []Param) int {
	n := 0
	for _, p := range params {
		if p.Dir.Writes() {
			n += p.Size
		}
	}
	return n
}

// Marshal concatenates the In and InOut params in order.
func Marshal(params []Param) ([]byte, error) {
	msg := make([]byte, 0, RequestSize(params))
	for i, p := range params {
		if err := p.check(i); err != nil {
			return nil, err
		}
		if p.Dir.Reads() {
			msg = append(msg, p.Data[:p.Size]...)
		}
	}
	return msg, nil
}

// Unmarshal copies resp into the Out and InOut params in order. In params are
// never touched. resp must be exactly ResponseSize(params) bytes.
func Unmarshal(params []Param, resp []byte) error {
	if want := ResponseSize(params); len(resp) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", domain.ErrShortResponse, len(resp), want)
	}
	off := 0
	for i, p := range params {
		if !p.Dir.Writes() {
			continue
		}
		if err := p.check(i); err != nil {
			return err
		}
		copy(p.Data[:p.Size], resp[off:off+p.Size])
		off += p.Size
	}
	return nil
}

// Spec is the shape of one param in a function signature.
type Spec struct {
	Dir  domain.Direction
	Size int
}

// Signature is the ordered param shapes of a remote function.
type Signature []Spec

// Decode splits a request into params: In and InOut params take their bytes
// from msg, Out params start zeroed.
func (s Signature) Decode(msg []byte) ([]Param, error) {
	params := make([]Param, len(s))
	off := 0
	for i, spec := range s {
		params[i] = Param{Dir: spec.Dir, Size: spec.Size, Data: make([]byte, spec.Size)}
		if !spec.Dir.Reads() {
			continue
		}
		if off+spec.Size > len(msg) {
			return nil, fmt.Errorf("%w: request holds %d bytes, param %d needs %d", domain.ErrShortResponse, len(msg), i, off+spec.Size)
		}
		copy(params[i].Data, msg[off:off+spec.Size])
		off += spec.Size
	}
	if off != len(msg) {
		return nil, fmt.Errorf("%w: request holds %d bytes, signature takes %d", domain.ErrShortResponse, len(msg), off)
	}
	return params, nil
}

// Encode concatenates the Out and InOut params of a served call.
func (s Signature) Encode(params []Param) []byte {
	resp := make([]byte, 0, ResponseSize(params))
	for _, p := range params {
		if p.Dir.Writes() {
			resp = append(resp, p.Data[:p.Size]...)
		}
	}
	return resp
}
