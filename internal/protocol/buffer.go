package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/yndnr/gridmesh-go/internal/comm"
)

// Wire limits. A frame that declares more than these is rejected before
// any allocation happens.
const (
	// MaxStringLen bounds any length-prefixed string on the wire.
	MaxStringLen = 64 * 1024

	// MaxBlobLen bounds any length-prefixed byte blob on the wire
	// (credential, body, nested response payloads).
	MaxBlobLen = 64 * 1024 * 1024
)

// packer accumulates big-endian wire data with back-patch support.
type packer struct {
	buf []byte
}

func (p *packer) putU8(v uint8) {
	p.buf = append(p.buf, v)
}

func (p *packer) putU16(v uint16) {
	p.buf = binary.BigEndian.AppendUint16(p.buf, v)
}

func (p *packer) putU32(v uint32) {
	p.buf = binary.BigEndian.AppendUint32(p.buf, v)
}

func (p *packer) putU64(v uint64) {
	p.buf = binary.BigEndian.AppendUint64(p.buf, v)
}

// putBytes writes a u32 length prefix followed by the raw bytes.
func (p *packer) putBytes(b []byte) {
	p.putU32(uint32(len(b)))
	p.buf = append(p.buf, b...)
}

func (p *packer) putString(s string) {
	p.putU32(uint32(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *packer) len() int {
	return len(p.buf)
}

// patchU32 overwrites a previously written u32 at off. Used to
// back-patch the header's body length after the body is packed.
func (p *packer) patchU32(off int, v uint32) {
	binary.BigEndian.PutUint32(p.buf[off:off+4], v)
}

// reader consumes big-endian wire data with bounds checking. Every
// short read is a framing error, never a partial result.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

// rest returns the unconsumed tail of the buffer.
func (r *reader) rest() []byte {
	return r.buf[r.off:]
}

func (r *reader) u8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, comm.ErrFraming.WithDetails("short buffer reading u8")
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, comm.ErrFraming.WithDetails("short buffer reading u16")
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, comm.ErrFraming.WithDetails("short buffer reading u32")
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, comm.ErrFraming.WithDetails("short buffer reading u64")
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if n > MaxBlobLen {
		return nil, comm.ErrFraming.WithDetails(fmt.Sprintf("blob length %d exceeds limit %d", n, MaxBlobLen))
	}
	if int(n) > r.remaining() {
		return nil, comm.ErrFraming.WithDetails(fmt.Sprintf("blob length %d exceeds remaining %d", n, r.remaining()))
	}
	v := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return v, nil
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if n > MaxStringLen {
		return "", comm.ErrFraming.WithDetails(fmt.Sprintf("string length %d exceeds limit %d", n, MaxStringLen))
	}
	if int(n) > r.remaining() {
		return "", comm.ErrFraming.WithDetails(fmt.Sprintf("string length %d exceeds remaining %d", n, r.remaining()))
	}
	v := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return v, nil
}
