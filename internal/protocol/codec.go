package protocol

import (
	"github.com/yndnr/gridmesh-go/internal/comm"
)

// bodyLengthOffset is the fixed position of the header's body length
// field: version(2) + flags(2) + type(2).
const bodyLengthOffset = 6

// Encode serializes a message plus its packed credential into a single
// wire buffer.
//
// The header is packed first with a zero body length, then the
// credential, then the body; once the body size is known the header's
// length field is back-patched in place.
func Encode(msg *Message, credBackend string, credBlob []byte) ([]byte, error) {
	if msg == nil {
		return nil, comm.ErrFraming.WithDetails("nil message")
	}
	if len(msg.Body) > MaxBlobLen {
		return nil, errFramingDetail("body length %d exceeds limit %d", len(msg.Body), MaxBlobLen)
	}

	h := Header{
		Version:  msg.Version,
		Flags:    msg.Flags,
		Type:     msg.Type,
		Forward:  msg.Forward,
		OrigAddr: msg.OrigAddr,
		RetList:  msg.RetList,
	}
	if h.Version == 0 {
		h.Version = Version
	}

	p := &packer{}
	packHeader(p, &h)

	p.putString(credBackend)
	p.putBytes(credBlob)

	p.buf = append(p.buf, msg.Body...)
	p.patchU32(bodyLengthOffset, uint32(len(msg.Body)))

	return p.buf, nil
}

// EncodeRaw rebuilds a wire buffer from a received header and the raw
// post-header remainder (packed credential plus body), without
// re-signing. A relay uses this to forward the originator's frame to
// its subtree after rewriting the forward descriptor in h.
func EncodeRaw(h *Header, rest []byte) ([]byte, error) {
	if h == nil {
		return nil, comm.ErrFraming.WithDetails("nil header")
	}
	p := &packer{}
	packHeader(p, h)
	p.buf = append(p.buf, rest...)
	p.patchU32(bodyLengthOffset, h.BodyLength)
	return p.buf, nil
}

// DecodeHeader parses the header from a received frame and returns it
// together with the unconsumed remainder (credential plus body).
//
// Version validation is the caller's job via CheckVersion so the
// credential bytes stay available for best-effort identity recovery
// when the version is unsupported.
func DecodeHeader(frame []byte) (*Header, []byte, error) {
	r := &reader{buf: frame}
	h, err := unpackHeader(r)
	if err != nil {
		return nil, nil, err
	}
	return h, r.rest(), nil
}

// CheckVersion validates the header's protocol version against the
// supported set.
func CheckVersion(h *Header) error {
	if !SupportedVersion(h.Version) {
		return comm.ErrVersion.WithDetails(h.Type.String())
	}
	return nil
}

// DecodeCredential splits the post-header remainder into the credential
// backend name, the packed credential bytes, and the raw body section.
func DecodeCredential(rest []byte) (backend string, blob []byte, body []byte, err error) {
	r := &reader{buf: rest}
	if backend, err = r.str(); err != nil {
		return "", nil, nil, err
	}
	if blob, err = r.bytes(); err != nil {
		return "", nil, nil, err
	}
	return backend, blob, r.rest(), nil
}

// DecodeBody validates the body section against the header's declared
// length. A declared length exceeding the remaining bytes is always a
// hard framing failure, never a partial read.
func DecodeBody(h *Header, body []byte) ([]byte, error) {
	if int(h.BodyLength) > len(body) {
		return nil, errFramingDetail("declared body length %d exceeds remaining %d bytes", h.BodyLength, len(body))
	}
	return body[:h.BodyLength], nil
}

// MessageFromHeader builds the received message from a validated header
// and decoded body.
func MessageFromHeader(h *Header, body []byte) *Message {
	return &Message{
		Version:  h.Version,
		Type:     h.Type,
		Flags:    h.Flags,
		Forward:  h.Forward,
		OrigAddr: h.OrigAddr,
		Body:     body,
		RetList:  h.RetList,
	}
}
