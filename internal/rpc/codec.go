// Package rpc composes the wire codec, authentication, transport,
// forwarding, and controller location into the message-passing surface
// the rest of the system calls.
package rpc

import (
	"encoding/binary"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/yndnr/gridmesh-go/internal/auth"
	"github.com/yndnr/gridmesh-go/internal/comm"
	"github.com/yndnr/gridmesh-go/internal/protocol"
)

// bruteForceDelay is inserted before surfacing a receive-side auth or
// version failure, blunting credential probing.
const bruteForceDelay = 10 * time.Millisecond

// Codec signs outbound messages and verifies inbound frames.
type Codec struct {
	backend auth.Backend

	// clusterKey signs intra-cluster traffic; globalKey is used when a
	// message's flags request cross-cluster trust.
	clusterKey []byte
	globalKey  []byte

	uid    uint32
	logger *slog.Logger
	damp   func()
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithGlobalKey supplies the cross-cluster key honored for messages
// carrying the global-auth flag.
func WithGlobalKey(key []byte) CodecOption {
	return func(c *Codec) { c.globalKey = key }
}

// WithCodecLogger sets the logger.
func WithCodecLogger(l *slog.Logger) CodecOption {
	return func(c *Codec) { c.logger = l }
}

// withDamp overrides the probe damping, for tests.
func withDamp(f func()) CodecOption {
	return func(c *Codec) { c.damp = f }
}

// NewCodec builds a codec over the named auth backend and cluster key.
func NewCodec(backendName string, clusterKey []byte, opts ...CodecOption) (*Codec, error) {
	backend, err := auth.Lookup(backendName)
	if err != nil {
		return nil, comm.ErrAuth.WithCause(err)
	}
	c := &Codec{
		backend:    backend,
		clusterKey: clusterKey,
		uid:        uint32(os.Getuid()),
		logger:     slog.Default(),
		damp:       func() { time.Sleep(bruteForceDelay) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// keyFor selects the signing key by the message's trust flags.
func (c *Codec) keyFor(flags uint16) []byte {
	if flags&protocol.FlagGlobalAuth != 0 && c.globalKey != nil {
		return c.globalKey
	}
	return c.clusterKey
}

// macPayload is the message content bound into the credential MAC:
// version, flags, type, and the body bytes. Relays rewrite the forward
// descriptor in flight without re-signing, so the descriptor and the
// response list stay outside the MAC.
func macPayload(version, flags uint16, t protocol.MsgType, body []byte) []byte {
	p := make([]byte, 6, 6+len(body))
	binary.BigEndian.PutUint16(p[0:2], version)
	binary.BigEndian.PutUint16(p[2:4], flags)
	binary.BigEndian.PutUint16(p[4:6], uint16(t))
	return append(p, body...)
}

// Seal signs msg and serializes it into one wire frame.
func (c *Codec) Seal(msg *protocol.Message) ([]byte, error) {
	version := msg.Version
	if version == 0 {
		version = protocol.Version
	}
	payload := macPayload(version, msg.Flags, msg.Type, msg.Body)
	cred, err := c.backend.Create(c.uid, c.keyFor(msg.Flags), payload)
	if err != nil {
		return nil, comm.ErrAuth.WithCause(err)
	}
	defer cred.Destroy()

	blob, err := c.backend.Pack(cred)
	if err != nil {
		return nil, comm.ErrAuth.WithCause(err)
	}
	return protocol.Encode(msg, c.backend.Name(), blob)
}

// Open verifies and decodes one received frame, returning the message
// and the sender's authenticated identity.
//
// Framing, version, and auth failures are never retried here; all of
// them are damped before returning, and the body is not decoded unless
// the credential verified.
func (c *Codec) Open(frame []byte) (*protocol.Message, uint32, error) {
	h, rest, err := protocol.DecodeHeader(frame)
	if err != nil {
		c.damp()
		return nil, 0, err
	}

	backendName, blob, rawBody, err := protocol.DecodeCredential(rest)
	if err != nil {
		c.damp()
		return nil, 0, err
	}

	if err := protocol.CheckVersion(h); err != nil {
		c.logger.Warn("unsupported protocol version",
			"version", h.Version,
			"type", h.Type.String(),
			"peer_uid", c.peekUID(backendName, blob),
		)
		c.damp()
		return nil, 0, err
	}

	backend, err := auth.Lookup(backendName)
	if err != nil {
		c.damp()
		return nil, 0, comm.ErrAuth.WithDetails("unknown credential backend")
	}
	cred, err := backend.Unpack(blob)
	if err != nil {
		c.damp()
		return nil, 0, comm.ErrAuth.WithCause(err)
	}
	defer cred.Destroy()

	if err := backend.Verify(cred, c.keyFor(h.Flags), macPayload(h.Version, h.Flags, h.Type, rawBody)); err != nil {
		c.damp()
		return nil, 0, comm.ErrAuth.WithCause(err)
	}
	uid, err := backend.UID(cred)
	if err != nil {
		c.damp()
		return nil, 0, comm.ErrAuth.WithCause(err)
	}

	body, err := protocol.DecodeBody(h, rawBody)
	if err != nil {
		c.damp()
		return nil, 0, err
	}
	msg := protocol.MessageFromHeader(h, body)
	if h.Flags&protocol.FlagKeepBuffer != 0 {
		msg.Buffer = frame
	}
	return msg, uid, nil
}

// peekUID recovers the peer identity from an unverified credential for
// audit logging. Best effort only; never trusted.
func (c *Codec) peekUID(backendName string, blob []byte) string {
	backend, err := auth.Lookup(backendName)
	if err != nil {
		return "unknown"
	}
	cred, err := backend.Unpack(blob)
	if err != nil {
		return "unknown"
	}
	defer cred.Destroy()
	uid, err := backend.UID(cred)
	if err != nil {
		return "unknown"
	}
	return strconv.FormatUint(uint64(uid), 10)
}
