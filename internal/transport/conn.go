package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/yndnr/gridmesh-go/internal/comm"
)

// MaxFrameSize bounds a single length-prefixed frame. A peer declaring
// more is cut off before any allocation.
const MaxFrameSize = 128 << 20

// DefaultMsgTimeout is used when a caller supplies no usable timeout
// and no configured default is available.
const DefaultMsgTimeout = 10 * time.Second

const lenPrefixSize = 4

// Dial opens a TCP connection to addr within timeout, bound to the
// pinned local interface when one was configured through SetLocalBind.
// The descriptor is close-on-exec (the Go runtime's default for
// sockets).
func Dial(addr string, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = DefaultMsgTimeout
	}
	d := net.Dialer{Timeout: timeout, LocalAddr: localBindAddr()}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, comm.ErrConnect.WithDetails(addr).WithCause(err)
	}
	return c, nil
}

// Conn wraps a stream connection with length-framed, deadline-bounded
// message exchange.
type Conn struct {
	raw    net.Conn
	def    time.Duration
	logger *slog.Logger
}

// NewConn wraps raw. def is the configured default message timeout used
// to normalize degenerate caller-supplied timeouts; zero falls back to
// DefaultMsgTimeout.
func NewConn(raw net.Conn, def time.Duration, logger *slog.Logger) *Conn {
	if def <= 0 {
		def = DefaultMsgTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{raw: raw, def: def, logger: logger}
}

// Raw returns the underlying connection.
func (c *Conn) Raw() net.Conn { return c.raw }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr { return c.raw.LocalAddr() }

// normalizeTimeout maps a non-positive timeout to the configured
// default and flags suspicious values. A suspiciously short or very
// long timeout is an anomaly worth logging, not an error.
func (c *Conn) normalizeTimeout(op string, timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return c.def
	}
	if timeout < time.Second {
		c.logger.Warn("very short message timeout",
			"op", op, "timeout", timeout, "remote", c.raw.RemoteAddr())
	} else if timeout > 10*c.def {
		c.logger.Warn("very long message timeout",
			"op", op, "timeout", timeout, "default", c.def)
	}
	return timeout
}

// Send writes one length-prefixed frame within timeout.
func (c *Conn) Send(frame []byte, timeout time.Duration) error {
	return c.send(frame, c.normalizeTimeout("send", timeout))
}

// send writes one frame with an already-normalized timeout.
func (c *Conn) send(frame []byte, timeout time.Duration) error {
	if len(frame) > MaxFrameSize {
		return comm.ErrSend.WithDetails(fmt.Sprintf("frame of %d bytes exceeds limit %d", len(frame), MaxFrameSize))
	}
	if err := c.raw.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return comm.ErrSend.WithCause(err)
	}
	var prefix [lenPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(frame)))
	if _, err := c.raw.Write(prefix[:]); err != nil {
		return comm.ErrSend.WithCause(err)
	}
	if _, err := c.raw.Write(frame); err != nil {
		return comm.ErrSend.WithCause(err)
	}
	return nil
}

// Recv reads one length-prefixed frame within timeout: first the fixed
// length prefix, then exactly that many bytes.
func (c *Conn) Recv(timeout time.Duration) ([]byte, error) {
	timeout = c.normalizeTimeout("recv", timeout)
	if err := c.raw.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, comm.ErrReceive.WithCause(err)
	}
	var prefix [lenPrefixSize]byte
	if _, err := io.ReadFull(c.raw, prefix[:]); err != nil {
		return nil, comm.ErrReceive.WithCause(err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameSize {
		return nil, comm.ErrFraming.WithDetails(fmt.Sprintf("declared frame of %d bytes exceeds limit %d", n, MaxFrameSize))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.raw, buf); err != nil {
		return nil, comm.ErrReceive.WithCause(err)
	}
	return buf, nil
}

// SendAndHangup sends one frame, half-closes the write side, and waits
// up to timeout for the peer to acknowledge by closing or writing.
//
// This only reduces, not eliminates, the chance the frame was sent but
// never delivered to the remote application: the remote TCP stack can
// acknowledge data the application never read. Callers needing
// confirmed delivery must use send-then-receive instead.
func (c *Conn) SendAndHangup(frame []byte, timeout time.Duration) error {
	timeout = c.normalizeTimeout("send", timeout)
	if err := c.send(frame, timeout); err != nil {
		return err
	}

	type closeWriter interface{ CloseWrite() error }
	if cw, ok := c.raw.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			c.logger.Debug("write-side shutdown failed", "error", err, "remote", c.raw.RemoteAddr())
		}
	}

	if err := c.raw.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return comm.ErrShutdown.WithCause(err)
	}
	var scratch [1]byte
	_, err := c.raw.Read(scratch[:])
	switch {
	case err == nil:
		// Peer wrote something before closing; good enough.
		return nil
	case errors.Is(err, io.EOF):
		return nil
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return comm.ErrShutdown.WithDetails("no peer acknowledgment before timeout")
		}
		return comm.ErrShutdown.WithCause(err)
	}
}
