package relay

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/yndnr/gridmesh-go/internal/comm"
	"github.com/yndnr/gridmesh-go/internal/forward"
	"github.com/yndnr/gridmesh-go/internal/protocol"
)

// Handler answers a message addressed to this node. The returned
// message becomes this node's own response entry; a nil return yields
// a generic success.
type Handler interface {
	Handle(ctx context.Context, msg *protocol.Message, uid uint32) *protocol.Message
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *protocol.Message, uid uint32) *protocol.Message

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg *protocol.Message, uid uint32) *protocol.Message {
	return f(ctx, msg, uid)
}

// handleFrame authenticates and answers one received frame, forwarding
// to the subtree first when the header carries forward targets. The
// returned bytes are the sealed upward reply, nil when no reply is
// owed (send-only traffic hangs up before reading one).
func (s *Server) handleFrame(ctx context.Context, frame []byte) ([]byte, error) {
	// The raw post-header remainder is kept so subtree forwards reuse
	// the originator's credential instead of re-signing.
	h, rest, err := protocol.DecodeHeader(frame)
	if err != nil {
		return nil, err
	}
	// An uninitialized or width-less descriptor takes the configured
	// default; an explicit width from the sender governs the subtree.
	h.Forward.Reset(uint16(s.cfg.TreeWidth))

	msg, uid, err := s.codec.Open(frame)
	if err != nil {
		return nil, err
	}

	var subtree []protocol.ResponseEntry
	if h.Forward.Cnt() > 0 {
		subtree = s.forwardSubtree(ctx, h, rest)
	}

	local := s.handler.Handle(ctx, msg, uid)
	if local == nil {
		local = protocol.NewMessage(protocol.ResponseReturnCode, protocol.EncodeReturnCode(protocol.RCSuccess))
	}

	reply := protocol.NewMessage(local.Type, local.Body)
	reply.RetList = append(reply.RetList, protocol.ResponseEntry{
		Node: s.nodeName(),
		Type: local.Type,
		Body: local.Body,
	})
	reply.RetList = append(reply.RetList, subtree...)

	return s.codec.Seal(reply)
}

// forwardSubtree re-forwards the received frame to this relay's
// subtree and collects one entry per subtree node.
func (s *Server) forwardSubtree(ctx context.Context, h *protocol.Header, rest []byte) []protocol.ResponseEntry {
	engine := &forward.Engine{
		Width:    int(h.Forward.TreeWidth),
		Exchange: s.exchangeRaw(h, rest),
		Logger:   s.logger,
		Metrics:  s.metrics,
	}
	timeout := h.Forward.Timeout
	if timeout <= 0 {
		timeout = s.cfg.MsgTimeout
	}
	return engine.Tree(ctx, h.Forward.Nodes, timeout)
}

// exchangeRaw builds the branch delivery function for the relay path:
// rewrite the forward descriptor, re-frame the original credential and
// body, and collect the branch relay's aggregated entries.
func (s *Server) exchangeRaw(h *protocol.Header, rest []byte) forward.Exchange {
	return func(ctx context.Context, node string, fwd protocol.ForwardDescriptor, timeout time.Duration) ([]protocol.ResponseEntry, error) {
		branch := *h
		branch.Forward = fwd
		frame, err := protocol.EncodeRaw(&branch, rest)
		if err != nil {
			return nil, err
		}

		conn, err := s.dial(s.peerAddr(node), timeout)
		if err != nil {
			return nil, err
		}
		defer conn.Close()

		if err := conn.Send(frame, timeout); err != nil {
			return nil, err
		}
		replyFrame, err := conn.Recv(timeout)
		if err != nil {
			return nil, err
		}
		reply, _, err := s.codec.Open(replyFrame)
		if err != nil {
			return nil, comm.ErrForwardFailed.WithCause(err)
		}
		return reply.RetList, nil
	}
}

// peerAddr resolves a subtree node to its relay endpoint, preferring
// the discovery view over the name-plus-port convention.
func (s *Server) peerAddr(node string) string {
	if s.resolve != nil {
		if addr := s.resolve(node); addr != "" {
			return addr
		}
	}
	return net.JoinHostPort(node, strconv.Itoa(s.cfg.NodePort))
}

func (s *Server) nodeName() string {
	if s.cfg.NodeName != "" {
		return s.cfg.NodeName
	}
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}
