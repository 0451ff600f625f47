package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/yndnr/gridmesh-go/internal/comm"
	"github.com/yndnr/gridmesh-go/internal/forward"
	"github.com/yndnr/gridmesh-go/internal/locator"
	"github.com/yndnr/gridmesh-go/internal/protocol"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
	"github.com/yndnr/gridmesh-go/internal/transport"
	"github.com/yndnr/gridmesh-go/pkg/hostlist"
)

// maxRerouteHops bounds a cross-cluster reroute chain. A misconfigured
// cluster pair can otherwise redirect forever.
const maxRerouteHops = 4

// Client is the message-passing surface. Every call opens its own
// connection and closes it before returning, unless the caller hands
// in a persistent connection.
type Client struct {
	codec      *Codec
	loc        *locator.Locator
	msgTimeout time.Duration
	treeWidth  int
	nodePort   int

	dial    locator.DialFunc
	logger  *slog.Logger
	metrics *metric.Registry
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientDial overrides how node addresses are dialed.
func WithClientDial(d locator.DialFunc) ClientOption {
	return func(c *Client) { c.dial = d }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithClientMetrics sets the metrics registry.
func WithClientMetrics(m *metric.Registry) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a client.
//
// msgTimeout is the default round-trip timeout, treeWidth the fan-out
// bound, nodePort the port node relays listen on. loc may be nil for
// clients that never contact a controller.
func NewClient(codec *Codec, loc *locator.Locator, msgTimeout time.Duration, treeWidth, nodePort int, opts ...ClientOption) *Client {
	c := &Client{
		codec:      codec,
		loc:        loc,
		msgTimeout: msgTimeout,
		treeWidth:  treeWidth,
		nodePort:   nodePort,
		logger:     slog.Default(),
		metrics:    metric.NewNop(),
	}
	c.dial = func(addr string, timeout time.Duration) (*transport.Conn, error) {
		raw, err := transport.Dial(addr, timeout)
		if err != nil {
			return nil, err
		}
		return transport.NewConn(raw, msgTimeout, c.logger), nil
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NodeAddr resolves a node name to its relay endpoint.
func (c *Client) NodeAddr(node string) string {
	return net.JoinHostPort(node, strconv.Itoa(c.nodePort))
}

// stampRequestID attaches a correlation ID and an annotated logger to
// ctx unless the caller already supplied one.
func (c *Client) stampRequestID(ctx context.Context) context.Context {
	if logger.RequestID(ctx) != "" {
		return ctx
	}
	return logger.WithRequestID(logger.WithLogger(ctx, c.logger), logger.NewRequestID())
}

// SendOnly delivers msg to addr without waiting for a response
// message. Delivery is confirmed only by the fire-and-forget hangup
// heuristic, which is documented best effort: a nil return does not
// guarantee the peer processed the message.
func (c *Client) SendOnly(ctx context.Context, addr string, msg *protocol.Message, timeout time.Duration) error {
	ctx = c.stampRequestID(ctx)
	timeout = c.orDefault(timeout)
	frame, err := c.codec.Seal(msg)
	if err != nil {
		return err
	}
	conn, err := c.dial(addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.FromContext(ctx).Debug("send-only dispatch", "addr", addr, "type", msg.Type.String())
	return conn.SendAndHangup(frame, timeout)
}

// SendMaybe is SendOnly for targets that may legitimately be down: a
// connect failure is swallowed after a debug log. Send and shutdown
// failures still surface.
func (c *Client) SendMaybe(ctx context.Context, addr string, msg *protocol.Message, timeout time.Duration) error {
	err := c.SendOnly(ctx, addr, msg, timeout)
	if errors.Is(err, comm.ErrConnect) {
		c.logger.Debug("send-maybe target unreachable", "addr", addr, "type", msg.Type.String())
		return nil
	}
	return err
}

// SendRecvOne performs one request/response exchange with addr.
func (c *Client) SendRecvOne(ctx context.Context, addr string, msg *protocol.Message, timeout time.Duration) (*protocol.Message, error) {
	ctx = c.stampRequestID(ctx)
	timeout = c.orDefault(timeout)
	conn, err := c.dial(addr, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return c.exchange(ctx, conn, msg, timeout)
}

// exchange runs seal-send-recv-open on an open connection.
func (c *Client) exchange(ctx context.Context, conn *transport.Conn, msg *protocol.Message, timeout time.Duration) (*protocol.Message, error) {
	start := time.Now()
	frame, err := c.codec.Seal(msg)
	if err != nil {
		return nil, err
	}
	if err := conn.Send(frame, timeout); err != nil {
		c.observe(msg.Type, "error", start)
		return nil, err
	}
	reply, err := conn.Recv(timeout)
	if err != nil {
		c.observe(msg.Type, "error", start)
		return nil, err
	}
	resp, _, err := c.codec.Open(reply)
	if err != nil {
		c.observe(msg.Type, "error", start)
		return nil, err
	}
	c.observe(msg.Type, "ok", start)
	logger.FromContext(ctx).Debug("rpc exchange complete",
		"type", msg.Type.String(), "elapsed", time.Since(start))
	return resp, nil
}

// SendRecvNodes fans msg out to every node in the hostlist expression
// through the forwarding tree and returns one response entry per node.
// Branch failures degrade to failure entries; the error return covers
// only local problems (bad nodelist, signing failure).
func (c *Client) SendRecvNodes(ctx context.Context, nodelist string, msg *protocol.Message, timeout time.Duration) ([]protocol.ResponseEntry, error) {
	nodes, err := hostlist.Expand(nodelist)
	if err != nil {
		return nil, err
	}
	ctx = c.stampRequestID(ctx)
	timeout = c.orDefault(timeout)

	engine := &forward.Engine{
		Width:    c.treeWidth,
		Exchange: c.exchangeBranch(msg),
		Logger:   c.logger,
		Metrics:  c.metrics,
	}
	return engine.Tree(ctx, nodes, timeout), nil
}

// exchangeBranch builds the per-branch delivery function for the
// forwarding engine: sign a fresh frame carrying the branch's forward
// descriptor and collect the relay's aggregated entries.
func (c *Client) exchangeBranch(msg *protocol.Message) forward.Exchange {
	return func(ctx context.Context, node string, fwd protocol.ForwardDescriptor, timeout time.Duration) ([]protocol.ResponseEntry, error) {
		branchMsg := *msg
		branchMsg.Forward = fwd
		resp, err := c.SendRecvOne(ctx, c.NodeAddr(node), &branchMsg, timeout)
		if err != nil {
			return nil, err
		}
		return resp.RetList, nil
	}
}

// SendRecvController exchanges msg with the cluster controller,
// riding the locator's failover machinery and following standby and
// reroute responses transparently.
func (c *Client) SendRecvController(ctx context.Context, msg *protocol.Message, timeout time.Duration) (*protocol.Message, error) {
	if c.loc == nil {
		return nil, comm.ErrNoController.WithDetails("no controller configured")
	}
	ctx = c.stampRequestID(ctx)
	timeout = c.orDefault(timeout)
	loc := c.loc
	start := time.Now()

	for hop := 0; hop <= maxRerouteHops; hop++ {
		resp, err := c.controllerAttempt(ctx, loc, msg, timeout, start)
		if err != nil {
			return nil, comm.RemapController(err)
		}

		if resp.Type == protocol.ResponseReroute {
			route, derr := protocol.DecodeReroute(resp.Body)
			if derr != nil {
				return nil, derr
			}
			c.metrics.Reroutes.Inc()
			c.logger.Info("following controller reroute",
				"cluster", route.Cluster.Name,
				"host", route.Cluster.Host,
				"hop", hop+1,
			)
			loc = loc.Reroute(locator.ClusterFromRoute(route.Cluster, loc.Cluster().Timeout))
			continue
		}
		return resp, nil
	}
	return nil, comm.ErrRerouteLoop.WithDetails("after " + strconv.Itoa(maxRerouteHops) + " hops")
}

// controllerAttempt performs one connect-exchange cycle against loc,
// retrying through the standby window when the answering replica is
// not yet in control.
func (c *Client) controllerAttempt(ctx context.Context, loc *locator.Locator, msg *protocol.Message, timeout time.Duration, start time.Time) (*protocol.Message, error) {
	for {
		conn, pos, err := loc.Connect(ctx, locator.AnyController)
		if err != nil {
			return nil, err
		}
		resp, err := c.exchange(ctx, conn, msg, timeout)
		conn.Close()
		if err != nil {
			return nil, err
		}

		if rc, ok := returnCode(resp); ok && rc == protocol.RCInStandby {
			sleep, retry := loc.StandbyRetry(time.Since(start))
			if !retry {
				return nil, comm.ErrInStandby
			}
			c.logger.Info("controller in standby, retrying",
				"endpoint", pos,
				"sleep", sleep,
			)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return nil, comm.ErrControllerConnect.WithCause(ctx.Err())
			}
			loc.RecordBackup()
			continue
		}
		return resp, nil
	}
}

// SendRecvControllerRC is the rc-only convenience form of
// SendRecvController.
func (c *Client) SendRecvControllerRC(ctx context.Context, msg *protocol.Message, timeout time.Duration) (int32, error) {
	resp, err := c.SendRecvController(ctx, msg, timeout)
	if err != nil {
		return 0, err
	}
	if rc, ok := returnCode(resp); ok {
		return rc, nil
	}
	return 0, protocol.ErrNotReturnCode
}

// ForwardData fans an opaque blob out to every node in the hostlist
// expression, addressed to a node-local socket. It returns the
// collapsed hostlist of nodes that failed, empty when all succeeded.
func (c *Client) ForwardData(ctx context.Context, nodelist, address string, data []byte, timeout time.Duration) (string, error) {
	msg := protocol.NewMessage(protocol.RequestForwardData, protocol.EncodeForwardData(address, data))
	entries, err := c.SendRecvNodes(ctx, nodelist, msg, timeout)
	if err != nil {
		return "", err
	}
	return hostlist.Collapse(forward.FailedNodes(entries)), nil
}

func (c *Client) orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return c.msgTimeout
	}
	return timeout
}

func (c *Client) observe(t protocol.MsgType, outcome string, start time.Time) {
	c.metrics.RPCsTotal.With(t.String(), outcome).Inc()
	metric.ObserveDuration(c.metrics.RPCDuration.With(t.String()), start)
}

// returnCode extracts the rc from a return-code response.
func returnCode(msg *protocol.Message) (int32, bool) {
	if msg.Type != protocol.ResponseReturnCode {
		return 0, false
	}
	body, err := protocol.DecodeReturnCode(msg.Body)
	if err != nil {
		return 0, false
	}
	return body.RC, true
}
