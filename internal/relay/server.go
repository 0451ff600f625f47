// Package relay implements the node-side daemon endpoint: it accepts
// framed connections, authenticates and decodes messages, answers them
// locally, and re-forwards tree messages to its subtree, merging the
// subtree's responses into the upward reply.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/gridmesh-go/internal/config"
	"github.com/yndnr/gridmesh-go/internal/rpc"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
	"github.com/yndnr/gridmesh-go/internal/transport"
)

// Config holds the relay server configuration.
type Config struct {
	// Addr is the listen address. A zero port triggers the ephemeral
	// fallback scan.
	Addr string
	// MaxConns caps concurrently served connections.
	MaxConns int
	// RateLimit throttles accepted connections per second; zero
	// disables throttling.
	RateLimit float64
	// RateBurst is the accept burst allowance.
	RateBurst int
	// MsgTimeout bounds one receive or send on a served connection.
	MsgTimeout time.Duration
	// TreeWidth bounds subtree fan-out when re-forwarding.
	TreeWidth int
	// NodeName identifies this node in response entries. Defaults to
	// the hostname.
	NodeName string
	// NodePort is the port peer relays listen on.
	NodePort int
	// BindAddress pins the listener to a specific local interface,
	// overriding the host part of Addr. Empty means no pinning.
	BindAddress string
	// PortRangeMin and PortRangeMax, when set with a zero port in Addr,
	// bind inside the given range instead of scanning the ephemeral
	// fallback.
	PortRangeMin int
	PortRangeMax int
}

// FromSections builds a relay Config from the loaded configuration.
func FromSections(cfg *config.Config, nodeName string) *Config {
	_, portStr, _ := net.SplitHostPort(cfg.Relay.Addr)
	nodePort, _ := strconv.Atoi(portStr)
	return &Config{
		Addr:         cfg.Relay.Addr,
		MaxConns:     cfg.Relay.MaxConns,
		RateLimit:    cfg.Relay.RateLimit,
		RateBurst:    cfg.Relay.RateBurst,
		MsgTimeout:   cfg.Comm.MsgTimeout,
		TreeWidth:    cfg.Comm.TreeWidth,
		NodeName:     nodeName,
		NodePort:     nodePort,
		BindAddress:  cfg.Comm.BindAddress,
		PortRangeMin: cfg.Comm.PortRangeMin,
		PortRangeMax: cfg.Comm.PortRangeMax,
	}
}

// Server accepts and serves relay connections.
type Server struct {
	cfg     *Config
	codec   *rpc.Codec
	handler Handler
	dial    DialFunc
	resolve PeerResolver

	logger  *slog.Logger
	metrics *metric.Registry

	ln      net.Listener
	port    int
	running atomic.Bool
	wg      sync.WaitGroup
	sem     chan struct{}
	limiter *rate.Limiter
}

// DialFunc dials a peer relay. Injectable for tests.
type DialFunc func(addr string, timeout time.Duration) (*transport.Conn, error)

// PeerResolver maps a node name to its relay endpoint. Returning empty
// falls back to node name plus the configured node port.
type PeerResolver func(node string) string

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDial overrides how peer relays are dialed.
func WithDial(d DialFunc) Option {
	return func(s *Server) { s.dial = d }
}

// WithPeerResolver resolves peer relay endpoints through an external
// source, typically the gossip membership view.
func WithPeerResolver(r PeerResolver) Option {
	return func(s *Server) { s.resolve = r }
}

// New creates a relay server. handler answers the messages addressed
// to this node.
func New(cfg *Config, codec *rpc.Codec, handler Handler, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		codec:   codec,
		handler: handler,
		logger:  slog.Default(),
		metrics: metric.NewNop(),
		sem:     make(chan struct{}, cfg.MaxConns),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	s.dial = func(addr string, timeout time.Duration) (*transport.Conn, error) {
		raw, err := transport.Dial(addr, timeout)
		if err != nil {
			return nil, err
		}
		return transport.NewConn(raw, cfg.MsgTimeout, s.logger), nil
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and launches the accept loop.
func (s *Server) Start(ctx context.Context) error {
	host, portStr, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	if s.cfg.BindAddress != "" {
		host = s.cfg.BindAddress
	}

	var ln net.Listener
	if port == 0 && s.cfg.PortRangeMin > 0 {
		ln, _, err = transport.ListenRange(host, s.cfg.PortRangeMin, s.cfg.PortRangeMax)
	} else {
		ln, err = transport.Listen(host, port)
	}
	if err != nil {
		return err
	}
	s.ln = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.running.Store(true)

	s.logger.Info("relay server listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx); err != nil && s.running.Load() {
			s.logger.Error("relay accept loop error", "error", err)
		}
	}()
	return nil
}

// Port returns the bound port, useful when the configured port was
// zero.
func (s *Server) Port() int { return s.port }

// Shutdown closes the listener and waits for in-flight connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			firstErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.logger.Warn("connection rejected by rate limit", "remote", c.RemoteAddr())
			c.Close()
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.logger.Warn("connection rejected, at max connections", "remote", c.RemoteAddr())
			c.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.serveConn(ctx, c)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	s.metrics.RelayConnections.Inc()
	defer s.metrics.RelayConnections.Dec()

	// Every served connection gets a correlation ID; handlers and
	// subtree forwards inherit it through ctx.
	ctx = logger.WithRequestID(logger.WithLogger(ctx, s.logger), logger.NewRequestID())
	log := logger.FromContext(ctx)

	conn := transport.NewConn(raw, s.cfg.MsgTimeout, log)
	defer conn.Close()

	frame, err := conn.Recv(s.cfg.MsgTimeout)
	if err != nil {
		log.Debug("relay receive failed", "remote", raw.RemoteAddr(), "error", err)
		return
	}
	log.Debug("relay frame received", "remote", raw.RemoteAddr(), "bytes", len(frame))

	reply, err := s.handleFrame(ctx, frame)
	if err != nil {
		log.Warn("relay message rejected", "remote", raw.RemoteAddr(), "error", err)
		return
	}
	if reply == nil {
		return
	}
	if err := conn.Send(reply, s.cfg.MsgTimeout); err != nil {
		log.Debug("relay reply send failed", "remote", raw.RemoteAddr(), "error", err)
	}
}
