package locator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/gridmesh-go/internal/comm"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
	"github.com/yndnr/gridmesh-go/internal/transport"
)

// retrySleep is the pause between endpoint sweeps while connecting.
const retrySleep = time.Second

// AnyController requests the normal attempt order instead of a
// specific endpoint index.
const AnyController = -1

// DialFunc dials one endpoint. Injectable for tests.
type DialFunc func(addr string, timeout time.Duration) (*transport.Conn, error)

// Locator contacts a cluster's controllers with retry and failover.
type Locator struct {
	cluster    Cluster
	msgTimeout time.Duration

	// useBackup is latched after a backup success so later calls try
	// the backup first within this locator session.
	useBackup atomic.Bool

	dial    DialFunc
	sleep   func(time.Duration)
	logger  *slog.Logger
	metrics *metric.Registry
}

// Option configures a Locator.
type Option func(*Locator)

// WithDial overrides how endpoints are dialed.
func WithDial(dial DialFunc) Option {
	return func(l *Locator) { l.dial = dial }
}

// WithSleep overrides the retry sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(l *Locator) { l.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locator) { l.logger = logger }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(l *Locator) { l.metrics = m }
}

// New builds a locator for the given cluster. msgTimeout bounds the
// total connect retry period.
func New(cluster Cluster, msgTimeout time.Duration, opts ...Option) *Locator {
	l := &Locator{
		cluster:    cluster,
		msgTimeout: msgTimeout,
		sleep:      time.Sleep,
		logger:     slog.Default(),
		metrics:    metric.NewNop(),
	}
	l.dial = func(addr string, timeout time.Duration) (*transport.Conn, error) {
		raw, err := transport.Dial(addr, timeout)
		if err != nil {
			return nil, err
		}
		return transport.NewConn(raw, msgTimeout, l.logger), nil
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Cluster returns the cluster this locator serves.
func (l *Locator) Cluster() Cluster { return l.cluster }

// UsingBackup reports whether a backup controller answered earlier in
// this session.
func (l *Locator) UsingBackup() bool { return l.useBackup.Load() }

// RecordBackup latches backup preference, e.g. after a standby retry
// succeeded against a promoted backup.
func (l *Locator) RecordBackup() { l.useBackup.Store(true) }

// Connect dials a controller, walking the endpoint set in attempt
// order with one-second pauses between sweeps until the retry period
// is spent. index selects a specific endpoint (AnyController for the
// normal order). On success the endpoint's position is returned so
// callers can tell primary from backup.
func (l *Locator) Connect(ctx context.Context, index int) (*transport.Conn, int, error) {
	eps := l.cluster.Endpoints()
	if len(eps) == 0 {
		return nil, 0, comm.ErrNoController.WithDetails("no controller endpoints configured")
	}

	if index != AnyController {
		if index < 0 || index >= len(eps) {
			return nil, 0, comm.ErrNoController.WithDetails("controller index out of range")
		}
		eps = eps[index : index+1]
	} else if l.useBackup.Load() && len(eps) > 1 {
		// Backup-first: rotate the latched backup set ahead of the
		// primary.
		reordered := make([]Endpoint, 0, len(eps))
		reordered = append(reordered, eps[1:]...)
		reordered = append(reordered, eps[0])
		eps = reordered
	}

	deadline := time.Now().Add(l.msgTimeout)
	var lastErr error
	for sweep := 0; ; sweep++ {
		for i, ep := range eps {
			if err := ctx.Err(); err != nil {
				return nil, 0, comm.ErrControllerConnect.WithCause(err)
			}
			conn, err := l.dial(ep.Addr(), l.cluster.Timeout)
			if err == nil {
				if pos := l.position(ep); pos > 0 {
					l.useBackup.Store(true)
				}
				l.logger.Debug("controller connected",
					"addr", ep.Addr(),
					"sweep", sweep,
					"backup", l.useBackup.Load(),
				)
				return conn, l.position(ep), nil
			}
			lastErr = err
			l.metrics.ControllerRetries.Inc()
			l.logger.Debug("controller connect failed",
				"addr", ep.Addr(),
				"attempt", sweep*len(eps)+i+1,
				"error", err,
			)
		}
		if time.Now().After(deadline) {
			break
		}
		l.sleep(retrySleep)
	}
	return nil, 0, comm.ErrControllerConnect.WithCause(lastErr)
}

// position maps an endpoint back to its configured priority order.
func (l *Locator) position(ep Endpoint) int {
	for i, e := range l.cluster.Endpoints() {
		if e == ep {
			return i
		}
	}
	return 0
}

// StandbyRetry decides whether a standby response still warrants a
// retry. A standby answer means failover is in progress: when a backup
// exists and the elapsed time since the first attempt is under 1.5x
// the controller timeout, the caller should sleep the returned
// duration and retry.
func (l *Locator) StandbyRetry(elapsed time.Duration) (time.Duration, bool) {
	if len(l.cluster.Endpoints()) < 2 {
		return 0, false
	}
	if elapsed >= l.cluster.Timeout+l.cluster.Timeout/2 {
		return 0, false
	}
	l.metrics.StandbyWaits.Inc()
	return l.cluster.Timeout / 2, true
}

// Reroute returns a locator for the cluster named in a reroute
// response, inheriting this locator's dial and retry settings.
func (l *Locator) Reroute(cluster Cluster) *Locator {
	return &Locator{
		cluster:    cluster,
		msgTimeout: l.msgTimeout,
		dial:       l.dial,
		sleep:      l.sleep,
		logger:     l.logger,
		metrics:    l.metrics,
	}
}
