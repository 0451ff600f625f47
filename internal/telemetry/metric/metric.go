// Package metric provides instrumentation for GridMesh RPC traffic.
//
// The Registry collects the counters and histograms that matter to an
// operator watching a cluster: message volume by type and outcome,
// round-trip latency, branch failures in the forwarding tree, and
// controller availability events. A no-op registry is available for
// tests and for deployments that do not scrape metrics.
package metric

import "time"

// Registry holds all GridMesh metrics.
type Registry struct {
	// RPCsTotal counts RPCs by message type and outcome (ok, error,
	// timeout, reroute).
	RPCsTotal CounterVec
	// RPCDuration observes round-trip latency by message type.
	RPCDuration HistogramVec
	// ForwardBranchFailures counts subtree branches that produced
	// synthetic failure entries.
	ForwardBranchFailures Counter
	// ControllerRetries counts connect retries against controller
	// endpoints.
	ControllerRetries Counter
	// StandbyWaits counts requests answered with an in-standby error
	// that entered the retry window.
	StandbyWaits Counter
	// Reroutes counts reroute responses followed.
	Reroutes Counter
	// RelayConnections gauges currently open inbound relay
	// connections.
	RelayConnections Gauge
}

// Counter is a monotonically increasing value.
type Counter interface {
	Inc()
	Add(delta float64)
}

// CounterVec is a counter partitioned by label values.
type CounterVec interface {
	With(labels ...string) Counter
}

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(v float64)
	Inc()
	Dec()
}

// Histogram observes a distribution of values.
type Histogram interface {
	Observe(v float64)
}

// HistogramVec is a histogram partitioned by label values.
type HistogramVec interface {
	With(labels ...string) Histogram
}

// ObserveDuration records the elapsed time since start in seconds.
func ObserveDuration(h Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// ============================================================
// No-op implementation
// ============================================================

// NewNop returns a registry whose metrics discard all observations.
func NewNop() *Registry {
	return &Registry{
		RPCsTotal:             nopCounterVec{},
		RPCDuration:           nopHistogramVec{},
		ForwardBranchFailures: nopCounter{},
		ControllerRetries:     nopCounter{},
		StandbyWaits:          nopCounter{},
		Reroutes:              nopCounter{},
		RelayConnections:      nopGauge{},
	}
}

type nopCounter struct{}

func (nopCounter) Inc()          {}
func (nopCounter) Add(_ float64) {}

type nopCounterVec struct{}

func (nopCounterVec) With(_ ...string) Counter { return nopCounter{} }

type nopGauge struct{}

func (nopGauge) Set(_ float64) {}
func (nopGauge) Inc()          {}
func (nopGauge) Dec()          {}

type nopHistogram struct{}

func (nopHistogram) Observe(_ float64) {}

type nopHistogramVec struct{}

func (nopHistogramVec) With(_ ...string) Histogram { return nopHistogram{} }
