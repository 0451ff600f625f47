package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gridmesh"

// latencyBuckets covers the spread from a LAN round trip to a deep
// tree fan-out hitting its hop budget.
var latencyBuckets = []float64{
	.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60,
}

// NewPrometheus returns a registry backed by Prometheus collectors
// registered on reg.
func NewPrometheus(reg prometheus.Registerer) *Registry {
	factory := func(name, help string, labels ...string) *prometheus.CounterVec {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
		reg.MustRegister(cv)
		return cv
	}

	rpcsTotal := factory("rpcs_total", "RPCs by message type and outcome.", "type", "outcome")

	rpcDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_duration_seconds",
		Help:      "RPC round-trip latency by message type.",
		Buckets:   latencyBuckets,
	}, []string{"type"})
	reg.MustRegister(rpcDuration)

	branchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forward_branch_failures_total",
		Help:      "Forwarding subtree branches that produced failure entries.",
	})
	controllerRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "controller_retries_total",
		Help:      "Connect retries against controller endpoints.",
	})
	standbyWaits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "standby_waits_total",
		Help:      "Requests that entered the standby retry window.",
	})
	reroutes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reroutes_total",
		Help:      "Reroute responses followed to another controller.",
	})
	reg.MustRegister(branchFailures, controllerRetries, standbyWaits, reroutes)

	relayConns := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "relay_connections",
		Help:      "Currently open inbound relay connections.",
	})
	reg.MustRegister(relayConns)

	return &Registry{
		RPCsTotal:             promCounterVec{rpcsTotal},
		RPCDuration:           promHistogramVec{rpcDuration},
		ForwardBranchFailures: promCounter{branchFailures},
		ControllerRetries:     promCounter{controllerRetries},
		StandbyWaits:          promCounter{standbyWaits},
		Reroutes:              promCounter{reroutes},
		RelayConnections:      promGauge{relayConns},
	}
}

// Handler returns an HTTP handler serving the metrics registered on
// reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type promCounter struct {
	c prometheus.Counter
}

func (p promCounter) Inc()          { p.c.Inc() }
func (p promCounter) Add(d float64) { p.c.Add(d) }

type promCounterVec struct {
	cv *prometheus.CounterVec
}

func (p promCounterVec) With(labels ...string) Counter {
	return promCounter{p.cv.WithLabelValues(labels...)}
}

type promGauge struct {
	g prometheus.Gauge
}

func (p promGauge) Set(v float64) { p.g.Set(v) }
func (p promGauge) Inc()          { p.g.Inc() }
func (p promGauge) Dec()          { p.g.Dec() }

type promHistogram struct {
	h prometheus.Observer
}

func (p promHistogram) Observe(v float64) { p.h.Observe(v) }

type promHistogramVec struct {
	hv *prometheus.HistogramVec
}

func (p promHistogramVec) With(labels ...string) Histogram {
	return promHistogram{p.hv.WithLabelValues(labels...)}
}
