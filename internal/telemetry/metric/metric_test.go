package metric

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ============================================================
// No-op registry
// ============================================================

func TestNopRegistry(t *testing.T) {
	r := NewNop()

	// Every field must be usable without panicking.
	r.RPCsTotal.With("ping", "ok").Inc()
	r.RPCDuration.With("ping").Observe(0.1)
	r.ForwardBranchFailures.Add(3)
	r.ControllerRetries.Inc()
	r.StandbyWaits.Inc()
	r.Reroutes.Inc()
	r.RelayConnections.Set(5)
	r.RelayConnections.Inc()
	r.RelayConnections.Dec()

	ObserveDuration(r.RPCDuration.With("ping"), time.Now())
}

// ============================================================
// Prometheus registry
// ============================================================

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestPrometheusCounters(t *testing.T) {
	promReg := prometheus.NewRegistry()
	r := NewPrometheus(promReg)

	r.RPCsTotal.With("ping", "ok").Inc()
	r.RPCsTotal.With("ping", "ok").Inc()
	r.RPCsTotal.With("ping", "timeout").Inc()
	r.Reroutes.Inc()
	r.RelayConnections.Set(7)

	if got := counterValue(t, promReg, "gridmesh_rpcs_total"); got != 3 {
		t.Errorf("rpcs_total = %v, want 3", got)
	}
	if got := counterValue(t, promReg, "gridmesh_reroutes_total"); got != 1 {
		t.Errorf("reroutes_total = %v, want 1", got)
	}
	if got := counterValue(t, promReg, "gridmesh_relay_connections"); got != 7 {
		t.Errorf("relay_connections = %v, want 7", got)
	}
}

func TestPrometheusHistogram(t *testing.T) {
	promReg := prometheus.NewRegistry()
	r := NewPrometheus(promReg)

	r.RPCDuration.With("node_registration").Observe(0.05)
	r.RPCDuration.With("node_registration").Observe(2.0)

	families, err := promReg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "gridmesh_rpc_duration_seconds" {
			found = mf.GetMetric()[0].GetHistogram()
		}
	}
	if found == nil {
		t.Fatal("histogram not found")
	}
	if found.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", found.GetSampleCount())
	}
}

func TestHandler(t *testing.T) {
	promReg := prometheus.NewRegistry()
	r := NewPrometheus(promReg)
	r.ControllerRetries.Inc()

	rec := httptest.NewRecorder()
	Handler(promReg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gridmesh_controller_retries_total 1") {
		t.Error("exposition output missing controller_retries_total")
	}
}
