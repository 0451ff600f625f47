// Package locator resolves and contacts controller endpoints.
//
// A cluster is served by an ordered set of controllers, primary first,
// optionally fronted by a virtual address. The locator walks that set
// with bounded retries, tolerates failover windows where the surviving
// controller is still in standby, and follows cross-cluster reroute
// responses.
package locator

import (
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/yndnr/gridmesh-go/internal/config"
	"github.com/yndnr/gridmesh-go/internal/protocol"
)

// Endpoint is one resolvable controller address.
type Endpoint struct {
	Host string
	Port int
}

// Addr returns the dialable host:port form.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Cluster describes one cluster's controller set.
type Cluster struct {
	// Name identifies the cluster, mainly for reroute bookkeeping.
	Name string

	// Hosts lists controller hosts in priority order, primary first.
	Hosts []string

	// VIP, when set, is tried as the sole endpoint before the ordered
	// list is consulted.
	VIP string

	// Port and PortCount define the controller port window.
	Port      int
	PortCount int

	// Timeout bounds one controller round trip.
	Timeout time.Duration
}

// ClusterFromConfig builds the local cluster description.
func ClusterFromConfig(cfg *config.ControllerSection) Cluster {
	return Cluster{
		Hosts:     append([]string(nil), cfg.Addrs...),
		VIP:       cfg.VIP,
		Port:      cfg.Port,
		PortCount: cfg.PortCount,
		Timeout:   cfg.Timeout,
	}
}

// ClusterFromRoute builds a cluster description from a reroute
// response, inheriting the original timeout.
func ClusterFromRoute(route protocol.ClusterRoute, timeout time.Duration) Cluster {
	return Cluster{
		Name:      route.Name,
		Hosts:     []string{route.Host},
		Port:      int(route.Port),
		PortCount: 1,
		Timeout:   timeout,
	}
}

// portSlot picks the per-process controller port offset from (time,
// pid). Computed once; every connection in this process uses the same
// slot.
var (
	portSlotOnce sync.Once
	portSlotVal  int
)

func portSlot(count int) int {
	if count <= 1 {
		return 0
	}
	portSlotOnce.Do(func() {
		portSlotVal = int(time.Now().Unix()) + os.Getpid()
		if portSlotVal < 0 {
			portSlotVal = -portSlotVal
		}
	})
	return portSlotVal % count
}

// Endpoints resolves the cluster's dial targets in attempt order. The
// VIP, when configured, replaces the host list entirely; otherwise
// every configured host appears with the rotated port.
func (c *Cluster) Endpoints() []Endpoint {
	port := c.Port + portSlot(c.PortCount)
	if c.VIP != "" {
		return []Endpoint{{Host: c.VIP, Port: port}}
	}
	eps := make([]Endpoint, len(c.Hosts))
	for i, h := range c.Hosts {
		eps[i] = Endpoint{Host: h, Port: port}
	}
	return eps
}
