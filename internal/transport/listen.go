// Package transport provides socket lifecycle and length-framed timed
// I/O for the GridMesh protocol.
//
// Listeners retry across a fallback port range when ephemeral ports are
// exhausted, which is common under heavy concurrent use and must not
// abort the caller. All sends and receives are blocking-with-deadline;
// callers needing non-blocking behavior run them on their own
// goroutines.
package transport

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"syscall"
)

// Fallback range scanned when binding ephemeral port 0 fails with
// address-in-use.
const (
	FallbackPortMin = 10001
	FallbackPortMax = 65535
)

// bindFunc binds a listener on the given port. Split out so the scan
// logic is testable without exhausting real ports.
type bindFunc func(port int) (net.Listener, error)

func tcpBind(host string) bindFunc {
	return func(port int) (net.Listener, error) {
		return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	}
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// Listen binds a message engine listener on the given port. Host may be
// empty to bind all interfaces. Requesting port 0 binds an ephemeral
// port; if the kernel reports the ephemeral range exhausted, the
// fallback range is scanned linearly before giving up.
func Listen(host string, port int) (net.Listener, error) {
	bind := tcpBind(host)
	ln, err := bind(port)
	if err == nil {
		return ln, nil
	}
	if port != 0 || !isAddrInUse(err) {
		return nil, fmt.Errorf("transport: listen port %d: %w", port, err)
	}
	ln, _, scanErr := scanPorts(bind, FallbackPortMin, FallbackPortMin, FallbackPortMax)
	if scanErr != nil {
		return nil, fmt.Errorf("transport: ephemeral ports exhausted and fallback scan failed: %w", scanErr)
	}
	return ln, nil
}

// ListenRange binds inside [min, max], starting at a uniformly random
// port and scanning linearly with wrap-around until a port binds. It
// fails only when the whole range is exhausted.
func ListenRange(host string, min, max int) (net.Listener, int, error) {
	if min <= 0 || max < min || max > 65535 {
		return nil, 0, fmt.Errorf("transport: invalid port range [%d, %d]", min, max)
	}
	start := min + rand.Intn(max-min+1)
	return scanPorts(tcpBind(host), start, min, max)
}

// scanPorts tries ports from start through the range [min, max],
// wrapping past max back to min, until one binds or every port has been
// tried.
func scanPorts(bind bindFunc, start, min, max int) (net.Listener, int, error) {
	port := start
	for remaining := max - min + 1; remaining > 0; remaining-- {
		ln, err := bind(port)
		if err == nil {
			return ln, port, nil
		}
		if port == max {
			port = min
		} else {
			port++
		}
	}
	return nil, 0, fmt.Errorf("transport: all ports in range [%d, %d] exhausted", min, max)
}
