package transport

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/yndnr/gridmesh-go/internal/comm"
)

// ============================================================
// Port Scanning
// ============================================================

// stubBinder simulates bind results per port.
type stubBinder struct {
	mu    sync.Mutex
	inUse map[int]bool
	tried []int
}

func (s *stubBinder) bind(port int) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tried = append(s.tried, port)
	if s.inUse[port] {
		return nil, fmt.Errorf("bind: %w", syscall.EADDRINUSE)
	}
	// A real listener on an ephemeral port stands in for "bound".
	return net.Listen("tcp", "127.0.0.1:0")
}

func TestScanPorts_SkipsBusyPorts(t *testing.T) {
	sb := &stubBinder{inUse: map[int]bool{10001: true, 10002: true}}

	ln, port, err := scanPorts(sb.bind, 10001, 10001, 10005)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer ln.Close()

	if port != 10003 {
		t.Errorf("port = %d, want 10003", port)
	}
	want := []int{10001, 10002, 10003}
	if len(sb.tried) != len(want) {
		t.Errorf("tried %v, want %v", sb.tried, want)
	}
}

func TestScanPorts_WrapsAround(t *testing.T) {
	sb := &stubBinder{inUse: map[int]bool{10004: true, 10005: true}}

	ln, port, err := scanPorts(sb.bind, 10004, 10001, 10005)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer ln.Close()

	if port != 10001 {
		t.Errorf("port = %d, want wrap to 10001", port)
	}
}

func TestScanPorts_Exhaustion(t *testing.T) {
	inUse := map[int]bool{}
	for p := 10001; p <= 10010; p++ {
		inUse[p] = true
	}
	sb := &stubBinder{inUse: inUse}

	_, _, err := scanPorts(sb.bind, 10006, 10001, 10010)
	if err == nil {
		t.Fatal("scan of fully occupied range succeeded")
	}
	if len(sb.tried) != 10 {
		t.Errorf("tried %d ports, want all 10", len(sb.tried))
	}
}

func TestListen_EphemeralFallbackScansRange(t *testing.T) {
	// Ephemeral exhaustion is simulated through the scan helper with a
	// stub binder; this exercises the same path Listen takes when port
	// 0 fails with EADDRINUSE.
	busy := map[int]bool{}
	for p := FallbackPortMin; p < FallbackPortMin+50; p++ {
		busy[p] = true
	}
	sb := &stubBinder{inUse: busy}

	ln, port, err := scanPorts(sb.bind, FallbackPortMin, FallbackPortMin, FallbackPortMax)
	if err != nil {
		t.Fatalf("fallback scan: %v", err)
	}
	defer ln.Close()
	if port != FallbackPortMin+50 {
		t.Errorf("port = %d, want %d", port, FallbackPortMin+50)
	}
}

func TestListen_EphemeralPort(t *testing.T) {
	ln, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	if ln.Addr().(*net.TCPAddr).Port == 0 {
		t.Error("no port bound")
	}
}

// ============================================================
// Local interface pinning
// ============================================================

func TestBindCacheResolvesOnce(t *testing.T) {
	var b bindCache
	first, err := b.resolve("127.0.0.1")
	if err != nil || first == nil {
		t.Fatalf("resolve: addr=%v err=%v", first, err)
	}
	// Write-once: a later, different host keeps the first resolution.
	second, err := b.resolve("203.0.113.9")
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if second != first {
		t.Errorf("second resolve = %v, want the cached %v", second, first)
	}
}

func TestSetLocalBindPinsOutbound(t *testing.T) {
	if err := SetLocalBind("127.0.0.1"); err != nil {
		t.Fatalf("set local bind: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	c, err := Dial(ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	host, _, _ := net.SplitHostPort(c.LocalAddr().String())
	if host != "127.0.0.1" {
		t.Errorf("local addr = %s, want the pinned 127.0.0.1", host)
	}
}

func TestListenRange(t *testing.T) {
	ln, port, err := ListenRange("127.0.0.1", 20100, 20200)
	if err != nil {
		t.Fatalf("listen range: %v", err)
	}
	defer ln.Close()
	if port < 20100 || port > 20200 {
		t.Errorf("port %d outside range", port)
	}

	if _, _, err := ListenRange("127.0.0.1", 0, 10); err == nil {
		t.Error("invalid range accepted")
	}
}

// ============================================================
// Framed Send / Recv
// ============================================================

func pipePair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	type result struct {
		c   net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := ln.Accept()
		ch <- result{c, err}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	r := <-ch
	if r.err != nil {
		t.Fatalf("accept: %v", r.err)
	}
	t.Cleanup(func() {
		client.Close()
		r.c.Close()
	})
	return NewConn(client, time.Second, nil), NewConn(r.c, time.Second, nil)
}

func TestConn_SendRecv(t *testing.T) {
	a, b := pipePair(t)

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xa5}, 70000),
	}
	for _, want := range payloads {
		if err := a.Send(want, 2*time.Second); err != nil {
			t.Fatalf("send: %v", err)
		}
		got, err := b.Recv(2 * time.Second)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("recv %d bytes, want %d", len(got), len(want))
		}
	}
}

func TestConn_RecvTimeout(t *testing.T) {
	a, _ := pipePair(t)

	start := time.Now()
	_, err := a.Recv(200 * time.Millisecond)
	if !errors.Is(err, comm.ErrReceive) {
		t.Fatalf("err = %v, want receive error", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("recv did not respect timeout")
	}
}

func TestConn_RecvOversizedDeclaredFrame(t *testing.T) {
	a, b := pipePair(t)

	// Hand-craft a prefix declaring more than MaxFrameSize.
	prefix := []byte{0xff, 0xff, 0xff, 0xff}
	if _, err := a.Raw().Write(prefix); err != nil {
		t.Fatalf("write prefix: %v", err)
	}

	_, err := b.Recv(time.Second)
	if !errors.Is(err, comm.ErrFraming) {
		t.Errorf("err = %v, want framing error", err)
	}
}

func TestConn_TimeoutNormalization(t *testing.T) {
	a, b := pipePair(t)

	// A non-positive timeout falls back to the configured default (1s
	// in pipePair) rather than failing; the send below must still
	// complete.
	if err := a.Send([]byte("x"), 0); err != nil {
		t.Fatalf("send with zero timeout: %v", err)
	}
	if _, err := b.Recv(-5); err != nil {
		t.Fatalf("recv with negative timeout: %v", err)
	}
}

func TestConn_SendAndHangup(t *testing.T) {
	a, b := pipePair(t)

	done := make(chan error, 1)
	go func() {
		// Well-behaved peer: read the frame, then close.
		_, err := b.Recv(2 * time.Second)
		b.Close()
		done <- err
	}()

	if err := a.SendAndHangup([]byte("maybe delivered"), 2*time.Second); err != nil {
		t.Errorf("hangup send against cooperative peer: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("peer recv: %v", err)
	}
}

func TestConn_SendAndHangup_NoAck(t *testing.T) {
	a, _ := pipePair(t)

	// Peer never reads nor closes: the bounded poll must expire and
	// report the shutdown class, not hang.
	err := a.SendAndHangup([]byte("never acked"), 300*time.Millisecond)
	if !errors.Is(err, comm.ErrShutdown) {
		t.Errorf("err = %v, want shutdown error", err)
	}
}

func TestConn_SendAndHangupNormalizesOnce(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	client, server := net.Pipe()
	conn := NewConn(client, time.Second, log)
	defer conn.Close()
	go func() {
		peer := NewConn(server, time.Second, nil)
		_, _ = peer.Recv(time.Second)
		peer.Close()
	}()

	// A sub-second timeout trips the anomaly warning, which must fire
	// exactly once for the whole send-and-hangup sequence.
	if err := conn.SendAndHangup([]byte("x"), 500*time.Millisecond); err != nil {
		t.Fatalf("send and hangup: %v", err)
	}
	if n := strings.Count(buf.String(), "very short message timeout"); n != 1 {
		t.Errorf("short-timeout warnings = %d, want 1:\n%s", n, buf.String())
	}
}
