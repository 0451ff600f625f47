package forward

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/yndnr/gridmesh-go/internal/comm"
	"github.com/yndnr/gridmesh-go/internal/protocol"
)

// ============================================================
// Span
// ============================================================

func TestSpanInvariants(t *testing.T) {
	for total := 0; total <= 200; total++ {
		for width := 1; width <= 40; width++ {
			counts := Span(total, width)
			sum := 0
			for _, c := range counts {
				if c <= 0 {
					t.Fatalf("Span(%d,%d): non-positive count %d", total, width, c)
				}
				if c > total {
					t.Fatalf("Span(%d,%d): count %d exceeds total", total, width, c)
				}
				sum += c
			}
			if sum != total {
				t.Fatalf("Span(%d,%d): counts sum %d, want %d", total, width, sum, total)
			}
			if len(counts) > width {
				t.Fatalf("Span(%d,%d): %d branches exceeds width", total, width, len(counts))
			}
		}
	}
}

func TestSpanDegenerate(t *testing.T) {
	// total <= width: every destination is its own branch.
	counts := Span(5, 16)
	if len(counts) != 5 {
		t.Fatalf("branches = %d, want 5", len(counts))
	}
	for i, c := range counts {
		if c != 1 {
			t.Errorf("branch %d count = %d, want 1", i, c)
		}
	}
}

func TestSpanRemainderToEarlyBranches(t *testing.T) {
	counts := Span(10, 3)
	want := []int{4, 3, 3}
	if len(counts) != len(want) {
		t.Fatalf("branches = %d, want %d", len(counts), len(want))
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("branch %d = %d, want %d", i, counts[i], want[i])
		}
	}
}

func TestSpanEmptyAndBadWidth(t *testing.T) {
	if got := Span(0, 8); got != nil {
		t.Errorf("Span(0,8) = %v, want nil", got)
	}
	if got := Span(3, 0); len(got) != 1 || got[0] != 3 {
		t.Errorf("Span(3,0) = %v, want [3]", got)
	}
}

func TestPartition(t *testing.T) {
	nodes := []string{"a", "b", "c", "d", "e"}
	branches := partition(nodes, 2)
	if len(branches) != 2 {
		t.Fatalf("branches = %d, want 2", len(branches))
	}
	var flat []string
	for _, b := range branches {
		flat = append(flat, b...)
	}
	if len(flat) != len(nodes) {
		t.Fatalf("partition lost nodes: %v", flat)
	}
	for i, n := range nodes {
		if flat[i] != n {
			t.Errorf("node %d = %q, want %q (order must be preserved)", i, flat[i], n)
		}
	}
}

// ============================================================
// Budget
// ============================================================

func TestSteps(t *testing.T) {
	tests := []struct {
		cnt, width, want int
	}{
		{0, 16, 0},
		{1, 16, 1},
		{16, 16, 1},
		{17, 16, 2},
		{100, 16, 7},
		{100, 1, 100},
		{5, 0, 5},
	}
	for _, tt := range tests {
		if got := Steps(tt.cnt, tt.width); got != tt.want {
			t.Errorf("Steps(%d,%d) = %d, want %d", tt.cnt, tt.width, got, tt.want)
		}
	}
}

func TestBudgetSingleHopUsesFullTimeout(t *testing.T) {
	b := NewBudget(30*time.Second, 10, 16)
	if got := b.Next(); got != 30*time.Second {
		t.Errorf("single-hop budget = %v, want the original 30s", got)
	}
}

func TestBudgetMonotonicity(t *testing.T) {
	// Sum of per-hop allotments never exceeds the original timeout by
	// more than StepOverhead per hop.
	for _, cnt := range []int{1, 16, 17, 64, 500} {
		total := 60 * time.Second
		width := 16
		b := NewBudget(total, cnt, width)
		steps := Steps(cnt, width)
		var sum time.Duration
		for i := 0; i < steps; i++ {
			hop := b.Next()
			if hop <= 0 {
				t.Fatalf("cnt=%d hop %d: non-positive budget %v", cnt, i, hop)
			}
			sum += hop
		}
		limit := total + StepOverhead*time.Duration(steps)
		if sum > limit {
			t.Errorf("cnt=%d: hop budgets sum %v exceeds %v", cnt, sum, limit)
		}
		if b.Remaining() != 0 {
			t.Errorf("cnt=%d: budget not exhausted, %v left", cnt, b.Remaining())
		}
	}
}

// ============================================================
// Tree aggregation
// ============================================================

func nodeNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("gm%03d", i+1)
	}
	return names
}

// okExchange answers for the relay and every subtree node.
func okExchange(_ context.Context, node string, fwd protocol.ForwardDescriptor, _ time.Duration) ([]protocol.ResponseEntry, error) {
	entries := []protocol.ResponseEntry{{Node: node, Type: protocol.ResponseReturnCode}}
	for _, n := range fwd.Nodes {
		entries = append(entries, protocol.ResponseEntry{Node: n, Type: protocol.ResponseReturnCode})
	}
	return entries, nil
}

func TestTreeAllSucceed(t *testing.T) {
	nodes := nodeNames(50)
	e := &Engine{Width: 4, Exchange: okExchange}

	entries := e.Tree(context.Background(), nodes, 10*time.Second)
	if len(entries) != len(nodes) {
		t.Fatalf("entries = %d, want %d", len(entries), len(nodes))
	}
	for _, entry := range entries {
		if !entry.OK() {
			t.Errorf("node %s: unexpected failure %s", entry.Node, entry.ErrCode)
		}
	}
	if failed := FailedNodes(entries); failed != nil {
		t.Errorf("FailedNodes = %v, want none", failed)
	}
}

func TestTreeCompletenessUnderBranchFailure(t *testing.T) {
	nodes := nodeNames(20)
	// The branch relayed by gm001 dies; everything else answers.
	exchange := func(ctx context.Context, node string, fwd protocol.ForwardDescriptor, timeout time.Duration) ([]protocol.ResponseEntry, error) {
		if node == "gm001" {
			return nil, comm.ErrConnect.WithDetails("connection refused")
		}
		return okExchange(ctx, node, fwd, timeout)
	}
	e := &Engine{Width: 4, Exchange: exchange}

	entries := e.Tree(context.Background(), nodes, 10*time.Second)
	if len(entries) != len(nodes) {
		t.Fatalf("entries = %d, want %d (cardinality must survive branch failure)", len(entries), len(nodes))
	}

	failed := FailedNodes(entries)
	// gm001 leads a branch of 5 nodes (20 across width 4).
	if len(failed) != 5 {
		t.Fatalf("failed = %v, want the 5 nodes of gm001's branch", failed)
	}
	sort.Strings(failed)
	for i, want := range []string{"gm001", "gm002", "gm003", "gm004", "gm005"} {
		if failed[i] != want {
			t.Errorf("failed[%d] = %s, want %s", i, failed[i], want)
		}
	}
	for _, entry := range entries {
		if !entry.OK() {
			if entry.Type != protocol.ResponseForwardFailed {
				t.Errorf("node %s: type = %v, want ResponseForwardFailed", entry.Node, entry.Type)
			}
			if entry.ErrCode != comm.ErrForwardFailed.Code {
				t.Errorf("node %s: code = %s, want %s", entry.Node, entry.ErrCode, comm.ErrForwardFailed.Code)
			}
			if entry.Body != nil {
				t.Errorf("node %s: synthetic entry must carry no body", entry.Node)
			}
		}
	}
}

func TestTreeAllBranchesFail(t *testing.T) {
	nodes := nodeNames(12)
	exchange := func(context.Context, string, protocol.ForwardDescriptor, time.Duration) ([]protocol.ResponseEntry, error) {
		return nil, errors.New("boom")
	}
	e := &Engine{Width: 3, Exchange: exchange}

	entries := e.Tree(context.Background(), nodes, time.Second)
	if len(entries) != len(nodes) {
		t.Fatalf("entries = %d, want %d", len(entries), len(nodes))
	}
	if got := len(FailedNodes(entries)); got != len(nodes) {
		t.Errorf("failed = %d, want all %d", got, len(nodes))
	}
}

func TestTreePartialSubtreeResponses(t *testing.T) {
	// A relay may answer for itself but lose part of its subtree; the
	// missing nodes still get synthetic entries.
	nodes := []string{"a", "b", "c"}
	exchange := func(_ context.Context, node string, _ protocol.ForwardDescriptor, _ time.Duration) ([]protocol.ResponseEntry, error) {
		return []protocol.ResponseEntry{{Node: node, Type: protocol.ResponseReturnCode}}, nil
	}
	e := &Engine{Width: 1, Exchange: exchange}

	entries := e.Tree(context.Background(), nodes, time.Second)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	failed := FailedNodes(entries)
	sort.Strings(failed)
	if len(failed) != 2 || failed[0] != "b" || failed[1] != "c" {
		t.Errorf("failed = %v, want [b c]", failed)
	}
}

func TestTreeEmptyNodeList(t *testing.T) {
	e := &Engine{Exchange: okExchange}
	if got := e.Tree(context.Background(), nil, time.Second); got != nil {
		t.Errorf("Tree(nil) = %v, want nil", got)
	}
}

func TestTreeDescriptorHandedToBranches(t *testing.T) {
	nodes := nodeNames(8)
	seen := make(chan protocol.ForwardDescriptor, 8)
	exchange := func(ctx context.Context, node string, fwd protocol.ForwardDescriptor, timeout time.Duration) ([]protocol.ResponseEntry, error) {
		seen <- fwd
		return okExchange(ctx, node, fwd, timeout)
	}
	e := &Engine{Width: 2, Exchange: exchange}
	e.Tree(context.Background(), nodes, 10*time.Second)
	close(seen)

	branches := 0
	for fwd := range seen {
		branches++
		if !fwd.Init {
			t.Error("branch descriptor must be initialized")
		}
		if fwd.TreeWidth != 2 {
			t.Errorf("TreeWidth = %d, want 2", fwd.TreeWidth)
		}
		if len(fwd.Nodes) != 3 {
			t.Errorf("subtree size = %d, want 3", len(fwd.Nodes))
		}
	}
	if branches != 2 {
		t.Errorf("branches = %d, want 2", branches)
	}
}
