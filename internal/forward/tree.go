package forward

import (
	"context"
	"log/slog"
	"time"

	"github.com/yndnr/gridmesh-go/internal/comm"
	"github.com/yndnr/gridmesh-go/internal/protocol"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
)

// DefaultTreeWidth bounds fan-out when the caller does not configure
// one.
const DefaultTreeWidth = 16

// Exchange delivers a message to one relay node with the given forward
// descriptor and timeout, returning the per-node response entries the
// relay aggregated from itself and its subtree. The engine is agnostic
// to how delivery happens: the root signs a fresh frame per branch,
// while a relay re-frames the raw credential and body it received.
type Exchange func(ctx context.Context, node string, fwd protocol.ForwardDescriptor, timeout time.Duration) ([]protocol.ResponseEntry, error)

// Engine fans a message out across a bounded-width tree and aggregates
// the responses.
type Engine struct {
	// Width bounds per-hop fan-out. Zero means DefaultTreeWidth.
	Width int

	// Exchange delivers to one branch relay.
	Exchange Exchange

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// branchResult carries one branch's outcome to the aggregating parent.
type branchResult struct {
	nodes   []string
	entries []protocol.ResponseEntry
	err     error
}

// Tree dispatches msg's delivery to every node in nodes through a tree
// of relays and returns one entry per node. The result always holds
// exactly len(nodes) entries: nodes behind a failed or timed-out
// branch get synthetic failure entries. Entry order is keyed by node
// name, not input position.
func (e *Engine) Tree(ctx context.Context, nodes []string, timeout time.Duration) []protocol.ResponseEntry {
	if len(nodes) == 0 {
		return nil
	}
	width := e.Width
	if width <= 0 {
		width = DefaultTreeWidth
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := e.Metrics
	if metrics == nil {
		metrics = metric.NewNop()
	}

	branches := partition(nodes, width)
	budget := NewBudget(timeout, len(nodes), width)
	hopTimeout := budget.Next()

	ctx, cancel := context.WithDeadline(ctx, time.Now().Add(timeout))
	defer cancel()

	results := make(chan branchResult, len(branches))
	for _, branch := range branches {
		head, rest := branch[0], branch[1:]
		fwd := protocol.ForwardDescriptor{
			Init:      true,
			Nodes:     rest,
			Timeout:   budget.Remaining(),
			TreeWidth: uint16(width),
		}
		go func(head string, branch []string) {
			entries, err := e.Exchange(ctx, head, fwd, hopTimeout)
			results <- branchResult{nodes: branch, entries: entries, err: err}
		}(head, branch)
	}

	byNode := make(map[string]protocol.ResponseEntry, len(nodes))
	for range branches {
		res := <-results
		if res.err != nil {
			metrics.ForwardBranchFailures.Inc()
			logger.Warn("forward branch failed",
				"relay", res.nodes[0],
				"subtree_size", len(res.nodes),
				"error", res.err,
			)
			continue
		}
		for _, entry := range res.entries {
			byNode[entry.Node] = entry
		}
	}

	// One entry per requested node, synthetic failures for the rest.
	out := make([]protocol.ResponseEntry, 0, len(nodes))
	for _, node := range nodes {
		if entry, ok := byNode[node]; ok {
			out = append(out, entry)
			delete(byNode, node)
			continue
		}
		out = append(out, failedEntry(node))
	}
	for node := range byNode {
		logger.Warn("dropping response from unexpected node", "node", node)
	}
	return out
}

// failedEntry builds a synthetic failure entry for a node that never
// answered.
func failedEntry(node string) protocol.ResponseEntry {
	return protocol.ResponseEntry{
		Node:    node,
		Type:    protocol.ResponseForwardFailed,
		ErrCode: comm.ErrForwardFailed.Code,
	}
}

// FailedNodes returns the names of every entry representing a
// synthetic or error response.
func FailedNodes(entries []protocol.ResponseEntry) []string {
	var failed []string
	for i := range entries {
		if !entries[i].OK() {
			failed = append(failed, entries[i].Node)
		}
	}
	return failed
}
