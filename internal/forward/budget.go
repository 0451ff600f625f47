package forward

import "time"

// StepOverhead is the fixed per-step allowance for relay processing
// added on top of each hop's share of the caller's timeout.
const StepOverhead = 10 * time.Second

// Steps returns the number of tree hops needed to reach cnt
// destinations with the given fan-out width.
func Steps(cnt, width int) int {
	if cnt <= 0 {
		return 0
	}
	if width < 1 {
		width = 1
	}
	return (cnt + width - 1) / width
}

// Budget tracks the remaining timeout as the tree descends. Each hop
// draws an equal share of what is left; deeper hops are never starved
// relative to earlier ones.
type Budget struct {
	remaining time.Duration
	stepsLeft int
}

// NewBudget builds a budget for reaching cnt destinations within the
// caller's total timeout.
func NewBudget(total time.Duration, cnt, width int) Budget {
	return Budget{remaining: total, stepsLeft: Steps(cnt, width)}
}

// Next allots the next hop's timeout and decrements the budget. A
// single remaining hop receives the full remaining timeout, so a
// degenerate one-level tree uses exactly the caller's original value.
// Deeper hops receive their share plus the per-step overhead.
func (b *Budget) Next() time.Duration {
	if b.stepsLeft <= 1 {
		b.stepsLeft = 0
		rest := b.remaining
		b.remaining = 0
		return rest
	}
	share := b.remaining / time.Duration(b.stepsLeft)
	b.remaining -= share
	b.stepsLeft--
	return share + StepOverhead
}

// Remaining reports the undrawn portion of the budget.
func (b *Budget) Remaining() time.Duration {
	return b.remaining
}
