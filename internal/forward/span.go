// Package forward implements hierarchical fan-out of a message across
// a bounded-width tree of relay nodes.
//
// The root partitions the target node list into at most tree-width
// branches. The first node of every branch acts as a relay for the
// rest of its branch, forwarding the message onward and merging its
// subtree's responses into its own reply. The root aggregates all
// branch replies into one flat result whose cardinality always equals
// the fan-out size, substituting synthetic failure entries for nodes
// behind a failed branch.
package forward

// Span partitions total destinations into branch counts bounded by
// width. Branches receive an equal share, with the remainder spread
// over the early branches. When total fits within width every
// destination becomes its own branch.
//
// The returned counts always sum to total, every count is positive,
// and no count exceeds total.
func Span(total, width int) []int {
	if total <= 0 {
		return nil
	}
	if width < 1 {
		width = 1
	}

	n := width
	if total < n {
		n = total
	}
	counts := make([]int, n)
	base := total / n
	rem := total % n
	for i := range counts {
		counts[i] = base
		if i < rem {
			counts[i]++
		}
	}
	return counts
}

// partition slices nodes into branches per Span. The slices alias the
// input.
func partition(nodes []string, width int) [][]string {
	counts := Span(len(nodes), width)
	branches := make([][]string, len(counts))
	off := 0
	for i, c := range counts {
		branches[i] = nodes[off : off+c]
		off += c
	}
	return branches
}
