// Package hostlist expands and collapses compact node-range
// expressions like "gm[001-004],login1".
//
// A hostlist expression is a comma-separated list of names; a name may
// carry one bracketed range set of numeric ranges ("gm[1-3,7,10-12]").
// Numeric parts keep their zero padding when expanded.
package hostlist

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Expand parses a hostlist expression into individual host names, in
// expression order.
func Expand(expr string) ([]string, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	var hosts []string
	for _, part := range splitTop(expr) {
		expanded, err := expandOne(part)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, expanded...)
	}
	return hosts, nil
}

// Collapse renders host names as a compact hostlist expression,
// folding runs of numerically consecutive names with a common prefix
// and padding into ranges. Output hosts are sorted.
func Collapse(hosts []string) string {
	if len(hosts) == 0 {
		return ""
	}

	// prefix -> suffix width -> numbers. Width 0 collects unpadded
	// suffixes; a zero-padded suffix keeps its width.
	byPrefix := make(map[string]map[int][]int)
	var plain []string

	for _, h := range hosts {
		prefix, digits := splitNumericSuffix(h)
		if digits == "" {
			plain = append(plain, h)
			continue
		}
		n, _ := strconv.Atoi(digits)
		width := 0
		if strings.HasPrefix(digits, "0") {
			width = len(digits)
		}
		if byPrefix[prefix] == nil {
			byPrefix[prefix] = make(map[int][]int)
		}
		byPrefix[prefix][width] = append(byPrefix[prefix][width], n)
	}

	// A padded series crosses its padding boundary once the numbers
	// outgrow the width: gm099,gm100 must fold into one range. When a
	// prefix has exactly one padded width, unpadded members whose
	// rendering matches that width join the padded group.
	for _, widths := range byPrefix {
		var padded []int
		for w := range widths {
			if w > 0 {
				padded = append(padded, w)
			}
		}
		if len(padded) != 1 {
			continue
		}
		w := padded[0]
		var keep []int
		for _, n := range widths[0] {
			if len(strconv.Itoa(n)) >= w {
				widths[w] = append(widths[w], n)
			} else {
				keep = append(keep, n)
			}
		}
		if len(keep) > 0 {
			widths[0] = keep
		} else {
			delete(widths, 0)
		}
	}

	prefixes := make([]string, 0, len(byPrefix))
	for p := range byPrefix {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var out []string
	for _, prefix := range prefixes {
		widths := make([]int, 0, len(byPrefix[prefix]))
		for w := range byPrefix[prefix] {
			widths = append(widths, w)
		}
		sort.Ints(widths)

		for _, width := range widths {
			nums := byPrefix[prefix][width]
			sort.Ints(nums)

			var ranges []string
			start, prev := nums[0], nums[0]
			flush := func() {
				if start == prev {
					ranges = append(ranges, pad(start, width))
				} else {
					ranges = append(ranges, pad(start, width)+"-"+pad(prev, width))
				}
			}
			for _, n := range nums[1:] {
				if n == prev {
					continue // duplicate
				}
				if n == prev+1 {
					prev = n
					continue
				}
				flush()
				start, prev = n, n
			}
			flush()

			if len(ranges) == 1 && !strings.Contains(ranges[0], "-") {
				out = append(out, prefix+ranges[0])
			} else {
				out = append(out, prefix+"["+strings.Join(ranges, ",")+"]")
			}
		}
	}

	sort.Strings(plain)
	out = append(out, plain...)
	return strings.Join(out, ",")
}

// Count returns the number of hosts an expression expands to.
func Count(expr string) (int, error) {
	hosts, err := Expand(expr)
	if err != nil {
		return 0, err
	}
	return len(hosts), nil
}

// splitTop splits on commas outside brackets.
func splitTop(expr string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range expr {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, expr[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, expr[last:])
	return parts
}

func expandOne(part string) ([]string, error) {
	part = strings.TrimSpace(part)
	if part == "" {
		return nil, nil
	}

	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.ContainsAny(part, "]") {
			return nil, fmt.Errorf("hostlist: unbalanced bracket in %q", part)
		}
		return []string{part}, nil
	}
	end := strings.IndexByte(part, ']')
	if end < open {
		return nil, fmt.Errorf("hostlist: unbalanced bracket in %q", part)
	}
	prefix := part[:open]
	suffix := part[end+1:]
	if strings.ContainsAny(suffix, "[]") {
		return nil, fmt.Errorf("hostlist: multiple range sets in %q", part)
	}

	var hosts []string
	for _, rng := range strings.Split(part[open+1:end], ",") {
		lo, hi, width, err := parseRange(rng)
		if err != nil {
			return nil, fmt.Errorf("hostlist: %w in %q", err, part)
		}
		for n := lo; n <= hi; n++ {
			hosts = append(hosts, prefix+pad(n, width)+suffix)
		}
	}
	return hosts, nil
}

func parseRange(rng string) (lo, hi, width int, err error) {
	rng = strings.TrimSpace(rng)
	loStr, hiStr, found := strings.Cut(rng, "-")
	if !found {
		hiStr = loStr
	}
	if loStr == "" || hiStr == "" {
		return 0, 0, 0, fmt.Errorf("empty range bound %q", rng)
	}
	if lo, err = strconv.Atoi(loStr); err != nil {
		return 0, 0, 0, fmt.Errorf("bad range bound %q", loStr)
	}
	if hi, err = strconv.Atoi(hiStr); err != nil {
		return 0, 0, 0, fmt.Errorf("bad range bound %q", hiStr)
	}
	if hi < lo {
		return 0, 0, 0, fmt.Errorf("inverted range %q", rng)
	}
	return lo, hi, len(loStr), nil
}

// splitNumericSuffix cuts a trailing digit run off a host name.
func splitNumericSuffix(h string) (prefix, digits string) {
	i := len(h)
	for i > 0 && h[i-1] >= '0' && h[i-1] <= '9' {
		i--
	}
	return h[:i], h[i:]
}

func pad(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}
