// Package glob implements a case-insensitive glob matcher for blacklist and
// category patterns: '*' matches zero or more characters, '?' matches
// exactly one. The matcher runs in O(len(pattern) × len(text)) time via NFA
// simulation (tracking the set of possible pattern positions, one pass
// over the text, no backtracking), which is safe against the exponential
// backtracking a naive
// recursive matcher exhibits on inputs like "a*a*a*a*b" against "aaaa...".
package glob

import "strings"

// Match reports whether text matches pattern under the glob semantics
// above. The comparison is case-insensitive. Consecutive '*' are
// equivalent to a single '*'.
func Match(pattern, text string) bool {
	p := []rune(strings.ToLower(collapseStars(pattern)))
	t := []rune(strings.ToLower(text))

	// cur is the set of pattern positions reachable after consuming the
	// text processed so far, represented as a boolean membership set sized
	// len(p)+1.
	cur := make([]bool, len(p)+1)
	next := make([]bool, len(p)+1)

	cur[0] = true
	cur = advanceEpsilon(cur, p)

	for _, c := range t {
		for i := range next {
			next[i] = false
		}
		for i, reachable := range cur {
			if !reachable || i >= len(p) {
				continue
			}
			switch p[i] {
			case '*':
				// '*' can absorb c and remain at the same position.
				next[i] = true
			case '?':
				next[i+1] = true
			default:
				if matchLiteral(p[i], c) {
					next[i+1] = true
				}
			}
		}
		cur, next = next, cur
		cur = advanceEpsilon(cur, p)
	}

	return cur[len(p)]
}

// matchLiteral reports whether pattern rune pr (not '*' or '?') equals
// text rune c.
func matchLiteral(pr, c rune) bool {
	return pr == c
}

// advanceEpsilon extends the reachable set through zero-width '*'
// transitions: if position i is reachable and p[i] == '*', position i+1
// is also reachable without consuming input, and transitively so on.
func advanceEpsilon(set []bool, p []rune) []bool {
	changed := true
	for changed {
		changed = false
		for i, reachable := range set {
			if reachable && i < len(p) && p[i] == '*' && !set[i+1] {
				set[i+1] = true
				changed = true
			}
		}
	}
	return set
}

// collapseStars folds consecutive '*' runs into a single '*'.
func collapseStars(pattern string) string {
	var b strings.Builder
	prevStar := false
	for _, r := range pattern {
		if r == '*' {
			if prevStar {
				continue
			}
			prevStar = true
		} else {
			prevStar = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
