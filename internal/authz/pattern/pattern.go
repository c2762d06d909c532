package pattern

import (
	"fmt"
	"strings"
)

// SyntaxError reports malformed placeholder syntax in a pattern. Rows
// carrying such a pattern fail closed instead of aborting a decision.
type SyntaxError struct {
	Pattern string
	Segment string
}

// Error returns the error message.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed pattern segment %q in %q", e.Segment, e.Pattern)
}

// Match reports whether the concrete resource matches the pattern.
// Malformed patterns never match.
func Match(pattern, resource string) bool {
	ok, err := MatchStrict(pattern, resource)
	return err == nil && ok
}

// MatchStrict matches a concrete resource string against a policy
// pattern and surfaces placeholder syntax errors to the caller.
//
// The resource is truncated at the first '?' so the query component
// never participates in matching. A pattern of exactly "*" matches
// everything. A "*" appearing as a full pattern segment consumes the
// remainder of the resource from that point; only the first such
// segment is effective. Otherwise the pattern and resource are split
// on '/' and compared segment by segment: "{name}" matches any
// non-empty segment, anything else requires byte equality, and the
// segment counts must agree.
func MatchStrict(pattern, resource string) (bool, error) {
	if i := strings.IndexByte(resource, '?'); i >= 0 {
		resource = resource[:i]
	}

	if pattern == "*" {
		return true, nil
	}

	patSegs := strings.Split(pattern, "/")
	resSegs := strings.Split(resource, "/")

	wildcard := -1
	for i, seg := range patSegs {
		if seg == "*" {
			wildcard = i
			break
		}
	}

	if wildcard >= 0 {
		// The wildcard consumes the remainder, but the resource must
		// actually extend to the wildcard position: "/orders/*"
		// matches "/orders/" and "/orders/123/items", not "/orders".
		if len(resSegs) <= wildcard {
			return false, nil
		}
		return matchSegments(pattern, patSegs[:wildcard], resSegs[:wildcard])
	}

	if len(patSegs) != len(resSegs) {
		return false, nil
	}
	return matchSegments(pattern, patSegs, resSegs)
}

// matchSegments compares pattern segments against resource segments
// pairwise. Both slices must have equal length.
func matchSegments(pattern string, patSegs, resSegs []string) (bool, error) {
	for i, seg := range patSegs {
		placeholder, err := isPlaceholder(pattern, seg)
		if err != nil {
			return false, err
		}
		if placeholder {
			if resSegs[i] == "" {
				return false, nil
			}
			continue
		}
		if seg != resSegs[i] {
			return false, nil
		}
	}
	return true, nil
}

// isPlaceholder reports whether a pattern segment is a "{name}"
// placeholder. A brace that does not form a complete, non-empty
// placeholder is a syntax error.
func isPlaceholder(pattern, seg string) (bool, error) {
	if !strings.ContainsAny(seg, "{}") {
		return false, nil
	}
	if len(seg) >= 3 && seg[0] == '{' && seg[len(seg)-1] == '}' &&
		!strings.ContainsAny(seg[1:len(seg)-1], "{}") {
		return true, nil
	}
	return false, &SyntaxError{Pattern: pattern, Segment: seg}
}
