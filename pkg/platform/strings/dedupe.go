// Package strings holds small slice helpers shared by the ledger models.
package strings

import "strings"

// DedupeAndTrim trims each value and drops blanks and repeats, keeping first
// occurrence order. A nil or empty input is returned unchanged.
//
//	DedupeAndTrim([]string{" US", "CA ", "US", ""}) // []string{"US", "CA"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
