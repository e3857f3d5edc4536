// Package enums holds the string enumerations stored in Postgres enum
// columns. Parsing trims and lowercases input before matching.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func parse[T ~string](values []T, raw, kind string) (T, error) {
	candidate := T(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(values, candidate) {
		return candidate, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
