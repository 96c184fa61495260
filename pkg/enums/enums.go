// Package enums holds the string enums persisted in Postgres enum columns.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func oneOf[T ~string](value T, allowed []T) bool {
	return slices.Contains(allowed, value)
}

// parseFold matches value against allowed ignoring case and surrounding space.
func parseFold[T ~string](value string, allowed []T, kind string) (T, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range allowed {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
