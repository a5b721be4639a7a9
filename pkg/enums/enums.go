package enums

import (
	"fmt"
	"slices"
	"strings"
)

// valueSet is the closed list of values for a string-backed enum.
type valueSet[T ~string] []T

func (s valueSet[T]) has(v T) bool {
	return slices.Contains(s, v)
}

func (s valueSet[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q (want one of %s)", kind, raw, s)
}

func (s valueSet[T]) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
