// Package util provides common helpers for parsing inbound command arguments.
package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArgs trims whitespace from every argument. A quoted argument loses its
// surrounding quotes and has doubled quotes unescaped; unquoted arguments are
// left alone so raw JSON keeps its empty strings. The input slice is not
// modified.
func CleanArgs(args []string) []string {
	out := make([]string, len(args))
	for i, v := range args {
		v = strings.TrimSpace(v)
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			v = FixEscapeQuotes(v[1 : len(v)-1])
		}
		out[i] = v
	}
	return out
}

// ParseFloat parses a finite float argument, naming the field on failure.
func ParseFloat(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: not a finite number", field)
	}
	return v, nil
}
