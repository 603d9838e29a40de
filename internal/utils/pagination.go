// Package utils holds small parsing helpers shared across the HTTP layer.
package utils

import "strconv"

// AtoiDefault parses an optional numeric query parameter, returning def when
// the value is absent or not an integer. The notification stream handlers use
// it for page and page_size, where a malformed value falls back to the
// defaults rather than failing the request.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
