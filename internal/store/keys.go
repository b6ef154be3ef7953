package store

import (
	"fmt"
	"net/url"
	"strings"
)

// Key joins parts into a storage key. Every part is path-escaped, so no part
// can contain the separator and prefixes built with Prefix never match a
// longer sibling.
func Key(parts ...string) []byte {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return []byte(strings.Join(escaped, "/"))
}

// Prefix is Key followed by the separator, for scanning every key below parts.
func Prefix(parts ...string) []byte {
	return append(Key(parts...), '/')
}

// Index formats a sequence number so that keys sort numerically.
func Index(i uint64) string {
	return fmt.Sprintf("%020d", i)
}
