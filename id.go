package addressbook

import (
	"strings"

	"github.com/google/uuid"
)

// IDLength is the number of hex characters in a generated contact ID.
const IDLength = 8

// GenerateID returns a lowercase hex string of exactly n characters.
//
// It concatenates random blocks taken from the time_low field of v4 UUIDs
// (all 8 characters random) until n is reached, then truncates. uuid draws
// from crypto/rand so concurrent callers need no extra locking. Collisions
// are unlikely but not prevented.
func GenerateID(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n + IDLength)
	for b.Len() < n {
		b.WriteString(uuid.New().String()[:8])
	}
	return b.String()[:n]
}

// isHexID reports whether s is a non-empty run of lowercase hex characters.
func isHexID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
