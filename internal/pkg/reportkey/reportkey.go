// Package reportkey derives the content-addressed identity of a report.
//
// The key is an MD5 hex digest over the normalized input. It appears in
// share links and blob paths, so the derivation must stay stable across
// releases; do not change the hash or the normalization rules.
package reportkey

import (
	"crypto/md5"
	"encoding/hex"
	"path"
	"sort"
	"strings"
)

// comparisonDelimiter joins the sorted URL set before hashing. A pipe is
// not a legal unescaped character inside a URL.
const comparisonDelimiter = "|"

// Key identifies one logical report input.
type Key string

// Normalize lower-cases and trims an input URL.
func Normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// ForURL derives the key for a single listing URL.
func ForURL(url string) Key {
	return hash(Normalize(url))
}

// ForComparison derives an order-independent key for a set of listing URLs.
func ForComparison(urls []string) Key {
	normalized := make([]string, 0, len(urls))
	for _, u := range urls {
		normalized = append(normalized, Normalize(u))
	}
	sort.Strings(normalized)
	return hash(strings.Join(normalized, comparisonDelimiter))
}

// Parse validates a raw key received from a client.
func Parse(raw string) (Key, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) != 32 {
		return "", false
	}
	for _, r := range raw {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", false
		}
	}
	return Key(raw), true
}

// String returns the hex form of the key.
func (k Key) String() string { return string(k) }

// ShardPath returns the blob location for the key, fanned out by the
// first two byte pairs: ab/cd/abcd….zip.
func (k Key) ShardPath() string {
	s := string(k)
	return path.Join(s[0:2], s[2:4], s+".zip")
}

func hash(normalized string) Key {
	sum := md5.Sum([]byte(normalized))
	return Key(hex.EncodeToString(sum[:]))
}
