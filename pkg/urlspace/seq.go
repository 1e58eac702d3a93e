// Package urlspace implements the indexed URL-space trie: junctions of
// filter-keyed channels, each owning a trie of segment-keyed branches, with
// per-node context-constraint specs evaluated at lookup time. It is the
// routing core the connection dispatcher consults to resolve a (key,
// method, path) triple to registered data.
package urlspace

import "strings"

// Seq is the null-delimited sequence MkSeq builds from a key and URL:
// key, then each '/'-separated path segment (method counts as the first
// segment), then the trailing filter token. The real implementation uses a
// byte sequence terminated by two nulls; here the equivalent shape is a
// plain slice, since Go has no reason to pay for the sentinel encoding.
type Seq struct {
	Key      string
	Segments []string // path segments between key and filter, in order
	Filter   string   // trailing wildcard filter, e.g. "*.html", or "*"
}

// isFilterToken reports whether tok should be treated as a trailing filter
// (it contains a glob metacharacter) rather than a literal path segment.
func isFilterToken(tok string) bool {
	return strings.ContainsAny(tok, "*?")
}

// MkSeq builds a Seq from a key and a "/"-separated url. If the final
// token contains '*' or '?' it becomes the filter; otherwise the filter is
// the implicit "*".
func MkSeq(key, url string) Seq {
	parts := strings.Split(strings.Trim(url, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		parts = nil
	}

	filter := "*"
	segs := parts
	if n := len(parts); n > 0 && isFilterToken(parts[n-1]) {
		filter = parts[n-1]
		segs = parts[:n-1]
	}

	return Seq{Key: key, Segments: segs, Filter: filter}
}
