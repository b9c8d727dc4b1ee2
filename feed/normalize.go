// Package feed contains the feed-URL canonicalization helpers and the
// live-status verifier that cross-checks podping reasons against feed
// content.
package feed

import (
	"net/url"
	"strings"
)

// Normalize canonicalizes a feed URL for subscription matching: lower-case,
// trailing slashes stripped, http scheme coerced to https. It is total
// and idempotent. Normalized URLs are never displayed or submitted; they
// exist purely so differently-written URLs match the same subscription.
func Normalize(raw string) string {
	normalized := strings.ToLower(raw)
	normalized = strings.TrimRight(normalized, "/")
	if strings.HasPrefix(normalized, "http://") {
		normalized = "https://" + normalized[len("http://"):]
	}
	return normalized
}

// EncodeURL percent-encodes the path, query, and fragment of a feed URL so
// it is a valid IRI for podping submission. Existing percent escapes are
// preserved (no double encoding). On any parse failure the input is
// returned unchanged; downstream validation rejects it there if needed.
func EncodeURL(raw string) string {
	parts, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	var b strings.Builder
	if parts.Scheme != "" {
		b.WriteString(parts.Scheme)
		b.WriteString(":")
	}
	if parts.Host != "" || parts.Scheme != "" {
		b.WriteString("//")
		b.WriteString(parts.Host)
	}
	b.WriteString(quote(parts.EscapedPath(), "/%"))
	if parts.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(quote(parts.RawQuery, "=&%"))
	}
	if parts.Fragment != "" {
		b.WriteString("#")
		b.WriteString(quote(parts.EscapedFragment(), "=%"))
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

// quote percent-encodes every byte that is neither unreserved nor in the
// safe set. '%' belongs in every safe set here so pre-encoded input stays
// stable under repeated encoding.
func quote(s, safe string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(safe, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
