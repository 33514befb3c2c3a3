// Package domain canonicalizes company domains into comparable identity keys.
//
// Normalize is the only place a domain key is derived. Cache keys, provider
// adapters, and the consolidator all call it so that the same company maps to
// the same key regardless of which provider produced the string.
package domain

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/width"
)

// Normalize returns the exact-host identity key for a free-form domain or URL.
//
//	https://www.Acme.com/about -> acme.com
//	ACME.COM/                  -> acme.com
//	acme.com:8443?x=1          -> acme.com
//
// It never fails: input that cannot be parsed degrades to a lowercase trim.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(raw string) string {
	out := normalizeOnce(raw)
	// IDNA mapping can surface a www label or trailing dot that the first
	// pass had no way to see.
	for i := 0; i < 3; i++ {
		next := normalizeOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

// dotFolder maps the ideographic full stops IDNA treats as label separators.
var dotFolder = strings.NewReplacer("\u3002", ".", "\uFF61", ".")

func normalizeOnce(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	// Fullwidth forms (．／：) become ASCII before any structural split.
	s = dotFolder.Replace(width.Fold.String(s))

	// Scheme.
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	} else if strings.HasPrefix(s, "//") {
		s = s[2:]
	}

	host := toASCII(hostPart(s))
	host = strings.ToLower(host)
	host = strings.TrimRight(host, ".")
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}

	if host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return host
}

// RootDomain returns the registrable domain (eTLD+1) of raw, collapsing
// subdomains: eu.acme.com and acme.com both yield acme.com. It is a looser
// identity than Normalize and is meant for peer lookups, never for dedup.
func RootDomain(raw string) string {
	host := Normalize(raw)
	if host == "" || strings.HasPrefix(host, "[") {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// IP literals, bare public suffixes and single labels have no eTLD+1.
		return host
	}
	return root
}

// SameCompany reports whether a and b normalize to the same non-empty key.
func SameCompany(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}

// hostPart strips userinfo, path, query, fragment and port from s.
func hostPart(s string) string {
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	// Bracketed IPv6 literal, optionally followed by a port.
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end >= 0 {
			return s[:end+1]
		}
		return s
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

// toASCII converts internationalized hosts to punycode. Hosts the lookup
// profile rejects are returned unchanged.
func toASCII(host string) string {
	if isASCII(host) || strings.HasPrefix(host, "[") {
		return host
	}
	a, err := idna.Lookup.ToASCII(host)
	if err != nil || a == "" {
		return host
	}
	return strings.ToLower(a)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
