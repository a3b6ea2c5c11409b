// Package companyurl normalizes the free-text URLs that identify a company so
// rows entered at different times can be matched against each other.
package companyurl

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// CompanyColumn is the store column holding the company URL.
const CompanyColumn = "company"

var urlLike = regexp.MustCompile(`(?i)^https?://\S`)

const normalizeFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveFragment |
	purell.FlagRemoveEmptyQuerySeparator

// LooksLikeURL reports whether value starts with an http(s) scheme.
func LooksLikeURL(value string) bool {
	return urlLike.MatchString(strings.TrimSpace(value))
}

// Canonicalize returns the comparable form of raw. Values that are not
// http(s) URLs, or that fail to parse, yield ok=false.
func Canonicalize(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !LooksLikeURL(trimmed) {
		return "", false
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || parsed.Opaque != "" {
		return "", false
	}
	if parsed.Hostname() == "" {
		return "", false
	}

	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Host = stripWebPort(strings.ToLower(parsed.Host))
	parsed.Path = collapseTrailingSlashes(parsed.Path)
	parsed.RawPath = ""

	return purell.NormalizeURL(parsed, normalizeFlags), true
}

// Variants lists every spelling of value that historical rows may carry: the
// raw value, its canonical form and the trailing-slash toggle of each.
func Variants(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	variants := make([]string, 0, 4)
	seen := map[string]struct{}{}
	add := func(candidate string, verbatim bool) {
		key := strings.TrimSpace(candidate)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		if verbatim {
			variants = append(variants, candidate)
			return
		}
		variants = append(variants, key)
	}

	add(value, true)
	canonical, ok := Canonicalize(value)
	if ok {
		add(canonical, false)
	}
	if LooksLikeURL(value) {
		add(toggleTrailingSlash(strings.TrimSpace(value)), false)
	}
	if ok {
		add(toggleTrailingSlash(canonical), false)
	}
	return variants
}

// BuildOrFilter returns a PostgREST disjunction over the company column, e.g.
// (company.eq."https://a.com",company.eq."https://a.com/"). It returns
// ok=false when a plain equality filter is enough.
func BuildOrFilter(variants []string) (string, bool) {
	return BuildColumnOrFilter(CompanyColumn, variants)
}

func BuildColumnOrFilter(column string, variants []string) (string, bool) {
	if len(variants) <= 1 {
		return "", false
	}
	parts := make([]string, 0, len(variants))
	for _, variant := range variants {
		parts = append(parts, column+".eq."+QuoteValue(variant))
	}
	return "(" + strings.Join(parts, ",") + ")", true
}

// QuoteValue wraps a filter value in PostgREST double quotes so reserved
// characters such as ',', '.', ':' and parentheses survive.
func QuoteValue(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// Resolve picks the company identity of a row: the explicit company field if
// set, else the canonical form of the social entry.
func Resolve(company, socialEntry string) (string, bool) {
	if trimmed := strings.TrimSpace(company); trimmed != "" {
		return trimmed, true
	}
	return Canonicalize(socialEntry)
}

// Host returns the host of a company URL without a leading "www.".
func Host(value string) (string, bool) {
	canonical, ok := Canonicalize(value)
	if !ok {
		return "", false
	}
	parsed, err := url.Parse(canonical)
	if err != nil {
		return "", false
	}
	return strings.TrimPrefix(parsed.Hostname(), "www."), true
}

// Same reports whether two company values share a variant.
func Same(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	left := Variants(a)
	for _, candidate := range Variants(b) {
		for _, existing := range left {
			if strings.TrimSpace(existing) == strings.TrimSpace(candidate) {
				return true
			}
		}
	}
	return false
}

// 80 and 443 are dropped for both schemes; rows were historically saved with
// https ports on http URLs and vice versa.
func stripWebPort(host string) string {
	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if port != "80" && port != "443" {
		return host
	}
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]"
	}
	return hostname
}

func collapseTrailingSlashes(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

func toggleTrailingSlash(value string) string {
	if strings.HasSuffix(value, "/") {
		trimmed := strings.TrimRight(value, "/")
		if strings.HasSuffix(trimmed, ":/") || strings.HasSuffix(trimmed, ":") {
			return value
		}
		return trimmed
	}
	return value + "/"
}
