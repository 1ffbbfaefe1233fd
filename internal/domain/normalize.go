// Package domain turns free-text queries into canonical registrable domains
// and confirms they resolve before any paid work is done.
package domain

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

var (
	labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	tldRe   = regexp.MustCompile(`^([a-z]{2,63}|xn--[a-z0-9-]{1,59})$`)
)

// Normalize extracts the canonical registrable domain from a free-text query.
// It takes the first domain-like token (URL, host or e-mail address), strips
// scheme, userinfo, www., path, query, fragment and port, and reduces the
// host to its eTLD+1. It returns "" when the query holds no domain.
//
// Normalize is idempotent.
func Normalize(query string) string {
	for _, tok := range strings.Fields(query) {
		if d := normalizeToken(tok); d != "" {
			return d
		}
	}
	return ""
}

func normalizeToken(tok string) string {
	tok = strings.Trim(tok, "\"'`<>()[]{},;!")
	if tok == "" {
		return ""
	}

	host := tok
	if strings.Contains(tok, "://") {
		u, err := url.Parse(tok)
		if err != nil {
			return ""
		}
		host = u.Hostname()
	} else {
		if i := strings.IndexAny(host, "/?#"); i >= 0 {
			host = host[:i]
		}
		if i := strings.LastIndex(host, "@"); i >= 0 {
			host = host[i+1:]
		}
		if h, _, found := strings.Cut(host, ":"); found {
			host = h
		}
	}

	host = strings.ToLower(strings.TrimSuffix(host, "."))
	host = strings.TrimPrefix(host, "www.")
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil || !validShape(ascii) {
		return ""
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(ascii)
	if err != nil {
		return ""
	}
	return registrable
}

func validShape(host string) bool {
	if len(host) > 253 {
		return false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels[:len(labels)-1] {
		if !labelRe.MatchString(l) {
			return false
		}
	}
	return tldRe.MatchString(labels[len(labels)-1])
}

// Slug returns the domain without its public suffix ("datacurve.ai" ->
// "datacurve"), used for site-scoped database queries.
func Slug(domain string) string {
	suffix, _ := publicsuffix.PublicSuffix(domain)
	if suffix == "" || suffix == domain {
		return domain
	}
	return strings.TrimSuffix(domain, "."+suffix)
}
