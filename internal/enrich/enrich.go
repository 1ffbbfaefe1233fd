// Package enrich attaches email addresses to emitted leadership contacts.
package enrich

import (
	"context"
	"net/mail"
	"strings"

	"github.com/khizarrm/outreach/internal/model"
)

// Request is one enrichment call for a company's emitted people.
type Request struct {
	Domain  string
	Company string
	People  []model.Person
}

// Response carries the people with emails attached. Skipped is set when no
// enrichment provider ran, in which case people pass through unchanged.
type Response struct {
	People  []model.Person
	Skipped bool
	Usage   model.TokenUsage
}

// Enricher finds email addresses for people at a domain.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Noop reports every request as skipped.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) Enrich(_ context.Context, req Request) (*Response, error) {
	people := make([]model.Person, len(req.People))
	for i, p := range req.People {
		if p.Emails == nil {
			p.Emails = []string{}
		}
		people[i] = p
	}
	return &Response{People: people, Skipped: true}, nil
}

// FilterEmails keeps syntactically valid addresses at domain or one of its
// subdomains, lowercased and deduplicated in input order.
func FilterEmails(domain string, emails []string) []string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	out := make([]string, 0, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, raw := range emails {
		addr, err := mail.ParseAddress(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		email := strings.ToLower(addr.Address)
		at := strings.LastIndexByte(email, '@')
		if at <= 0 {
			continue
		}
		host := email[at+1:]
		if host != domain && !strings.HasSuffix(host, "."+domain) {
			continue
		}
		if seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out
}

// DropEmpty removes people without any email.
func DropEmpty(people []model.Person) []model.Person {
	out := make([]model.Person, 0, len(people))
	for _, p := range people {
		if len(p.Emails) > 0 {
			out = append(out, p)
		}
	}
	return out
}
