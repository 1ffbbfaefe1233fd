package policy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/khizarrm/outreach/internal/model"
)

// Subject identifies the company a prompt is rendered for.
type Subject struct {
	Domain  string
	Company string
	Slug    string
}

type promptData struct {
	Subject
	GoodQueries     []string
	BadQueries      []string
	StartingQueries []string
	TargetedQueries []string
	Priority        []string
	Exclude         []string
	Confidence      ConfidenceRules
	Prior           []model.PersonCandidate
	Reasoning       string
	Context         string
	NewContext      string
}

func (s Subject) withDefaults() Subject {
	if s.Company == "" {
		s.Company = s.Domain
	}
	if s.Slug == "" {
		s.Slug = s.Domain
		if i := strings.IndexByte(s.Slug, '.'); i > 0 {
			s.Slug = s.Slug[:i]
		}
	}
	return s
}

func (p *Policy) exec(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", eris.Wrapf(err, "policy: render %s", name)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (p *Policy) list(prefix string, n int, s Subject) ([]string, error) {
	out := make([]string, 0, n)
	for i := range n {
		q, err := p.exec(fmt.Sprintf("%s.%d", prefix, i), s)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (p *Policy) confidence(s Subject) (ConfidenceRules, error) {
	var (
		r   ConfidenceRules
		err error
	)
	if r.High, err = p.exec("extraction.high", s); err != nil {
		return r, err
	}
	if r.Medium, err = p.exec("extraction.medium", s); err != nil {
		return r, err
	}
	r.Low, err = p.exec("extraction.low", s)
	return r, err
}

// ResearchPrompts renders the system and user prompts for company research.
func (p *Policy) ResearchPrompts(s Subject) (system, user string, err error) {
	s = s.withDefaults()
	if system, err = p.exec("research.system", s); err != nil {
		return "", "", err
	}
	user, err = p.exec("research.user", s)
	return system, user, err
}

// MetadataPrompt renders the metadata extraction prompt over context.
func (p *Policy) MetadataPrompt(s Subject, context string) (string, error) {
	return p.exec("metadata.prompt", promptData{Subject: s.withDefaults(), Context: context})
}

// StartingQueries returns the people-finding seed queries for s.
func (p *Policy) StartingQueries(s Subject) ([]string, error) {
	return p.list("people.start", len(p.People.StartingQueries), s.withDefaults())
}

// TargetedQueries returns the revalidation queries for s.
func (p *Policy) TargetedQueries(s Subject) ([]string, error) {
	return p.list("revalidation.queries", len(p.Revalidation.TargetedQueries), s.withDefaults())
}

// PeoplePrompts renders the system and user prompts for people finding.
func (p *Policy) PeoplePrompts(s Subject) (system, user string, err error) {
	s = s.withDefaults()
	d := promptData{Subject: s}
	if d.GoodQueries, err = p.list("people.good", len(p.People.GoodQueries), s); err != nil {
		return "", "", err
	}
	if d.BadQueries, err = p.list("people.bad", len(p.People.BadQueries), s); err != nil {
		return "", "", err
	}
	if d.StartingQueries, err = p.StartingQueries(s); err != nil {
		return "", "", err
	}
	if system, err = p.exec("people.system", d); err != nil {
		return "", "", err
	}
	user, err = p.exec("people.user", d)
	return system, user, err
}

// ExtractionPrompt renders the people extraction prompt over context.
func (p *Policy) ExtractionPrompt(s Subject, context string) (string, error) {
	s = s.withDefaults()
	conf, err := p.confidence(s)
	if err != nil {
		return "", err
	}
	return p.exec("extraction.prompt", promptData{
		Subject:    s,
		Priority:   p.Extraction.Priority,
		Exclude:    p.Extraction.Exclude,
		Confidence: conf,
		Context:    context,
	})
}

// RevalidationPrompt renders the targeted revalidation research prompt.
func (p *Policy) RevalidationPrompt(s Subject, prior []model.PersonCandidate, reasoning string) (string, error) {
	s = s.withDefaults()
	targeted, err := p.TargetedQueries(s)
	if err != nil {
		return "", err
	}
	return p.exec("revalidation.prompt", promptData{
		Subject:         s,
		Prior:           prior,
		Reasoning:       reasoning,
		TargetedQueries: targeted,
	})
}

// ReextractPrompt renders the re-extraction prompt combining the revalidation
// context with the original people context.
func (p *Policy) ReextractPrompt(s Subject, prior []model.PersonCandidate, newContext, context string) (string, error) {
	s = s.withDefaults()
	conf, err := p.confidence(s)
	if err != nil {
		return "", err
	}
	return p.exec("revalidation.reextr", promptData{
		Subject:    s,
		Prior:      prior,
		NewContext: newContext,
		Context:    context,
		Confidence: conf,
	})
}
