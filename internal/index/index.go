// Package index mirrors persisted companies and employees into a semantic
// vector index. Indexing is fire-and-forget: failures are logged and never
// reach the caller of a research run.
package index

import (
	"context"
	"strings"

	"github.com/khizarrm/outreach/internal/model"
)

// Indexer writes searchable documents for companies and employees.
type Indexer interface {
	IndexCompany(ctx context.Context, c model.Company) error
	IndexEmployee(ctx context.Context, e model.Employee, company string) error
}

// Noop discards everything.
type Noop struct{}

func (Noop) IndexCompany(context.Context, model.Company) error { return nil }

func (Noop) IndexEmployee(context.Context, model.Employee, string) error { return nil }

// CompanyText is the text embedded for a company.
func CompanyText(c model.Company) string {
	return joinText(c.Name, deref(c.Description), deref(c.TechStack), deref(c.Industry))
}

// EmployeeText is the text embedded for an employee.
func EmployeeText(e model.Employee, company string) string {
	return joinText(e.Name, e.Title, company)
}

func joinText(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
