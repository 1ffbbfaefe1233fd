package model

import (
	"fmt"
	"net/url"
	"time"
)

// CompanyMetadata is the structured description of the target company.
// Every field except Name is independently nullable.
type CompanyMetadata struct {
	Name             string  `json:"name"`
	Description      *string `json:"description"`
	TechStack        *string `json:"techStack"`
	Industry         *string `json:"industry"`
	YearFounded      *int    `json:"yearFounded"`
	Headquarters     *string `json:"headquarters"`
	Revenue          *string `json:"revenue"`
	Funding          *string `json:"funding"`
	EmployeeCountMin *int    `json:"employeeCountMin"`
	EmployeeCountMax *int    `json:"employeeCountMax"`
}

// Identified reports whether anything beyond the name is known.
func (m CompanyMetadata) Identified() bool {
	for _, s := range []*string{m.Description, m.TechStack, m.Industry, m.Headquarters, m.Revenue, m.Funding} {
		if s != nil {
			return true
		}
	}
	return m.YearFounded != nil || m.EmployeeCountMin != nil || m.EmployeeCountMax != nil
}

// Person is an emitted leadership contact. Confidence is dropped before
// emission.
type Person struct {
	Name   string   `json:"name"`
	Role   string   `json:"role"`
	Emails []string `json:"emails"`
}

// PipelineResult is the externally consumed output of a research run.
type PipelineResult struct {
	RunID            string     `json:"runId,omitempty"`
	Domain           string     `json:"domain"`
	Company          string     `json:"company"`
	Website          string     `json:"website"`
	Description      *string    `json:"description"`
	TechStack        *string    `json:"techStack"`
	Industry         *string    `json:"industry"`
	YearFounded      *int       `json:"yearFounded"`
	Headquarters     *string    `json:"headquarters"`
	Revenue          *string    `json:"revenue"`
	Funding          *string    `json:"funding"`
	EmployeeCountMin *int       `json:"employeeCountMin"`
	EmployeeCountMax *int       `json:"employeeCountMax"`
	People           []Person   `json:"people"`
	Favicon          string     `json:"favicon"`
	Usage            TokenUsage `json:"usage"`
}

// Metadata returns the company metadata portion of the result.
func (r *PipelineResult) Metadata() CompanyMetadata {
	return CompanyMetadata{
		Name:             r.Company,
		Description:      r.Description,
		TechStack:        r.TechStack,
		Industry:         r.Industry,
		YearFounded:      r.YearFounded,
		Headquarters:     r.Headquarters,
		Revenue:          r.Revenue,
		Funding:          r.Funding,
		EmployeeCountMin: r.EmployeeCountMin,
		EmployeeCountMax: r.EmployeeCountMax,
	}
}

// NewPipelineResult flattens metadata for the given canonical domain.
func NewPipelineResult(domain string, meta CompanyMetadata) PipelineResult {
	return PipelineResult{
		Domain:           domain,
		Company:          meta.Name,
		Website:          WebsiteURL(domain),
		Description:      meta.Description,
		TechStack:        meta.TechStack,
		Industry:         meta.Industry,
		YearFounded:      meta.YearFounded,
		Headquarters:     meta.Headquarters,
		Revenue:          meta.Revenue,
		Funding:          meta.Funding,
		EmployeeCountMin: meta.EmployeeCountMin,
		EmployeeCountMax: meta.EmployeeCountMax,
		People:           []Person{},
		Favicon:          FaviconURL(domain),
	}
}

// WebsiteURL derives the company website from its canonical domain.
func WebsiteURL(domain string) string {
	return "https://" + domain
}

// FaviconURL derives a favicon URL from the canonical domain.
func FaviconURL(domain string) string {
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=128", url.QueryEscape(domain))
}

// Company is a persisted company row.
type Company struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Website          *string   `json:"website"`
	Description      *string   `json:"description"`
	TechStack        *string   `json:"techStack"`
	Industry         *string   `json:"industry"`
	YearFounded      *int      `json:"yearFounded"`
	Headquarters     *string   `json:"headquarters"`
	Revenue          *string   `json:"revenue"`
	Funding          *string   `json:"funding"`
	EmployeeCountMin *int      `json:"employeeCountMin"`
	EmployeeCountMax *int      `json:"employeeCountMax"`
	Favicon          *string   `json:"favicon"`
	EmployeeCount    int       `json:"employeeCount,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// CompanyFromResult maps a pipeline result onto a company row.
func CompanyFromResult(r *PipelineResult) Company {
	website := r.Website
	favicon := r.Favicon
	c := Company{
		Name:             r.Company,
		Description:      r.Description,
		TechStack:        r.TechStack,
		Industry:         r.Industry,
		YearFounded:      r.YearFounded,
		Headquarters:     r.Headquarters,
		Revenue:          r.Revenue,
		Funding:          r.Funding,
		EmployeeCountMin: r.EmployeeCountMin,
		EmployeeCountMax: r.EmployeeCountMax,
	}
	if website != "" {
		c.Website = &website
	}
	if favicon != "" {
		c.Favicon = &favicon
	}
	return c
}

// Employee is a persisted leadership contact linked to a company.
type Employee struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"companyId"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
