package pipeline

import "github.com/khizarrm/outreach/internal/model"

// Assemble builds the result for domain. High and medium candidates are
// kept; when there are none, the first fallbackCap low candidates are. The
// guard is applied once more against the winner's context length.
func Assemble(domain string, meta model.CompanyMetadata, winner Candidates, guard Guard, fallbackCap int) model.PipelineResult {
	if meta.Name == "" {
		meta.Name = domain
	}
	res := model.NewPipelineResult(domain, meta)

	kept := make([]model.PersonCandidate, 0, len(winner.People))
	for _, c := range winner.People {
		if c.Confidence != model.ConfidenceLow {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		n := min(fallbackCap, len(winner.People))
		kept = append(kept, winner.People[:max(n, 0)]...)
	}
	if len(kept) > 0 && !guard.Sufficient(winner.ContextLen) {
		kept = kept[:0]
	}

	for _, c := range kept {
		res.People = append(res.People, model.Person{Name: c.Name, Role: c.Role, Emails: []string{}})
	}
	return res
}
