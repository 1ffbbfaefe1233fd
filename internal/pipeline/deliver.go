package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/enrich"
	"github.com/khizarrm/outreach/internal/model"
)

// Deliver assembles the result, attaches emails, and persists it. A run
// that found nobody and could not identify the company at all fails with
// KindNoLeadership; otherwise an empty people list is a valid answer.
func (p *Pipeline) Deliver(ctx context.Context, st *State) error {
	err := p.stage(ctx, st, model.RunStatusAssembling, func(context.Context) (stageOutcome, error) {
		res := Assemble(st.Domain, st.Metadata, st.Winner, p.guard(), p.cfg.LowConfidenceFallback)
		res.RunID = st.RunID
		st.Result = &res

		if len(res.People) == 0 && !st.Metadata.Identified() && (st.Research == nil || len(st.Research.Evidence) == 0) {
			return stageOutcome{}, &Error{
				Kind:  KindNoLeadership,
				Stage: string(model.RunStatusAssembling),
				Err:   eris.Errorf("no leadership or company information found for %s", st.Domain),
			}
		}
		return stageOutcome{Metadata: map[string]any{"people": len(res.People), "source": st.Winner.Source}}, nil
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fail(KindCanceled, string(st.Status), err)
	}

	err = p.stage(ctx, st, model.RunStatusEnriching, func(ctx context.Context) (stageOutcome, error) {
		if len(st.Result.People) == 0 {
			return stageOutcome{Skipped: true}, nil
		}
		if p.cfg.EnrichTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.cfg.EnrichTimeout)
			defer cancel()
		}
		resp, err := p.Enricher.Enrich(ctx, enrich.Request{
			Domain:  st.Domain,
			Company: st.Result.Company,
			People:  st.Result.People,
		})
		if err != nil {
			return stageOutcome{}, fail(KindEnrichment, string(model.RunStatusEnriching), err)
		}
		if resp.Skipped {
			st.Result.People = resp.People
			return stageOutcome{Skipped: true, Metadata: map[string]any{"enricher": p.Enricher.Name()}}, nil
		}
		before := len(resp.People)
		st.Result.People = enrich.DropEmpty(resp.People)
		return stageOutcome{Usage: resp.Usage, Metadata: map[string]any{
			"enricher":   p.Enricher.Name(),
			"with_email": len(st.Result.People),
			"dropped":    before - len(st.Result.People),
		}}, nil
	})
	if err != nil {
		return err
	}

	return p.stage(ctx, st, model.RunStatusPersisting, func(ctx context.Context) (stageOutcome, error) {
		if p.Companies == nil {
			return stageOutcome{Skipped: true}, nil
		}
		return stageOutcome{Metadata: p.persist(ctx, st)}, nil
	})
}

// persist upserts the company and its people. Failures are logged and
// swallowed; only rows that were written are handed to the indexer.
func (p *Pipeline) persist(ctx context.Context, st *State) map[string]any {
	log := st.logger()
	company := model.CompanyFromResult(st.Result)
	if strings.TrimSpace(company.Name) == "" {
		company.Name = st.Domain
	}

	id, err := p.Companies.UpsertCompany(ctx, company)
	if err != nil {
		persistErrors.WithLabelValues("upsert_company").Inc()
		log.Warn("pipeline: failed to upsert company", zap.Error(err))
		return map[string]any{"company_saved": false}
	}
	company.ID = id

	employees := make([]model.Employee, 0, len(st.Result.People))
	for _, person := range st.Result.People {
		e := model.Employee{CompanyID: id, Name: person.Name, Title: person.Role}
		if len(person.Emails) > 0 {
			e.Email = person.Emails[0]
		}
		eid, err := p.Companies.UpsertEmployee(ctx, e)
		if err != nil {
			persistErrors.WithLabelValues("upsert_employee").Inc()
			log.Warn("pipeline: failed to upsert employee", zap.String("employee", e.Name), zap.Error(err))
			continue
		}
		e.ID = eid
		employees = append(employees, e)
	}

	if p.Index != nil {
		p.Index.Submit(company, employees)
	}
	return map[string]any{"company_saved": true, "company_id": id, "employees_saved": len(employees)}
}
