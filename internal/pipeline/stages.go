package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/agent"
	"github.com/khizarrm/outreach/internal/domain"
	"github.com/khizarrm/outreach/internal/extract"
	"github.com/khizarrm/outreach/internal/model"
)

// Validate canonicalizes the query. Failures are terminal and happen before
// any model or search call.
func (p *Pipeline) Validate(ctx context.Context, st *State) error {
	return p.stage(ctx, st, model.RunStatusValidating, func(ctx context.Context) (stageOutcome, error) {
		d, err := p.Validator.Validate(ctx, st.Query)
		if err != nil {
			stage := string(model.RunStatusValidating)
			if k, ok := contextKind(ctx.Err()); ok {
				return stageOutcome{}, &Error{Kind: k, Stage: stage, Err: err}
			}
			// Per-lookup timeouts inside a domain error are still input errors.
			var de *domain.Error
			if errors.As(err, &de) {
				return stageOutcome{}, &Error{Kind: fromDomainKind(de.Kind), Stage: stage, Err: err}
			}
			return stageOutcome{}, fail(KindUnresolvable, stage, err)
		}
		st.Domain = d
		return stageOutcome{Metadata: map[string]any{"domain": d}}, nil
	})
}

func transcriptMetadata(tr *agent.Transcript) map[string]any {
	return map[string]any{
		"round_trips": tr.RoundTrips,
		"tool_calls":  tr.ToolCalls,
		"evidence":    len(tr.Evidence),
		"stop_reason": tr.StopReason,
	}
}

// Research runs the company research tool session.
func (p *Pipeline) Research(ctx context.Context, st *State) error {
	pol := p.policyFor(st)
	return p.stage(ctx, st, model.RunStatusResearching, func(ctx context.Context) (stageOutcome, error) {
		system, user, err := pol.ResearchPrompts(st.subject())
		if err != nil {
			return stageOutcome{}, eris.Wrap(err, "pipeline: render research prompts")
		}
		tr, err := p.runner(pol).Run(ctx, agent.Request{
			Stage:         "research",
			System:        system,
			Prompt:        user,
			MaxRoundTrips: p.cfg.ResearchRoundTrips,
		})
		st.Research = tr
		if err != nil {
			return stageOutcome{Usage: tr.Usage}, fail(KindModel, string(model.RunStatusResearching), err)
		}
		return stageOutcome{Usage: tr.Usage, Metadata: transcriptMetadata(tr)}, nil
	})
}

// ExtractMetadata extracts company metadata from the research evidence,
// falling back to the research summary.
func (p *Pipeline) ExtractMetadata(ctx context.Context, st *State) error {
	pol := p.policyFor(st)
	return p.stage(ctx, st, model.RunStatusExtractingMetadata, func(ctx context.Context) (stageOutcome, error) {
		var evidence, summary string
		if st.Research != nil {
			evidence = st.Research.Context(model.LayoutPlain)
			summary = st.Research.Summary
		}
		meta, usage, err := extract.NewMetadata(p.ExtractModel, pol, p.cfg.MaxTokens).Extract(ctx, st.Domain, evidence, summary)
		if err != nil {
			return stageOutcome{Usage: usage}, fail(KindExtraction, string(model.RunStatusExtractingMetadata), err)
		}
		st.Metadata = meta
		return stageOutcome{
			Usage:    usage,
			Metadata: map[string]any{"company": meta.Name, "identified": meta.Identified()},
		}, nil
	})
}

// FindPeople runs the leadership-finding tool session.
func (p *Pipeline) FindPeople(ctx context.Context, st *State) error {
	pol := p.policyFor(st)
	return p.stage(ctx, st, model.RunStatusFindingPeople, func(ctx context.Context) (stageOutcome, error) {
		system, user, err := pol.PeoplePrompts(st.subject())
		if err != nil {
			return stageOutcome{}, eris.Wrap(err, "pipeline: render people prompts")
		}
		tr, err := p.runner(pol).Run(ctx, agent.Request{
			Stage:         "people",
			System:        system,
			Prompt:        user,
			MaxRoundTrips: p.cfg.PeopleRoundTrips,
		})
		st.People = tr
		if err != nil {
			return stageOutcome{Usage: tr.Usage}, fail(KindModel, string(model.RunStatusFindingPeople), err)
		}
		return stageOutcome{Usage: tr.Usage, Metadata: transcriptMetadata(tr)}, nil
	})
}

// ExtractPeople scores the people found and applies the sufficiency guard.
// When the people context is below the threshold no extraction call is
// made and the run will not revalidate.
func (p *Pipeline) ExtractPeople(ctx context.Context, st *State) error {
	pol := p.policyFor(st)
	peopleCtx := st.peopleContext()
	n := ContextLen(peopleCtx)
	g := p.guard()

	verdict := model.ExtractionVerdict{People: []model.PersonCandidate{}}
	err := p.stage(ctx, st, model.RunStatusExtractingPeople, func(ctx context.Context) (stageOutcome, error) {
		if !g.Sufficient(n) {
			st.ThinEvidence = true
			return stageOutcome{Skipped: true, Metadata: map[string]any{"context_len": n}}, nil
		}
		v, usage, err := extract.NewPeople(p.ExtractModel, pol, p.cfg.MaxTokens).Extract(ctx, extract.PeopleInput{
			Subject: st.subject(),
			Context: peopleCtx,
		})
		if err != nil {
			return stageOutcome{Usage: usage}, fail(KindExtraction, string(model.RunStatusExtractingPeople), err)
		}
		verdict = v
		return stageOutcome{Usage: usage, Metadata: map[string]any{
			"candidates":        len(v.People),
			"non_low":           model.CountNonLow(v.People),
			"needs_more_search": v.NeedsMoreSearch,
			"context_len":       n,
		}}, nil
	})
	if err != nil {
		return err
	}

	return p.stage(ctx, st, model.RunStatusGuarding, func(context.Context) (stageOutcome, error) {
		v, ok := g.Check(verdict, n)
		if !ok {
			guardRejections.WithLabelValues(SourceInitial).Inc()
			st.logger().Warn("pipeline: rejecting people extracted from insufficient context",
				zap.Int("context_len", n), zap.Int("rejected", len(verdict.People)))
		}
		st.Verdict = v
		st.Winner = Candidates{People: v.People, ContextLen: n, Source: SourceInitial}
		return stageOutcome{Metadata: map[string]any{"checkpoint": SourceInitial, "rejected": !ok, "context_len": n}}, nil
	})
}
