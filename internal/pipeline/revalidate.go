package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/agent"
	"github.com/khizarrm/outreach/internal/extract"
	"github.com/khizarrm/outreach/internal/model"
)

// Revalidate runs targeted searches when the initial verdict is weak and
// re-extracts with the new evidence first. The revalidated set replaces the
// original only when it has strictly more high/medium candidates.
func (p *Pipeline) Revalidate(ctx context.Context, st *State) error {
	if st.ThinEvidence || !ShouldRevalidate(st.Verdict) {
		revalidations.WithLabelValues("not_needed").Inc()
		return nil
	}
	pol := p.policyFor(st)
	subject := st.subject()
	prior := st.Verdict.People

	err := p.stage(ctx, st, model.RunStatusRevalidating, func(ctx context.Context) (stageOutcome, error) {
		prompt, err := pol.RevalidationPrompt(subject, prior, st.Verdict.Reasoning)
		if err != nil {
			return stageOutcome{}, eris.Wrap(err, "pipeline: render revalidation prompt")
		}
		tr, err := p.runner(pol).Run(ctx, agent.Request{
			Stage:         "revalidation",
			Prompt:        prompt,
			MaxRoundTrips: p.cfg.RevalidationRoundTrips,
		})
		st.Revalidation = tr
		if err != nil {
			return stageOutcome{Usage: tr.Usage}, fail(KindModel, string(model.RunStatusRevalidating), err)
		}
		return stageOutcome{Usage: tr.Usage, Metadata: transcriptMetadata(tr)}, nil
	})
	if err != nil {
		return err
	}

	revalCtx := st.Revalidation.Context(model.LayoutPlain)
	n := ContextLen(revalCtx)
	g := p.guard()

	verdict := model.ExtractionVerdict{People: []model.PersonCandidate{}}
	err = p.stage(ctx, st, model.RunStatusReextracting, func(ctx context.Context) (stageOutcome, error) {
		if !g.Sufficient(n) {
			return stageOutcome{Skipped: true, Metadata: map[string]any{"context_len": n}}, nil
		}
		v, usage, err := extract.NewPeople(p.ExtractModel, pol, p.cfg.MaxTokens).Reextract(ctx, extract.RevalidationInput{
			Subject:    subject,
			Prior:      prior,
			NewContext: revalCtx,
			Context:    st.peopleContext(),
		})
		if err != nil {
			return stageOutcome{Usage: usage}, fail(KindExtraction, string(model.RunStatusReextracting), err)
		}
		verdict = v
		return stageOutcome{Usage: usage, Metadata: map[string]any{
			"candidates":  len(v.People),
			"non_low":     model.CountNonLow(v.People),
			"context_len": n,
		}}, nil
	})
	if err != nil {
		return err
	}

	return p.stage(ctx, st, model.RunStatusGuarding, func(context.Context) (stageOutcome, error) {
		v, ok := g.Check(verdict, n)
		if !ok {
			guardRejections.WithLabelValues(SourceRevalidation).Inc()
		}
		reval := Candidates{People: v.People, ContextLen: n, Source: SourceRevalidation}
		winner := PickWinner(st.Winner, reval)

		outcome := "kept"
		if winner.Source == SourceRevalidation {
			outcome = "replaced"
			st.Verdict = v
		}
		st.Winner = winner
		revalidations.WithLabelValues(outcome).Inc()
		st.logger().Info("pipeline: revalidation complete",
			zap.String("outcome", outcome),
			zap.Int("original_non_low", model.CountNonLow(prior)),
			zap.Int("revalidated_non_low", model.CountNonLow(v.People)),
		)
		return stageOutcome{Metadata: map[string]any{
			"checkpoint":  SourceRevalidation,
			"rejected":    !ok,
			"context_len": n,
			"outcome":     outcome,
		}}, nil
	})
}
