// Package pipeline runs the leadership research state machine: validate the
// domain, research the company, find and score its leadership, revalidate
// weak results, then assemble, enrich and persist the answer.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/agent"
	"github.com/khizarrm/outreach/internal/domain"
	"github.com/khizarrm/outreach/internal/enrich"
	"github.com/khizarrm/outreach/internal/llm"
	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/policy"
	"github.com/khizarrm/outreach/internal/search"
	"github.com/khizarrm/outreach/internal/store"
)

var tracer = otel.Tracer("outreach.pipeline")

// Config holds the stage limits of a run.
type Config struct {
	ResearchRoundTrips     int
	PeopleRoundTrips       int
	RevalidationRoundTrips int
	// SufficiencyThreshold is the minimum context length, in characters,
	// that may back emitted people.
	SufficiencyThreshold  int
	LowConfidenceFallback int
	MaxTokens             int
	EnrichTimeout         time.Duration
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		ResearchRoundTrips:     3,
		PeopleRoundTrips:       5,
		RevalidationRoundTrips: 3,
		SufficiencyThreshold:   100,
		LowConfidenceFallback:  3,
		MaxTokens:              4096,
		EnrichTimeout:          60 * time.Second,
	}
}

// Validator canonicalizes a free-text query into a domain.
type Validator interface {
	Validate(ctx context.Context, query string) (string, error)
}

// IndexQueue accepts persisted rows for background indexing.
type IndexQueue interface {
	Submit(c model.Company, employees []model.Employee)
}

// Deps are the collaborators of a Pipeline. Runs, Companies and Index may
// be nil; Enricher defaults to enrich.Noop.
type Deps struct {
	Validator    Validator
	AgentModel   llm.Model
	ExtractModel llm.Model
	Searcher     agent.Searcher
	Policy       *policy.Holder
	Enricher     enrich.Enricher
	Runs         store.RunRecorder
	Companies    store.CompanyWriter
	Index        IndexQueue
}

// Pipeline orchestrates research runs. It is safe for concurrent use.
type Pipeline struct {
	cfg Config
	Deps
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if deps.Enricher == nil {
		deps.Enricher = enrich.Noop{}
	}
	if deps.Policy == nil {
		deps.Policy = policy.NewHolder(policy.Default())
	}
	return &Pipeline{cfg: cfg, Deps: deps}
}

// State is everything a run has produced so far. It is JSON-serializable so
// stages can run as separate workflow activities.
type State struct {
	RunID         string                  `json:"runId"`
	Query         string                  `json:"query"`
	Domain        string                  `json:"domain"`
	PolicyVersion string                  `json:"policyVersion"`
	Status        model.RunStatus         `json:"status"`
	StartedAt     time.Time               `json:"startedAt"`
	Research      *agent.Transcript       `json:"research,omitempty"`
	Metadata      model.CompanyMetadata   `json:"metadata"`
	People        *agent.Transcript       `json:"people,omitempty"`
	ThinEvidence  bool                    `json:"thinEvidence"`
	Verdict       model.ExtractionVerdict `json:"verdict"`
	Revalidation  *agent.Transcript       `json:"revalidation,omitempty"`
	Winner        Candidates              `json:"winner"`
	Result        *model.PipelineResult   `json:"result,omitempty"`
	Usage         model.TokenUsage        `json:"usage"`
	Stages        []model.StageResult     `json:"stages"`

	policy *policy.Policy
}

func (st *State) subject() policy.Subject {
	return policy.Subject{Domain: st.Domain, Company: st.Metadata.Name, Slug: domain.Slug(st.Domain)}
}

func (st *State) peopleContext() string {
	if st.People == nil {
		return ""
	}
	return st.People.Context(model.LayoutSourced)
}

func (st *State) logger() *zap.Logger {
	return zap.L().With(zap.String("run_id", st.RunID), zap.String("domain", st.Domain))
}

// Run executes every stage for query and returns the result. On failure the
// error is an *Error.
func (p *Pipeline) Run(ctx context.Context, query string) (*model.PipelineResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	st := p.Start(ctx, query)
	span.SetAttributes(attribute.String("run.id", st.RunID))

	err := p.execute(ctx, st)
	p.Finish(ctx, st, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return st.Result, err
	}
	span.SetAttributes(
		attribute.String("run.domain", st.Domain),
		attribute.Int("run.people", len(st.Result.People)),
	)
	span.SetStatus(codes.Ok, "")
	return st.Result, nil
}

func (p *Pipeline) execute(ctx context.Context, st *State) error {
	stages := []func(context.Context, *State) error{
		p.Validate,
		p.Research,
		p.ExtractMetadata,
		p.FindPeople,
		p.ExtractPeople,
		p.Revalidate,
		p.Deliver,
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			k, _ := contextKind(err)
			return fail(k, string(st.Status), err)
		}
		if err := stage(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// Start creates the run record and initial state. Recording is best effort;
// without a store the run gets a local ID.
func (p *Pipeline) Start(ctx context.Context, query string) *State {
	st := &State{Query: query, StartedAt: time.Now().UTC(), Stages: []model.StageResult{}}
	if p.Runs != nil {
		run, err := p.Runs.CreateRun(ctx, query)
		if err != nil {
			persistErrors.WithLabelValues("create_run").Inc()
			zap.L().Warn("pipeline: failed to create run", zap.Error(err))
		} else {
			st.RunID = run.ID
		}
	}
	if st.RunID == "" {
		st.RunID = uuid.NewString()
	}
	st.logger().Info("pipeline: run started", zap.String("query", query))
	return st
}

// Finish moves the run to its terminal status, records the outcome and
// emits run metrics.
func (p *Pipeline) Finish(ctx context.Context, st *State, runErr error) {
	ctx = context.WithoutCancel(ctx)
	status := model.RunStatusDone
	result := "ok"
	if runErr != nil {
		status = model.RunStatusFailed
		result = string(KindOf(runErr))
		if result == "" {
			result = "internal"
		}
	}
	p.transition(ctx, st, status)
	if st.Result != nil {
		st.Result.Usage = st.Usage
	}

	if p.Runs != nil {
		outcome := store.RunOutcome{Status: status, Domain: st.Domain, Result: st.Result}
		if runErr != nil {
			outcome.Error = runErr.Error()
		}
		if err := p.Runs.FinishRun(ctx, st.RunID, outcome); err != nil {
			persistErrors.WithLabelValues("finish_run").Inc()
			st.logger().Warn("pipeline: failed to finish run", zap.Error(err))
		}
	}

	elapsed := time.Since(st.StartedAt)
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(elapsed.Seconds())
	tokensTotal.WithLabelValues("input").Add(float64(st.Usage.InputTokens))
	tokensTotal.WithLabelValues("output").Add(float64(st.Usage.OutputTokens))
	costTotal.Add(st.Usage.Cost)

	log := st.logger().With(
		zap.Duration("elapsed", elapsed),
		zap.Int("input_tokens", st.Usage.InputTokens),
		zap.Int("output_tokens", st.Usage.OutputTokens),
		zap.Float64("cost_usd", st.Usage.Cost),
	)
	if runErr != nil {
		log.Warn("pipeline: run failed", zap.String("kind", result), zap.Error(runErr))
		return
	}
	log.Info("pipeline: run complete", zap.Int("people", len(st.Result.People)))
}

// policyFor returns the policy snapshot the run uses. The first stage to
// ask pins the current policy for the rest of the run.
func (p *Pipeline) policyFor(st *State) *policy.Policy {
	if st.policy == nil {
		st.policy = p.Policy.Current()
		if st.PolicyVersion != "" && st.PolicyVersion != st.policy.Version {
			st.logger().Warn("pipeline: policy changed mid-run",
				zap.String("from", st.PolicyVersion), zap.String("to", st.policy.Version))
		}
		st.PolicyVersion = st.policy.Version
	}
	return st.policy
}

func (p *Pipeline) runner(pol *policy.Policy) *agent.Runner {
	return agent.NewRunner(p.AgentModel, p.Searcher, search.Definition(pol), p.cfg.MaxTokens)
}

func (p *Pipeline) guard() Guard {
	return Guard{Threshold: p.cfg.SufficiencyThreshold}
}

func (p *Pipeline) transition(ctx context.Context, st *State, to model.RunStatus) {
	if !CanTransition(st.Status, to) {
		st.logger().DPanic("pipeline: illegal transition",
			zap.String("from", string(st.Status)), zap.String("to", string(to)))
	}
	st.logger().Debug("pipeline: transition",
		zap.String("from", string(st.Status)), zap.String("to", string(to)))
	st.Status = to
	transitionsTotal.WithLabelValues(string(to)).Inc()

	if p.Runs != nil {
		if err := p.Runs.UpdateRunStatus(ctx, st.RunID, to); err != nil {
			persistErrors.WithLabelValues("update_run_status").Inc()
			st.logger().Warn("pipeline: failed to update status", zap.Error(err))
		}
	}
}

// stageOutcome is what a stage body reports back to stage tracking.
type stageOutcome struct {
	Usage    model.TokenUsage
	Skipped  bool
	Metadata map[string]any
}

// stage moves the run to status, runs fn inside a span, and records the
// stage result on the run.
func (p *Pipeline) stage(ctx context.Context, st *State, status model.RunStatus, fn func(ctx context.Context) (stageOutcome, error)) error {
	p.transition(ctx, st, status)

	ctx, span := tracer.Start(ctx, "pipeline."+string(status),
		trace.WithAttributes(attribute.String("run.id", st.RunID)))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	elapsed := time.Since(start)

	sr := model.StageResult{
		Name:       string(status),
		Status:     model.StageStatusComplete,
		Duration:   elapsed.Milliseconds(),
		TokenUsage: out.Usage,
		Metadata:   out.Metadata,
	}
	log := st.logger().With(zap.String("stage", string(status)), zap.Int64("duration_ms", sr.Duration))
	switch {
	case err != nil:
		sr.Status = model.StageStatusFailed
		sr.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("pipeline: stage failed", zap.Error(err))
	case out.Skipped:
		sr.Status = model.StageStatusSkipped
		log.Info("pipeline: stage skipped")
	default:
		span.SetStatus(codes.Ok, "")
		log.Info("pipeline: stage complete", zap.Float64("cost_usd", out.Usage.Cost))
	}
	span.SetAttributes(
		attribute.String("stage.status", string(sr.Status)),
		attribute.Int("stage.input_tokens", out.Usage.InputTokens),
		attribute.Int("stage.output_tokens", out.Usage.OutputTokens),
	)

	st.Usage.Add(out.Usage)
	st.Stages = append(st.Stages, sr)
	stageDuration.WithLabelValues(sr.Name, string(sr.Status)).Observe(elapsed.Seconds())

	if p.Runs != nil {
		if recErr := p.Runs.RecordStage(context.WithoutCancel(ctx), st.RunID, sr); recErr != nil {
			persistErrors.WithLabelValues("record_stage").Inc()
			log.Warn("pipeline: failed to record stage", zap.Error(recErr))
		}
	}
	return err
}
