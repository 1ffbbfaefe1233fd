// Package workflow runs the research pipeline as a Temporal workflow. Each
// stage is an activity over the serialized run state, so a worker restart
// resumes at the last completed stage.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/pipeline"
)

// ResearchWorkflowName is the registered workflow type.
const ResearchWorkflowName = "ResearchWorkflow"

// Stage names, in execution order.
const (
	StageValidate        = "validate"
	StageResearch        = "research"
	StageExtractMetadata = "extract_metadata"
	StageFindPeople      = "find_people"
	StageExtractPeople   = "extract_people"
	StageRevalidate      = "revalidate"
	StageDeliver         = "deliver"
)

// Stages is the order the workflow runs stage activities in.
var Stages = []string{
	StageValidate,
	StageResearch,
	StageExtractMetadata,
	StageFindPeople,
	StageExtractPeople,
	StageRevalidate,
	StageDeliver,
}

// Input starts a research workflow.
type Input struct {
	Query string `json:"query"`
}

// Failure carries a stage error across the activity boundary.
type Failure struct {
	Kind    pipeline.Kind `json:"kind"`
	Stage   string        `json:"stage"`
	Message string        `json:"message"`
}

func (f *Failure) err() error {
	if f == nil {
		return nil
	}
	return &pipeline.Error{Kind: f.Kind, Stage: f.Stage, Err: errors.New(f.Message)}
}

// Activities exposes pipeline stages as Temporal activities.
type Activities struct {
	Pipeline *pipeline.Pipeline
}

// Start creates the run record.
func (a *Activities) Start(ctx context.Context, query string) (*pipeline.State, error) {
	return a.Pipeline.Start(ctx, query), nil
}

// RunStage runs one named stage on st and returns the advanced state.
// Terminal kinds are returned as non-retryable application errors typed
// with the pipeline.Kind.
func (a *Activities) RunStage(ctx context.Context, name string, st *pipeline.State) (*pipeline.State, error) {
	stages := map[string]func(context.Context, *pipeline.State) error{
		StageValidate:        a.Pipeline.Validate,
		StageResearch:        a.Pipeline.Research,
		StageExtractMetadata: a.Pipeline.ExtractMetadata,
		StageFindPeople:      a.Pipeline.FindPeople,
		StageExtractPeople:   a.Pipeline.ExtractPeople,
		StageRevalidate:      a.Pipeline.Revalidate,
		StageDeliver:         a.Pipeline.Deliver,
	}
	fn, ok := stages[name]
	if !ok {
		return nil, temporal.NewNonRetryableApplicationError("unknown stage "+name, "unknown_stage", nil)
	}
	if err := fn(ctx, st); err != nil {
		return nil, applicationError(err)
	}
	return st, nil
}

// Finish records the terminal outcome and returns the result.
func (a *Activities) Finish(ctx context.Context, st *pipeline.State, failure *Failure) (*model.PipelineResult, error) {
	a.Pipeline.Finish(ctx, st, failure.err())
	return st.Result, nil
}

// retryable lists kinds worth another attempt.
var retryable = map[pipeline.Kind]bool{
	pipeline.KindModel:      true,
	pipeline.KindExtraction: true,
	pipeline.KindEnrichment: true,
	pipeline.KindTimeout:    true,
}

func applicationError(err error) error {
	kind := pipeline.KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	if retryable[kind] {
		return temporal.NewApplicationErrorWithCause(err.Error(), string(kind), err)
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), string(kind), err)
}

// failureFrom recovers the pipeline kind from an activity error.
func failureFrom(stage string, err error) *Failure {
	f := &Failure{Kind: "internal", Stage: stage, Message: err.Error()}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		f.Kind = pipeline.Kind(appErr.Type())
		f.Message = appErr.Message()
	}
	var canceled *temporal.CanceledError
	if errors.As(err, &canceled) {
		f.Kind = pipeline.KindCanceled
	}
	var timeout *temporal.TimeoutError
	if errors.As(err, &timeout) {
		f.Kind = pipeline.KindTimeout
	}
	return f
}

// ResearchWorkflow runs every stage activity in order and finishes the run.
// On a stage failure the run is finished as failed and the stage error is
// returned.
func ResearchWorkflow(ctx workflow.Context, in Input) (*model.PipelineResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
	logger := workflow.GetLogger(ctx)

	var a *Activities
	var st *pipeline.State
	if err := workflow.ExecuteActivity(ctx, a.Start, in.Query).Get(ctx, &st); err != nil {
		return nil, err
	}

	for _, stage := range Stages {
		var next *pipeline.State
		err := workflow.ExecuteActivity(ctx, a.RunStage, stage, st).Get(ctx, &next)
		if err != nil {
			logger.Warn("research stage failed", "stage", stage, "error", err)
			finishCtx, _ := workflow.NewDisconnectedContext(ctx)
			var ignored *model.PipelineResult
			if ferr := workflow.ExecuteActivity(finishCtx, a.Finish, st, failureFrom(stage, err)).Get(finishCtx, &ignored); ferr != nil {
				logger.Warn("finish failed run", "error", ferr)
			}
			return nil, err
		}
		st = next
	}

	var res *model.PipelineResult
	if err := workflow.ExecuteActivity(ctx, a.Finish, st, (*Failure)(nil)).Get(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// NewWorker registers the workflow and activities on a worker for queue.
func NewWorker(c client.Client, queue string, acts *Activities) worker.Worker {
	w := worker.New(c, queue, worker.Options{})
	w.RegisterWorkflowWithOptions(ResearchWorkflow, workflow.RegisterOptions{Name: ResearchWorkflowName})
	w.RegisterActivity(acts)
	return w
}

// Execute starts a research workflow and waits for its result.
func Execute(ctx context.Context, c client.Client, queue, query string) (*model.PipelineResult, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		TaskQueue: queue,
	}, ResearchWorkflowName, Input{Query: query})
	if err != nil {
		return nil, eris.Wrap(err, "workflow: start research")
	}
	zap.L().Info("workflow: research started",
		zap.String("workflow_id", run.GetID()), zap.String("run_id", run.GetRunID()))

	var res *model.PipelineResult
	if err := run.Get(ctx, &res); err != nil {
		return nil, eris.Wrap(err, "workflow: research")
	}
	return res, nil
}

// AsPipelineError maps a workflow error back to a *pipeline.Error so callers
// can use pipeline.StatusCode and pipeline.Message on it.
func AsPipelineError(err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return &pipeline.Error{Kind: pipeline.Kind(appErr.Type()), Err: errors.New(appErr.Message())}
	}
	return err
}
