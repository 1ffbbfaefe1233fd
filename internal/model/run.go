package model

import "time"

// RunStatus is the pipeline state a run is in, or its terminal outcome.
type RunStatus string

const (
	RunStatusValidating         RunStatus = "validating"
	RunStatusResearching        RunStatus = "researching"
	RunStatusExtractingMetadata RunStatus = "extracting_metadata"
	RunStatusFindingPeople      RunStatus = "finding_people"
	RunStatusExtractingPeople   RunStatus = "extracting_people"
	RunStatusGuarding           RunStatus = "guarding"
	RunStatusRevalidating       RunStatus = "revalidating"
	RunStatusReextracting       RunStatus = "reextracting_people"
	RunStatusAssembling         RunStatus = "assembling"
	RunStatusEnriching          RunStatus = "enriching"
	RunStatusPersisting         RunStatus = "persisting"
	RunStatusDone               RunStatus = "done"
	RunStatusFailed             RunStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// Run is a single research run.
type Run struct {
	ID        string          `json:"id"`
	Query     string          `json:"query"`
	Domain    string          `json:"domain,omitempty"`
	Status    RunStatus       `json:"status"`
	Result    *PipelineResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Stages    []StageResult   `json:"stages,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StageStatus is the outcome of a single pipeline stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult records one stage of a run.
type StageResult struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Duration   int64          `json:"duration_ms"`
	TokenUsage TokenUsage     `json:"token_usage"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}
