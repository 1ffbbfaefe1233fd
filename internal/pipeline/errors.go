package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/khizarrm/outreach/internal/domain"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindUnresolvable Kind = "unresolvable_domain"
	KindNoLeadership Kind = "no_leadership"
	KindSearch       Kind = "search"
	KindPersistence  Kind = "persistence"
	KindIndex        Kind = "index"
	KindModel        Kind = "model"
	KindExtraction   Kind = "extraction"
	KindEnrichment   Kind = "enrichment"
	KindCanceled     Kind = "canceled"
	KindTimeout      Kind = "timeout"
)

// StatusClientGone is reported for runs whose caller went away.
const StatusClientGone = 499

// ErrorPolicy says how a kind of failure is handled.
type ErrorPolicy struct {
	// Recoverable failures degrade to an empty value and never end a run.
	Recoverable bool
	// HTTPStatus is the response status for terminal failures.
	HTTPStatus int
}

// Policy is the failure-handling table for every Kind.
var Policy = map[Kind]ErrorPolicy{
	KindInvalidInput: {HTTPStatus: http.StatusBadRequest},
	KindUnresolvable: {HTTPStatus: http.StatusBadRequest},
	KindNoLeadership: {HTTPStatus: http.StatusNotFound},
	KindSearch:       {Recoverable: true},
	KindPersistence:  {Recoverable: true},
	KindIndex:        {Recoverable: true},
	KindModel:        {HTTPStatus: http.StatusInternalServerError},
	KindExtraction:   {HTTPStatus: http.StatusInternalServerError},
	KindEnrichment:   {HTTPStatus: http.StatusInternalServerError},
	KindCanceled:     {HTTPStatus: StatusClientGone},
	KindTimeout:      {HTTPStatus: http.StatusGatewayTimeout},
}

// Recoverable reports whether failures of kind degrade instead of failing
// the run.
func Recoverable(kind Kind) bool {
	return Policy[kind].Recoverable
}

// Error is the single failure type returned by a run.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("pipeline: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pipeline: %s at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// contextKind classifies an error caused by the run context ending.
func contextKind(err error) (Kind, bool) {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled, true
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, true
	}
	return "", false
}

// fail builds an *Error, reclassifying cancellation and deadline expiry.
func fail(kind Kind, stage string, err error) *Error {
	if k, ok := contextKind(err); ok {
		kind = k
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return fromDomainKind(de.Kind)
	}
	if k, ok := contextKind(err); ok {
		return k
	}
	return ""
}

func fromDomainKind(k domain.Kind) Kind {
	if k == domain.KindInvalidInput {
		return KindInvalidInput
	}
	return KindUnresolvable
}

// StatusCode maps err to an HTTP status. Unclassified errors are 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if p, ok := Policy[KindOf(err)]; ok && p.HTTPStatus != 0 {
		return p.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Message is the client-facing error text for err.
func Message(err error) string {
	switch KindOf(err) {
	case KindInvalidInput:
		return "No valid domain found in query"
	case KindUnresolvable:
		return "Domain is invalid"
	case KindNoLeadership:
		return "No leadership found for this company"
	case KindCanceled:
		return "Request canceled"
	case KindTimeout:
		return "Request timed out"
	default:
		return "Processing failed: " + err.Error()
	}
}
