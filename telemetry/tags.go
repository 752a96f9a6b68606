// Package telemetry provides request tagging for structured logging and metrics.
package telemetry

import (
	"context"
	"net/http"
)

type contextKey string

const (
	// requestTagsKey is the context key for request tags holder.
	requestTagsKey contextKey = "request_tags"
)

// OutcomeNA marks requests that carried no instruction.
const OutcomeNA = "na"

// RequestTags holds mutable request metadata that handlers can set for logging.
type RequestTags struct {
	Endpoint  string
	Operation string
	Outcome   string
}

// InjectTags creates a new request with an empty RequestTags in context.
// Call this in middleware before handlers run.
func InjectTags(r *http.Request) *http.Request {
	tags := &RequestTags{Outcome: OutcomeNA}
	return r.WithContext(context.WithValue(r.Context(), requestTagsKey, tags))
}

// GetTags retrieves the request tags from context.
// Returns nil if not in a request context with logging middleware.
func GetTags(r *http.Request) *RequestTags {
	return TagsFromContext(r.Context())
}

// TagsFromContext retrieves the request tags from ctx, or nil.
func TagsFromContext(ctx context.Context) *RequestTags {
	if tags, ok := ctx.Value(requestTagsKey).(*RequestTags); ok {
		return tags
	}
	return nil
}

// SetEndpoint sets the endpoint name for metrics and logging.
func SetEndpoint(r *http.Request, endpoint string) {
	if tags := GetTags(r); tags != nil {
		tags.Endpoint = endpoint
	}
}

// TagInstruction records the operation and outcome of an instruction on the
// request that carried it. It is a no-op outside a tagged request.
func TagInstruction(ctx context.Context, op, outcome string) {
	if tags := TagsFromContext(ctx); tags != nil {
		tags.Operation = op
		tags.Outcome = outcome
	}
}
