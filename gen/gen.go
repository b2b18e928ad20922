// Package gen abstracts the delegated generative capability.
//
// Every piece of content intelligence in refinery — drafting, evaluation,
// fact extraction, rewrite proposals — is a delegated call described by a
// Request and answered by a Response. The engine never interprets content
// itself; it routes requests to a Client and makes control-flow decisions
// on the structured results.
package gen

import (
	"context"
	"encoding/json"

	"github.com/teranos/refinery/errors"
)

// Kind classifies what a delegated call is asked to do. The engine treats
// kinds as routing hints; backends may specialize behavior per kind.
type Kind string

const (
	KindGenerate Kind = "generate" // produce new content
	KindEvaluate Kind = "evaluate" // score content against criteria
	KindRevise   Kind = "revise"   // improve content given issues
	KindExtract  Kind = "extract"  // pull structured data out of content
	KindCheck    Kind = "check"    // verify a predicate over content
)

// Request describes a single delegated generative call.
type Request struct {
	// Task names the operation, e.g. "draft_cover_letter" or
	// "evaluate_quality". Backends dispatch on it.
	Task string `json:"task"`

	// Kind classifies the call.
	Kind Kind `json:"kind"`

	// Payload carries the task inputs: documents, criteria, prior issues.
	Payload map[string]any `json:"payload,omitempty"`
}

// Response is the result of a delegated call.
//
// Exactly one of Content or Pending is set. Content is the structured
// result, left raw for the caller to decode into its own result type.
// Pending signals a two-phase call: the backend has described the work but
// deferred it; the caller must resolve the pending request before treating
// anything as a final result.
type Response struct {
	Content json.RawMessage `json:"content,omitempty"`
	Pending *Request        `json:"pending,omitempty"`
}

// IsPending reports whether the response defers the call.
func (r *Response) IsPending() bool {
	return r != nil && r.Pending != nil
}

// Decode unmarshals the response content into out. Pending responses have
// no content to decode and fail with ErrPendingCall.
func (r *Response) Decode(out any) error {
	if r.IsPending() {
		return errors.Wrapf(errors.ErrPendingCall, "decode %s", r.Pending.Task)
	}
	if err := json.Unmarshal(r.Content, out); err != nil {
		return errors.Wrap(err, "decode response content")
	}
	return nil
}

// Client executes delegated generative calls.
type Client interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Client interface. Tests and in-process
// backends use it the same way http.HandlerFunc adapts handlers.
type Func func(ctx context.Context, req Request) (*Response, error)

// Call implements Client.
func (f Func) Call(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Text wraps a plain string as a Response whose content is the JSON
// encoding of that string. Convenient for backends that return prose.
func Text(s string) *Response {
	raw, _ := json.Marshal(s)
	return &Response{Content: raw}
}

// Object wraps any value as a Response containing its JSON encoding.
func Object(v any) (*Response, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode response content")
	}
	return &Response{Content: raw}, nil
}
