// Package completion defines the abstract capability set a concrete LLM
// provider implements against a message stack: the one interface the core
// depends on instead of any specific HTTP client.
package completion

import (
	"context"

	"agentbus/pkg/llmerrors"
	"agentbus/pkg/message"
)

// FunctionSpec is a minimal JSON-Schema-shaped description of a callable
// function, sufficient to drive a provider's native tool-calling API. Full
// function-call schema parsing is out of scope; this carries only what a
// GetFunctionCompletion call needs to name and describe the target.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request bundles a message stack view with generation parameters for a
// single completion call.
type Request struct {
	Stack       message.View
	Function    *FunctionSpec
	Temperature float32
	MaxTokens   int
	// Push, set only for GetStreamCompletion calls, is how the resulting
	// stream hands its terminal accumulated message back to the dispatch
	// loop. Handlers that build a stream.Handler pass this straight through
	// as its push callback; it must never be invoked outside that context.
	Push func(message.Message)
}

// Response is the result of a successful GetIOCompletion or
// GetFunctionCompletion call.
type Response struct {
	Content string
	// JSON holds the structured value for a function completion; empty for
	// a plain IO completion.
	JSON string
}

// StreamHandle is the provider-agnostic surface a Handler's
// GetStreamCompletion returns. The stream package's Handler type implements
// this by wrapping a provider-specific token source.
type StreamHandle interface {
	// Receive blocks up to a bounded timeout awaiting the next token. It is
	// meant to be called in a loop until Status.Done is true.
	Receive(ctx context.Context) (Status, error)
}

// Status is the result of one StreamHandle.Receive call.
type Status struct {
	Token string
	Done  bool
}

// Handler is the capability set a concrete completion handler implements.
// Any implementation must support GetIOCompletion; the rest may decline
// with llmerrors.NewMethodUnimplemented.
type Handler interface {
	// GetIOCompletion generates a completion synchronously.
	GetIOCompletion(ctx context.Context, req Request) (Response, error)
	// GetStreamCompletion starts a streamed completion and returns a handle
	// over its tokens.
	GetStreamCompletion(ctx context.Context, req Request) (StreamHandle, error)
	// GetFunctionCompletion asks the provider to produce a structured value
	// conforming to req.Function.
	GetFunctionCompletion(ctx context.Context, req Request) (Response, error)
	// GetEmbedding returns an embedding vector for text.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Unimplemented is embeddable by handlers that only support a subset of the
// capability set; each embedded method returns the contract error.
type Unimplemented struct{}

// GetStreamCompletion declines with MethodUnimplemented.
func (Unimplemented) GetStreamCompletion(context.Context, Request) (StreamHandle, error) {
	return nil, llmerrors.NewMethodUnimplemented("GetStreamCompletion")
}

// GetFunctionCompletion declines with MethodUnimplemented.
func (Unimplemented) GetFunctionCompletion(context.Context, Request) (Response, error) {
	return Response{}, llmerrors.NewMethodUnimplemented("GetFunctionCompletion")
}

// GetEmbedding declines with MethodUnimplemented.
func (Unimplemented) GetEmbedding(context.Context, string) ([]float32, error) {
	return nil, llmerrors.NewMethodUnimplemented("GetEmbedding")
}
