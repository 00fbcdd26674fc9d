// Package anthropic implements completion.Handler against Anthropic's Claude
// API via anthropic-sdk-go, grounded on the teacher's ClaudeClient: the same
// alternation-then-call shape, generalized to the message.View/
// completion.Request contract instead of the teacher's llm.CompletionRequest.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"agentbus/pkg/completion"
	"agentbus/pkg/llmerrors"
	"agentbus/pkg/providers"
	"agentbus/pkg/stream"
)

// Handler wraps an Anthropic client bound to one model.
type Handler struct {
	client anthropic.Client
	model  anthropic.Model
	completion.Unimplemented
}

// New constructs a Handler for model, authenticating with apiKey.
func New(apiKey, model string) *Handler {
	client := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &Handler{client: client, model: anthropic.Model(model)}
}

func buildParams(model anthropic.Model, req completion.Request) anthropic.MessageNewParams {
	systemPrompt, turns := providers.Alternate(req.Stack.Messages())

	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}
	return params
}

// GetIOCompletion implements completion.Handler.
func (h *Handler) GetIOCompletion(ctx context.Context, req completion.Request) (completion.Response, error) {
	params := buildParams(h.model, req)
	resp, err := h.client.Messages.New(ctx, params)
	if err != nil {
		return completion.Response{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Claude API")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return completion.Response{Content: text.String()}, nil
}

// GetFunctionCompletion implements completion.Handler by forcing tool use on
// a single synthesized tool matching req.Function.
func (h *Handler) GetFunctionCompletion(ctx context.Context, req completion.Request) (completion.Response, error) {
	if req.Function == nil {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "GetFunctionCompletion requires a FunctionSpec")
	}
	params := buildParams(h.model, req)
	params.Tools = []anthropic.ToolUnionParam{
		anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: req.Function.Parameters,
		}, req.Function.Name),
	}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}

	resp, err := h.client.Messages.New(ctx, params)
	if err != nil {
		return completion.Response{}, classifyError(err)
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			tu := block.AsToolUse()
			return completion.Response{JSON: string(tu.Input)}, nil
		}
	}
	return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "model did not emit a tool_use block")
}

// streamProducer adapts the SDK's streaming iterator to stream.Producer.
type streamProducer struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (p *streamProducer) Next(context.Context) (string, bool, error) {
	if !p.stream.Next() {
		if err := p.stream.Err(); err != nil {
			return "", true, classifyError(err)
		}
		return "", true, nil
	}
	event := p.stream.Current()
	if event.Type == "content_block_delta" {
		delta := event.AsContentBlockDelta().Delta
		if delta.Type == "text_delta" {
			return delta.Text, false, nil
		}
	}
	return "", false, nil
}

func (p *streamProducer) Close() {
	_ = p.stream.Close()
}

// GetStreamCompletion implements completion.Handler, building a
// stream.Handler over the SDK's streaming iterator.
func (h *Handler) GetStreamCompletion(_ context.Context, req completion.Request) (completion.StreamHandle, error) {
	params := buildParams(h.model, req)
	s := h.client.Messages.NewStreaming(context.Background(), params)
	return stream.New(&streamProducer{stream: s}, req.Push), nil
}

func classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, apiErr.StatusCode, "authentication failed")
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, apiErr.StatusCode, "rate limit exceeded")
		case 400:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, apiErr.StatusCode, "bad request")
		case 500, 502, 503, 504:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, apiErr.StatusCode, "server error")
		}
		return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeUnknown, apiErr.StatusCode, "unclassified Anthropic error "+strconv.Itoa(apiErr.StatusCode))
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, fmt.Sprintf("anthropic: %v", err))
}
