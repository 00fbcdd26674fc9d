// Package openai implements completion.Handler against the OpenAI Chat
// Completions API via openai-go, grounded on the teacher's CallLLM helper
// for request shaping and on the wider pack's streaming loop (chunk.Choices
// delta accumulation) for GetStreamCompletion.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"agentbus/pkg/completion"
	"agentbus/pkg/llmerrors"
	"agentbus/pkg/providers"
	"agentbus/pkg/stream"
)

// Handler wraps an OpenAI client bound to one model.
type Handler struct {
	client openai.Client
	model  string
}

// New constructs a Handler for model, authenticating with apiKey. An empty
// baseURL uses the default OpenAI endpoint; a non-empty one targets an
// OpenAI-compatible self-hosted backend.
func New(apiKey, model, baseURL string) *Handler {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Handler{client: openai.NewClient(opts...), model: model}
}

func buildParams(model string, req completion.Request) openai.ChatCompletionNewParams {
	systemPrompt, turns := providers.Alternate(req.Stack.Messages())

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		if t.Role == "assistant" {
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    msgs,
		Temperature: param.NewOpt(float64(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params
}

// GetIOCompletion implements completion.Handler.
func (h *Handler) GetIOCompletion(ctx context.Context, req completion.Request) (completion.Response, error) {
	resp, err := h.client.Chat.Completions.New(ctx, buildParams(h.model, req))
	if err != nil {
		return completion.Response{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no choices returned from OpenAI")
	}
	return completion.Response{Content: resp.Choices[0].Message.Content}, nil
}

// GetFunctionCompletion implements completion.Handler by forcing a single
// tool call matching req.Function.
func (h *Handler) GetFunctionCompletion(ctx context.Context, req completion.Request) (completion.Response, error) {
	if req.Function == nil {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "GetFunctionCompletion requires a FunctionSpec")
	}
	params := buildParams(h.model, req)
	params.Tools = []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        req.Function.Name,
			Description: param.NewOpt(req.Function.Description),
			Parameters:  openai.FunctionParameters(req.Function.Parameters),
		}),
	}
	params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}

	resp, err := h.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return completion.Response{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no choices returned from OpenAI")
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "model did not emit a tool call")
	}
	return completion.Response{JSON: calls[0].Function.Arguments}, nil
}

// GetEmbedding implements completion.Handler via the Embeddings endpoint.
func (h *Handler) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := h.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModelTextEmbedding3Small,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Data) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no embedding returned from OpenAI")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// streamProducer accumulates Chat Completions delta chunks into tokens.
type streamProducer struct {
	s *ssestream.Stream[openai.ChatCompletionChunk]
}

func (p *streamProducer) Next(context.Context) (string, bool, error) {
	if !p.s.Next() {
		if err := p.s.Err(); err != nil {
			return "", true, classifyError(err)
		}
		return "", true, nil
	}
	chunk := p.s.Current()
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}

func (p *streamProducer) Close() {
	_ = p.s.Close()
}

// GetStreamCompletion implements completion.Handler.
func (h *Handler) GetStreamCompletion(_ context.Context, req completion.Request) (completion.StreamHandle, error) {
	s := h.client.Chat.Completions.NewStreaming(context.Background(), buildParams(h.model, req))
	return stream.New(&streamProducer{s: s}, req.Push), nil
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

	var apiErr *openai.Error
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
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "quota") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, fmt.Sprintf("openai: %v", err))
}
