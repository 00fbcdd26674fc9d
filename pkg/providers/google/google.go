// Package google implements completion.Handler against Google's Gemini API
// via google.golang.org/genai, grounded on the teacher's GeminiClient:
// system instruction extraction, "model" in place of "assistant" as the
// wire role, and lazy client construction since genai.NewClient needs a
// context.
package google

import (
	"context"
	"encoding/json"

	"google.golang.org/genai"

	"agentbus/pkg/completion"
	"agentbus/pkg/llmerrors"
	"agentbus/pkg/providers"
)

// Handler wraps a Gemini client bound to one model. The underlying
// genai.Client is constructed lazily on first use since its constructor
// needs a context the teacher's constructor doesn't have yet.
type Handler struct {
	client *genai.Client
	apiKey string
	model  string
	completion.Unimplemented
}

// New constructs a Handler for model, authenticating with apiKey.
func New(apiKey, model string) *Handler {
	return &Handler{apiKey: apiKey, model: model}
}

func (h *Handler) ensureClient(ctx context.Context) error {
	if h.client != nil {
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: h.apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	h.client = client
	return nil
}

func buildContents(req completion.Request) (systemPrompt string, contents []*genai.Content) {
	systemPrompt, turns := providers.Alternate(req.Stack.Messages())
	contents = make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: t.Content}}})
	}
	return systemPrompt, contents
}

// GetIOCompletion implements completion.Handler.
func (h *Handler) GetIOCompletion(ctx context.Context, req completion.Request) (completion.Response, error) {
	if err := h.ensureClient(ctx); err != nil {
		return completion.Response{}, err
	}

	systemPrompt, contents := buildContents(req)
	maxTokens := int32(req.MaxTokens) //nolint:gosec // bounded by caller-supplied request size
	cfg := &genai.GenerateContentConfig{Temperature: &req.Temperature, MaxOutputTokens: maxTokens}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	result, err := h.client.Models.GenerateContent(ctx, h.model, contents, cfg)
	if err != nil {
		return completion.Response{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
	}
	if result == nil {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}
	return completion.Response{Content: result.Text()}, nil
}

// GetFunctionCompletion implements completion.Handler by forcing a call to a
// single synthesized function declaration matching req.Function.
func (h *Handler) GetFunctionCompletion(ctx context.Context, req completion.Request) (completion.Response, error) {
	if req.Function == nil {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "GetFunctionCompletion requires a FunctionSpec")
	}
	if err := h.ensureClient(ctx); err != nil {
		return completion.Response{}, err
	}

	systemPrompt, contents := buildContents(req)
	maxTokens := int32(req.MaxTokens) //nolint:gosec // bounded by caller-supplied request size
	cfg := &genai.GenerateContentConfig{
		Temperature:     &req.Temperature,
		MaxOutputTokens: maxTokens,
		Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:       req.Function.Name,
			Parameters: &genai.Schema{Type: genai.TypeObject},
		}}}},
		ToolConfig: &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}},
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	result, err := h.client.Models.GenerateContent(ctx, h.model, contents, cfg)
	if err != nil {
		return completion.Response{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
	}
	calls := result.FunctionCalls()
	if len(calls) == 0 {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "model did not emit a function call")
	}
	raw, err := json.Marshal(calls[0].Args)
	if err != nil {
		return completion.Response{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "failed to encode function call arguments")
	}
	return completion.Response{JSON: string(raw)}, nil
}
