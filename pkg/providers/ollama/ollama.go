// Package ollama implements completion.Handler against a local Ollama
// server via github.com/ollama/ollama/api, grounded on the teacher's Client:
// the same message/tool conversion shape, generalized to message.View. The
// teacher's Stream left streaming unimplemented; this package implements it
// for real by bridging the SDK's per-chunk callback into a pull-based
// stream.Producer over an internal channel.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"agentbus/pkg/completion"
	"agentbus/pkg/llmerrors"
	"agentbus/pkg/providers"
	"agentbus/pkg/stream"
)

// Handler wraps an Ollama client bound to one model and host.
type Handler struct {
	client *api.Client
	model  string
	completion.Unimplemented
}

// New constructs a Handler for model against an Ollama server at hostURL
// (e.g. "http://localhost:11434").
func New(hostURL, model string) *Handler {
	parsed, err := url.Parse(hostURL)
	if err != nil {
		parsed, _ = url.Parse("http://localhost:11434")
	}
	return &Handler{client: api.NewClient(parsed, http.DefaultClient), model: model}
}

func buildChatRequest(model string, req completion.Request, streamOut bool) *api.ChatRequest {
	systemPrompt, turns := providers.Alternate(req.Stack.Messages())

	msgs := make([]api.Message, 0, len(turns)+1)
	if systemPrompt != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: systemPrompt})
	}
	for _, t := range turns {
		msgs = append(msgs, api.Message{Role: t.Role, Content: t.Content})
	}

	return &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &streamOut,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
}

// GetIOCompletion implements completion.Handler.
func (h *Handler) GetIOCompletion(ctx context.Context, req completion.Request) (completion.Response, error) {
	chatReq := buildChatRequest(h.model, req, false)

	var final api.ChatResponse
	err := h.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		final = resp
		return nil
	})
	if err != nil {
		return completion.Response{}, classifyError(err)
	}
	if final.Message.Content == "" {
		return completion.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Ollama")
	}
	return completion.Response{Content: final.Message.Content}, nil
}

// streamChunk is what the background Chat callback forwards.
type streamChunk struct {
	token string
	done  bool
	err   error
}

// producer bridges api.Client.Chat's push-style streaming callback into the
// pull-based stream.Producer contract.
type producer struct {
	ch     chan streamChunk
	cancel context.CancelFunc
}

func (p *producer) Next(ctx context.Context) (string, bool, error) {
	select {
	case c, ok := <-p.ch:
		if !ok {
			return "", true, nil
		}
		return c.token, c.done, c.err
	case <-ctx.Done():
		return "", true, ctx.Err()
	}
}

func (p *producer) Close() {
	p.cancel()
}

// GetStreamCompletion implements completion.Handler by running the SDK's
// callback-based Chat call in a background goroutine and forwarding each
// chunk onto an internal channel that Producer.Next drains.
func (h *Handler) GetStreamCompletion(_ context.Context, req completion.Request) (completion.StreamHandle, error) {
	chatReq := buildChatRequest(h.model, req, true)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan streamChunk, 16)

	go func() {
		defer close(ch)
		err := h.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			select {
			case ch <- streamChunk{token: resp.Message.Content, done: resp.Done}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			select {
			case ch <- streamChunk{err: classifyError(err)}:
			default:
			}
		}
	}()

	return stream.New(&producer{ch: ch, cancel: cancel}, req.Push), nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	case strings.Contains(errStr, "context canceled"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	case strings.Contains(errStr, "timeout"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, fmt.Sprintf("Ollama API error: %v", err))
	}
}
