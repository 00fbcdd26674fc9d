package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentbus/pkg/llmerrors"
	"agentbus/pkg/message"
)

type fakeProducer struct {
	mu     sync.Mutex
	tokens []string
	err    error
	idx    int
	closed bool
}

func (p *fakeProducer) Next(context.Context) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx >= len(p.tokens) {
		if p.err != nil {
			return "", false, p.err
		}
		return "", true, nil
	}
	tok := p.tokens[p.idx]
	p.idx++
	done := p.idx == len(p.tokens) && p.err == nil
	return tok, done, nil
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func drain(t *testing.T, h *Handler) []string {
	t.Helper()
	var tokens []string
	for {
		status, err := h.Receive(context.Background())
		require.NoError(t, err)
		if status.Token != "" {
			tokens = append(tokens, status.Token)
		}
		if status.Done {
			return tokens
		}
	}
}

func TestReceiveAccumulatesTokensAndPushesOnCompletion(t *testing.T) {
	p := &fakeProducer{tokens: []string{"hello", " ", "world"}}

	var pushed message.Message
	var pushCount int
	h := New(p, func(m message.Message) {
		pushCount++
		pushed = m
	})

	tokens := drain(t, h)
	assert.Equal(t, []string{"hello", " ", "world"}, tokens)
	assert.Equal(t, 1, pushCount)
	assert.Equal(t, "hello world", pushed.Content)
	assert.True(t, pushed.Role.Equal(message.Assistant))
}

func TestReceiveSkipsPushOnEmptyAccumulation(t *testing.T) {
	p := &fakeProducer{tokens: []string{}}
	pushCount := 0
	h := New(p, func(message.Message) { pushCount++ })

	status, err := h.Receive(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Done)
	assert.Equal(t, 0, pushCount)
}

func TestReceiveSurfacesRecoverableErrorWithoutTearingDownStream(t *testing.T) {
	p := &fakeProducer{tokens: []string{"partial"}, err: llmerrors.NewError(llmerrors.ErrorTypeRecoverable, "hiccup")}

	h := New(p, func(message.Message) {})

	status, err := h.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "partial", status.Token)
	assert.False(t, status.Done)

	_, err = h.Receive(context.Background())
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeRecoverable))
}

func TestReceiveSurfacesFatalErrorAndEntersDraining(t *testing.T) {
	p := &fakeProducer{err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "boom")}
	h := New(p, func(message.Message) {})

	_, err := h.Receive(context.Background())
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, stateDraining, h.st)
}

func TestCloseStopsBackgroundProducer(t *testing.T) {
	p := &fakeProducer{tokens: []string{"a"}}
	h := New(p, func(message.Message) {})

	_, err := h.Receive(context.Background())
	require.NoError(t, err)

	h.Close()
	time.Sleep(10 * time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.True(t, p.closed)
}

// blockingProducer never yields, isolating Receive's own ctx.Done() case from
// a same-tick race against a producer that happens to finish instantly.
type blockingProducer struct{}

func (blockingProducer) Next(context.Context) (string, bool, error) {
	select {}
}

func (blockingProducer) Close() {}

func TestReceiveRespectsContextCancellation(t *testing.T) {
	h := New(blockingProducer{}, func(message.Message) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
