// Package stream implements the StreamHandler state machine: Fresh ->
// Running -> Draining -> Complete, converting a provider's raw token
// producer into the cooperative completion.StreamHandle surface and writing
// the accumulated text back to the owning agent's cache on completion.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"agentbus/pkg/completion"
	"agentbus/pkg/llmerrors"
	"agentbus/pkg/logx"
	"agentbus/pkg/message"
)

var logger = logx.NewLogger("stream")

// internalCapacity is the buffer size of the channel between the background
// producer task and Receive.
const internalCapacity = 50

// receiveTimeout bounds a single Receive call.
const receiveTimeout = time.Second

// chunk is what the background producer forwards on the internal channel.
type chunk struct {
	status completion.Status
	err    error
}

// state is the StreamHandler's lifecycle stage.
type state int

const (
	stateFresh state = iota
	stateRunning
	stateDraining
	stateComplete
)

// Producer is implemented by a concrete provider's raw stream: it yields one
// token (or an error) per call, and reports done=true on the call that ends
// the stream (the final token may or may not carry text).
type Producer interface {
	Next(ctx context.Context) (token string, done bool, err error)
	Close()
}

// PushFunc delivers the stream's accumulated text back into the dispatch
// loop as a PushToCache request, so the write-back passes through the
// listener chain exactly like any other model output. The Handler never
// mutates an agent's cache directly: doing so from its background producer
// task would violate the single-writer rule on Dispatch state.
type PushFunc func(message.Message)

// Handler is a StreamHandler: it wraps a Producer and exposes
// completion.StreamHandle. On first Receive it spawns a background task
// that polls the producer and forwards decoded events over an internal
// channel. When the stream finishes, Handler calls push with a synthesized
// Assistant message — the only side effect a Handler has on agent state.
type Handler struct {
	producer Producer
	push     PushFunc

	mu    sync.Mutex
	st    state
	ch    chan chunk
	done  chan struct{}
	built strings.Builder
}

// New constructs a Fresh StreamHandler over producer. push is invoked at
// most once, on stream completion, with the accumulated Assistant message;
// it is not invoked when no text accumulated.
func New(producer Producer, push PushFunc) *Handler {
	return &Handler{producer: producer, push: push, st: stateFresh}
}

// Receive implements completion.StreamHandle. It must be called in a loop;
// it blocks up to receiveTimeout awaiting the next token.
func (h *Handler) Receive(ctx context.Context) (completion.Status, error) {
	h.mu.Lock()
	if h.st == stateFresh {
		h.st = stateRunning
		h.ch = make(chan chunk, internalCapacity)
		h.done = make(chan struct{})
		go h.run()
	}
	ch := h.ch
	h.mu.Unlock()

	timer := time.NewTimer(receiveTimeout)
	defer timer.Stop()

	select {
	case c, ok := <-ch:
		if !ok {
			h.mu.Lock()
			h.st = stateComplete
			h.mu.Unlock()
			return completion.Status{Done: true}, nil
		}
		if c.err != nil {
			if llmerrors.Is(c.err, llmerrors.ErrorTypeRecoverable) {
				return completion.Status{}, c.err
			}
			h.mu.Lock()
			h.st = stateDraining
			h.mu.Unlock()
			return completion.Status{}, c.err
		}
		if c.status.Done {
			h.finalize()
			return c.status, nil
		}
		return c.status, nil
	case <-ctx.Done():
		return completion.Status{}, ctx.Err()
	case <-timer.C:
		return completion.Status{}, context.DeadlineExceeded
	}
}

// Close drops the handler, signaling the background producer task to exit
// promptly. Safe to call multiple times.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.done != nil {
		select {
		case <-h.done:
		default:
			close(h.done)
		}
	}
	h.mu.Unlock()
	h.producer.Close()
}

// run polls the producer, decoding chunks into Working/Finished events,
// until the producer is exhausted, errors, or the handler is dropped.
func (h *Handler) run() {
	defer close(h.ch)

	ctx := context.Background()
	for {
		select {
		case <-h.done:
			return
		default:
		}

		token, done, err := h.producer.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			select {
			case h.ch <- chunk{err: err}:
			case <-h.done:
				return
			}
			if llmerrors.Is(err, llmerrors.ErrorTypeRecoverable) {
				continue
			}
			return
		}

		if token != "" {
			h.mu.Lock()
			h.built.WriteString(token)
			h.mu.Unlock()
		}

		select {
		case h.ch <- chunk{status: completion.Status{Token: token, Done: done}}:
		case <-h.done:
			return
		}

		if done {
			return
		}
	}
}

// finalize hands the accumulated text to push as a synthesized Assistant
// message. This is the handler's only side effect on agent state.
func (h *Handler) finalize() {
	h.mu.Lock()
	text := h.built.String()
	h.st = stateComplete
	h.mu.Unlock()

	if text == "" {
		logger.Debug("finalize: empty accumulated stream text, skipping cache write")
		return
	}
	h.push(message.Message{Role: message.Assistant, Content: text})
}
