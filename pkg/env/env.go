package env

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"agentbus/pkg/agent"
	"agentbus/pkg/completion"
	"agentbus/pkg/dispatch"
	"agentbus/pkg/envmsg"
	"agentbus/pkg/logx"
	"agentbus/pkg/message"
	"agentbus/pkg/ticket"
)

var logger = logx.NewLogger("env")

// Sender is the shared producer-side handle onto the dispatch channel.
// Multiple AgentHandles and CloneSender callers may hold copies: it is a
// plain buffered channel, safe for concurrent sends.
type Sender = chan envmsg.EnvMessage

// Environment is the public control-plane surface: it owns the dispatch
// channel, the Dispatch actor, the listener chain, and the consumer-side
// NotificationStack, and spawns/joins the run loop.
type Environment struct {
	ID string

	dispatch      *dispatch.Dispatch
	chain         *dispatch.Chain
	ch            chan envmsg.EnvMessage
	notifications *NotificationStack

	wg      sync.WaitGroup
	spawned bool
}

// New constructs an Environment. If id is empty an opaque one is generated.
// apiKeys maps provider name to credential; it is stored on the Dispatch and
// readable through Dispatch.APIKey, and is not passed to completion handlers.
func New(id string, apiKeys map[string]string) *Environment {
	if id == "" {
		id = uuid.NewString()
	}
	return &Environment{
		ID:            id,
		dispatch:      dispatch.New(apiKeys),
		chain:         dispatch.NewChain(),
		ch:            dispatch.NewChannel(),
		notifications: NewNotificationStack(),
	}
}

// InsertAgent registers a under id (generating one if empty) and returns a
// handle producers use to address it. Must be called before Spawn.
func (e *Environment) InsertAgent(id string, a *agent.Agent) *AgentHandle {
	if id == "" {
		id = uuid.NewString()
	}
	e.dispatch.InsertAgent(id, a)
	return &AgentHandle{id: id, sender: e.ch}
}

// InsertListener appends l to the end of the middleware chain's visitation
// order. Must be called before Spawn.
func (e *Environment) InsertListener(l dispatch.Listener) {
	e.chain.Insert(l)
}

// Spawn starts the run loop as a background goroutine. Every Notification it
// publishes is also pushed to the Environment's NotificationStack. Spawn
// must be called at most once.
func (e *Environment) Spawn(ctx context.Context) {
	if e.spawned {
		logger.Warn("Spawn called more than once on environment %s; ignoring", e.ID)
		return
	}
	e.spawned = true
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		dispatch.RunLoop(ctx, e.ch, e.chain, e.dispatch, e.notifications.Push)
	}()
}

// Finalize sends the graceful Finish request, awaits the run loop's join,
// and returns the residual NotificationStack. Safe to call once Spawn has
// run; callers may continue sending Requests up until Finalize is called,
// since Finish defers to every Request already queued (§4.6).
func (e *Environment) Finalize() *NotificationStack {
	e.ch <- envmsg.NewRequest(envmsg.FinishRequest())
	e.wg.Wait()
	return e.notifications
}

// CloneSender returns the shared producer-side channel, for callers that
// want to build EnvMessages directly rather than through an AgentHandle.
func (e *Environment) CloneSender() Sender {
	return e.ch
}

// Notifications returns the Environment's live NotificationStack. Safe to
// read concurrently with the run loop.
func (e *Environment) Notifications() *NotificationStack {
	return e.notifications
}

// AgentHandle is the producer-side ergonomic surface bound to one agent:
// every method composes one or more EnvRequests and sends them on the
// shared channel, returning the ticket of any request that expects a
// correlated Notification.
type AgentHandle struct {
	id     string
	sender chan envmsg.EnvMessage
}

// ID returns the bound agent's identifier.
func (h *AgentHandle) ID() string {
	return h.id
}

// RequestCachePush sends a PushToCache request for m. No Notification is
// correlated to this call beyond the AgentStateUpdate every cache mutation
// produces.
func (h *AgentHandle) RequestCachePush(m message.Message) {
	h.sender <- envmsg.NewRequest(envmsg.PushToCache(h.id, m))
}

// RequestResetCache sends a ResetCache request, clearing the agent's cache
// or retaining only its System prompt depending on keepSys.
func (h *AgentHandle) RequestResetCache(keepSys bool) {
	h.sender <- envmsg.NewRequest(envmsg.ResetCache(h.id, keepSys))
}

// RequestState sends a GetAgentState request and returns its ticket.
func (h *AgentHandle) RequestState() ticket.Ticket {
	t := ticket.New()
	h.sender <- envmsg.NewRequest(envmsg.GetAgentState(t, h.id))
	return t
}

// RequestIOCompletion pushes content as a User message then requests a
// synchronous completion, returning the completion's ticket. This is not
// atomic: the listener chain observes both events, and a listener watching
// GetCompletion is guaranteed to see the just-pushed message already in the
// cache (§4.7).
func (h *AgentHandle) RequestIOCompletion(content string) ticket.Ticket {
	h.RequestCachePush(message.Message{Role: message.User, Content: content})
	t := ticket.New()
	h.sender <- envmsg.NewRequest(envmsg.GetCompletion(t, h.id))
	return t
}

// RequestStreamCompletion pushes content as a User message then requests a
// stream handle, returning the request's ticket; the corresponding
// GotStreamHandle Notification carries the completion.StreamHandle.
func (h *AgentHandle) RequestStreamCompletion(content string) ticket.Ticket {
	h.RequestCachePush(message.Message{Role: message.User, Content: content})
	t := ticket.New()
	h.sender <- envmsg.NewRequest(envmsg.GetCompletionStreamHandle(t, h.id))
	return t
}

// RequestFunctionPrompt pushes content as a User message then requests a
// structured completion conforming to fn, returning the request's ticket.
func (h *AgentHandle) RequestFunctionPrompt(content string, fn *completion.FunctionSpec) ticket.Ticket {
	h.RequestCachePush(message.Message{Role: message.User, Content: content})
	t := ticket.New()
	h.sender <- envmsg.NewRequest(envmsg.GetFunctionCompletion(t, h.id, fn))
	return t
}
