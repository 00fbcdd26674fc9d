// Package dispatch implements the Dispatch actor: the single state-owning
// value behind the run loop. Dispatch owns every inserted Agent, a private
// requests deque, and the provider API key mapping; it is reachable only
// through the channel the run loop holds.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"agentbus/pkg/agent"
	"agentbus/pkg/completion"
	"agentbus/pkg/envmsg"
	"agentbus/pkg/logx"
	"agentbus/pkg/message"
	"agentbus/pkg/stream"
	"agentbus/pkg/ticket"
)

var logger = logx.NewLogger("dispatch")

// channelCapacity bounds the shared EnvMessage channel. Senders suspend
// (never drop) when full.
const channelCapacity = 1000

// Listener is the middleware contract: Trigger is a fast, non-mutating
// predicate; Method may inspect/mutate the Dispatch it's handed (and thus
// any agent's cache) and returns the EnvMessage that replaces msg in the
// pipeline.
type Listener interface {
	Trigger(msg envmsg.EnvMessage) bool
	Method(ctx context.Context, msg envmsg.EnvMessage, d *Dispatch) (envmsg.EnvMessage, error)
}

// Dispatch owns every Agent after insertion, a deque of pending requests
// private to the run loop, and the provider API key mapping. Its agents and
// apiKeys maps are guarded by an internal RWMutex taken per accessor call;
// the run loop holds no lock across an iteration, as sole writer of the
// requests deque.
type Dispatch struct {
	agents  map[string]*agent.Agent
	apiKeys map[string]string

	requests *deque

	mu sync.RWMutex
}

// New constructs an empty Dispatch carrying apiKeys (provider -> key).
func New(apiKeys map[string]string) *Dispatch {
	if apiKeys == nil {
		apiKeys = map[string]string{}
	}
	return &Dispatch{
		agents:   make(map[string]*agent.Agent),
		apiKeys:  apiKeys,
		requests: newDeque(),
	}
}

// InsertAgent registers a under id. Ownership of a transfers to Dispatch.
func (d *Dispatch) InsertAgent(id string, a *agent.Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[id] = a
}

// Agent returns the agent registered under id, or false if none.
func (d *Dispatch) Agent(id string) (*agent.Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[id]
	return a, ok
}

// APIKey returns the API key registered for provider.
func (d *Dispatch) APIKey(provider string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	k, ok := d.apiKeys[provider]
	return k, ok
}

// NewChannel allocates a channel sized per the protocol's bounded capacity.
func NewChannel() chan envmsg.EnvMessage {
	return make(chan envmsg.EnvMessage, channelCapacity)
}

// Chain is an ordered, registration-order middleware chain.
type Chain struct {
	listeners []Listener
}

// NewChain constructs an empty listener chain.
func NewChain() *Chain {
	return &Chain{}
}

// Insert appends l to the end of the chain's visitation order.
func (c *Chain) Insert(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Run visits every listener in registration order whose Trigger matches msg,
// awaiting Method sequentially and threading its replacement forward. If any
// Method fails the error is returned and the original message is dropped by
// the caller: this module's chosen policy for §4.5's listener-failure case,
// logged here before being propagated.
func (c *Chain) Run(ctx context.Context, msg envmsg.EnvMessage, d *Dispatch) (envmsg.EnvMessage, error) {
	cur := msg
	for _, l := range c.listeners {
		if !l.Trigger(cur) {
			continue
		}
		next, err := l.Method(ctx, cur, d)
		if err != nil {
			logger.Error("listener method failed: %v", err)
			return envmsg.EnvMessage{}, fmt.Errorf("listener chain: %w", err)
		}
		cur = next
	}
	return cur, nil
}

// NotifyFunc publishes a Notification produced by the run loop to whatever
// consumer-side sink (typically env.NotificationStack) the Environment
// wired up.
type NotifyFunc func(envmsg.EnvNotification)

// RunLoop runs the two-phase dispatch loop until it observes Finish. ch is
// the shared multi-producer/single-consumer channel; chain is the listener
// middleware; notify publishes routed Notifications. RunLoop holds no lock
// of its own across iterations — it IS the sole writer of d for the process
// lifetime, per §5's single-owner model.
func RunLoop(ctx context.Context, ch chan envmsg.EnvMessage, chain *Chain, d *Dispatch, notify NotifyFunc) {
	for {
		msg, ok := <-ch
		if !ok {
			logger.Warn("channel closed without Finish; exiting run loop")
			return
		}

		routed, err := chain.Run(ctx, msg, d)
		if err != nil {
			continue
		}

		switch routed.Kind {
		case envmsg.KindRequest:
			d.requests.pushFront(routed.Request)
		case envmsg.KindNotification:
			handleNotification(ch, routed.Notification)
			notify(routed.Notification)
		case envmsg.KindFinish:
			// The channel-level poison pill is an immediate, undeferred
			// stop; the graceful path is a Request(Finish) routed above,
			// which is subject to the Finish-deferral rule below.
			return
		}

		if d.executeOne(ctx, ch, notify) {
			return
		}
	}
}

// handleNotification is the internal self-feedback path (§4.6 last
// paragraph): when the loop has just routed or produced a
// GotCompletionResponse or GotFunctionResponse, it re-enqueues the assistant message as a PushToCache
// Request so the message enters the cache through the listener chain like
// any other traffic.
func handleNotification(ch chan envmsg.EnvMessage, n envmsg.EnvNotification) {
	switch n.Kind {
	case envmsg.NotificationGotCompletionResponse, envmsg.NotificationGotFunctionResponse:
		ch <- envmsg.NewRequest(envmsg.PushToCache(n.AgentID, n.Message))
	}
}

// executeOne pops from the back of the deque and executes it. If the popped
// request is Finish and the deque is non-empty, it's deferred: pushed back
// to the front, and the next request from the back executes in its place
// this iteration. If it's Finish and the deque is empty, the graceful
// Request(Finish) path terminates the loop and executeOne reports true.
func (d *Dispatch) executeOne(ctx context.Context, ch chan envmsg.EnvMessage, notify NotifyFunc) bool {
	req, ok := d.requests.popBack()
	if !ok {
		return false
	}

	if req.Kind == envmsg.RequestFinish {
		if d.requests.len() == 0 {
			return true
		}
		d.requests.pushFront(req)
		req, _ = d.requests.popBack()
	}

	d.execute(ctx, req, ch, notify)
	return false
}

func (d *Dispatch) execute(ctx context.Context, req envmsg.EnvRequest, ch chan envmsg.EnvMessage, notify NotifyFunc) {
	switch req.Kind {
	case envmsg.RequestPushToCache:
		d.execPushToCache(req, notify)
	case envmsg.RequestResetCache:
		d.execResetCache(req, notify)
	case envmsg.RequestGetCompletion:
		d.execGetCompletion(ctx, req, ch, notify)
	case envmsg.RequestGetFunctionCompletion:
		d.execGetFunctionCompletion(ctx, req, ch, notify)
	case envmsg.RequestGetCompletionStreamHandle:
		d.execGetCompletionStreamHandle(ctx, req, ch, notify)
	case envmsg.RequestGetAgentState:
		d.execGetAgentState(req, notify)
	case envmsg.RequestFinish:
		// Reachable only when a deferred Finish was swapped for the next
		// request and that request is itself a Finish; it is a no-op.
	}
}

func (d *Dispatch) execPushToCache(req envmsg.EnvRequest, notify NotifyFunc) {
	a, ok := d.Agent(req.AgentID)
	if !ok {
		logger.Warn("PushToCache: unknown agent %q", req.AgentID)
		return
	}
	a.Cache.Push(req.Message)
	notify(stateSnapshot(req.Ticket, req.AgentID, a))
}

func (d *Dispatch) execResetCache(req envmsg.EnvRequest, notify NotifyFunc) {
	a, ok := d.Agent(req.AgentID)
	if !ok {
		logger.Warn("ResetCache: unknown agent %q", req.AgentID)
		return
	}
	if req.KeepSys {
		a.Cache.Filter(message.System, true)
	} else {
		a.Cache.Clear()
	}
	notify(stateSnapshot(req.Ticket, req.AgentID, a))
}

func (d *Dispatch) execGetCompletion(ctx context.Context, req envmsg.EnvRequest, ch chan envmsg.EnvMessage, notify NotifyFunc) {
	a, ok := d.Agent(req.AgentID)
	if !ok {
		logger.Warn("GetCompletion: unknown agent %q", req.AgentID)
		return
	}

	resp, err := a.Handler.GetIOCompletion(ctx, completion.Request{Stack: a.Cache.Borrow()})
	if err != nil {
		logger.Error("GetCompletion: agent %q: %v", req.AgentID, err)
		return
	}

	reply := message.Message{Role: message.Assistant, Content: resp.Content}
	n := envmsg.EnvNotification{
		Kind: envmsg.NotificationGotCompletionResponse, Ticket: req.Ticket, AgentID: req.AgentID, Message: reply,
	}
	notify(n)
	handleNotification(ch, n)
}

func (d *Dispatch) execGetFunctionCompletion(ctx context.Context, req envmsg.EnvRequest, ch chan envmsg.EnvMessage, notify NotifyFunc) {
	a, ok := d.Agent(req.AgentID)
	if !ok {
		logger.Warn("GetFunctionCompletion: unknown agent %q", req.AgentID)
		return
	}

	resp, err := a.Handler.GetFunctionCompletion(ctx, completion.Request{Stack: a.Cache.Borrow(), Function: req.Function})
	if err != nil {
		logger.Error("GetFunctionCompletion: agent %q: %v", req.AgentID, err)
		return
	}

	reply := message.Message{Role: message.Assistant, Content: resp.JSON}
	n := envmsg.EnvNotification{
		Kind: envmsg.NotificationGotFunctionResponse, Ticket: req.Ticket, AgentID: req.AgentID, Message: reply, JSON: resp.JSON,
	}
	notify(n)
	handleNotification(ch, n)
}

func (d *Dispatch) execGetCompletionStreamHandle(ctx context.Context, req envmsg.EnvRequest, ch chan envmsg.EnvMessage, notify NotifyFunc) {
	a, ok := d.Agent(req.AgentID)
	if !ok {
		logger.Warn("GetCompletionStreamHandle: unknown agent %q", req.AgentID)
		return
	}

	handle, err := a.Handler.GetStreamCompletion(ctx, completion.Request{
		Stack: a.Cache.Borrow(),
		Push:  PushFuncFor(ch, req.AgentID),
	})
	if err != nil {
		logger.Error("GetCompletionStreamHandle: agent %q: %v", req.AgentID, err)
		return
	}

	notify(envmsg.EnvNotification{
		Kind: envmsg.NotificationGotStreamHandle, Ticket: req.Ticket, AgentID: req.AgentID, Stream: handle,
	})
}

func (d *Dispatch) execGetAgentState(req envmsg.EnvRequest, notify NotifyFunc) {
	a, ok := d.Agent(req.AgentID)
	if !ok {
		logger.Warn("GetAgentState: unknown agent %q", req.AgentID)
		return
	}
	notify(stateSnapshot(req.Ticket, req.AgentID, a))
}

func stateSnapshot(t ticket.Ticket, agentID string, a *agent.Agent) envmsg.EnvNotification {
	return envmsg.EnvNotification{
		Kind: envmsg.NotificationAgentStateUpdate, Ticket: t, AgentID: agentID, Cache: a.Cache.Messages(),
	}
}

// PushFuncFor returns a stream.PushFunc that re-enters the dispatch pipeline
// through ch as a PushToCache Request for agentID, exactly as the run loop's
// own self-feedback path does.
func PushFuncFor(ch chan envmsg.EnvMessage, agentID string) stream.PushFunc {
	return func(m message.Message) {
		ch <- envmsg.NewRequest(envmsg.PushToCache(agentID, m))
	}
}

// AgentIDs returns the identifiers of every inserted agent, for diagnostics.
func (d *Dispatch) AgentIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.agents))
	for id := range d.agents {
		ids = append(ids, id)
	}
	return ids
}
