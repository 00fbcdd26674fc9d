// Package envmsg defines the EnvMessage protocol: the typed union of
// Request, Notification, and Finish messages that flow through the single
// dispatch channel, each correlated by an opaque ticket.
package envmsg

import (
	"agentbus/pkg/completion"
	"agentbus/pkg/message"
	"agentbus/pkg/ticket"
)

// Kind discriminates an EnvMessage's variant.
type Kind int

const (
	// KindRequest carries an EnvRequest.
	KindRequest Kind = iota
	// KindNotification carries an EnvNotification.
	KindNotification
	// KindFinish is the poison pill terminating the run loop.
	KindFinish
)

// RequestKind discriminates an EnvRequest's variant.
type RequestKind int

const (
	RequestPushToCache RequestKind = iota
	RequestResetCache
	RequestGetCompletion
	RequestGetFunctionCompletion
	RequestGetCompletionStreamHandle
	RequestGetAgentState
	RequestFinish
)

// EnvRequest is an instruction to mutate or query dispatch state. Every
// variant except PushToCache, ResetCache, and Finish carries a Ticket.
type EnvRequest struct {
	Kind     RequestKind
	Ticket   ticket.Ticket
	AgentID  string
	Message  message.Message
	KeepSys  bool
	Function *completion.FunctionSpec
}

// NotificationKind discriminates an EnvNotification's variant.
type NotificationKind int

const (
	NotificationAgentStateUpdate NotificationKind = iota
	NotificationGotCompletionResponse
	NotificationGotFunctionResponse
	NotificationGotStreamHandle
)

// EnvNotification is a result or state-update broadcast, echoing the ticket
// of the originating request.
type EnvNotification struct {
	Kind    NotificationKind
	Ticket  ticket.Ticket
	AgentID string
	Cache   []message.Message
	Message message.Message
	JSON    string
	Stream  completion.StreamHandle
}

// EnvMessage is the sum type carried by the dispatch channel.
type EnvMessage struct {
	Kind         Kind
	Request      EnvRequest
	Notification EnvNotification
}

// NewRequest wraps req as a Request-kind EnvMessage.
func NewRequest(req EnvRequest) EnvMessage {
	return EnvMessage{Kind: KindRequest, Request: req}
}

// NewNotification wraps n as a Notification-kind EnvMessage.
func NewNotification(n EnvNotification) EnvMessage {
	return EnvMessage{Kind: KindNotification, Notification: n}
}

// Finish is the poison-pill EnvMessage terminating the run loop.
func Finish() EnvMessage {
	return EnvMessage{Kind: KindFinish}
}

// PushToCache builds the EnvRequest variant for appending a message to an
// agent's cache.
func PushToCache(agentID string, m message.Message) EnvRequest {
	return EnvRequest{Kind: RequestPushToCache, AgentID: agentID, Message: m}
}

// ResetCache builds the EnvRequest variant for clearing (or System-only
// resetting) an agent's cache.
func ResetCache(agentID string, keepSys bool) EnvRequest {
	return EnvRequest{Kind: RequestResetCache, AgentID: agentID, KeepSys: keepSys}
}

// GetCompletion builds the EnvRequest variant requesting a synchronous
// completion, correlated by t.
func GetCompletion(t ticket.Ticket, agentID string) EnvRequest {
	return EnvRequest{Kind: RequestGetCompletion, Ticket: t, AgentID: agentID}
}

// GetFunctionCompletion builds the EnvRequest variant requesting a
// structured completion against fn, correlated by t.
func GetFunctionCompletion(t ticket.Ticket, agentID string, fn *completion.FunctionSpec) EnvRequest {
	return EnvRequest{Kind: RequestGetFunctionCompletion, Ticket: t, AgentID: agentID, Function: fn}
}

// GetCompletionStreamHandle builds the EnvRequest variant requesting a
// stream handle, correlated by t.
func GetCompletionStreamHandle(t ticket.Ticket, agentID string) EnvRequest {
	return EnvRequest{Kind: RequestGetCompletionStreamHandle, Ticket: t, AgentID: agentID}
}

// GetAgentState builds the EnvRequest variant requesting a cache snapshot,
// correlated by t.
func GetAgentState(t ticket.Ticket, agentID string) EnvRequest {
	return EnvRequest{Kind: RequestGetAgentState, Ticket: t, AgentID: agentID}
}

// FinishRequest builds the EnvRequest poison pill as seen by the requests
// deque (distinct from the channel-level Finish EnvMessage).
func FinishRequest() EnvRequest {
	return EnvRequest{Kind: RequestFinish}
}
