// Package agent defines the Agent container: a message cache paired with a
// completion handler. An Agent has no identity of its own; identity is
// assigned by the Environment at insertion time.
package agent

import (
	"agentbus/pkg/completion"
	"agentbus/pkg/message"
)

// Agent owns a conversational cache and a reference to the completion
// handler that serves it. It carries no identity; the Dispatch that owns it
// after insertion associates it with an agent_id.
type Agent struct {
	Cache   *message.Stack
	Handler completion.Handler
}

// New constructs an Agent with the given system prompt and handler. Pass an
// empty prompt to start the agent with no system message at all.
func New(systemPrompt string, handler completion.Handler) *Agent {
	var cache *message.Stack
	if systemPrompt == "" {
		cache = message.Init()
	} else {
		cache = message.New(systemPrompt)
	}
	return &Agent{Cache: cache, Handler: handler}
}
