package listener

import (
	"context"

	"agentbus/pkg/dispatch"
	"agentbus/pkg/envmsg"
	"agentbus/pkg/message"
)

// Forgetful triggers on GetCompletion requests for a chosen agent and wipes
// its cache back to just the System prompt before the completion executes,
// so every completion call sees a fresh context. It never replaces the
// message it was handed.
type Forgetful struct {
	AgentID string
}

// NewForgetful constructs a Forgetful listener scoped to agentID.
func NewForgetful(agentID string) *Forgetful {
	return &Forgetful{AgentID: agentID}
}

// Trigger matches a Request(GetCompletion) addressed to f.AgentID.
func (f *Forgetful) Trigger(msg envmsg.EnvMessage) bool {
	return msg.Kind == envmsg.KindRequest &&
		msg.Request.Kind == envmsg.RequestGetCompletion &&
		msg.Request.AgentID == f.AgentID
}

// Method filters the agent's cache down to System only, then passes msg
// through unchanged.
func (f *Forgetful) Method(_ context.Context, msg envmsg.EnvMessage, d *dispatch.Dispatch) (envmsg.EnvMessage, error) {
	if a, ok := d.Agent(f.AgentID); ok {
		a.Cache.Filter(message.System, true)
	}
	return msg, nil
}
