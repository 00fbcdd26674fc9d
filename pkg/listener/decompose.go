package listener

import (
	"context"
	"fmt"

	"agentbus/pkg/completion"
	"agentbus/pkg/dispatch"
	"agentbus/pkg/envmsg"
	"agentbus/pkg/message"
)

// Decompose triggers on a User PushToCache addressed to TargetAgent and
// rewrites the pushed message's content through DecomposerAgent before it
// ever reaches TargetAgent's cache, so the target only ever sees the
// decomposer's simplified rendering of what the user said. It's the
// repository's worked example of §4.5's "Listener replacement" contract:
// every listener and the router downstream sees the rewritten message, not
// the original one that triggered the chain.
type Decompose struct {
	TargetAgent     string
	DecomposerAgent string
}

// NewDecompose builds a listener that rewrites user turns addressed to
// targetAgent through decomposerAgent's own completion handler.
func NewDecompose(targetAgent, decomposerAgent string) *Decompose {
	return &Decompose{TargetAgent: targetAgent, DecomposerAgent: decomposerAgent}
}

// Trigger matches a Request(PushToCache) of a User message addressed to
// d.TargetAgent.
func (d *Decompose) Trigger(msg envmsg.EnvMessage) bool {
	return msg.Kind == envmsg.KindRequest &&
		msg.Request.Kind == envmsg.RequestPushToCache &&
		msg.Request.AgentID == d.TargetAgent &&
		msg.Request.Message.Role.Equal(message.User)
}

// Method pushes the triggering message onto the decomposer's own cache,
// asks it for a completion, and returns msg with its content replaced by the
// decomposer's response — the rewrite that every downstream listener and the
// router observe instead of the user's original wording.
func (d *Decompose) Method(ctx context.Context, msg envmsg.EnvMessage, dp *dispatch.Dispatch) (envmsg.EnvMessage, error) {
	decomposer, ok := dp.Agent(d.DecomposerAgent)
	if !ok {
		return envmsg.EnvMessage{}, fmt.Errorf("decompose: unknown decomposer agent %q", d.DecomposerAgent)
	}

	decomposer.Cache.Push(msg.Request.Message)

	resp, err := decomposer.Handler.GetIOCompletion(ctx, completion.Request{Stack: decomposer.Cache.Borrow()})
	if err != nil {
		return envmsg.EnvMessage{}, fmt.Errorf("decompose: decomposer completion: %w", err)
	}
	decomposer.Cache.Push(message.Message{Role: message.Assistant, Content: resp.Content})

	msg.Request.Message.Content = resp.Content
	return msg, nil
}
