package listener

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentbus/pkg/agent"
	"agentbus/pkg/completion"
	"agentbus/pkg/dispatch"
	"agentbus/pkg/envmsg"
	"agentbus/pkg/message"
	"agentbus/pkg/ticket"
)

type nopHandler struct{ completion.Unimplemented }

func (nopHandler) GetIOCompletion(context.Context, completion.Request) (completion.Response, error) {
	return completion.Response{}, nil
}

func TestForgetfulTriggerMatchesOnlyTargetAgentGetCompletion(t *testing.T) {
	f := NewForgetful("a")

	assert.True(t, f.Trigger(envmsg.NewRequest(envmsg.GetCompletion(ticket.New(), "a"))))
	assert.False(t, f.Trigger(envmsg.NewRequest(envmsg.GetCompletion(ticket.New(), "b"))))
	assert.False(t, f.Trigger(envmsg.NewRequest(envmsg.PushToCache("a", message.Message{Role: message.User, Content: "x"}))))
}

func TestForgetfulMethodWipesCacheToSystemOnly(t *testing.T) {
	d := dispatch.New(nil)
	d.InsertAgent("a", agent.New("You are jerry", nopHandler{}))
	a, _ := d.Agent("a")
	a.Cache.Push(message.Message{Role: message.User, Content: "u1"})
	a.Cache.Push(message.Message{Role: message.Assistant, Content: "a1"})
	require.Equal(t, 3, a.Cache.Len())

	f := NewForgetful("a")
	msg := envmsg.NewRequest(envmsg.GetCompletion(ticket.New(), "a"))
	out, err := f.Method(context.Background(), msg, d)
	require.NoError(t, err)
	assert.Equal(t, msg, out, "Forgetful never replaces the message it was handed")

	assert.Equal(t, 1, a.Cache.Len())
	assert.True(t, a.Cache.Messages()[0].Role.IsSystem())
}

func TestForgetfulMethodIsNoOpForUnknownAgent(t *testing.T) {
	d := dispatch.New(nil)
	f := NewForgetful("ghost")
	msg := envmsg.NewRequest(envmsg.GetCompletion(ticket.New(), "ghost"))
	out, err := f.Method(context.Background(), msg, d)
	require.NoError(t, err)
	assert.Equal(t, msg, out)
}
