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
)

type fixedReplyHandler struct {
	completion.Unimplemented
	reply string
}

func (h fixedReplyHandler) GetIOCompletion(context.Context, completion.Request) (completion.Response, error) {
	return completion.Response{Content: h.reply}, nil
}

func pushRequest(agentID, content string) envmsg.EnvMessage {
	return envmsg.NewRequest(envmsg.PushToCache(agentID, message.Message{Role: message.User, Content: content}))
}

func TestSummarizeAtLimitTriggerIgnoresOtherAgentsAndSystemPushes(t *testing.T) {
	s := NewSummarizeAtLimit("target", "summarizer", 2)

	assert.False(t, s.Trigger(pushRequest("other", "hi")))
	assert.False(t, s.Trigger(envmsg.NewRequest(envmsg.PushToCache("target", message.Message{Role: message.System, Content: "sys"}))))
}

func TestSummarizeAtLimitFiresOnlyAtThreshold(t *testing.T) {
	s := NewSummarizeAtLimit("target", "summarizer", 3)

	assert.False(t, s.Trigger(pushRequest("target", "one")))
	assert.False(t, s.Trigger(pushRequest("target", "two")))
	assert.True(t, s.Trigger(pushRequest("target", "three")))
}

func TestSummarizeAtLimitResetsWeightAfterFiring(t *testing.T) {
	s := NewSummarizeAtLimit("target", "summarizer", 2)
	require.False(t, s.Trigger(pushRequest("target", "one")))
	require.True(t, s.Trigger(pushRequest("target", "two")))
	assert.False(t, s.Trigger(pushRequest("target", "three")))
}

func TestSummarizeAtLimitMethodCollapsesCacheAndBlanksTrigger(t *testing.T) {
	d := dispatch.New(nil)
	d.InsertAgent("target", agent.New("You are jerry", fixedReplyHandler{}))
	d.InsertAgent("summarizer", agent.New("You summarize", fixedReplyHandler{reply: "short summary"}))

	target, _ := d.Agent("target")
	target.Cache.Push(message.Message{Role: message.User, Content: "earlier turn"})

	s := NewSummarizeAtLimit("target", "summarizer", 1)
	msg := pushRequest("target", "triggering turn")

	out, err := s.Method(context.Background(), msg, d)
	require.NoError(t, err)
	assert.Equal(t, "", out.Request.Message.Content, "the triggering push must be blanked")

	msgs := target.Cache.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Role.IsSystem())
	assert.Equal(t, "You are jerry", msgs[0].Content)
	assert.True(t, msgs[1].Role.Equal(message.Assistant))
	assert.Equal(t, "short summary", msgs[1].Content)
}

func TestSummarizeAtLimitMethodErrorsOnUnknownAgents(t *testing.T) {
	d := dispatch.New(nil)
	d.InsertAgent("target", agent.New("sys", fixedReplyHandler{}))

	s := NewSummarizeAtLimit("target", "ghost-summarizer", 1)
	_, err := s.Method(context.Background(), pushRequest("target", "x"), d)
	assert.Error(t, err)

	s2 := NewSummarizeAtLimit("ghost-target", "summarizer", 1)
	d.InsertAgent("summarizer", agent.New("sys", fixedReplyHandler{}))
	_, err = s2.Method(context.Background(), pushRequest("ghost-target", "x"), d)
	assert.Error(t, err)
}

func TestNewSummarizeAtTokenLimitUsesFallbackEstimateWithNilCodec(t *testing.T) {
	s := NewSummarizeAtTokenLimit("target", "summarizer", 1, nil)
	// "abcd" falls back to len/4 = 1, meeting a limit of 1 on the first push.
	assert.True(t, s.Trigger(pushRequest("target", "abcd")))
}
