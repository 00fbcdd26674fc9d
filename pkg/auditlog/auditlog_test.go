package auditlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentbus/pkg/dispatch"
	"agentbus/pkg/envmsg"
	"agentbus/pkg/message"
	"agentbus/pkg/ticket"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestTriggerAlwaysMatches(t *testing.T) {
	l := openTestLog(t)
	assert.True(t, l.Trigger(envmsg.NewRequest(envmsg.PushToCache("a", message.Message{Role: message.User, Content: "x"}))))
}

func TestMethodRecordsRequestAndReturnsMessageUnchanged(t *testing.T) {
	l := openTestLog(t)
	d := dispatch.New(nil)

	msg := envmsg.NewRequest(envmsg.PushToCache("jerry", message.Message{Role: message.User, Content: "hello"}))
	out, err := l.Method(context.Background(), msg, d)
	require.NoError(t, err)
	assert.Equal(t, msg, out)

	events, err := l.Events(context.Background(), "jerry")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "request:push_to_cache", events[0].Kind)
	assert.Equal(t, "user", events[0].Role)
	assert.Equal(t, "hello", events[0].Content)
}

func TestMethodRecordsNotificationsAndFinish(t *testing.T) {
	l := openTestLog(t)
	d := dispatch.New(nil)

	tick := ticket.New()
	_, err := l.Method(context.Background(), envmsg.NewNotification(envmsg.EnvNotification{
		Kind: envmsg.NotificationGotCompletionResponse, Ticket: tick, AgentID: "jerry",
		Message: message.Message{Role: message.Assistant, Content: "reply"},
	}), d)
	require.NoError(t, err)

	_, err = l.Method(context.Background(), envmsg.Finish(), d)
	require.NoError(t, err)

	events, err := l.Events(context.Background(), "jerry")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "notification:got_completion_response", events[0].Kind)
	assert.Equal(t, string(tick), events[0].Ticket)
	assert.Equal(t, "reply", events[0].Content)
}

func TestEventsOrderedOldestFirstPerAgent(t *testing.T) {
	l := openTestLog(t)
	d := dispatch.New(nil)

	for _, content := range []string{"first", "second", "third"} {
		_, err := l.Method(context.Background(), envmsg.NewRequest(envmsg.PushToCache("a", message.Message{Role: message.User, Content: content})), d)
		require.NoError(t, err)
	}

	events, err := l.Events(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{events[0].Content, events[1].Content, events[2].Content})
}

func TestMarshalEventsProducesJSON(t *testing.T) {
	out, err := MarshalEvents([]Event{{RecordedAt: "t", Kind: "k", Ticket: "tk", Role: "user", Content: "c"}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "\"content\": \"c\"")
}
