package env

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentbus/pkg/envmsg"
	"agentbus/pkg/message"
	"agentbus/pkg/ticket"
)

func TestPushDeduplicatesAgentStateUpdatePerAgent(t *testing.T) {
	s := NewNotificationStack()
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationAgentStateUpdate, AgentID: "a", JSON: "v1"})
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationAgentStateUpdate, AgentID: "b", JSON: "v1"})
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationAgentStateUpdate, AgentID: "a", JSON: "v2"})

	snap := s.Snapshot()
	require.Len(t, snap, 2)

	var forA int
	for _, n := range snap {
		if n.AgentID == "a" {
			forA++
			assert.Equal(t, "v2", n.JSON)
		}
	}
	assert.Equal(t, 1, forA)
}

func TestPushDoesNotDeduplicateOtherKinds(t *testing.T) {
	s := NewNotificationStack()
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "a", Ticket: ticket.New()})
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "a", Ticket: ticket.New()})

	assert.Len(t, s.Snapshot(), 2)
}

func TestPopFrontReturnsMostRecent(t *testing.T) {
	s := NewNotificationStack()
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "first"})
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "second"})

	n, ok := s.PopFront()
	require.True(t, ok)
	assert.Equal(t, "second", n.AgentID)
}

func TestPopBackReturnsOldest(t *testing.T) {
	s := NewNotificationStack()
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "first"})
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "second"})

	n, ok := s.PopBack()
	require.True(t, ok)
	assert.Equal(t, "first", n.AgentID)
}

func TestPopOnEmptyStackReturnsFalse(t *testing.T) {
	s := NewNotificationStack()
	_, ok := s.PopFront()
	assert.False(t, ok)
	_, ok = s.PopBack()
	assert.False(t, ok)
}

func TestTakeByAgentRemovesOnlyMatching(t *testing.T) {
	s := NewNotificationStack()
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "a"})
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "b"})
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, AgentID: "a"})

	taken := s.TakeByAgent("a")
	assert.Len(t, taken, 2)
	remaining := s.Snapshot()
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].AgentID)
}

func TestTakeByTicketRemovesTheMatchingEntry(t *testing.T) {
	s := NewNotificationStack()
	t1 := ticket.New()
	t2 := ticket.New()
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, Ticket: t1})
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, Ticket: t2})

	n, ok := s.TakeByTicket(t1)
	require.True(t, ok)
	assert.Equal(t, t1, n.Ticket)
	assert.Len(t, s.Snapshot(), 1)

	_, ok = s.TakeByTicket(t1)
	assert.False(t, ok)
}

func TestWaitForTicketReturnsImmediatelyIfAlreadyPushed(t *testing.T) {
	s := NewNotificationStack()
	tick := ticket.New()
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, Ticket: tick, Message: message.Message{Role: message.Assistant, Content: "hi"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	n, err := s.WaitForTicket(ctx, tick)
	require.NoError(t, err)
	assert.Equal(t, tick, n.Ticket)
}

func TestWaitForTicketWakesOnLaterPush(t *testing.T) {
	s := NewNotificationStack()
	tick := ticket.New()

	result := make(chan envmsg.EnvNotification, 1)
	errCh := make(chan error, 1)
	go func() {
		n, err := s.WaitForTicket(context.Background(), tick)
		result <- n
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Push(envmsg.EnvNotification{Kind: envmsg.NotificationGotCompletionResponse, Ticket: tick})

	select {
	case n := <-result:
		require.NoError(t, <-errCh)
		assert.Equal(t, tick, n.Ticket)
	case <-time.After(time.Second):
		t.Fatal("WaitForTicket did not wake on push")
	}
}

func TestWaitForTicketRespectsContextCancellation(t *testing.T) {
	s := NewNotificationStack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WaitForTicket(ctx, ticket.New())
	assert.ErrorIs(t, err, context.Canceled)
}
