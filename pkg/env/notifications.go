// Package env provides the Environment facade: the public control-plane
// surface over a running dispatch loop, plus the consumer-side
// NotificationStack and producer-side AgentHandle ergonomic wrappers.
package env

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentbus/pkg/envmsg"
	"agentbus/pkg/ticket"
)

// WaitTimeout bounds WaitForTicket's spin-poll.
const WaitTimeout = 10 * time.Second

// NotificationStack is an ordered deque of Notifications, front = most
// recent. AgentStateUpdate is deduplicated per agent_id: pushing a new one
// removes any prior AgentStateUpdate for the same agent before prepending.
// Every other notification kind accumulates without limit.
type NotificationStack struct {
	mu    sync.Mutex
	items []envmsg.EnvNotification

	waiters map[ticket.Ticket][]chan struct{}
}

// NewNotificationStack constructs an empty stack.
func NewNotificationStack() *NotificationStack {
	return &NotificationStack{waiters: make(map[ticket.Ticket][]chan struct{})}
}

// Push prepends n, applying AgentStateUpdate de-duplication, and wakes any
// goroutine blocked in WaitForTicket on n's ticket.
func (s *NotificationStack) Push(n envmsg.EnvNotification) {
	s.mu.Lock()
	if n.Kind == envmsg.NotificationAgentStateUpdate {
		kept := s.items[:0]
		for _, existing := range s.items {
			if existing.Kind == envmsg.NotificationAgentStateUpdate && existing.AgentID == n.AgentID {
				continue
			}
			kept = append(kept, existing)
		}
		s.items = kept
	}
	s.items = append([]envmsg.EnvNotification{n}, s.items...)

	for _, ch := range s.waiters[n.Ticket] {
		close(ch)
	}
	delete(s.waiters, n.Ticket)
	s.mu.Unlock()
}

// PopFront removes and returns the most recently pushed notification.
func (s *NotificationStack) PopFront() (envmsg.EnvNotification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return envmsg.EnvNotification{}, false
	}
	n := s.items[0]
	s.items = s.items[1:]
	return n, true
}

// PopBack removes and returns the oldest notification.
func (s *NotificationStack) PopBack() (envmsg.EnvNotification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return envmsg.EnvNotification{}, false
	}
	idx := len(s.items) - 1
	n := s.items[idx]
	s.items = s.items[:idx]
	return n, true
}

// TakeByAgent removes and returns every notification addressed to agentID,
// most-recent first.
func (s *NotificationStack) TakeByAgent(agentID string) []envmsg.EnvNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var taken, kept []envmsg.EnvNotification
	for _, n := range s.items {
		if n.AgentID == agentID {
			taken = append(taken, n)
		} else {
			kept = append(kept, n)
		}
	}
	s.items = kept
	return taken
}

// TakeByTicket removes and returns the notification correlated with t, if
// present.
func (s *NotificationStack) TakeByTicket(t ticket.Ticket) (envmsg.EnvNotification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.Ticket == t {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return n, true
		}
	}
	return envmsg.EnvNotification{}, false
}

// Snapshot returns a copy of every notification currently held, most-recent
// first, without removing them.
func (s *NotificationStack) Snapshot() []envmsg.EnvNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]envmsg.EnvNotification, len(s.items))
	copy(out, s.items)
	return out
}

// WaitForTicket blocks until a notification correlated with t is pushed, or
// WaitTimeout elapses. It registers a one-shot signal at call time rather
// than spin-polling: Push closes the channel for any ticket it just wrote.
func (s *NotificationStack) WaitForTicket(ctx context.Context, t ticket.Ticket) (envmsg.EnvNotification, error) {
	s.mu.Lock()
	if n, ok := s.peekByTicket(t); ok {
		s.mu.Unlock()
		return n, nil
	}
	sig := make(chan struct{})
	s.waiters[t] = append(s.waiters[t], sig)
	s.mu.Unlock()

	timer := time.NewTimer(WaitTimeout)
	defer timer.Stop()

	select {
	case <-sig:
		s.mu.Lock()
		n, ok := s.peekByTicket(t)
		s.mu.Unlock()
		if !ok {
			return envmsg.EnvNotification{}, fmt.Errorf("env: ticket %s signaled but notification missing", t)
		}
		return n, nil
	case <-ctx.Done():
		return envmsg.EnvNotification{}, ctx.Err()
	case <-timer.C:
		return envmsg.EnvNotification{}, fmt.Errorf("env: wait_for_ticket timed out after %s for ticket %s", WaitTimeout, t)
	}
}

// peekByTicket must be called with s.mu held.
func (s *NotificationStack) peekByTicket(t ticket.Ticket) (envmsg.EnvNotification, bool) {
	for _, n := range s.items {
		if n.Ticket == t {
			return n, true
		}
	}
	return envmsg.EnvNotification{}, false
}
