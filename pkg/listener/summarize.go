package listener

import (
	"context"
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"agentbus/pkg/completion"
	"agentbus/pkg/dispatch"
	"agentbus/pkg/envmsg"
	"agentbus/pkg/message"
)

// weighFunc scores a pushed message's contribution toward the summarization
// threshold. The default (message count) satisfies the literal cache-length
// trigger; weighByTokens grounds the tiktoken-go dependency for installations
// that want the threshold measured in tokens instead of turns.
type weighFunc func(content string) int

func weighByMessage(string) int { return 1 }

// weighByTokens returns a weighFunc counting tokens via codec, falling back
// to a 4-chars-per-token estimate if codec is nil or counting fails.
func weighByTokens(codec tokenizer.Codec) weighFunc {
	return func(content string) int {
		if codec == nil {
			return len(content) / 4
		}
		n, err := codec.Count(content)
		if err != nil {
			return len(content) / 4
		}
		return n
	}
}

// SummarizeAtLimit triggers on pushes to TargetAgent and, once the running
// weight of pushed turns reaches Limit, asks SummarizerAgent to summarize
// the target's current cache and resets the target to System plus a single
// Assistant summary message. The triggering push itself is swallowed (its
// content blanked) so the summary replaces it rather than trailing it.
type SummarizeAtLimit struct {
	TargetAgent     string
	SummarizerAgent string
	Limit           int

	weigh weighFunc

	mu     sync.Mutex
	weight int
}

// NewSummarizeAtLimit builds a message-count threshold listener: it fires
// every time it has seen limit non-System pushes to targetAgent since the
// last summary.
func NewSummarizeAtLimit(targetAgent, summarizerAgent string, limit int) *SummarizeAtLimit {
	return &SummarizeAtLimit{
		TargetAgent: targetAgent, SummarizerAgent: summarizerAgent, Limit: limit,
		weigh: weighByMessage,
	}
}

// NewSummarizeAtTokenLimit builds a token-budget threshold listener using
// codec (from github.com/tiktoken-go/tokenizer) to weigh each pushed
// message's content instead of counting turns.
func NewSummarizeAtTokenLimit(targetAgent, summarizerAgent string, tokenLimit int, codec tokenizer.Codec) *SummarizeAtLimit {
	return &SummarizeAtLimit{
		TargetAgent: targetAgent, SummarizerAgent: summarizerAgent, Limit: tokenLimit,
		weigh: weighByTokens(codec),
	}
}

// Trigger matches any PushToCache Request addressed to TargetAgent whose
// role is not System, and reports whether this push crosses Limit.
func (s *SummarizeAtLimit) Trigger(msg envmsg.EnvMessage) bool {
	if msg.Kind != envmsg.KindRequest || msg.Request.Kind != envmsg.RequestPushToCache {
		return false
	}
	if msg.Request.AgentID != s.TargetAgent || msg.Request.Message.Role.IsSystem() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.weight += s.weigh(msg.Request.Message.Content)
	if s.weight < s.Limit {
		return false
	}
	s.weight = 0
	return true
}

// Method summarizes the target agent's current cache (plus the triggering
// message) via the summarizer agent, resets the target's cache to System
// plus the summary, and returns msg with its content blanked so the
// triggering turn is never separately appended.
func (s *SummarizeAtLimit) Method(ctx context.Context, msg envmsg.EnvMessage, d *dispatch.Dispatch) (envmsg.EnvMessage, error) {
	target, ok := d.Agent(s.TargetAgent)
	if !ok {
		return envmsg.EnvMessage{}, fmt.Errorf("summarize: unknown target agent %q", s.TargetAgent)
	}
	summarizer, ok := d.Agent(s.SummarizerAgent)
	if !ok {
		return envmsg.EnvMessage{}, fmt.Errorf("summarize: unknown summarizer agent %q", s.SummarizerAgent)
	}

	pending := msg.Request.Message
	snapshot := target.Cache.Clone()
	snapshot.Push(pending)

	resp, err := summarizer.Handler.GetIOCompletion(ctx, completion.Request{Stack: snapshot.Borrow()})
	if err != nil {
		return envmsg.EnvMessage{}, fmt.Errorf("summarize: summarizer completion: %w", err)
	}

	target.Cache.Clear()
	target.Cache.Push(message.Message{Role: message.System, Content: systemPromptOf(snapshot)})
	target.Cache.Push(message.Message{Role: message.Assistant, Content: resp.Content})

	msg.Request.Message.Content = ""
	return msg, nil
}

// systemPromptOf recovers the System message content from a stack, since
// Clear() drops it along with everything else.
func systemPromptOf(s *message.Stack) string {
	for _, m := range s.Messages() {
		if m.Role.IsSystem() {
			return m.Content
		}
	}
	return ""
}
