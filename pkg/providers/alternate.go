// Package providers holds the concrete, provider-specific completion.Handler
// implementations and the shared wire-shaping helpers they all need: every
// provider demands strict user/assistant alternation with the system prompt
// pulled out to its own field, which the core's MessageStack does not
// enforce (it merges only the System singleton).
package providers

import (
	"strings"

	"agentbus/pkg/message"
)

// Alternate splits msgs into an extracted system prompt and a strictly
// alternating user/assistant turn sequence, grounded on the teacher's
// ensureAlternation: System content is pulled out and joined with ". ";
// every non-Assistant role (User, Other) accumulates into a running user
// turn until an Assistant message flushes it, so consecutive non-assistant
// turns coalesce into one user message instead of violating alternation.
func Alternate(msgs []message.Message) (systemPrompt string, turns []message.Record) {
	var systemParts []string
	var userParts []string

	flush := func() {
		if len(userParts) == 0 {
			return
		}
		turns = append(turns, message.Record{Role: "user", Content: strings.Join(userParts, ". ")})
		userParts = nil
	}

	for _, m := range msgs {
		switch {
		case m.Role.IsSystem():
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
		case m.Role.Equal(message.Assistant):
			flush()
			turns = append(turns, message.Record{Role: "assistant", Content: m.Content})
		default:
			if m.Content != "" {
				userParts = append(userParts, m.Content)
			}
		}
	}
	flush()

	return strings.Join(systemParts, ". "), turns
}
