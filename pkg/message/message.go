// Package message provides the ordered, role-tagged conversational history
// ("cache") shared by every agent in the environment.
package message

import (
	"fmt"
	"strings"

	"agentbus/pkg/logx"
)

var logger = logx.NewLogger("message")

// Role is a sum type over the conversational roles a Message can carry.
// Other holds an arbitrary tag (e.g. "io", "summarizer") used internally by
// listeners; it renders as "system" on the wire to providers that don't
// accept custom roles.
type Role struct {
	tag   string
	other bool
}

// The three well-known roles. Use Other(tag) for anything else.
var (
	System    = Role{tag: "system"}
	User      = Role{tag: "user"}
	Assistant = Role{tag: "assistant"}
)

// Other constructs a custom role carrying label as its tag.
func Other(label string) Role {
	return Role{tag: label, other: true}
}

// String returns the role's lowercase tag.
func (r Role) String() string {
	return r.tag
}

// IsSystem reports whether r is the well-known System role.
func (r Role) IsSystem() bool {
	return !r.other && r.tag == System.tag
}

// WireRole returns the role as rendered on the wire to a provider: the three
// well-known roles as-is, and any Other(tag) rendered as "system".
func (r Role) WireRole() string {
	if r.other {
		return "system"
	}
	return r.tag
}

// Equal reports structural equality between two roles.
func (r Role) Equal(other Role) bool {
	return r.tag == other.tag && r.other == other.other
}

// Message is a single role-tagged turn. Equality is structural.
type Message struct {
	Role    Role
	Content string
}

// Equal reports structural equality between two messages.
func (m Message) Equal(other Message) bool {
	return m.Role.Equal(other.Role) && m.Content == other.Content
}

// Record is the wire representation of a Message.
type Record struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// normalizeWhitespace collapses consecutive whitespace to a single space and
// removes newlines, per the wire serialization rule.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(strings.ReplaceAll(s, "\n", " "))
	return strings.Join(fields, " ")
}

// ToRecord renders m as its wire form.
func (m Message) ToRecord() Record {
	return Record{Role: m.Role.WireRole(), Content: normalizeWhitespace(m.Content)}
}

// Stack is an ordered sequence of Messages with system-prompt invariants:
// at most one message has role System, and if present it sits at index 0.
// Pushing a second System message merges it (space-joined) into the first
// rather than inserting a new entry. Violating the invariant is a contract
// bug and panics rather than silently recovering.
type Stack struct {
	messages []Message
}

// New creates a stack seeded with a System message. Panics on an empty
// system prompt — a contract violation, not a runtime condition.
func New(systemPrompt string) *Stack {
	if systemPrompt == "" {
		panic("message: New called with empty system prompt")
	}
	s := &Stack{}
	s.messages = append(s.messages, Message{Role: System, Content: systemPrompt})
	return s
}

// Init returns an empty stack with no system prompt.
func Init() *Stack {
	return &Stack{}
}

// From builds a stack from a slice of messages, coalescing every System
// message in the input into a single leading System message that preserves
// the insertion order of their contents. This is independent of Push's
// silent-drop rule for a lone System message arriving on an otherwise
// System-less stack: From partitions System messages out of msgs first and
// folds them into one leading prompt before any non-System message is
// placed, so a System message anywhere in msgs (not just leading) still
// contributes to the prompt.
func From(msgs []Message) *Stack {
	var rest []Message
	var sysContent strings.Builder
	for _, m := range msgs {
		if m.Role.IsSystem() {
			if sysContent.Len() > 0 {
				sysContent.WriteString(" ")
			}
			sysContent.WriteString(m.Content)
		} else {
			rest = append(rest, m)
		}
	}

	s := &Stack{}
	if sysContent.Len() > 0 {
		s.messages = append(s.messages, Message{Role: System, Content: sysContent.String()})
	}
	s.messages = append(s.messages, rest...)
	s.checkInvariant()
	return s
}

// Len returns the number of messages in the stack.
func (s *Stack) Len() int {
	return len(s.messages)
}

// Push appends m to the stack, honoring the System-merge and empty-content
// rules. Pushing an empty-content message is a no-op, logged at warn level.
//
// A System message pushed onto a non-empty stack that has no System prompt
// yet (index 0 is some other role) is silently dropped rather than inserted:
// this mirrors the original implementation's push, whose merge branch has no
// else — there is no path that inserts a System message anywhere but index 0
// via Push, and New/From are the only ways to seed one on an otherwise
// non-empty stack.
func (s *Stack) Push(m Message) {
	if m.Role.IsSystem() && len(s.messages) > 0 {
		if s.messages[0].Role.IsSystem() {
			s.messages[0].Content = s.messages[0].Content + " " + m.Content
		}
		s.checkInvariant()
		return
	}

	if m.Content == "" {
		logger.Warn("push: dropping empty-content message with role %s", m.Role)
		return
	}

	s.messages = append(s.messages, m)
	s.checkInvariant()
}

// checkInvariant panics if more than one System message exists, or if a
// System message exists anywhere but index 0. This is a contract violation,
// never a recoverable condition.
func (s *Stack) checkInvariant() {
	systemCount := 0
	for i, m := range s.messages {
		if m.Role.IsSystem() {
			systemCount++
			if i != 0 {
				panic(fmt.Sprintf("message: System message found at index %d, want 0", i))
			}
		}
	}
	if systemCount > 1 {
		panic(fmt.Sprintf("message: invariant violated, %d System messages present", systemCount))
	}
}

// Append concatenates other onto the tail of s. The System invariant is not
// re-enforced: callers must not append a stack containing a System message
// into a stack that already has one.
func (s *Stack) Append(other *Stack) {
	s.messages = append(s.messages, other.messages...)
}

// Pop removes and returns the tail message, or the latest message matching
// role if role is non-nil. Returns false if nothing matched.
func (s *Stack) Pop(role *Role) (Message, bool) {
	if len(s.messages) == 0 {
		return Message{}, false
	}

	if role == nil {
		idx := len(s.messages) - 1
		m := s.messages[idx]
		s.messages = s.messages[:idx]
		return m, true
	}

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role.Equal(*role) {
			m := s.messages[i]
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return m, true
		}
	}
	return Message{}, false
}

// Filter retains messages where (m.Role == role) == inclusive, mutating s
// in place.
func (s *Stack) Filter(role Role, inclusive bool) {
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.Role.Equal(role) == inclusive {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

// Clear removes every message from the stack, including any System prompt.
func (s *Stack) Clear() {
	s.messages = nil
}

// Clone returns a deep copy of s.
func (s *Stack) Clone() *Stack {
	cp := &Stack{messages: make([]Message, len(s.messages))}
	copy(cp.messages, s.messages)
	return cp
}

// Messages returns a copy of the stack's messages in order.
func (s *Stack) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ToRecords renders the stack as its wire form: an ordered list of
// {role, content} records.
func (s *Stack) ToRecords() []Record {
	out := make([]Record, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.ToRecord()
	}
	return out
}

// View is a non-mutating, reference-only projection over a Stack. It
// supports Filter (returning a new View) but never mutates the underlying
// stack.
type View struct {
	messages []Message
}

// Borrow returns a read-only View over s's current messages.
func (s *Stack) Borrow() View {
	return View{messages: s.messages}
}

// Len returns the number of messages visible in the view.
func (v View) Len() int {
	return len(v.messages)
}

// Messages returns a copy of the messages visible in the view.
func (v View) Messages() []Message {
	out := make([]Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Filter returns a new View retaining messages where (m.Role == role) == inclusive.
func (v View) Filter(role Role, inclusive bool) View {
	kept := make([]Message, 0, len(v.messages))
	for _, m := range v.messages {
		if m.Role.Equal(role) == inclusive {
			kept = append(kept, m)
		}
	}
	return View{messages: kept}
}
