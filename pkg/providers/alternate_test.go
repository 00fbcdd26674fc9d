package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentbus/pkg/message"
)

func TestAlternateExtractsAndJoinsSystemContent(t *testing.T) {
	sys, _ := Alternate([]message.Message{
		{Role: message.System, Content: "be concise"},
		{Role: message.User, Content: "hi"},
	})
	assert.Equal(t, "be concise", sys)
}

func TestAlternateCoalescesConsecutiveNonAssistantTurns(t *testing.T) {
	_, turns := Alternate([]message.Message{
		{Role: message.User, Content: "part one"},
		{Role: message.Other("tool"), Content: "part two"},
		{Role: message.Assistant, Content: "reply"},
	})

	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "part one. part two", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "reply", turns[1].Content)
}

func TestAlternateFlushesOnEveryAssistantTurn(t *testing.T) {
	_, turns := Alternate([]message.Message{
		{Role: message.User, Content: "q1"},
		{Role: message.Assistant, Content: "a1"},
		{Role: message.User, Content: "q2"},
		{Role: message.Assistant, Content: "a2"},
	})

	require.Len(t, turns, 4)
	assert.Equal(t, []string{"user", "assistant", "user", "assistant"}, []string{
		turns[0].Role, turns[1].Role, turns[2].Role, turns[3].Role,
	})
}

func TestAlternateDropsTrailingEmptyUserTurn(t *testing.T) {
	_, turns := Alternate([]message.Message{
		{Role: message.Assistant, Content: "final word"},
	})
	require.Len(t, turns, 1)
	assert.Equal(t, "assistant", turns[0].Role)
}

func TestAlternateOfNilIsEmpty(t *testing.T) {
	sys, turns := Alternate(nil)
	assert.Equal(t, "", sys)
	assert.Empty(t, turns)
}
