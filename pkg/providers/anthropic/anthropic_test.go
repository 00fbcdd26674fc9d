package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentbus/pkg/completion"
	"agentbus/pkg/llmerrors"
	"agentbus/pkg/message"
)

func TestNewBindsModel(t *testing.T) {
	h := New("sk-test", "claude-sonnet-4-20250514")
	require.NotNil(t, h)
	assert.Equal(t, "claude-sonnet-4-20250514", string(h.model))
}

func TestClassifyErrorMapsContextDeadlineToTransient(t *testing.T) {
	err := classifyError(context.DeadlineExceeded)
	assert.Equal(t, llmerrors.ErrorTypeTransient, err.Type)
}

func TestClassifyErrorMapsContextCanceledToTransient(t *testing.T) {
	err := classifyError(context.Canceled)
	assert.Equal(t, llmerrors.ErrorTypeTransient, err.Type)
}

func TestClassifyErrorFallsBackToUnknown(t *testing.T) {
	err := classifyError(errors.New("some other failure"))
	assert.Equal(t, llmerrors.ErrorTypeUnknown, err.Type)
}

func TestClassifyErrorNilIsNil(t *testing.T) {
	assert.Nil(t, classifyError(nil))
}

func TestBuildParamsExtractsSystemPromptAndDefaultsMaxTokens(t *testing.T) {
	stack := message.New("be terse")
	stack.Push(message.Message{Role: message.User, Content: "hi"})

	req := completion.Request{Stack: stack.Borrow()}
	params := buildParams("claude-sonnet-4-20250514", req)

	require.Len(t, params.System, 1)
	assert.Equal(t, "be terse", params.System[0].Text)
	assert.Equal(t, int64(4096), params.MaxTokens)
	assert.Len(t, params.Messages, 1)
}

func TestBuildParamsHonorsExplicitMaxTokens(t *testing.T) {
	stack := message.Init()
	stack.Push(message.Message{Role: message.User, Content: "hi"})

	req := completion.Request{Stack: stack.Borrow(), MaxTokens: 256}
	params := buildParams("claude-sonnet-4-20250514", req)

	assert.Equal(t, int64(256), params.MaxTokens)
}
