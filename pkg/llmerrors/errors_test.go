package llmerrors

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorMessageOnly(t *testing.T) {
	err := NewError(ErrorTypeBadPrompt, "too long")
	assert.Equal(t, ErrorTypeBadPrompt, err.Type)
	assert.Contains(t, err.Error(), "too long")
	assert.Contains(t, err.Error(), "bad_prompt")
}

func TestNewErrorWithStatusIncludesCode(t *testing.T) {
	err := NewErrorWithStatus(ErrorTypeAuth, 401, "")
	assert.Equal(t, 401, err.StatusCode)
	assert.Contains(t, err.Error(), "status 401")
}

func TestNewErrorWithCauseUnwraps(t *testing.T) {
	cause := errors.New("eof")
	err := NewErrorWithCause(ErrorTypeTransient, cause, "")
	assert.Same(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "eof")
}

func TestNewMethodUnimplementedNamesMethod(t *testing.T) {
	err := NewMethodUnimplemented("GetEmbedding")
	assert.Equal(t, ErrorTypeMethodUnimplemented, err.Type)
	assert.Contains(t, err.Error(), "GetEmbedding")
}

func TestIsMatchesWrappedErrorType(t *testing.T) {
	err := NewError(ErrorTypeRateLimit, "slow down")
	wrapped := errors.Join(errors.New("context"), err)

	assert.True(t, Is(wrapped, ErrorTypeRateLimit))
	assert.False(t, Is(wrapped, ErrorTypeAuth))
	assert.False(t, Is(errors.New("plain"), ErrorTypeRateLimit))
}

func TestTypeOfReturnsUnknownForUnclassifiedError(t *testing.T) {
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorTypeAuth, TypeOf(NewError(ErrorTypeAuth, "nope")))
}

func TestIsRetryableByType(t *testing.T) {
	nonRetryable := []ErrorType{ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable, ErrorTypeMethodUnimplemented}
	for _, et := range nonRetryable {
		err := &Error{Type: et}
		assert.Falsef(t, err.IsRetryable(), "expected %s to be non-retryable", et)
	}

	retryable := []ErrorType{ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse, ErrorTypeRecoverable, ErrorTypeUnknown}
	for _, et := range retryable {
		err := &Error{Type: et}
		assert.Truef(t, err.IsRetryable(), "expected %s to be retryable", et)
	}
}

func TestGetRetryConfigFallsBackToUnknown(t *testing.T) {
	err := &Error{Type: ErrorType(99)}
	cfg := err.GetRetryConfig()
	assert.Equal(t, DefaultRetryConfigs[ErrorTypeUnknown], cfg)

	err = &Error{Type: ErrorTypeRateLimit}
	assert.Equal(t, DefaultRetryConfigs[ErrorTypeRateLimit], err.GetRetryConfig())
}

func TestErrorTypeStringCoversEveryConstant(t *testing.T) {
	cases := map[ErrorType]string{
		ErrorTypeRateLimit:           "rate_limit",
		ErrorTypeTransient:           "transient",
		ErrorTypeEmptyResponse:       "empty_response",
		ErrorTypeRecoverable:         "recoverable",
		ErrorTypeAuth:                "auth",
		ErrorTypeBadPrompt:           "bad_prompt",
		ErrorTypeMethodUnimplemented: "method_unimplemented",
		ErrorTypeUnknown:             "unknown",
		ErrorTypeServiceUnavailable:  "service_unavailable",
	}
	for et, want := range cases {
		assert.Equal(t, want, et.String())
	}
	assert.Equal(t, "invalid", ErrorType(99).String())
}

func TestSanitizePromptLeavesShortPromptUnchanged(t *testing.T) {
	assert.Equal(t, "short", SanitizePrompt("short", 100))
}

func TestSanitizePromptTruncatesLongPromptWithHash(t *testing.T) {
	prompt := strings.Repeat("a", 1000)
	out := SanitizePrompt(prompt, 100)

	require.NotEqual(t, prompt, out)
	assert.Contains(t, out, "1000 chars")
	assert.Contains(t, out, "hash:")
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 50)))
}

func TestIsServiceUnavailable(t *testing.T) {
	assert.True(t, IsServiceUnavailable(NewServiceUnavailableError(errors.New("down"), 3)))
	assert.False(t, IsServiceUnavailable(errors.New("down")))
}

func TestNewServiceUnavailableErrorWrapsCauseAndAttempts(t *testing.T) {
	cause := errors.New("still down")
	err := NewServiceUnavailableError(cause, 3)

	assert.Equal(t, ErrorTypeServiceUnavailable, err.Type)
	assert.Same(t, cause, err.Err)
	assert.Contains(t, err.Error(), "3 retry attempts")
	assert.False(t, err.IsRetryable())
}
