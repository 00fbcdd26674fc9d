package logx

import (
	"context"
	"os"
	"testing"
)

// Uses agentIDKey as defined in context_debug_test.go.

// TestContextAwareDebugLogging demonstrates the context-aware, domain-filtered
// Debug(ctx, domain, format, args...) pattern as exercised by this module's
// own dispatch/listener/env packages.
func TestContextAwareDebugLogging(t *testing.T) {
	// Enable debug logging for this demo.
	SetDebugConfig(true, false, ".")
	SetDebugDomains([]string{"dispatch", "listener", "env"})

	// Create context with agent ID under the key Debug reads.
	ctx := context.WithValue(context.Background(), agentIDKey, "jerry")

	t.Log("=== Context-Aware Debug Logging Demo ===")

	// 1. Domain-filtered debug logging.
	Debug(ctx, "dispatch", "executing request: %s", "GetCompletion")
	Debug(ctx, "listener", "chain visited %d listeners", 3)
	Debug(ctx, "env", "routing notification -> ticket %s", "t-001")

	// This should be filtered out since "provider" isn't in the enabled domain set.
	Debug(ctx, "provider", "this should not appear")

	// 2. Convenient helper functions.
	DebugState(ctx, "dispatch", "transition", "Fresh -> Running", "stream handle requested")
	DebugMessage(ctx, "listener", "PushToCache", "queued for agent jerry")
	DebugFlow(ctx, "env", "finalize", "complete", "notification stack drained")

	// 3. Environment variable control demo.
	t.Log("--- Testing environment variable control ---")

	// Test with different domain filtering.
	SetDebugDomains([]string{"dispatch"}) // Only enable the dispatch domain
	Debug(ctx, "dispatch", "this should appear (dispatch domain enabled)")
	Debug(ctx, "listener", "this should NOT appear (listener domain disabled)")

	// 4. File logging demo (if enabled via environment)
	if os.Getenv("DEBUG_FILE") == "1" {
		t.Log("--- File logging enabled via DEBUG_FILE=1 ---")
		DebugToFile(ctx, "dispatch", "test_debug.log", "file debug test: %s", "run loop iteration")
	}

	t.Log("=== Context-aware debug logging demo complete ===")

	// Reset for other tests.
	SetDebugConfig(false, false, ".")
	SetDebugDomains(nil)
}

// TestEnvironmentVariableControlDemo shows how to use environment variables.
func TestEnvironmentVariableControlDemo(t *testing.T) {
	t.Log("=== Environment Variable Control Examples ===")
	t.Log("To enable debug logging for specific domains:")
	t.Log("  DEBUG=1 DEBUG_DOMAINS=dispatch,listener go test")
	t.Log("  DEBUG=1 DEBUG_FILE=1 DEBUG_DIR=./logs go test")
	t.Log("")
	t.Log("To enable debug for all domains:")
	t.Log("  DEBUG=1 go test")
	t.Log("")
	t.Log("To enable file logging:")
	t.Log("  DEBUG=1 DEBUG_FILE=1 go test")
}
