package logx

import (
	"fmt"
	"testing"
)

func ExampleLogger_dispatch_usage() {
	// Example of how a Dispatch run loop might use the logger.
	fmt.Println("=== Dispatch Logging Demo ===")

	// Top-level dispatch logger.
	dispatch := NewLogger("dispatch")
	dispatch.Info("Starting run loop")
	dispatch.Debug("Loading configuration from %s", "config/agentbus.yaml")

	// Per-agent loggers.
	jerry := NewLogger("jerry")
	summarizer := NewLogger("summarizer")
	decomp := NewLogger("decomp")

	// Simulate a request moving through the chain.
	jerry.Info("Received request: %s", "GetIOCompletion")
	jerry.Debug("Borrowing message stack for completion")

	summarizer.Info("Received PushToCache from jerry")
	summarizer.Warn("High token usage detected - estimated %d tokens", 800)

	decomp.Info("Rewriting message through decomposer")
	decomp.Error("Decomposer completion failed: missing response")

	// An agent can create sub-loggers for different operations.
	summarizerAudit := summarizer.WithAgentID("summarizer-audit")
	summarizerAudit.Info("Running cache size check")

	// Shutdown sequence.
	dispatch.Info("Initiating graceful shutdown")
	jerry.Info("Finishing in-flight request")
	summarizer.Info("Completing active tasks")
	decomp.Info("Finalizing rewrites")
	dispatch.Info("All agents stopped successfully")

	fmt.Println("=== End Demo ===")
}

func TestDispatchLoggingUsage(t *testing.T) {
	ExampleLogger_dispatch_usage()
}
