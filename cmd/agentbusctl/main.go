// Command agentbusctl is a minimal demo CLI wiring a primary agent, a
// summarizer agent, and a decomposer agent behind one Environment with a
// metrics listener, a forgetful listener, a summarize-at-limit listener, and
// a decompose listener, exercising the scenarios in spec.md §8 end-to-end
// against a live provider. Grounded on the teacher's cmd/maestro bootstrap
// style, trimmed to the core's scope: no git, no containers, no platform
// detection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"agentbus/pkg/agent"
	"agentbus/pkg/auditlog"
	"agentbus/pkg/completion"
	"agentbus/pkg/config"
	"agentbus/pkg/env"
	"agentbus/pkg/listener"
	"agentbus/pkg/logx"
	"agentbus/pkg/metrics"
	"agentbus/pkg/providers/anthropic"
	"agentbus/pkg/providers/ollama"
)

var logger = logx.NewLogger("agentbusctl")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "agentbusctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("agentbusctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML provider config (see pkg/config.Config)")
	provider := fs.String("provider", "anthropic", "provider to drive the demo with: anthropic or ollama")
	model := fs.String("model", config.ModelClaudeSonnet4, "model identifier passed to the provider")
	prompt := fs.String("prompt", "Hello!", "message sent to the primary agent")
	auditPath := fs.String("audit-db", "", "optional path to a SQLite audit log (see pkg/auditlog)")
	summarizeLimit := fs.Int("summarize-limit", 6, "non-System pushes to the primary agent before the summarizer listener collapses the cache")
	statsURL := fs.String("stats-from", "", "skip the demo and print Prometheus-backed stats for -stats-agent instead")
	statsAgent := fs.String("stats-agent", "primary", "agent_id to query stats for with -stats-from")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()

	if *statsURL != "" {
		return printStats(ctx, *statsURL, *statsAgent)
	}

	apiKey, err := resolveAPIKey(*configPath, *provider)
	if err != nil {
		return err
	}

	primaryHandler := buildHandler(*provider, apiKey, *model)
	summarizerHandler := buildHandler(*provider, apiKey, *model)
	decomposerHandler := buildHandler(*provider, apiKey, *model)

	e := env.New("", map[string]string{*provider: apiKey})

	if *auditPath != "" {
		log, err := auditlog.Open(*auditPath)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer log.Close()
		e.InsertListener(log)
	}

	e.InsertListener(listener.NewMetrics(nil))
	e.InsertListener(listener.NewForgetful("primary"))

	primary := e.InsertAgent("primary", agent.New("You are a helpful assistant.", primaryHandler))
	e.InsertAgent("summarizer", agent.New("You summarize conversations concisely.", summarizerHandler))
	e.InsertAgent("decomposer", agent.New("Rewrite the user's message as a single simpler sentence.", decomposerHandler))
	e.InsertListener(listener.NewSummarizeAtLimit("primary", "summarizer", *summarizeLimit))
	e.InsertListener(listener.NewDecompose("primary", "decomposer"))

	e.Spawn(ctx)

	t := primary.RequestIOCompletion(*prompt)
	n, err := e.Notifications().WaitForTicket(ctx, t)
	if err != nil {
		e.Finalize()
		return fmt.Errorf("wait for completion: %w", err)
	}
	fmt.Println(n.Message.Content)

	stack := e.Finalize()
	logger.Info("demo complete, %d residual notifications on the stack", len(stack.Snapshot()))
	return nil
}

// buildHandler constructs a completion.Handler for the chosen provider.
// Unrecognized providers fall through to Ollama, treating the apiKey as
// unused (the local daemon needs none).
func buildHandler(provider, apiKey, model string) completion.Handler {
	switch provider {
	case "anthropic":
		return anthropic.New(apiKey, model)
	case "ollama":
		return ollama.New("http://localhost:11434", model)
	default:
		return ollama.New("http://localhost:11434", model)
	}
}

// resolveAPIKey loads configPath (if given) and resolves the API key for
// provider via pkg/config's secret precedence, prompting on a real terminal
// via golang.org/x/term if nothing is configured.
func resolveAPIKey(configPath, provider string) (string, error) {
	envVar := "AGENTBUS_" + provider + "_API_KEY"
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		if pc, ok := cfg.Providers[provider]; ok {
			if key, err := config.ResolveProviderSecret(pc); err == nil && key != "" {
				return key, nil
			}
		}
	}

	if provider == "ollama" {
		return "", nil // local daemon, no credential needed
	}

	return promptForAPIKey(provider)
}

// promptForAPIKey reads a key from the terminal without echoing it,
// grounded on the teacher's interactive_bootstrap.go password prompt.
func promptForAPIKey(provider string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s API key: ", provider)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}
	return string(bytePassword), nil
}

// printStats prints aggregated per-agent metrics queried from a Prometheus
// server scraping this process's registered collectors, exercising
// pkg/metrics's query-side client.
func printStats(ctx context.Context, prometheusURL, agentID string) error {
	q, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		return err
	}
	m, err := q.GetAgentMetrics(ctx, agentID)
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", *m)
	return nil
}
