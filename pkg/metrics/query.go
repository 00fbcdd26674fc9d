// Package metrics provides a query-side client against the Prometheus
// server scraping the counters and histograms pkg/listener.Metrics records,
// for diagnostic tooling (cmd/agentbusctl's -stats-from mode) that wants
// aggregated per-agent figures rather than raw scrape output.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// AgentMetrics summarizes the dispatch traffic recorded for one agent_id,
// aggregated from the agentbus_requests_total, agentbus_notifications_total,
// and agentbus_completion_duration_seconds series pkg/listener.Metrics
// exposes.
type AgentMetrics struct {
	AgentID            string  `json:"agent_id"`
	RequestsTotal      int64   `json:"requests_total"`
	NotificationsTotal int64   `json:"notifications_total"`
	CompletionCount    int64   `json:"completion_count"`
	P50LatencySeconds  float64 `json:"p50_latency_seconds"`
}

// QueryService queries a Prometheus server for agentbus metrics.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService constructs a QueryService against the Prometheus HTTP API
// at prometheusURL (e.g. "http://localhost:9090").
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{client: client, queryAPI: v1.NewAPI(client)}, nil
}

// scalarOf extracts the first sample's value from an instant-query result,
// or 0 if the result carried no series.
func scalarOf(result model.Value) float64 {
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value)
	}
	return 0
}

// GetAgentMetrics retrieves aggregated request/notification counts and
// completion latency for agentID, summed across every request/notification
// kind recorded by pkg/listener.Metrics.
func (q *QueryService) GetAgentMetrics(ctx context.Context, agentID string) (*AgentMetrics, error) {
	m := &AgentMetrics{AgentID: agentID}
	now := time.Now()

	reqQuery := fmt.Sprintf(`sum(agentbus_requests_total{agent_id=%q})`, agentID)
	reqResult, _, err := q.queryAPI.Query(ctx, reqQuery, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests total: %w", err)
	}
	m.RequestsTotal = int64(scalarOf(reqResult))

	notifyQuery := fmt.Sprintf(`sum(agentbus_notifications_total{agent_id=%q})`, agentID)
	notifyResult, _, err := q.queryAPI.Query(ctx, notifyQuery, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications total: %w", err)
	}
	m.NotificationsTotal = int64(scalarOf(notifyResult))

	countQuery := fmt.Sprintf(`sum(agentbus_completion_duration_seconds_count{agent_id=%q})`, agentID)
	countResult, _, err := q.queryAPI.Query(ctx, countQuery, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion count: %w", err)
	}
	m.CompletionCount = int64(scalarOf(countResult))

	p50Query := fmt.Sprintf(`histogram_quantile(0.5, sum(rate(agentbus_completion_duration_seconds_bucket{agent_id=%q}[5m])) by (le))`, agentID)
	p50Result, _, err := q.queryAPI.Query(ctx, p50Query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query p50 latency: %w", err)
	}
	m.P50LatencySeconds = scalarOf(p50Result)

	return m, nil
}

// GetAllAgentIDs returns every agent_id label value seen on
// agentbus_requests_total, for tooling that wants to enumerate agents
// without being told their IDs up front.
func (q *QueryService) GetAllAgentIDs(ctx context.Context) ([]string, error) {
	groupQuery := `group by (agent_id) (agentbus_requests_total)`
	result, _, err := q.queryAPI.Query(ctx, groupQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query agent ids: %w", err)
	}

	var ids []string
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if id, ok := sample.Metric["agent_id"]; ok {
				ids = append(ids, string(id))
			}
		}
	}
	return ids, nil
}
