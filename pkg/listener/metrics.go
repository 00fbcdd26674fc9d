package listener

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agentbus/pkg/dispatch"
	"agentbus/pkg/envmsg"
)

// Metrics triggers on every EnvMessage and records Prometheus counters/
// histograms for request volume and completion latency, keyed by agent and
// request kind. It never mutates or replaces the message it observes.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	notifyTotal     *prometheus.CounterVec
	completionSecs  *prometheus.HistogramVec
	pending         map[string]time.Time
	now             func() time.Time
}

// NewMetrics registers the collectors against the default Prometheus
// registry and returns a ready-to-insert listener.
func NewMetrics(now func() time.Time) *Metrics {
	if now == nil {
		now = time.Now
	}
	return &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentbus_requests_total",
				Help: "Total number of EnvRequests routed by the dispatch loop, by agent and kind",
			},
			[]string{"agent_id", "kind"},
		),
		notifyTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentbus_notifications_total",
				Help: "Total number of EnvNotifications published by the dispatch loop, by agent and kind",
			},
			[]string{"agent_id", "kind"},
		),
		completionSecs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentbus_completion_duration_seconds",
				Help:    "Latency between a GetCompletion request and its GotCompletionResponse notification",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_id"},
		),
		pending: make(map[string]time.Time),
		now:     now,
	}
}

// Trigger always matches: every message is observed for metrics purposes.
func (*Metrics) Trigger(envmsg.EnvMessage) bool { return true }

// Method records the message and returns it unchanged.
func (m *Metrics) Method(_ context.Context, msg envmsg.EnvMessage, _ *dispatch.Dispatch) (envmsg.EnvMessage, error) {
	switch msg.Kind {
	case envmsg.KindRequest:
		m.requestsTotal.WithLabelValues(msg.Request.AgentID, requestKindLabel(msg.Request.Kind)).Inc()
		if msg.Request.Kind == envmsg.RequestGetCompletion {
			m.pending[string(msg.Request.Ticket)] = m.now()
		}
	case envmsg.KindNotification:
		m.notifyTotal.WithLabelValues(msg.Notification.AgentID, notificationKindLabel(msg.Notification.Kind)).Inc()
		if msg.Notification.Kind == envmsg.NotificationGotCompletionResponse {
			if start, ok := m.pending[string(msg.Notification.Ticket)]; ok {
				m.completionSecs.WithLabelValues(msg.Notification.AgentID).Observe(m.now().Sub(start).Seconds())
				delete(m.pending, string(msg.Notification.Ticket))
			}
		}
	}
	return msg, nil
}

func requestKindLabel(k envmsg.RequestKind) string {
	switch k {
	case envmsg.RequestPushToCache:
		return "push_to_cache"
	case envmsg.RequestResetCache:
		return "reset_cache"
	case envmsg.RequestGetCompletion:
		return "get_completion"
	case envmsg.RequestGetFunctionCompletion:
		return "get_function_completion"
	case envmsg.RequestGetCompletionStreamHandle:
		return "get_completion_stream_handle"
	case envmsg.RequestGetAgentState:
		return "get_agent_state"
	case envmsg.RequestFinish:
		return "finish"
	default:
		return "unknown"
	}
}

func notificationKindLabel(k envmsg.NotificationKind) string {
	switch k {
	case envmsg.NotificationAgentStateUpdate:
		return "agent_state_update"
	case envmsg.NotificationGotCompletionResponse:
		return "got_completion_response"
	case envmsg.NotificationGotFunctionResponse:
		return "got_function_response"
	case envmsg.NotificationGotStreamHandle:
		return "got_stream_handle"
	default:
		return "unknown"
	}
}
