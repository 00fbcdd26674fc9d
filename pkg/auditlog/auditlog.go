// Package auditlog provides an optional SQLite-backed listener that durably
// records every EnvMessage passing through the dispatch chain, grounded on
// the teacher's pkg/persistence (schema/migration style) and pkg/eventlog
// (append-only message logging) but collapsed into a single table: this is
// observability, not Dispatch state recovery. The core never reads the
// audit log back in to reconstruct agent caches, so durably recording
// traffic here does not give the module persisted state across restarts.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"agentbus/pkg/dispatch"
	"agentbus/pkg/envmsg"
	"agentbus/pkg/logx"
)

var logger = logx.NewLogger("auditlog")

const createTableStmt = `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at TEXT NOT NULL,
	kind TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	ticket TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL
)`

// Log is a listener that writes every observed EnvMessage to a SQLite file
// as an append-only audit trail. It never replaces or mutates the message
// it was handed.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates (or reopens) the audit database at path and returns a ready
// listener. Callers must Close it when the Environment is torn down.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: ping %s: %w", path, err)
	}
	if _, err := db.Exec(createTableStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: create schema: %w", err)
	}
	return &Log{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Trigger always matches: every message is recorded.
func (*Log) Trigger(envmsg.EnvMessage) bool { return true }

// Method inserts a row for msg and returns it unchanged. A write failure is
// logged, not propagated: an audit-log outage must never stall the
// dispatch loop or drop the message it was asked to observe.
func (l *Log) Method(_ context.Context, msg envmsg.EnvMessage, _ *dispatch.Dispatch) (envmsg.EnvMessage, error) {
	row := rowFor(msg)
	if _, err := l.db.Exec(
		`INSERT INTO audit_events (recorded_at, kind, agent_id, ticket, role, content) VALUES (?, ?, ?, ?, ?, ?)`,
		l.now().UTC().Format(time.RFC3339Nano), row.kind, row.agentID, row.ticket, row.role, row.content,
	); err != nil {
		logger.Error("failed to record audit event: %v", err)
	}
	return msg, nil
}

type auditRow struct {
	kind    string
	agentID string
	ticket  string
	role    string
	content string
}

func rowFor(msg envmsg.EnvMessage) auditRow {
	switch msg.Kind {
	case envmsg.KindRequest:
		return auditRow{
			kind:    "request:" + requestKindName(msg.Request.Kind),
			agentID: msg.Request.AgentID,
			ticket:  string(msg.Request.Ticket),
			role:    msg.Request.Message.Role.String(),
			content: msg.Request.Message.Content,
		}
	case envmsg.KindNotification:
		return auditRow{
			kind:    "notification:" + notificationKindName(msg.Notification.Kind),
			agentID: msg.Notification.AgentID,
			ticket:  string(msg.Notification.Ticket),
			role:    msg.Notification.Message.Role.String(),
			content: msg.Notification.Message.Content,
		}
	default:
		return auditRow{kind: "finish"}
	}
}

func requestKindName(k envmsg.RequestKind) string {
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

func notificationKindName(k envmsg.NotificationKind) string {
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

// Events returns every recorded row for agentID, oldest first, for
// diagnostic tooling to replay a session's traffic.
func (l *Log) Events(ctx context.Context, agentID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT recorded_at, kind, ticket, role, content FROM audit_events WHERE agent_id = ? ORDER BY id ASC`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.RecordedAt, &e.Kind, &e.Ticket, &e.Role, &e.Content); err != nil {
			return nil, fmt.Errorf("auditlog: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Event is the JSON-friendly projection of one recorded audit_events row.
type Event struct {
	RecordedAt string `json:"recorded_at"`
	Kind       string `json:"kind"`
	Ticket     string `json:"ticket"`
	Role       string `json:"role"`
	Content    string `json:"content"`
}

// MarshalEvents renders events as indented JSON.
func MarshalEvents(events []Event) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}
