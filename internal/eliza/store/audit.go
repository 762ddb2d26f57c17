package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditError   = "error"
	AuditDenied  = "denied"
)

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	TraceID   string
	// Actor is who acted: a chat sender, or "watch" and "cli" for reloads
	// and library edits.
	Actor  string
	Action string
	Target string
	// Payload carries action-specific details, stored as JSON.
	Payload map[string]any
	Result  string
	Error   string
}

// WriteAudit appends e to the audit log. A zero Timestamp means now.
func (s *Store) WriteAudit(ctx context.Context, e AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var payload sql.NullString
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal audit payload: %w", err)
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor, action, target, payload_json, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp, e.TraceID, e.Actor, e.Action, nullString(e.Target), payload, e.Result, nullString(e.Error))
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// AuditLog returns the most recent entries, newest first. limit <= 0 means 100.
func (s *Store) AuditLog(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudit(ctx, selectAudit+`
		ORDER BY ts DESC, id DESC
		LIMIT ?`, limit)
}

// AuditByTrace returns every entry recorded under traceID, oldest first.
func (s *Store) AuditByTrace(ctx context.Context, traceID string) ([]*AuditEntry, error) {
	return s.queryAudit(ctx, selectAudit+`
		WHERE trace_id = ?
		ORDER BY ts ASC, id ASC`, traceID)
}

const selectAudit = `
	SELECT id, ts, trace_id, actor, action, target, payload_json, result, error_message
	FROM audit_log`

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var target, payload, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Actor, &e.Action,
			&target, &payload, &e.Result, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Target = target.String
		e.Error = errMsg.String
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit entry %d: bad payload: %w", e.ID, err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
