package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/model"
)

// RecordAudit appends a planner audit event
func (s *Store) RecordAudit(ctx context.Context, ev model.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, type, rule, action, user_id, session_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Rule, ev.Action, ev.UserID, ev.SessionID, string(details), formatTime(ev.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// AuditEvents returns the most recent audit events, newest first
func (s *Store) AuditEvents(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, rule, action, user_id, session_id, details, created_at
		FROM audit_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var (
			ev             model.AuditEvent
			typ, createdAt string
			details        sql.NullString
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.Rule, &ev.Action, &ev.UserID, &ev.SessionID, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Type = model.AuditEventType(typ)
		ev.Timestamp = parseTime(createdAt)
		if details.Valid && details.String != "" && details.String != "null" {
			_ = json.Unmarshal([]byte(details.String), &ev.Details)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
