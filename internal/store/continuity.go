package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/cogito/internal/model"
)

// LockFact sets a locked fact for a session, replacing any earlier value
// under the same key
func (s *Store) LockFact(ctx context.Context, sessionID string, fact model.LockedFact) error {
	value, err := json.Marshal(fact.Value)
	if err != nil {
		return fmt.Errorf("marshal locked fact %s: %w", fact.FactKey, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO locked_facts (session_id, fact_key, value, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, fact_key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		sessionID, fact.FactKey, string(value), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("lock fact: %w", err)
	}
	return nil
}

// UnlockFact removes a locked fact
func (s *Store) UnlockFact(ctx context.Context, sessionID, factKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM locked_facts WHERE session_id = ? AND fact_key = ?`, sessionID, factKey); err != nil {
		return fmt.Errorf("unlock fact: %w", err)
	}
	return nil
}

// ContinuityPack returns the session's locked facts as a continuity pack,
// or nil when the session has none
func (s *Store) ContinuityPack(ctx context.Context, _, sessionID string) (*model.ContinuityPack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fact_key, value FROM locked_facts WHERE session_id = ? ORDER BY fact_key`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query locked facts: %w", err)
	}
	defer rows.Close()

	var facts []model.LockedFact
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan locked fact: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		facts = append(facts, model.LockedFact{FactKey: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, nil
	}
	return &model.ContinuityPack{SessionID: sessionID, LockedFacts: facts}, nil
}
