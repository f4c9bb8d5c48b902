package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ppiankov/cogito/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMemory(ctx context.Context, db execer, runID string, m model.MemoryRecord) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal memory %s: %w", m.ID, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO memories (id, run_id, user_id, dimension, text, metadata, relevance_score, created_at, accessed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, runID, m.UserID, string(m.Dimension), m.Text, string(meta), m.RelevanceScore,
		formatTime(m.CreatedAt), formatTimePtr(m.AccessedAt), formatTimePtr(m.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// AddMemory stores a memory outside of a run, e.g. an imported long-term fact
func (s *Store) AddMemory(ctx context.Context, m model.MemoryRecord) error {
	return insertMemory(ctx, s.db, "", m)
}

// GetLongTermByUserID returns the user's long-term memories, newest first
func (s *Store) GetLongTermByUserID(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	return s.memories(ctx, userID, model.MemoryLongTerm, limit)
}

// GetShortTermByUserID returns the user's unexpired short-term memories
func (s *Store) GetShortTermByUserID(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	return s.memories(ctx, userID, model.MemoryShortTerm, limit)
}

// GetEpisodicByUserID returns the user's episodic memories
func (s *Store) GetEpisodicByUserID(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	return s.memories(ctx, userID, model.MemoryEpisodic, limit)
}

func (s *Store) memories(ctx context.Context, userID string, dim model.MemoryDimension, limit int) ([]model.MemoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, dimension, text, metadata, relevance_score, created_at, accessed_at, expires_at
		FROM memories
		WHERE user_id = ? AND dimension = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC
		LIMIT ?`,
		userID, string(dim), formatTime(s.now()), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	out := []model.MemoryRecord{}
	for rows.Next() {
		var (
			m                    model.MemoryRecord
			dimension, createdAt string
			meta                 sql.NullString
			accessed, expires    sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.UserID, &dimension, &m.Text, &meta, &m.RelevanceScore, &createdAt, &accessed, &expires); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.Dimension = model.MemoryDimension(dimension)
		m.CreatedAt = parseTime(createdAt)
		m.AccessedAt = parseTimePtr(accessed)
		m.ExpiresAt = parseTimePtr(expires)
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &m.Metadata); err != nil {
				s.logger.Warn("memory metadata unreadable", "memory_id", m.ID, "error", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
