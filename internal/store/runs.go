package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/cogito/internal/model"
)

// SaveRun writes the run record, its citations, the reflection's memory
// candidates and policy decisions in one transaction. Either all of it is
// visible afterwards or none of it is.
func (s *Store) SaveRun(ctx context.Context, rec *model.RunRecord) (err error) {
	if rec == nil || rec.ID == "" {
		return errors.New("run record without id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cols := make([]any, 0, 5)
	for _, v := range []any{rec.Intent, rec.Plan, rec.Execution, rec.Grounding, rec.Reflection} {
		data, merr := marshalNullable(v)
		if merr != nil {
			return fmt.Errorf("marshal run %s: %w", rec.ID, merr)
		}
		cols = append(cols, data)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, user_id, session_id, input, intent, plan, execution, grounding, reflection, output, success, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SessionID, rec.Input,
		cols[0], cols[1], cols[2], cols[3], cols[4],
		rec.Output, boolInt(rec.Success), rec.Duration.Milliseconds(), formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, c := range rec.Citations {
		meta, merr := json.Marshal(c.Metadata)
		if merr != nil {
			return fmt.Errorf("marshal citation %s: %w", c.ID, merr)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO citations (id, run_id, type, source_id, source_text, confidence, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, rec.ID, string(c.Type), c.SourceID, c.SourceText, c.Confidence, string(meta),
		)
		if err != nil {
			return fmt.Errorf("insert citation: %w", err)
		}
	}

	if rec.Reflection != nil {
		for _, m := range rec.Reflection.MemoryToStore {
			if err = insertMemory(ctx, tx, rec.ID, m); err != nil {
				return err
			}
		}
		for _, d := range rec.Reflection.PolicyDecisions {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO policy_decisions (run_id, step_id, policy_key, decision, reason, decided_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				rec.ID, d.StepID, d.PolicyKey, string(d.Decision), d.Reason, formatTime(d.DecidedAt),
			)
			if err != nil {
				return fmt.Errorf("insert policy decision: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("run saved", "run_id", rec.ID, "citations", len(rec.Citations))
	return nil
}

// GetRun loads a run record with its citations
func (s *Store) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	var rec model.RunRecord
	var intent, plan, execution, grounding, reflectionJS sql.NullString
	var (
		success    int
		durationMS int64
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, input, intent, plan, execution, grounding, reflection, output, success, duration_ms, created_at
		FROM runs WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Input,
		&intent, &plan, &execution, &grounding, &reflectionJS,
		&rec.Output, &success, &durationMS, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}

	rec.Success = success != 0
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.CreatedAt = parseTime(createdAt)

	targets := []struct {
		src sql.NullString
		dst any
	}{
		{intent, &rec.Intent},
		{plan, &rec.Plan},
		{execution, &rec.Execution},
		{grounding, &rec.Grounding},
		{reflectionJS, &rec.Reflection},
	}
	for _, t := range targets {
		if !t.src.Valid || t.src.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(t.src.String), t.dst); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
	}

	rec.Citations, err = s.citations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) citations(ctx context.Context, runID string) ([]model.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, source_id, source_text, confidence, metadata
		FROM citations WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query citations: %w", err)
	}
	defer rows.Close()

	var out []model.Citation
	for rows.Next() {
		var (
			c    model.Citation
			typ  string
			meta sql.NullString
		)
		if err := rows.Scan(&c.ID, &typ, &c.SourceID, &c.SourceText, &c.Confidence, &meta); err != nil {
			return nil, fmt.Errorf("scan citation: %w", err)
		}
		c.Type = model.CitationType(typ)
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode citation metadata: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PolicyDecisions returns the decisions recorded for a run
func (s *Store) PolicyDecisions(ctx context.Context, runID string) ([]model.PolicyDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, policy_key, decision, reason, decided_at
		FROM policy_decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query policy decisions: %w", err)
	}
	defer rows.Close()

	var out []model.PolicyDecision
	for rows.Next() {
		var (
			d                   model.PolicyDecision
			decision, decidedAt string
		)
		if err := rows.Scan(&d.StepID, &d.PolicyKey, &decision, &d.Reason, &decidedAt); err != nil {
			return nil, fmt.Errorf("scan policy decision: %w", err)
		}
		d.Decision = model.Decision(decision)
		d.DecidedAt = parseTime(decidedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

func marshalNullable(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
