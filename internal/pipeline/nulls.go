package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/cogito/internal/model"
)

// ErrNoTools is returned by NullToolRunner
var ErrNoTools = errors.New("no tool runner configured")

// NullToolRunner fails every tool call
type NullToolRunner struct{}

func (NullToolRunner) Execute(_ context.Context, name string, _ map[string]any, _ *model.TurnContext) (any, error) {
	return nil, ErrNoTools
}

// AllowAllPolicy authorizes every check
type AllowAllPolicy struct{}

func (AllowAllPolicy) Authorize(context.Context, model.PolicyRequest) (bool, string, error) {
	return true, "no policy engine configured", nil
}

func (AllowAllPolicy) RecordDecision(context.Context, model.PolicyDecision) error { return nil }

// MemoryRunStore keeps run records in memory
type MemoryRunStore struct {
	mu      sync.Mutex
	records []*model.RunRecord
}

func (s *MemoryRunStore) SaveRun(_ context.Context, rec *model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns the saved records in order
func (s *MemoryRunStore) Records() []*model.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.RunRecord(nil), s.records...)
}

// StaticContinuity serves fixed continuity packs keyed by session id
type StaticContinuity map[string]*model.ContinuityPack

func (s StaticContinuity) ContinuityPack(_ context.Context, _, sessionID string) (*model.ContinuityPack, error) {
	return s[sessionID], nil
}
