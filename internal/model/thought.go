package model

import "time"

// MemoryDimension selects which memory tier a record lives in
type MemoryDimension string

const (
	MemoryLongTerm  MemoryDimension = "long_term"
	MemoryShortTerm MemoryDimension = "short_term"
	MemoryEpisodic  MemoryDimension = "episodic"
)

// AllMemoryDimensions returns the dimensions in lookup order
func AllMemoryDimensions() []MemoryDimension {
	return []MemoryDimension{MemoryLongTerm, MemoryShortTerm, MemoryEpisodic}
}

// MemoryRecord is a stored (or about to be stored) memory entry
type MemoryRecord struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Dimension      MemoryDimension `json:"dimension"`
	Text           string          `json:"text"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	RelevanceScore float64         `json:"relevance_score"`
	CreatedAt      time.Time       `json:"created_at"`
	AccessedAt     *time.Time      `json:"accessed_at,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the record's TTL has elapsed at now
func (m MemoryRecord) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// Decision is the outcome of a policy check
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// PolicyDecision records one executed policy_check step
type PolicyDecision struct {
	StepID    string    `json:"step_id"`
	PolicyKey string    `json:"policy_key,omitempty"`
	Decision  Decision  `json:"decision"`
	Reason    string    `json:"reason"`
	DecidedAt time.Time `json:"decided_at"`
}

// LockedFact is a session-scoped hard constraint supplied from outside the core
type LockedFact struct {
	FactKey string `json:"fact_key" yaml:"fact_key"`
	Value   any    `json:"value" yaml:"value"`
}

// ContinuityPack is the externally supplied session context
type ContinuityPack struct {
	SessionID   string         `json:"session_id,omitempty"`
	LockedFacts []LockedFact   `json:"locked_facts,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// TurnContext is the context bag handed to the planner and the grounding gate
type TurnContext struct {
	Input          string                    `json:"input"`
	UserID         string                    `json:"user_id,omitempty"`
	SessionID      string                    `json:"session_id,omitempty"`
	ContinuityPack *ContinuityPack           `json:"continuity_pack,omitempty"`
	ToolOutputs    map[string]any            `json:"tool_outputs,omitempty"`
	EntityMemories map[string][]MemoryRecord `json:"entity_memories,omitempty"` // Keyed by entity id
}

// LockedFacts returns the pack's locked facts, or nil when there is no pack
func (c *TurnContext) LockedFacts() []LockedFact {
	if c == nil || c.ContinuityPack == nil {
		return nil
	}
	return c.ContinuityPack.LockedFacts
}

// StepResult is the outcome of executing a single plan step
type StepResult struct {
	StepID     string        `json:"step_id"`
	Type       StepType      `json:"type"`
	Success    bool          `json:"success"`
	Output     any           `json:"output,omitempty"`
	Authorized *bool         `json:"authorized,omitempty"` // Set for policy_check steps
	PolicyKey  string        `json:"policy_key,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ExecutionResult is the outcome of running a whole plan
type ExecutionResult struct {
	Success     bool         `json:"success"`
	Output      string       `json:"output"`
	StepResults []StepResult `json:"step_results"`
	Error       string       `json:"error,omitempty"`
}

// Reflection is the post-turn analysis handed to storage collaborators
type Reflection struct {
	Summary              string           `json:"summary"`
	KeyFindings          []string         `json:"key_findings"`
	ConfidenceInResponse float64          `json:"confidence_in_response"`
	MemoryToStore        []MemoryRecord   `json:"memory_to_store,omitempty"`
	PolicyDecisions      []PolicyDecision `json:"policy_decisions,omitempty"`
}

// ThoughtState is the per-turn aggregate threaded through the pipeline. It
// lives for exactly one turn and is persisted field by field.
type ThoughtState struct {
	Input      string           `json:"input"`
	UserID     string           `json:"user_id"`
	SessionID  string           `json:"session_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Intent     *Intent          `json:"intent,omitempty"`
	Plan       *Plan            `json:"plan,omitempty"`
	Execution  *ExecutionResult `json:"execution,omitempty"`
	Grounding  *GroundingCheck  `json:"grounding,omitempty"`
	Reflection *Reflection      `json:"reflection,omitempty"`
}

// RunRecord is the audit trail of one non-ambiguous turn
type RunRecord struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	SessionID  string           `json:"session_id,omitempty"`
	Input      string           `json:"input"`
	Intent     *Intent          `json:"intent,omitempty"`
	Plan       *Plan            `json:"plan,omitempty"`
	Execution  *ExecutionResult `json:"execution,omitempty"`
	Grounding  *GroundingCheck  `json:"grounding,omitempty"`
	Reflection *Reflection      `json:"reflection,omitempty"`
	Citations  []Citation       `json:"citations,omitempty"`
	Output     string           `json:"output"`
	Success    bool             `json:"success"`
	Duration   time.Duration    `json:"duration"`
	CreatedAt  time.Time        `json:"created_at"`
}
