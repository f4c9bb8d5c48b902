package model

// TurnRequest is one user utterance handed to the pipeline
type TurnRequest struct {
	Input          string                    `json:"input"`
	UserID         string                    `json:"user_id,omitempty"`
	SessionID      string                    `json:"session_id,omitempty"`
	ContinuityPack *ContinuityPack           `json:"continuity_pack,omitempty"`
	EntityMemories map[string][]MemoryRecord `json:"entity_memories,omitempty"`

	// Requirements is the grounding policy for this turn. Nil means the
	// pipeline's configured requirements apply.
	Requirements *GroundingRequirements `json:"requirements,omitempty"`
}

// TurnResult is what the pipeline hands back to the transport
type TurnResult struct {
	RunID     string        `json:"run_id,omitempty"` // Empty for ambiguous turns
	Output    string        `json:"output"`
	Ambiguous bool          `json:"ambiguous"`
	Success   bool          `json:"success"`
	State     *ThoughtState `json:"state,omitempty"`
}

// PolicyRequest asks the policy engine to authorize one policy_check step
type PolicyRequest struct {
	StepID    string         `json:"step_id"`
	PolicyKey string         `json:"policy_key"`
	Input     string         `json:"input"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}
