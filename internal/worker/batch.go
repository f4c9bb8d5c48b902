package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/cogito/internal/model"
)

// TurnRunner runs one turn through the cognition pipeline
type TurnRunner interface {
	RunTurn(ctx context.Context, req model.TurnRequest) (*model.TurnResult, error)
}

// TurnJob is one line of a batch file
type TurnJob struct {
	Index   int
	Request model.TurnRequest
	Runner  TurnRunner
}

// Execute runs the turn
func (j *TurnJob) Execute(ctx context.Context) Result {
	result, err := j.Runner.RunTurn(ctx, j.Request)
	return &TurnOutcome{
		Index:   j.Index,
		Request: j.Request,
		Result:  result,
		Error:   err,
	}
}

// TurnOutcome is the result of one batch line
type TurnOutcome struct {
	Index   int
	Request model.TurnRequest
	Result  *model.TurnResult
	Error   error
}

// GetError returns the turn's fatal error, if any
func (r *TurnOutcome) GetError() error {
	return r.Error
}

// BatchProcessor runs independent turns concurrently
type BatchProcessor struct {
	runner      TurnRunner
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner TurnRunner, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		concurrency: concurrency,
	}
}

// ProcessTurns runs every request and returns outcomes in input order
func (b *BatchProcessor) ProcessTurns(ctx context.Context, reqs []model.TurnRequest) []*TurnOutcome {
	if len(reqs) == 0 {
		return []*TurnOutcome{}
	}

	jobs := make([]Job, len(reqs))
	for i, req := range reqs {
		jobs[i] = &TurnJob{Index: i, Request: req, Runner: b.runner}
	}

	results := Run(ctx, b.concurrency, jobs)

	outcomes := make([]*TurnOutcome, 0, len(results))
	for _, result := range results {
		outcomes = append(outcomes, result.(*TurnOutcome))
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })

	return outcomes
}

// ProcessFile reads a JSONL turn file and runs it
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*TurnOutcome, error) {
	reqs, err := ReadTurnsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}

	return b.ProcessTurns(ctx, reqs), nil
}

// turnLine is the JSONL shape of one batch entry
type turnLine struct {
	UserID      string             `json:"user_id"`
	SessionID   string             `json:"session_id"`
	Input       string             `json:"input"`
	LockedFacts []model.LockedFact `json:"locked_facts"`
}

// ReadTurnsFromFile reads one JSON turn per line. Blank lines and lines
// starting with # are skipped.
func ReadTurnsFromFile(filePath string) ([]model.TurnRequest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadTurns(file)
}

// ReadTurns parses JSONL turns from r
func ReadTurns(r io.Reader) ([]model.TurnRequest, error) {
	var reqs []model.TurnRequest

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var tl turnLine
		if err := json.Unmarshal([]byte(line), &tl); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if strings.TrimSpace(tl.Input) == "" {
			return nil, fmt.Errorf("line %d: input is required", lineNo)
		}

		req := model.TurnRequest{
			Input:     tl.Input,
			UserID:    tl.UserID,
			SessionID: tl.SessionID,
		}
		if tl.SessionID != "" || len(tl.LockedFacts) > 0 {
			req.ContinuityPack = &model.ContinuityPack{
				SessionID:   tl.SessionID,
				LockedFacts: tl.LockedFacts,
			}
		}
		reqs = append(reqs, req)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return reqs, nil
}
