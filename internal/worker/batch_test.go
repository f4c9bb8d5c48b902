package worker

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct{}

func (fakeRunner) RunTurn(ctx context.Context, req model.TurnRequest) (*model.TurnResult, error) {
	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	if req.Input == "fail" {
		return nil, errors.New("store unavailable")
	}
	return &model.TurnResult{Output: "echo: " + req.Input, Success: true}, nil
}

func TestBatchProcessor_ProcessTurnsKeepsOrder(t *testing.T) {
	var reqs []model.TurnRequest
	for _, in := range []string{"a", "b", "fail", "d", "e", "f", "g"} {
		reqs = append(reqs, model.TurnRequest{Input: in, UserID: "u1"})
	}

	outcomes := NewBatchProcessor(fakeRunner{}, 3).ProcessTurns(context.Background(), reqs)

	require.Len(t, outcomes, len(reqs))
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, reqs[i].Input, o.Request.Input)
		if o.Request.Input == "fail" {
			assert.Error(t, o.GetError())
			assert.Nil(t, o.Result)
			continue
		}
		require.NoError(t, o.GetError())
		assert.Equal(t, "echo: "+reqs[i].Input, o.Result.Output)
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	outcomes := NewBatchProcessor(fakeRunner{}, 2).ProcessTurns(context.Background(), nil)
	assert.NotNil(t, outcomes)
	assert.Empty(t, outcomes)
}

func TestReadTurns(t *testing.T) {
	input := `# session one
{"user_id": "u1", "session_id": "s1", "input": "What is Era 3?", "locked_facts": [{"fact_key": "never_guess", "value": true}]}

{"user_id": "u2", "input": "hello there friend"}
`
	reqs, err := ReadTurns(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "What is Era 3?", reqs[0].Input)
	require.NotNil(t, reqs[0].ContinuityPack)
	assert.Equal(t, "s1", reqs[0].ContinuityPack.SessionID)
	assert.Equal(t, []model.LockedFact{{FactKey: "never_guess", Value: true}}, reqs[0].ContinuityPack.LockedFacts)

	assert.Equal(t, "u2", reqs[1].UserID)
	assert.Nil(t, reqs[1].ContinuityPack)
}

func TestReadTurns_Errors(t *testing.T) {
	_, err := ReadTurns(strings.NewReader("{not json}\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = ReadTurns(strings.NewReader(`{"user_id": "u1"}` + "\n"))
	assert.ErrorContains(t, err, "input is required")
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"input": "one"}`+"\n"+`{"input": "two"}`+"\n"), 0o644))

	outcomes, err := NewBatchProcessor(fakeRunner{}, 2).ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "echo: two", outcomes[1].Result.Output)

	_, err = NewBatchProcessor(fakeRunner{}, 2).ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
