package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/ppiankov/cogito/internal/pipeline"
	"github.com/ppiankov/cogito/internal/worker"
	"github.com/spf13/cobra"
)

var (
	batchConcurrency int
	batchTimeout     time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <turns.jsonl>",
	Short: "Run independent turns from a JSONL file in parallel",
	Long: `Batch runs one turn per line of a JSONL file concurrently and prints one
JSON result per line, in input order.

Each line is {"user_id": "...", "session_id": "...", "input": "...",
"locked_facts": [{"fact_key": "...", "value": ...}]}. Blank lines and lines
starting with # are skipped.

Example:
  cogito batch turns.jsonl
  cogito batch turns.jsonl --concurrency 8 --timeout 5m > results.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "number of concurrent turns (default: concurrency.batch_workers)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for the batch")
}

// observedRunner runs turns with a fixed observer
type observedRunner struct {
	pipeline *pipeline.CognitionPipeline
	observer pipeline.Observer
}

func (r observedRunner) RunTurn(ctx context.Context, req model.TurnRequest) (*model.TurnResult, error) {
	return r.pipeline.RunTurnObserved(ctx, req, r.observer)
}

// batchLine is one line of batch output
type batchLine struct {
	Index     int               `json:"index"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Result    *model.TurnResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	reqs, err := worker.ReadTurnsFromFile(file)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	obs, err := a.observer()
	if err != nil {
		return err
	}

	workers := batchConcurrency
	if workers <= 0 {
		workers = a.cfg.Concurrency.BatchWorkers
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Cogito Batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Turns:        %d\n", len(reqs))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n\n", batchTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	start := time.Now()
	processor := worker.NewBatchProcessor(observedRunner{pipeline: a.pipeline, observer: obs}, workers)
	outcomes := processor.ProcessTurns(ctx, reqs)

	failed, err := writeOutcomes(cmd.OutOrStdout(), outcomes)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "  Completed %d turns in %v (%d failed)\n\n", len(outcomes), time.Since(start).Round(time.Millisecond), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d turns failed", failed, len(outcomes))
	}
	return nil
}

// writeOutcomes prints one JSON line per outcome and counts fatal errors
func writeOutcomes(w io.Writer, outcomes []*worker.TurnOutcome) (int, error) {
	enc := json.NewEncoder(w)
	failed := 0
	for _, o := range outcomes {
		line := batchLine{
			Index:     o.Index,
			UserID:    o.Request.UserID,
			SessionID: o.Request.SessionID,
			Result:    o.Result,
		}
		if o.Error != nil {
			failed++
			line.Error = o.Error.Error()
		}
		if err := enc.Encode(line); err != nil {
			return failed, fmt.Errorf("write result: %w", err)
		}
	}
	return failed, nil
}
