package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/spf13/cobra"
)

var (
	turnUser    string
	turnSession string
	turnLocks   []string
	turnJSON    bool
)

// turnCmd runs a single turn
var turnCmd = &cobra.Command{
	Use:   "turn <text>",
	Short: "Run one turn through the cognition pipeline",
	Long: `Run one user utterance through intent classification, planning, execution,
grounding and reflection, and print the final output.

Locked facts given with --lock are stored for the session when --session is
set, so later turns in the same session see them. Without a session they
apply to this turn only.

Examples:
  cogito turn "What do you know about Era 3?" --user u1
  cogito turn "Tell me about the flood" --session s1 --lock never_guess=true
  cogito turn "Era 3 is important" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTurn,
}

func init() {
	rootCmd.AddCommand(turnCmd)

	turnCmd.Flags().StringVar(&turnUser, "user", "", "user id (enables memory recall and write-back)")
	turnCmd.Flags().StringVar(&turnSession, "session", "", "session id (enables stored locked facts)")
	turnCmd.Flags().StringArrayVar(&turnLocks, "lock", nil, "locked fact as key=value (repeatable)")
	turnCmd.Flags().BoolVar(&turnJSON, "json", false, "print the full turn result as JSON")
}

func runTurn(cmd *cobra.Command, args []string) error {
	facts, err := parseLocks(turnLocks)
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req := model.TurnRequest{
		Input:     strings.Join(args, " "),
		UserID:    turnUser,
		SessionID: turnSession,
	}
	if len(facts) > 0 {
		if turnSession != "" {
			for _, fact := range facts {
				if err := a.store.LockFact(ctx, turnSession, fact); err != nil {
					return fmt.Errorf("lock %s: %w", fact.FactKey, err)
				}
			}
		} else {
			req.ContinuityPack = &model.ContinuityPack{LockedFacts: facts}
		}
	}

	result, err := a.pipeline.RunTurnObserved(ctx, req, obs)
	if err != nil {
		return fmt.Errorf("turn failed: %w", err)
	}

	return printTurn(cmd.OutOrStdout(), result, turnJSON)
}

func printTurn(w io.Writer, result *model.TurnResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(w, result.Output)
	if verbose && result.State != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "run:        %s\n", result.RunID)
		if in := result.State.Intent; in != nil {
			fmt.Fprintf(w, "intent:     %s (%.2f)\n", in.Category, in.Confidence)
		}
		if g := result.State.Grounding; g != nil {
			fmt.Fprintf(w, "grounding:  %s, confidence %.2f, %d citations, %d ungrounded\n",
				g.Recommendation, g.Confidence, len(g.Citations), len(g.UngroundedClaims))
		}
	}
	return nil
}

// parseLocks turns key=value flags into locked facts. Values that parse
// as JSON scalars keep their type, everything else stays a string.
func parseLocks(raw []string) ([]model.LockedFact, error) {
	facts := make([]model.LockedFact, 0, len(raw))
	for _, item := range raw {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --lock %q: expected key=value", item)
		}
		facts = append(facts, model.LockedFact{FactKey: key, Value: lockValue(strings.TrimSpace(value))})
	}
	return facts, nil
}

func lockValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}
