package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/spf13/cobra"
)

var (
	groundUser    string
	groundSession string
	groundJSON    bool
)

// groundCmd runs only the grounding gate
var groundCmd = &cobra.Command{
	Use:   "ground <file|->",
	Short: "Check a draft response against canon and memory",
	Long: `Ground runs the grounding gate over a draft text without the rest of the
pipeline. Claims are resolved against canon first and the user's memory
second, and the gate's recommendation is printed.

Examples:
  cogito ground draft.txt --user u1
  echo "Era 3 began after the flood." | cogito ground - --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGround,
}

func init() {
	rootCmd.AddCommand(groundCmd)

	groundCmd.Flags().StringVar(&groundUser, "user", "", "user id for memory lookups")
	groundCmd.Flags().StringVar(&groundSession, "session", "", "session id")
	groundCmd.Flags().BoolVar(&groundJSON, "json", false, "print the full grounding check as JSON")
}

func runGround(cmd *cobra.Command, args []string) error {
	text, err := readDraft(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rctx := &model.TurnContext{Input: text, UserID: groundUser, SessionID: groundSession}
	grounded := a.gate.GroundResponse(ctx, text, a.cfg.Grounding, rctx)

	return printGrounded(cmd.OutOrStdout(), grounded, groundJSON)
}

func readDraft(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read draft: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func printGrounded(w io.Writer, g model.GroundedResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	}

	check := g.Check
	fmt.Fprintf(w, "Status:          %s\n", g.GroundingStatus)
	fmt.Fprintf(w, "Recommendation:  %s\n", check.Recommendation)
	fmt.Fprintf(w, "Confidence:      %.2f\n", check.Confidence)
	fmt.Fprintf(w, "Claims:          %d\n", len(check.Claims))
	if check.Reason != "" {
		fmt.Fprintf(w, "Reason:          %s\n", check.Reason)
	}

	if len(check.Citations) > 0 {
		fmt.Fprintf(w, "\nCitations:\n")
		for _, c := range check.Citations {
			fmt.Fprintf(w, "  [%s] %s (%.2f)\n", c.Type, c.SourceID, c.Confidence)
		}
	}
	if len(check.UngroundedClaims) > 0 {
		fmt.Fprintf(w, "\nUngrounded:\n")
		for _, claim := range check.UngroundedClaims {
			fmt.Fprintf(w, "  - %s\n", claim)
		}
	}
	return nil
}
