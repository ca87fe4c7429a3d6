package querybridgectl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/querybridge/querybridge/internal/stress"
)

// sessionAsker drives the stress prompts through a connected session.
type sessionAsker struct {
	api         *apiClient
	sessionPath string
	rowLimit    int
}

func (a *sessionAsker) Translate(ctx context.Context, question string) (string, error) {
	var result struct {
		SQL string `json:"sql"`
	}
	if err := a.api.postJSON(ctx, a.sessionPath+"/translate", map[string]any{"question": question}, &result); err != nil {
		return "", err
	}
	return result.SQL, nil
}

func (a *sessionAsker) Execute(ctx context.Context, sqlText string) (int, error) {
	var result queryResult
	if err := a.api.postJSON(ctx, a.sessionPath+"/query", map[string]any{"sql": sqlText, "row_limit": a.rowLimit}, &result); err != nil {
		return 0, err
	}
	return result.RowCount, nil
}

func runStress(ctx context.Context, api *apiClient, sessionPath string, opts flags, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	runner, err := stress.NewRunner(&sessionAsker{api: api, sessionPath: sessionPath, rowLimit: opts.rowLimit}, logger, opts.pause)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "stress setup failed: %v\n", err)
		return 1
	}
	outcomes, err := runner.Run(ctx, stress.DefaultPrompts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "stress run interrupted: %v\n", err)
	}
	summary := stress.Summarize(outcomes)

	if opts.raw {
		encoded, encodeErr := json.MarshalIndent(map[string]any{"outcomes": outcomes, "summary": summary}, "", "  ")
		if encodeErr != nil {
			_, _ = fmt.Fprintf(stderr, "encode stress report: %v\n", encodeErr)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, string(encoded))
	} else if renderErr := renderStress(stdout, outcomes, summary); renderErr != nil {
		_, _ = fmt.Fprintf(stderr, "render stress report: %v\n", renderErr)
		return 1
	}

	if err != nil || summary.Succeeded < summary.Total {
		return 1
	}
	return 0
}

func renderStress(w io.Writer, outcomes []stress.Outcome, summary stress.Summary) error {
	data := pterm.TableData{{"ID", "Difficulty", "SQL", "Exec", "Rows", "Time", "Status"}}
	for _, outcome := range outcomes {
		elapsed := "N/A"
		if outcome.Executed {
			elapsed = fmt.Sprintf("%.2fs", outcome.Elapsed.Seconds())
		}
		status := "PASS"
		if !outcome.Succeeded() {
			status = "FAIL " + string(outcome.Category)
		}
		data = append(data, []string{
			fmt.Sprint(outcome.Prompt.ID),
			string(outcome.Prompt.Difficulty),
			mark(outcome.Generated),
			mark(outcome.Executed),
			fmt.Sprint(outcome.RowCount),
			elapsed,
			status,
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, table)

	_, _ = fmt.Fprintf(w, "generated %d/%d, executed %d/%d, passed %d/%d\n",
		summary.Generated, summary.Total, summary.Executed, summary.Total, summary.Succeeded, summary.Total)
	for _, difficulty := range []stress.Difficulty{stress.Intermediate, stress.Advanced} {
		rate := summary.ByDifficulty[difficulty]
		_, _ = fmt.Fprintf(w, "%s: %d/%d (%.1f%%)\n", difficulty, rate.Passed, rate.Total, rate.Percent())
	}
	if summary.Executed > 0 {
		_, _ = fmt.Fprintf(w, "execution avg %.2fs, fastest %.2fs, slowest %.2fs, sub-second %d/%d\n",
			summary.AvgExecution.Seconds(), summary.Fastest.Seconds(), summary.Slowest.Seconds(), summary.SubSecond, summary.Executed)
	}
	for _, outcome := range outcomes {
		if outcome.Error != "" {
			_, _ = fmt.Fprintf(w, "#%d: %s\n", outcome.Prompt.ID, outcome.Error)
		}
	}
	_, _ = fmt.Fprintf(w, "verdict: %s\n", summary.Verdict)
	return nil
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
