// Package stress replays a fixed set of analytical questions through the
// translate and execute path and reports how many survive both steps.
package stress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

type Difficulty string

const (
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

type Category string

const (
	CategoryNone            Category = ""
	CategoryGeneration      Category = "generation_failed"
	CategoryDecimalOverflow Category = "decimal_overflow"
	CategorySchemaMismatch  Category = "schema_mismatch"
	CategorySyntax          Category = "syntax_error"
	CategoryOther           Category = "other"
)

type Prompt struct {
	ID                int        `json:"id"`
	Difficulty        Difficulty `json:"difficulty"`
	Question          string     `json:"question"`
	ExpectedTables    []string   `json:"expected_tables"`
	ExpectedFunctions []string   `json:"expected_functions"`
}

// DefaultPrompts are the curated AdTech questions, five per difficulty.
var DefaultPrompts = []Prompt{
	{1, Intermediate, "Show me total revenue and conversions for AutoCorp campaigns by type", []string{"campaigns", "ad_events"}, []string{"SUM", "COUNT", "GROUP BY"}},
	{2, Intermediate, "Which publishers have the highest conversion rates for AutoCorp?", []string{"campaigns", "ad_events", "publishers"}, []string{"JOIN", "conversion rate"}},
	{3, Intermediate, "What's the average revenue per conversion for each campaign type?", []string{"campaigns", "ad_events"}, []string{"AVG", "CASE WHEN", "GROUP BY"}},
	{4, Intermediate, "Show me the top 5 campaigns by total revenue for AutoCorp", []string{"campaigns", "ad_events"}, []string{"SUM", "ORDER BY", "LIMIT"}},
	{5, Intermediate, "Break down AutoCorp's performance by region and campaign type", []string{"campaigns", "ad_events", "publishers"}, []string{"JOIN", "GROUP BY"}},
	{6, Advanced, "Show me hourly conversion trends with rolling averages for AutoCorp", []string{"campaigns", "ad_events"}, []string{"CTE", "window functions"}},
	{7, Advanced, "Calculate ROI and cost efficiency metrics by campaign type for AutoCorp", []string{"campaigns", "ad_events"}, []string{"business metrics"}},
	{8, Advanced, "Find correlation between daily budget and conversion performance", []string{"campaigns", "ad_events"}, []string{"CORR"}},
	{9, Advanced, "Show me campaign performance with month-over-month growth rates", []string{"campaigns", "ad_events"}, []string{"LAG", "window functions"}},
	{10, Advanced, "Identify underperforming campaigns using statistical outlier detection", []string{"campaigns", "ad_events"}, []string{"STDDEV"}},
}

// Asker is the pipeline under test. Translate turns a question into SQL and
// Execute runs it, returning the number of rows.
type Asker interface {
	Translate(ctx context.Context, question string) (string, error)
	Execute(ctx context.Context, sqlText string) (int, error)
}

type Outcome struct {
	Prompt    Prompt        `json:"prompt"`
	SQL       string        `json:"sql,omitempty"`
	Generated bool          `json:"generated"`
	Executed  bool          `json:"executed"`
	RowCount  int           `json:"row_count"`
	Elapsed   time.Duration `json:"elapsed"`
	Category  Category      `json:"category,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (o Outcome) Succeeded() bool {
	return o.Generated && o.Executed
}

type Runner struct {
	asker Asker
	log   *slog.Logger
	pause time.Duration
	now   func() time.Time
}

// NewRunner builds a runner that waits pause between prompts.
func NewRunner(asker Asker, logger *slog.Logger, pause time.Duration) (*Runner, error) {
	if asker == nil {
		return nil, fmt.Errorf("asker is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if pause < 0 {
		pause = 0
	}
	return &Runner{asker: asker, log: logger, pause: pause, now: time.Now}, nil
}

// Run executes prompts in order. It stops early only when ctx is done and
// returns the outcomes collected so far.
func (r *Runner) Run(ctx context.Context, prompts []Prompt) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(prompts))
	for i, prompt := range prompts {
		if i > 0 && r.pause > 0 {
			select {
			case <-ctx.Done():
				return outcomes, ctx.Err()
			case <-time.After(r.pause):
			}
		}
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome := r.runOne(ctx, prompt)
		outcomes = append(outcomes, outcome)
		r.log.Info("stress prompt finished",
			slog.Int("id", prompt.ID),
			slog.String("difficulty", string(prompt.Difficulty)),
			slog.Bool("succeeded", outcome.Succeeded()),
			slog.Int("rows", outcome.RowCount),
			slog.String("category", string(outcome.Category)),
		)
	}
	return outcomes, nil
}

func (r *Runner) runOne(ctx context.Context, prompt Prompt) Outcome {
	outcome := Outcome{Prompt: prompt}
	sqlText, err := r.asker.Translate(ctx, prompt.Question)
	if err != nil {
		outcome.Category = CategoryGeneration
		outcome.Error = err.Error()
		return outcome
	}
	outcome.SQL = sqlText
	outcome.Generated = true

	start := r.now()
	rows, err := r.asker.Execute(ctx, sqlText)
	outcome.Elapsed = r.now().Sub(start)
	if err != nil {
		outcome.Category = Categorize(err)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Executed = true
	outcome.RowCount = rows
	return outcome
}

// Categorize buckets an execution failure by its message.
func Categorize(err error) Category {
	if err == nil {
		return CategoryNone
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "decimal math overflow") || strings.Contains(lower, "numeric overflow"):
		return CategoryDecimalOverflow
	case strings.Contains(lower, "column") && strings.Contains(lower, "does not exist"):
		return CategorySchemaMismatch
	case strings.Contains(lower, "syntax error"):
		return CategorySyntax
	default:
		return CategoryOther
	}
}
