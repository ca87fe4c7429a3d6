package enginetime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/querybridge/querybridge/internal/query"
)

const (
	DefaultWindow = 5 * time.Minute
	historyLimit  = 50
)

// Timing compares the engine's own execution time with the wall time the
// client observed for the same statement.
type Timing struct {
	Found         bool    `json:"found"`
	DurationUS    float64 `json:"duration_us,omitempty"`
	DurationMS    float64 `json:"duration_ms,omitempty"`
	TotalMS       float64 `json:"total_ms,omitempty"`
	OverheadMS    float64 `json:"overhead_ms,omitempty"`
	EfficiencyPct float64 `json:"efficiency_pct,omitempty"`
	StartTime     string  `json:"start_time,omitempty"`
}

type Lookup struct {
	Engine query.Engine
	Window time.Duration
}

func New(engine query.Engine) *Lookup {
	return &Lookup{Engine: engine, Window: DefaultWindow}
}

// Find looks for sqlText among statements that ended successfully after
// executedAt minus the window. A miss is reported as Found=false.
func (l *Lookup) Find(ctx context.Context, sqlText string, executedAt time.Time, clientElapsed time.Duration) (Timing, error) {
	if l.Engine == nil {
		return Timing{}, fmt.Errorf("engine is required")
	}
	target := normalize(sqlText)
	if target == "" {
		return Timing{}, fmt.Errorf("sql is required")
	}
	window := l.Window
	if window <= 0 {
		window = DefaultWindow
	}

	res, err := l.Engine.Execute(ctx, query.Request{SQL: historySQL(executedAt.Add(-window))})
	if err != nil {
		return Timing{}, fmt.Errorf("read engine query history: %w", err)
	}

	for _, row := range res.Rows {
		text, _ := row["query_text"].(string)
		if normalize(text) != target {
			continue
		}
		durationUS, ok := toFloat(row["duration_us"])
		if !ok {
			continue
		}
		return compute(durationUS, clientElapsed, fmt.Sprint(row["start_time"])), nil
	}
	return Timing{Found: false}, nil
}

func historySQL(since time.Time) string {
	return fmt.Sprintf(`SELECT duration_us, query_text, start_time
FROM information_schema.engine_user_query_history
WHERE status = 'ENDED_SUCCESSFULLY'
  AND start_time >= '%s'
ORDER BY start_time DESC
LIMIT %d`, since.UTC().Format("2006-01-02 15:04:05"), historyLimit)
}

func compute(durationUS float64, clientElapsed time.Duration, startTime string) Timing {
	durationMS := durationUS / 1000.0
	totalMS := float64(clientElapsed) / float64(time.Millisecond)
	timing := Timing{
		Found:      true,
		DurationUS: durationUS,
		DurationMS: durationMS,
		TotalMS:    totalMS,
		OverheadMS: max(0, totalMS-durationMS),
		StartTime:  startTime,
	}
	if totalMS > 0 {
		timing.EfficiencyPct = durationMS / totalMS * 100
	}
	return timing
}

func normalize(sqlText string) string {
	return strings.TrimRight(strings.Join(strings.Fields(sqlText), " "), "; ")
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int64:
		return float64(typed), true
	case int:
		return float64(typed), true
	case float64:
		return typed, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
