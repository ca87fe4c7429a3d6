package enginetime

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/querybridge/querybridge/internal/query"
)

type fakeEngine struct {
	rows    []query.Record
	err     error
	lastSQL string
}

func (f *fakeEngine) Execute(_ context.Context, req query.Request) (query.Result, error) {
	f.lastSQL = req.SQL
	if f.err != nil {
		return query.Result{}, f.err
	}
	return query.Result{Rows: f.rows}, nil
}

func TestFindMatchesNormalizedText(t *testing.T) {
	engine := &fakeEngine{rows: []query.Record{
		{"query_text": "SELECT 2", "duration_us": int64(1), "start_time": "2024-11-01 10:00:02"},
		{"query_text": "SELECT  country,\n COUNT(*) FROM ad_events GROUP BY country;", "duration_us": int64(150000), "start_time": "2024-11-01 10:00:01"},
	}}
	executedAt := time.Date(2024, 11, 1, 10, 0, 5, 0, time.UTC)

	timing, err := New(engine).Find(context.Background(), "SELECT country, COUNT(*) FROM ad_events GROUP BY country", executedAt, 600*time.Millisecond)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if !timing.Found || timing.DurationMS != 150 {
		t.Fatalf("Find() = %+v", timing)
	}
	if timing.OverheadMS != 450 || math.Abs(timing.EfficiencyPct-25) > 1e-9 {
		t.Fatalf("overhead/efficiency = %v/%v", timing.OverheadMS, timing.EfficiencyPct)
	}
	if !strings.Contains(engine.lastSQL, "start_time >= '2024-11-01 09:55:05'") {
		t.Fatalf("history sql = %s", engine.lastSQL)
	}
	if !strings.Contains(engine.lastSQL, "status = 'ENDED_SUCCESSFULLY'") {
		t.Fatalf("history sql = %s", engine.lastSQL)
	}
}

func TestFindNoMatchIsNotAnError(t *testing.T) {
	engine := &fakeEngine{rows: []query.Record{{"query_text": "SELECT 1", "duration_us": "10"}}}
	timing, err := New(engine).Find(context.Background(), "SELECT 2", time.Now(), time.Second)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if timing.Found {
		t.Fatalf("Find() = %+v", timing)
	}
}

func TestFindOverheadNeverNegative(t *testing.T) {
	engine := &fakeEngine{rows: []query.Record{{"query_text": "SELECT 1", "duration_us": 5000.0}}}
	timing, err := New(engine).Find(context.Background(), "SELECT 1", time.Now(), 2*time.Millisecond)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if timing.OverheadMS != 0 {
		t.Fatalf("OverheadMS = %v", timing.OverheadMS)
	}
}

func TestFindEngineError(t *testing.T) {
	_, err := New(&fakeEngine{err: errors.New("connect failed")}).Find(context.Background(), "SELECT 1", time.Now(), time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
}
