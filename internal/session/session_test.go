package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/querybridge/querybridge/internal/nl2sql"
	"github.com/querybridge/querybridge/internal/query"
	"github.com/querybridge/querybridge/internal/schema"
)

func TestCreateAndGet(t *testing.T) {
	store := NewStore(0)
	tables := []schema.Table{{Name: "ad_events", Type: "TABLE"}}
	created := store.Create("analyst", query.BackendFirebolt, Target{Account: "acme"}, tables, "## Table: ad_events (TABLE)")
	if created.ID == "" {
		t.Fatal("expected generated session id")
	}

	got, err := store.Get(created.ID, "analyst")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Target.Account != "acme" || got.SchemaContext == "" || len(got.Tables) != 1 {
		t.Fatalf("Get() = %+v", got)
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d", store.Len())
	}
}

func TestGetHidesOtherOwners(t *testing.T) {
	store := NewStore(0)
	created := store.Create("analyst", query.BackendDuckDB, Target{}, nil, "")
	if _, err := store.Get(created.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := store.Disconnect(created.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Disconnect() error = %v, want ErrNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewStore(0)
	created := store.Create("analyst", query.BackendDuckDB, Target{}, []schema.Table{{Name: "campaigns"}}, "")
	created.Tables[0].Name = "mutated"

	got, err := store.Get(created.ID, "analyst")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Tables[0].Name != "campaigns" {
		t.Fatalf("stored session was mutated through a copy: %+v", got.Tables)
	}
}

func TestResetClearsResultsButKeepsSchema(t *testing.T) {
	store := NewStore(0)
	created := store.Create("analyst", query.BackendDuckDB, Target{}, nil, "schema text")
	_, err := store.Update(created.ID, "analyst", func(s *Session) {
		s.Conversion = &nl2sql.Result{SQL: "SELECT 1 AS one"}
		s.LastResult = &query.Result{Rows: []query.Record{{"one": 1}}}
		s.LastExecution = &Execution{SQL: "SELECT 1 AS one"}
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	reset, err := store.Reset(created.ID, "analyst")
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if reset.Conversion != nil || reset.LastResult != nil || reset.LastExecution != nil {
		t.Fatalf("Reset() left results: %+v", reset)
	}
	if reset.SchemaContext != "schema text" {
		t.Fatalf("SchemaContext = %q", reset.SchemaContext)
	}
}

func TestRecordTrimsHistory(t *testing.T) {
	store := NewStore(2)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	created := store.Create("analyst", query.BackendDuckDB, Target{}, nil, "")

	for _, question := range []string{"q1", "q2", "q3"} {
		if err := store.Record(created.ID, "analyst", HistoryEntry{Action: "translate", Question: question}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	got, err := store.Get(created.ID, "analyst")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.History) != 2 || got.History[0].Question != "q2" || got.History[1].Question != "q3" {
		t.Fatalf("History = %+v", got.History)
	}
	if !got.History[0].At.Equal(base) {
		t.Fatalf("History[0].At = %s", got.History[0].At)
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	store := NewStore(0)
	created := store.Create("analyst", query.BackendDuckDB, Target{}, nil, "")
	if err := store.Disconnect(created.ID, "analyst"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if _, err := store.Get(created.ID, "analyst"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := store.Disconnect(created.ID, "analyst"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Disconnect() error = %v", err)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	store := NewStore(1000)
	created := store.Create("analyst", query.BackendDuckDB, Target{}, nil, "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Record(created.ID, "analyst", HistoryEntry{Action: "query"})
		}()
	}
	wg.Wait()

	got, err := store.Get(created.ID, "analyst")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.History) != 50 {
		t.Fatalf("len(History) = %d", len(got.History))
	}
}
