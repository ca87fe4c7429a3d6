package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/querybridge/querybridge/internal/enginetime"
	"github.com/querybridge/querybridge/internal/nl2sql"
	"github.com/querybridge/querybridge/internal/query"
	"github.com/querybridge/querybridge/internal/schema"
)

var ErrNotFound = errors.New("session not found")

const DefaultMaxHistory = 50

// Target is the Firebolt connection a session was opened with. Empty fields
// fall back to the server's configured values.
type Target struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"-"`
	Account      string `json:"account,omitempty"`
	Database     string `json:"database,omitempty"`
	Engine       string `json:"engine,omitempty"`
}

type Execution struct {
	SQL        string        `json:"sql"`
	ExecutedAt time.Time     `json:"executed_at"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	RowCount   int           `json:"row_count"`
	Truncated  bool          `json:"truncated"`
}

type HistoryEntry struct {
	At        time.Time `json:"at"`
	Action    string    `json:"action"`
	Question  string    `json:"question,omitempty"`
	SQL       string    `json:"sql,omitempty"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
	RowCount  int       `json:"row_count,omitempty"`
}

// Session is everything one user has accumulated since connecting. Store
// hands out copies; mutation goes through Store.Update.
type Session struct {
	ID            string             `json:"id"`
	Owner         string             `json:"owner"`
	Backend       string             `json:"backend"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Target        Target             `json:"target"`
	Tables        []schema.Table     `json:"tables,omitempty"`
	SchemaContext string             `json:"-"`
	LastQuestion  string             `json:"last_question,omitempty"`
	Conversion    *nl2sql.Result     `json:"conversion,omitempty"`
	LastResult    *query.Result      `json:"-"`
	LastExecution *Execution         `json:"last_execution,omitempty"`
	EngineTiming  *enginetime.Timing `json:"engine_timing,omitempty"`
	History       []HistoryEntry     `json:"history"`
}

// ClearResults drops everything derived from the previous question.
func (s *Session) ClearResults() {
	s.Conversion = nil
	s.LastResult = nil
	s.LastExecution = nil
	s.EngineTiming = nil
}

func (s Session) clone() Session {
	s.Tables = slices.Clone(s.Tables)
	s.History = slices.Clone(s.History)
	return s
}

type Store struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	maxHistory int
	now        func() time.Time
}

func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		sessions:   map[string]*Session{},
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

func (s *Store) Create(owner, backend string, target Target, tables []schema.Table, schemaContext string) Session {
	now := s.now().UTC()
	created := &Session{
		ID:            uuid.NewString(),
		Owner:         owner,
		Backend:       backend,
		CreatedAt:     now,
		UpdatedAt:     now,
		Target:        target,
		Tables:        slices.Clone(tables),
		SchemaContext: schemaContext,
		History:       []HistoryEntry{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[created.ID] = created
	return created.clone()
}

// Get returns a copy of the session. Sessions owned by someone else are
// reported as missing.
func (s *Store) Get(id, owner string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.lookup(id, owner)
	if err != nil {
		return Session{}, err
	}
	return current.clone(), nil
}

func (s *Store) Update(id, owner string, fn func(*Session)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.lookup(id, owner)
	if err != nil {
		return Session{}, err
	}
	fn(current)
	current.UpdatedAt = s.now().UTC()
	return current.clone(), nil
}

func (s *Store) Reset(id, owner string) (Session, error) {
	return s.Update(id, owner, (*Session).ClearResults)
}

// Record appends entry to the session history, dropping the oldest entries
// beyond the configured maximum.
func (s *Store) Record(id, owner string, entry HistoryEntry) error {
	_, err := s.Update(id, owner, func(current *Session) {
		if entry.At.IsZero() {
			entry.At = s.now().UTC()
		}
		current.History = append(current.History, entry)
		if overflow := len(current.History) - s.maxHistory; overflow > 0 {
			current.History = slices.Delete(current.History, 0, overflow)
		}
	})
	return err
}

func (s *Store) Disconnect(id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(id, owner); err != nil {
		return err
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) lookup(id, owner string) (*Session, error) {
	current, ok := s.sessions[id]
	if !ok || current.Owner != owner {
		return nil, ErrNotFound
	}
	return current, nil
}
