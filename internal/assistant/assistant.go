package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querybridge/querybridge/internal/enginetime"
	"github.com/querybridge/querybridge/internal/nl2sql"
	"github.com/querybridge/querybridge/internal/observability"
	"github.com/querybridge/querybridge/internal/query"
	"github.com/querybridge/querybridge/internal/schema"
	"github.com/querybridge/querybridge/internal/session"
)

var (
	ErrSQLRequired       = errors.New("sql is required")
	ErrNoExecution       = errors.New("session has no executed query")
	ErrTimingUnsupported = errors.New("engine timing is only available on firebolt")
)

const (
	ActionTranslate = "translate"
	ActionQuery     = "query"
)

type Options struct {
	Sessions        *session.Store
	Engines         EngineFactory
	Translator      nl2sql.Translator
	SchemaName      string
	DefaultRowLimit int
	QueryTimeout    time.Duration
	Logger          *slog.Logger
}

// Service runs the ask flow for connected sessions: discover schema on
// connect, translate questions with the session schema, execute SQL on the
// session's engine and look up engine-side timing afterwards.
type Service struct {
	sessions     *session.Store
	engines      EngineFactory
	translator   nl2sql.Translator
	schemaName   string
	rowLimit     int
	queryTimeout time.Duration
	logger       *slog.Logger
}

func New(opts Options) (*Service, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if opts.Engines == nil {
		return nil, fmt.Errorf("engine factory is required")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if opts.SchemaName == "" {
		opts.SchemaName = schema.DefaultSchemaName
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 90 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		sessions:     opts.Sessions,
		engines:      opts.Engines,
		translator:   opts.Translator,
		schemaName:   opts.SchemaName,
		rowLimit:     opts.DefaultRowLimit,
		queryTimeout: opts.QueryTimeout,
		logger:       opts.Logger,
	}, nil
}

func (s *Service) Backend() string {
	return s.engines.Backend()
}

type ConnectRequest struct {
	Target session.Target
	// SkipDiscovery opens the session with the built-in fallback schema.
	SkipDiscovery bool
}

// Connect discovers the target's schema and opens a session for owner. No
// session is stored when discovery fails.
func (s *Service) Connect(ctx context.Context, owner string, req ConnectRequest) (session.Session, error) {
	target := s.engines.Resolve(req.Target)

	var (
		tables        []schema.Table
		schemaContext string
	)
	if !req.SkipDiscovery {
		engine, err := s.engines.EngineFor(target)
		if err != nil {
			return session.Session{}, err
		}
		discoverCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
		tables, err = schema.Discover(discoverCtx, engine, s.schemaName)
		if err != nil {
			s.logger.WarnContext(ctx, "schema discovery failed",
				slog.String("backend", s.engines.Backend()),
				slog.String("error", err.Error()),
			)
			return session.Session{}, err
		}
		schemaContext = schema.Format(target.Database, tables)
	}

	created := s.sessions.Create(owner, s.engines.Backend(), target, tables, schemaContext)
	observability.SetActiveSessions(s.sessions.Len())
	s.logger.InfoContext(ctx, "session connected",
		slog.String("session_id", created.ID),
		slog.String("backend", created.Backend),
		slog.Int("tables", len(tables)),
	)
	return created, nil
}

func (s *Service) Session(id, owner string) (session.Session, error) {
	return s.sessions.Get(id, owner)
}

func (s *Service) Disconnect(ctx context.Context, id, owner string) error {
	if err := s.sessions.Disconnect(id, owner); err != nil {
		return err
	}
	observability.SetActiveSessions(s.sessions.Len())
	s.logger.InfoContext(ctx, "session disconnected",
		slog.String("session_id", id),
	)
	return nil
}

// Convert translates question with the session's schema. A new question
// clears the previous conversion and results.
func (s *Service) Convert(ctx context.Context, id, owner, question string) (nl2sql.Result, error) {
	current, err := s.sessions.Reset(id, owner)
	if err != nil {
		return nl2sql.Result{}, err
	}

	start := time.Now()
	result, err := s.translator.Translate(ctx, nl2sql.Request{
		Question:      question,
		SchemaContext: current.SchemaContext,
	})
	observability.ObserveConversion(err, time.Since(start))

	entry := session.HistoryEntry{Action: ActionTranslate, Question: question, Succeeded: err == nil}
	if err != nil {
		entry.Error = err.Error()
		s.logger.WarnContext(ctx, "translation failed",
			slog.String("session_id", id),
			slog.String("kind", string(nl2sql.KindOf(err))),
		)
	} else {
		entry.SQL = result.SQL
	}
	if recordErr := s.sessions.Record(id, owner, entry); recordErr != nil {
		return nl2sql.Result{}, recordErr
	}
	if err != nil {
		return nl2sql.Result{}, err
	}

	if _, err := s.sessions.Update(id, owner, func(current *session.Session) {
		current.LastQuestion = question
		current.Conversion = &result
	}); err != nil {
		return nl2sql.Result{}, err
	}
	return result, nil
}

// Execute runs sqlText on the session's engine. rowLimit <= 0 uses the
// configured default.
func (s *Service) Execute(ctx context.Context, id, owner, sqlText string, rowLimit int) (query.Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Result{}, ErrSQLRequired
	}
	current, err := s.sessions.Get(id, owner)
	if err != nil {
		return query.Result{}, err
	}
	engine, err := s.engines.EngineFor(current.Target)
	if err != nil {
		return query.Result{}, err
	}
	if rowLimit <= 0 {
		rowLimit = s.rowLimit
	}

	execCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	executedAt := time.Now()
	result, err := engine.Execute(execCtx, query.Request{SQL: sqlText, RowLimit: rowLimit})
	elapsed := time.Since(executedAt)
	observability.ObserveExecution(current.Backend, result.RowCount(), err, elapsed)

	entry := session.HistoryEntry{Action: ActionQuery, SQL: sqlText, Succeeded: err == nil, RowCount: result.RowCount()}
	if err != nil {
		entry.Error = err.Error()
		s.logger.WarnContext(ctx, "query failed",
			slog.String("session_id", id),
			slog.String("backend", current.Backend),
			slog.String("error", err.Error()),
		)
	}
	if recordErr := s.sessions.Record(id, owner, entry); recordErr != nil {
		return query.Result{}, recordErr
	}
	if err != nil {
		return query.Result{}, err
	}

	if _, err := s.sessions.Update(id, owner, func(current *session.Session) {
		current.LastResult = &result
		current.LastExecution = &session.Execution{
			SQL:        sqlText,
			ExecutedAt: executedAt.UTC(),
			Elapsed:    elapsed,
			RowCount:   result.RowCount(),
			Truncated:  result.Truncated,
		}
		current.EngineTiming = nil
	}); err != nil {
		return query.Result{}, err
	}
	return result, nil
}

type AskResult struct {
	Conversion nl2sql.Result
	Result     query.Result
}

// Ask converts question and executes the generated SQL. When execution fails
// the conversion is still returned alongside the error.
func (s *Service) Ask(ctx context.Context, id, owner, question string, rowLimit int) (AskResult, error) {
	conversion, err := s.Convert(ctx, id, owner, question)
	if err != nil {
		return AskResult{}, err
	}
	result, err := s.Execute(ctx, id, owner, conversion.SQL, rowLimit)
	if err != nil {
		return AskResult{Conversion: conversion}, err
	}
	return AskResult{Conversion: conversion, Result: result}, nil
}

// EngineTime looks up the engine-side duration of the session's last executed
// statement in the Firebolt query history.
func (s *Service) EngineTime(ctx context.Context, id, owner string) (enginetime.Timing, error) {
	current, err := s.sessions.Get(id, owner)
	if err != nil {
		return enginetime.Timing{}, err
	}
	if current.LastExecution == nil {
		return enginetime.Timing{}, ErrNoExecution
	}
	if current.Backend != query.BackendFirebolt {
		return enginetime.Timing{}, ErrTimingUnsupported
	}
	engine, err := s.engines.EngineFor(current.Target)
	if err != nil {
		return enginetime.Timing{}, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	last := current.LastExecution
	timing, err := enginetime.New(engine).Find(lookupCtx, last.SQL, last.ExecutedAt, last.Elapsed)
	if err != nil {
		return enginetime.Timing{}, err
	}

	if _, err := s.sessions.Update(id, owner, func(current *session.Session) {
		current.EngineTiming = &timing
	}); err != nil {
		return enginetime.Timing{}, err
	}
	return timing, nil
}
