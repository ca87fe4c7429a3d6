package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querybridge/querybridge/internal/assistant"
	"github.com/querybridge/querybridge/internal/auth"
	"github.com/querybridge/querybridge/internal/config"
	"github.com/querybridge/querybridge/internal/enginetime"
	"github.com/querybridge/querybridge/internal/nl2sql"
	"github.com/querybridge/querybridge/internal/observability"
	"github.com/querybridge/querybridge/internal/query"
	"github.com/querybridge/querybridge/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

// Assistant is the session workflow the HTTP surface drives.
type Assistant interface {
	Backend() string
	Connect(ctx context.Context, owner string, req assistant.ConnectRequest) (session.Session, error)
	Session(id, owner string) (session.Session, error)
	Disconnect(ctx context.Context, id, owner string) error
	Convert(ctx context.Context, id, owner, question string) (nl2sql.Result, error)
	Execute(ctx context.Context, id, owner, sqlText string, rowLimit int) (query.Result, error)
	Ask(ctx context.Context, id, owner, question string, rowLimit int) (assistant.AskResult, error)
	EngineTime(ctx context.Context, id, owner string) (enginetime.Timing, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
}

type route struct {
	pattern string
	role    string
	handle  func(Dependencies, http.ResponseWriter, *http.Request)
	// standalone routes work without an assistant.
	standalone bool
}

var protectedRoutes = []route{
	{pattern: "POST /v1/sessions", role: auth.RoleQueryReader, handle: handleConnect},
	{pattern: "GET /v1/sessions/{id}", role: auth.RoleQueryReader, handle: handleGetSession},
	{pattern: "DELETE /v1/sessions/{id}", role: auth.RoleQueryReader, handle: handleDisconnect},
	{pattern: "GET /v1/sessions/{id}/schema", role: auth.RoleQueryReader, handle: handleSchema},
	{pattern: "POST /v1/sessions/{id}/translate", role: auth.RoleQueryReader, handle: handleTranslate},
	{pattern: "POST /v1/sessions/{id}/query", role: auth.RoleSQLRunner, handle: handleQuery},
	{pattern: "POST /v1/sessions/{id}/ask", role: auth.RoleQueryReader, handle: handleAsk},
	{pattern: "POST /v1/sessions/{id}/engine-time", role: auth.RoleQueryReader, handle: handleEngineTime},
	{pattern: "POST /v1/sql/validate", role: auth.RoleQueryReader, handle: handleValidate, standalone: true},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok", "service": cfg.Service.Name}
		if deps.Assistant != nil {
			body["backend"] = deps.Assistant.Backend()
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	for _, rt := range protectedRoutes {
		handle, standalone := rt.handle, rt.standalone
		protected.Handle(rt.pattern, auth.RequireRole(rt.role, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.Assistant == nil && !standalone {
				writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
				return
			}
			handle(deps, w, r)
		})))
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range protectedRoutes {
		mux.Handle(rt.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckFireboltConfig fails readiness when the server holds no Firebolt
// credentials of its own.
func CheckFireboltConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Engine.Backend != query.BackendFirebolt {
			return nil
		}
		if cfg.Firebolt.ClientID == "" || cfg.Firebolt.ClientSecret == "" {
			return errors.New("firebolt credentials are not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Engine.Backend != query.BackendDuckDB {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CheckModelConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.Provider == config.ProviderAnthropic && cfg.AI.APIKey == "" {
			return errors.New("anthropic api key is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// decodeBody decodes a JSON request body. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if decoder.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
