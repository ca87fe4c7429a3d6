package api

import (
	"net/http"

	"github.com/querybridge/querybridge/internal/assistant"
	"github.com/querybridge/querybridge/internal/auth"
	"github.com/querybridge/querybridge/internal/session"
)

type connectRequest struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	Account       string `json:"account"`
	Database      string `json:"database"`
	Engine        string `json:"engine"`
	SkipDiscovery bool   `json:"skip_discovery"`
}

var discoveryFailed = errorMapping{http.StatusBadGateway, "SCHEMA_DISCOVERY_FAILED", true}

func handleConnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid session request body", false, map[string]any{"details": err.Error()})
		return
	}

	created, err := deps.Assistant.Connect(r.Context(), auth.OwnerFromContext(r.Context()), assistant.ConnectRequest{
		Target: session.Target{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			Account:      req.Account,
			Database:     req.Database,
			Engine:       req.Engine,
		},
		SkipDiscovery: req.SkipDiscovery,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err, discoveryFailed, nil)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	current, err := deps.Assistant.Session(r.PathValue("id"), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeServiceError(r.Context(), w, err, errorMapping{http.StatusInternalServerError, "SESSION_ERROR", true}, nil)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func handleDisconnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := deps.Assistant.Disconnect(r.Context(), r.PathValue("id"), auth.OwnerFromContext(r.Context())); err != nil {
		writeServiceError(r.Context(), w, err, errorMapping{http.StatusInternalServerError, "SESSION_ERROR", true}, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	current, err := deps.Assistant.Session(r.PathValue("id"), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeServiceError(r.Context(), w, err, errorMapping{http.StatusInternalServerError, "SESSION_ERROR", true}, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     current.ID,
		"database":       current.Target.Database,
		"tables":         current.Tables,
		"schema_context": current.SchemaContext,
		"fallback":       current.SchemaContext == "",
	})
}
