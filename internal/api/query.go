package api

import (
	"net/http"
	"strings"

	"github.com/querybridge/querybridge/internal/auth"
	"github.com/querybridge/querybridge/internal/nl2sql"
	"github.com/querybridge/querybridge/internal/query"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Backend   string         `json:"backend"`
	Columns   []string       `json:"columns"`
	Rows      [][]any        `json:"rows"`
	RowCount  int            `json:"row_count"`
	Truncated bool           `json:"truncated"`
	Stats     map[string]any `json:"stats"`
}

var executionFailed = errorMapping{http.StatusBadRequest, "QUERY_EXECUTION_FAILED", false}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if req.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must not be negative", false, nil)
		return
	}

	result, err := deps.Assistant.Execute(r.Context(), r.PathValue("id"), auth.OwnerFromContext(r.Context()), req.SQL, req.RowLimit)
	if err != nil {
		writeServiceError(r.Context(), w, err, executionFailed, nil)
		return
	}
	writeJSON(w, http.StatusOK, newQueryResponse(result))
}

func newQueryResponse(result query.Result) queryResponse {
	columns := result.Columns
	if len(columns) == 0 {
		columns = query.ColumnsOf(result.Rows)
		result.Columns = columns
	}
	return queryResponse{
		Backend:   result.Backend,
		Columns:   columns,
		Rows:      result.Values(),
		RowCount:  result.RowCount(),
		Truncated: result.Truncated,
		Stats: map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
		},
	}
}

type validateRequest struct {
	SQL string `json:"sql"`
}

func handleValidate(_ Dependencies, w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid validate request body", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, nl2sql.Validate(req.SQL))
}
