package api

import (
	"net/http"
	"strings"

	"github.com/querybridge/querybridge/internal/auth"
	"github.com/querybridge/querybridge/internal/nl2sql"
)

type questionRequest struct {
	Question string `json:"question"`
	RowLimit int    `json:"row_limit"`
}

type askResponse struct {
	Conversion nl2sql.Result  `json:"conversion"`
	Result     *queryResponse `json:"result,omitempty"`
}

var conversionFailed = errorMapping{http.StatusBadGateway, "TRANSLATE_FAILED", true}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (questionRequest, bool) {
	var req questionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return questionRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return questionRequest{}, false
	}
	return req, true
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	result, err := deps.Assistant.Convert(r.Context(), r.PathValue("id"), auth.OwnerFromContext(r.Context()), req.Question)
	if err != nil {
		writeServiceError(r.Context(), w, err, conversionFailed, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAsk answers 200 only when both steps succeed. An execution failure
// keeps the generated SQL in the error context.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	answer, err := deps.Assistant.Ask(r.Context(), r.PathValue("id"), auth.OwnerFromContext(r.Context()), req.Question, req.RowLimit)
	if err != nil {
		var extra map[string]any
		if answer.Conversion.SQL != "" {
			extra = map[string]any{"sql": answer.Conversion.SQL, "explanation": answer.Conversion.Explanation}
		}
		writeServiceError(r.Context(), w, err, executionFailed, extra)
		return
	}
	result := newQueryResponse(answer.Result)
	writeJSON(w, http.StatusOK, askResponse{Conversion: answer.Conversion, Result: &result})
}

func handleEngineTime(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	timing, err := deps.Assistant.EngineTime(r.Context(), r.PathValue("id"), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeServiceError(r.Context(), w, err, errorMapping{http.StatusBadGateway, "ENGINE_TIME_FAILED", true}, nil)
		return
	}
	writeJSON(w, http.StatusOK, timing)
}
