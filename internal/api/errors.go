package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/querybridge/querybridge/internal/assistant"
	"github.com/querybridge/querybridge/internal/bridge"
	"github.com/querybridge/querybridge/internal/nl2sql"
	"github.com/querybridge/querybridge/internal/session"
)

type errorMapping struct {
	status    int
	code      string
	retryable bool
}

var bridgeErrors = map[bridge.ErrorKind]errorMapping{
	bridge.KindMissingConfiguration: {http.StatusPreconditionFailed, "MISSING_CONFIGURATION", false},
	bridge.KindBridgeUnavailable:    {http.StatusServiceUnavailable, "BRIDGE_UNAVAILABLE", true},
	bridge.KindSessionInitFailed:    {http.StatusBadGateway, "SESSION_INIT_FAILED", true},
	bridge.KindProofNotFound:        {http.StatusBadGateway, "PROOF_NOT_FOUND", true},
	bridge.KindConnectFailed:        {http.StatusBadGateway, "CONNECT_FAILED", false},
	bridge.KindQueryFailed:          {http.StatusBadRequest, "QUERY_FAILED", false},
	bridge.KindUnknown:              {http.StatusInternalServerError, "BRIDGE_ERROR", true},
}

var conversionErrors = map[nl2sql.ErrorKind]errorMapping{
	nl2sql.KindModelInvocation:        {http.StatusBadGateway, "MODEL_INVOCATION_FAILED", true},
	nl2sql.KindUnparsableResponse:     {http.StatusUnprocessableEntity, "UNPARSABLE_RESPONSE", true},
	nl2sql.KindMissingSQLField:        {http.StatusUnprocessableEntity, "MISSING_SQL_FIELD", true},
	nl2sql.KindNonAnalyticalStatement: {http.StatusUnprocessableEntity, "NON_ANALYTICAL_STATEMENT", false},
	nl2sql.KindValidation:             {http.StatusBadRequest, "VALIDATION_ERROR", false},
	nl2sql.KindUnknown:                {http.StatusInternalServerError, "CONVERSION_ERROR", true},
}

// writeServiceError maps a failure from the assistant to a stable HTTP
// status and error code. Errors no mapping knows about get fallback. extra is
// merged into the error context.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, fallback errorMapping, extra map[string]any) {
	var (
		bridgeErr     *bridge.Error
		conversionErr *nl2sql.Error
	)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, assistant.ErrSQLRequired):
		writeError(ctx, w, http.StatusBadRequest, "SQL_REQUIRED", err.Error(), false, nil)
	case errors.Is(err, assistant.ErrNoExecution):
		writeError(ctx, w, http.StatusConflict, "NO_EXECUTION", err.Error(), false, nil)
	case errors.Is(err, assistant.ErrTimingUnsupported):
		writeError(ctx, w, http.StatusNotImplemented, "TIMING_UNSUPPORTED", err.Error(), false, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", "operation timed out", true, extra)
	case errors.As(err, &bridgeErr):
		mapping := bridgeErrors[bridgeErr.Kind]
		if mapping.status == 0 {
			mapping = bridgeErrors[bridge.KindUnknown]
		}
		writeError(ctx, w, mapping.status, mapping.code, bridgeErr.Message, mapping.retryable, withExtra(extra, map[string]any{
			"kind": string(bridgeErr.Kind),
		}))
	case errors.As(err, &conversionErr):
		mapping := conversionErrors[conversionErr.Kind]
		if mapping.status == 0 {
			mapping = conversionErrors[nl2sql.KindUnknown]
		}
		details := map[string]any{"kind": string(conversionErr.Kind)}
		if conversionErr.RawOutput != "" {
			details["raw_output"] = conversionErr.RawOutput
		}
		writeError(ctx, w, mapping.status, mapping.code, conversionErr.Message, mapping.retryable, withExtra(extra, details))
	default:
		writeError(ctx, w, fallback.status, fallback.code, err.Error(), fallback.retryable, extra)
	}
}

func withExtra(extra, details map[string]any) map[string]any {
	for key, value := range extra {
		details[key] = value
	}
	return details
}
