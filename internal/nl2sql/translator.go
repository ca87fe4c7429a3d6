package nl2sql

import (
	"context"
	"errors"
	"fmt"
)

type Request struct {
	Question      string `json:"question"`
	SchemaContext string `json:"schema_context,omitempty"`
}

// Result is a successful conversion. Confidence is whatever score the model
// reported and is not a calibrated probability.
type Result struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
	Assumptions []string `json:"assumptions"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	RawResponse string   `json:"-"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type ErrorKind string

const (
	KindModelInvocation        ErrorKind = "ModelInvocationError"
	KindUnparsableResponse     ErrorKind = "UnparsableResponse"
	KindMissingSQLField        ErrorKind = "MissingSqlField"
	KindNonAnalyticalStatement ErrorKind = "NonAnalyticalStatement"
	KindValidation             ErrorKind = "ValidationError"
	KindUnknown                ErrorKind = "Unknown"
)

// Error is the failure arm of a conversion. RawOutput holds the (possibly
// truncated) model text when one was received.
type Error struct {
	Kind      ErrorKind
	Message   string
	RawOutput string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies any error returned by this package. Errors that did not
// originate here are reported as KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr.Kind
	}
	return KindUnknown
}
