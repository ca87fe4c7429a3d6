package bridge

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMissingConfiguration ErrorKind = "MissingConfiguration"
	KindBridgeUnavailable    ErrorKind = "BridgeUnavailable"
	KindSessionInitFailed    ErrorKind = "SessionInitFailed"
	KindProofNotFound        ErrorKind = "ProofNotFound"
	KindConnectFailed        ErrorKind = "ConnectFailed"
	KindQueryFailed          ErrorKind = "QueryFailed"
	KindUnknown              ErrorKind = "Unknown"
)

// Error is the failure arm of an execution. For ConnectFailed and
// QueryFailed, Message is the tool's own error text, relayed unchanged.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
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

func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Kind
	}
	return KindUnknown
}
