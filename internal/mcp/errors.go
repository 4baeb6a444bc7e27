package mcp

import (
	"errors"
	"fmt"

	"github.com/docweave/docweave/internal/checkpoint"
	werrors "github.com/docweave/docweave/internal/errors"
)

// JSON-RPC 2.0 error codes used by the MCP protocol.
const (
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeResourceNotFound = -32002
)

// ProtocolError is a JSON-RPC error with a protocol code. The SDK
// serializes the Error() string; the code is kept for tests and logs.
type ProtocolError struct {
	Code    int
	Message string
	cause   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.cause
}

// NewInvalidParamsError reports malformed tool input.
func NewInvalidParamsError(message string) *ProtocolError {
	return &ProtocolError{Code: CodeInvalidParams, Message: message}
}

// NewNotFoundError reports a missing repository, index, or checkpoint.
func NewNotFoundError(message string) *ProtocolError {
	return &ProtocolError{Code: CodeResourceNotFound, Message: message}
}

// MapError converts internal errors to protocol errors so clients see a
// stable code instead of wrapped Go error chains.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, checkpoint.ErrNotFound) {
		return &ProtocolError{Code: CodeResourceNotFound, Message: err.Error(), cause: err}
	}
	switch werrors.GetCategory(err) {
	case werrors.CategoryValidation:
		return &ProtocolError{Code: CodeInvalidParams, Message: err.Error(), cause: err}
	case werrors.CategoryNotFound:
		return &ProtocolError{Code: CodeResourceNotFound, Message: err.Error(), cause: err}
	default:
		return &ProtocolError{Code: CodeInternalError, Message: err.Error(), cause: err}
	}
}
