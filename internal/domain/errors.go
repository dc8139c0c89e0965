package domain

import "fmt"

// Error codes surfaced by every top-level operation.
const (
	CodeNotConnected         = "NOT_CONNECTED"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeNoActiveSession      = "NO_ACTIVE_SESSION"
	CodeExternalToolFailure  = "EXTERNAL_TOOL_FAILURE"
	CodePersistenceFailure   = "PERSISTENCE_FAILURE"
	CodeInternalError        = "INTERNAL_ERROR"
)

type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func NotConnected(identifier string) *Error {
	return &Error{
		Code:    CodeNotConnected,
		Message: fmt.Sprintf("device %q is not connected", identifier),
	}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func UnsupportedOperation(format string, args ...any) *Error {
	return &Error{Code: CodeUnsupportedOperation, Message: fmt.Sprintf(format, args...)}
}

func NoActiveSession(identifier string) *Error {
	return &Error{
		Code:    CodeNoActiveSession,
		Message: fmt.Sprintf("no active pairing session for %q; call pair first", identifier),
	}
}

// ExternalToolFailure carries the captured error stream of a spawned
// process under Details["stderr"].
func ExternalToolFailure(tool string, exitCode int, stderr string) *Error {
	return &Error{
		Code:    CodeExternalToolFailure,
		Message: fmt.Sprintf("%s failed (exit %d)", tool, exitCode),
		Details: map[string]any{
			"tool":   tool,
			"exit":   exitCode,
			"stderr": stderr,
		},
	}
}

func PersistenceFailure(err error) *Error {
	return &Error{
		Code:    CodePersistenceFailure,
		Message: fmt.Sprintf("failed to persist credentials: %v", err),
	}
}

func Internal(format string, args ...any) *Error {
	return &Error{Code: CodeInternalError, Message: fmt.Sprintf(format, args...)}
}
