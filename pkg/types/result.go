package types

// Error codes surfaced via CommandResult.Error.Code.
const (
	// ErrCodeMissingCommand indicates a dispatch with no command name.
	ErrCodeMissingCommand = "MISSING_COMMAND"

	// ErrCodeNoHandler indicates no handler is registered for the name.
	ErrCodeNoHandler = "NO_HANDLER"

	// ErrCodeLowConfidence indicates the intent confidence fell below the
	// processing threshold; the caller should re-prompt the user.
	ErrCodeLowConfidence = "LOW_CONFIDENCE"

	// ErrCodeUnknownIntent indicates the input could not be mapped to any
	// supported intent.
	ErrCodeUnknownIntent = "UNKNOWN_INTENT"

	// ErrCodeProcessingError indicates a domain action failed; details are
	// logged, not surfaced.
	ErrCodeProcessingError = "PROCESSING_ERROR"

	// ErrCodeAuthError indicates an invalid credential or a failed token
	// refresh; the caller must re-authenticate rather than retry.
	ErrCodeAuthError = "AUTH_ERROR"
)

// ResultError is the structured error carried by a failed CommandResult.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// CommandResult is the terminal value returned by every handler and every
// processor step. Success and Error are mutually exclusive: a successful
// result never carries an error and a failed result never carries data.
type CommandResult struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

// OK builds a successful result carrying the given data.
func OK(data any) *CommandResult {
	return &CommandResult{Success: true, Data: data}
}

// Fail builds a failed result with a structured error code and message.
func Fail(code, message string) *CommandResult {
	return &CommandResult{
		Success: false,
		Error:   &ResultError{Code: code, Message: message},
	}
}

// FailWithDetails builds a failed result carrying additional detail for
// observability. Details should never contain internal stack traces.
func FailWithDetails(code, message string, details any) *CommandResult {
	return &CommandResult{
		Success: false,
		Error:   &ResultError{Code: code, Message: message, Details: details},
	}
}

// ErrorCode returns the error code of a failed result, or the empty string
// for a successful result.
func (r *CommandResult) ErrorCode() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Code
}
