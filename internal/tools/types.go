package tools

// Status indicates whether a tool call succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Error codes returned to the model. The model reads these to decide
// whether to correct its call or report the failure to the user.
const (
	// ErrCodeUnknownTool marks a call to a name not in the registry.
	ErrCodeUnknownTool = "unknown_tool"

	// ErrCodeInvalidArguments marks arguments that failed schema
	// validation. The message names the offending field.
	ErrCodeInvalidArguments = "invalid_arguments"

	// ErrCodeUpstreamUnavailable marks a dependency failure (database
	// down, index unreachable, call timed out).
	ErrCodeUpstreamUnavailable = "upstream_unavailable"

	// ErrCodeNotFound marks a well-formed lookup with no matching record.
	ErrCodeNotFound = "not_found"

	// ErrCodeExecution marks an internal failure inside the tool itself.
	ErrCodeExecution = "execution"
)

// Error is the structured error half of a Result.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field != "" {
		return e.Code + ": field " + e.Field + ": " + e.Message
	}
	return e.Code + ": " + e.Message
}

// Result is the uniform envelope every tool returns. Failures travel in
// the envelope, not as Go errors: the model needs to see them to recover,
// so a failed call is still a successful dispatch.
type Result struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Success wraps data in a success Result.
func Success(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

// Fail builds an error Result.
func Fail(code, message string) Result {
	return Result{Status: StatusError, Error: &Error{Code: code, Message: message}}
}

// FailField builds an invalid_arguments Result naming the bad field.
func FailField(field, message string) Result {
	return Result{Status: StatusError, Error: &Error{
		Code:    ErrCodeInvalidArguments,
		Message: message,
		Field:   field,
	}}
}
