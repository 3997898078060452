package tools

import "fmt"

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes carried in Result.Error. The model reads these to decide
// whether to retry with corrected input or report the failure to the user.
const (
	ErrCodeValidation            = "validation"
	ErrCodeNotFound              = "not_found"
	ErrCodeUnauthorized          = "unauthorized"
	ErrCodeSecurity              = "security"
	ErrCodeMerchantNotConfigured = "merchant_not_configured"
	ErrCodeNoFields              = "no_fields"
	ErrCodeIO                    = "io"
	ErrCodeInternal              = "internal"
	ErrCodeUnknownTool           = "unknown_tool"
)

// Error is a structured tool failure for model consumption.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of one tool execution. Failures are results, not Go
// errors: they flow back to the model as function responses so the
// conversation can continue.
type Result struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// Success builds a success result.
func Success(message string, data map[string]any) Result {
	return Result{Status: StatusSuccess, Message: message, Data: data}
}

// Failure builds an error result.
func Failure(code, message string) Result {
	return Result{
		Status:  StatusError,
		Message: message,
		Error:   &Error{Code: code, Message: message},
	}
}

// Failuref builds an error result with a formatted message.
func Failuref(code, format string, args ...any) Result {
	return Failure(code, fmt.Sprintf(format, args...))
}

// Payload flattens the result into the map sent back to the model as a
// function response. Data keys are promoted to the top level alongside
// status and message.
func (r Result) Payload() map[string]any {
	m := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		m[k] = v
	}
	m["status"] = r.Status
	if r.Message != "" {
		m["message"] = r.Message
	}
	if r.Error != nil {
		m["error"] = map[string]any{
			"code":    r.Error.Code,
			"message": r.Error.Message,
		}
	}
	return m
}
