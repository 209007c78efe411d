package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorResponse is the error body returned by the authority's request/response endpoints.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error is a coded, user-presentable failure.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	ErrTransient         = &Error{Code: ErrCodeTransient, Message: "Network request failed"}
	ErrRejected          = &Error{Code: ErrCodeRejected, Message: "Rejected by server"}
	ErrQueueLost         = &Error{Code: ErrCodeQueueLost, Message: "You are no longer in the ranked queue"}
	ErrStaleTicket       = &Error{Code: ErrCodeStaleTicket, Message: "Match is taking too long to start, you can reset it"}
	ErrInvalidTransition = &Error{Code: ErrCodeInvalidTransition, Message: "Action not allowed right now"}
	ErrNotConnected      = &Error{Code: ErrCodeNotConnected, Message: "Not connected to a room"}
	ErrSessionClosed     = &Error{Code: ErrCodeSessionClosed, Message: "Session is closed"}
)

// New builds a coded error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Transient wraps a network failure that the caller is expected to retry on its next tick.
func Transient(err error) *Error {
	msg := ErrTransient.Message
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: ErrCodeTransient, Message: msg, Err: err}
}

// Rejected wraps a refusal reported by the authority.
func Rejected(message string) *Error {
	if strings.TrimSpace(message) == "" {
		message = ErrRejected.Message
	}
	return &Error{Code: ErrCodeRejected, Message: message}
}

// Validation builds a field-scoped validation error.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Code returns the error code of err, or "" when err carries none.
func Code(err error) string {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	var verr *ValidationError
	if stderrors.As(err, &verr) {
		return ErrCodeValidationFailed
	}
	return ""
}

// IsTransient reports whether err is a retryable network failure.
func IsTransient(err error) bool {
	return stderrors.Is(err, ErrTransient)
}

// IsValidation reports whether err was raised by a local pre-check.
func IsValidation(err error) bool {
	var verr *ValidationError
	return stderrors.As(err, &verr)
}

// FromResponse maps a non-2xx authority response to the error taxonomy.
// 5xx responses are transient; anything else is a rejection carrying the
// authority's {"error": "..."} message when present.
func FromResponse(status int, body []byte) error {
	var resp ErrorResponse
	msg := ""
	if err := json.Unmarshal(body, &resp); err == nil {
		msg = resp.Error
		if resp.Message != "" {
			msg = resp.Message
		}
	}
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return Transient(fmt.Errorf("server returned %d: %s", status, strings.TrimSpace(string(body))))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return Rejected(msg)
}
