package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures across the harvest run
type ErrorType string

const (
	// Pipeline-fatal kinds
	ErrorTypeNavigationFailed     ErrorType = "navigation_failed"
	ErrorTypeConversationNotFound ErrorType = "conversation_not_found"

	// Per-candidate kinds
	ErrorTypeInteractionFailed ErrorType = "interaction_failed"
	ErrorTypeNoViewer          ErrorType = "no_viewer"
	ErrorTypeNoMedia           ErrorType = "no_media"
	ErrorTypeEmptyPayload      ErrorType = "empty_payload"
	ErrorTypeTransferError     ErrorType = "transfer_error"

	// Transport and setup kinds
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error carries a typed failure. Reason holds a status or short cause for
// transfer errors, Code an HTTP status when one exists.
type Error struct {
	Type    ErrorType
	Message string
	Reason  string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same type, so errors.Is(err, ErrNoViewer) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == ""
}

// Sentinels for errors.Is comparisons by type.
var (
	ErrNavigationFailed     = &Error{Type: ErrorTypeNavigationFailed}
	ErrConversationNotFound = &Error{Type: ErrorTypeConversationNotFound}
	ErrInteractionFailed    = &Error{Type: ErrorTypeInteractionFailed}
	ErrNoViewer             = &Error{Type: ErrorTypeNoViewer}
	ErrNoMedia              = &Error{Type: ErrorTypeNoMedia}
	ErrEmptyPayload         = &Error{Type: ErrorTypeEmptyPayload}
	ErrTransferError        = &Error{Type: ErrorTypeTransferError}
)

// New creates a typed error.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error around a cause.
func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// NavigationFailed reports that the session could not reach the inbox.
func NavigationFailed(message string, err error) *Error {
	return Wrap(ErrorTypeNavigationFailed, message, err)
}

// ConversationNotFound reports that the target thread never appeared in the inbox.
func ConversationNotFound(target string, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeConversationNotFound,
		Message: fmt.Sprintf("conversation %q not found", target),
		Reason:  fmt.Sprintf("%d attempts", attempts),
	}
}

// TransferError reports a failed byte transfer with its status or reason.
func TransferError(reason string, code int, err error) *Error {
	return &Error{Type: ErrorTypeTransferError, Message: "transfer failed", Reason: reason, Code: code, Err: err}
}

// EmptyPayload reports a download that produced no bytes.
func EmptyPayload(path string) *Error {
	return &Error{Type: ErrorTypeEmptyPayload, Message: fmt.Sprintf("no bytes written to %s", path)}
}

// TypeOf returns the ErrorType of the first *Error in err's chain.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsFatal reports whether err aborts the whole pipeline.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeNavigationFailed, ErrorTypeConversationNotFound:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
