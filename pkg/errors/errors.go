// Package errors defines the error taxonomy shared across the bot.
// Every failure surfaced between components carries an ErrorKind tag so
// call sites can branch on the category without type ladders.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorKind is the category tag carried by every Error.
type ErrorKind string

const (
	// KindAPI covers upstream service failures: LLM, search, doc fetches.
	KindAPI ErrorKind = "api"
	// KindPlugin covers failures raised by or about registered plugins.
	KindPlugin ErrorKind = "plugin"
	// KindValidation covers rejected input: empty IDs, malformed queries.
	KindValidation ErrorKind = "validation"
	// KindConfig covers missing or invalid configuration.
	KindConfig ErrorKind = "config"
	// KindPlatform covers chat-platform failures: sends, sessions, gateways.
	KindPlatform ErrorKind = "platform"
	// KindUnknown is returned by KindOf for errors outside this taxonomy.
	KindUnknown ErrorKind = "unknown"
)

// Error is the single tagged error type. The Kind field is the variant tag;
// Retryable marks transient API failures worth another attempt.
type Error struct {
	Kind      ErrorKind
	Message   string
	Timestamp time.Time
	Retryable bool
	Err       error // wrapped cause, may be nil
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause for errors.Is/As chains
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error wrapping an optional cause.
func New(kind ErrorKind, message string, err error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// NewAPIError tags an upstream service failure.
func NewAPIError(message string, err error) *Error {
	return New(KindAPI, message, err)
}

// NewRetryableAPIError tags a transient upstream failure (timeouts, 5xx).
func NewRetryableAPIError(message string, err error) *Error {
	e := New(KindAPI, message, err)
	e.Retryable = true
	return e
}

// NewPluginError tags a failure from a registered plugin.
func NewPluginError(plugin, message string, err error) *Error {
	return New(KindPlugin, fmt.Sprintf("%s: %s", plugin, message), err)
}

// NewValidationError tags rejected input.
func NewValidationError(message string) *Error {
	return New(KindValidation, message, nil)
}

// NewConfigError tags a configuration problem.
func NewConfigError(field, reason string) *Error {
	return New(KindConfig, fmt.Sprintf("%s: %s", field, reason), nil)
}

// NewPlatformError tags a chat-platform failure.
func NewPlatformError(message string, err error) *Error {
	return New(KindPlatform, message, err)
}

// Sentinel errors for conditions callers match with errors.Is.

// ErrEmptyUserID is returned when a message arrives without an author.
var ErrEmptyUserID = NewValidationError("message has no user ID")

// ErrNoResponse is returned when the LLM yields an empty completion.
var ErrNoResponse = NewAPIError("no response from LLM", nil)

// ErrNotRegistered is returned when a plugin hook targets an unknown plugin.
var ErrNotRegistered = New(KindPlugin, "plugin not registered", nil)

// KindOf reports the kind of the first tagged error in err's chain,
// or KindUnknown when the chain carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain contains a tagged error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether err is a transient failure worth retrying.
// Validation and config errors never are; API errors carry an explicit flag.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}
