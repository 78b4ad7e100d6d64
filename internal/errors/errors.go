// Package errors defines the typed errors shared by the analysis pipeline.
// Every error carries a Type compared by errors.Is, so the sentinels below
// match any error of the same kind regardless of message.
package errors

import "fmt"

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid input data
	ErrorTypeValidation
	// Producer errors - a whole analysis step failed
	ErrorTypeProducer
	// Entity errors - one malformed entity inside a successful step
	ErrorTypeEntity
	// Plugin errors - plugin process or output failure
	ErrorTypePlugin
	// Conflict errors - another analysis run holds the repository
	ErrorTypeReconciliationConflict
	// Traversal errors - impact analysis hit a depth or fan-out bound
	ErrorTypeTraversalLimit
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

var typeNames = map[ErrorType]string{
	ErrorTypeConfig:                 "config",
	ErrorTypeValidation:             "validation",
	ErrorTypeProducer:               "producer",
	ErrorTypeEntity:                 "entity",
	ErrorTypePlugin:                 "plugin",
	ErrorTypeReconciliationConflict: "reconciliation_conflict",
	ErrorTypeTraversalLimit:         "traversal_limit",
	ErrorTypeInternal:               "internal",
}

func (t ErrorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - the run continues, the item is skipped
	SeverityLow Severity = iota
	// SeverityMedium - a step failed, the run continues
	SeverityMedium
	// SeverityHigh - the request is rejected
	SeverityHigh
	// SeverityCritical - the run stops
	SeverityCritical
)

// Error is a categorized error with optional structured context
type Error struct {
	Type     ErrorType
	Severity Severity
	Message  string
	Cause    error
	Context  map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds a context value and returns e
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is reports whether target is an *Error of the same type, so sentinel
// values like ErrReconciliationConflict work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// Fields returns the error type and context as log fields
func (e *Error) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		fields[k] = v
	}
	fields["error_type"] = e.Type.String()
	return fields
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:     errType,
		Severity: severity,
		Message:  message,
	}
}

// Wrap wraps err. A nil err yields nil.
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:     errType,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// Sentinels for errors.Is checks. Only the Type is compared.
var (
	ErrConfig                 = &Error{Type: ErrorTypeConfig}
	ErrProducer               = &Error{Type: ErrorTypeProducer}
	ErrEntity                 = &Error{Type: ErrorTypeEntity}
	ErrPlugin                 = &Error{Type: ErrorTypePlugin}
	ErrReconciliationConflict = &Error{Type: ErrorTypeReconciliationConflict}
	ErrTraversalLimit         = &Error{Type: ErrorTypeTraversalLimit}
	ErrValidation             = &Error{Type: ErrorTypeValidation}
)

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// ProducerError marks a failed analysis step. Fatal only for mandatory steps.
func ProducerError(err error, step string, mandatory bool) *Error {
	severity := SeverityMedium
	if mandatory {
		severity = SeverityCritical
	}
	return Wrap(err, ErrorTypeProducer, severity, fmt.Sprintf("step %q failed", step)).
		WithContext("step", step)
}

// EntityErrorf describes a malformed entity that is skipped
func EntityErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeEntity, SeverityLow, fmt.Sprintf(format, args...))
}

// PluginError wraps a plugin process or output failure
func PluginError(err error, plugin string) *Error {
	return Wrap(err, ErrorTypePlugin, SeverityLow, fmt.Sprintf("plugin %s failed", plugin)).
		WithContext("plugin", plugin)
}

// ReconciliationConflict reports a concurrent run for the same repository
func ReconciliationConflict(repositoryID string) *Error {
	return New(ErrorTypeReconciliationConflict, SeverityHigh,
		fmt.Sprintf("analysis already running for repository %s", repositoryID)).
		WithContext("repository_id", repositoryID)
}

// TraversalLimitExceeded describes a truncated impact traversal
func TraversalLimitExceeded(limit string, value int) *Error {
	return New(ErrorTypeTraversalLimit, SeverityLow,
		fmt.Sprintf("traversal %s limit %d reached", limit, value)).
		WithContext(limit, value)
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	if e, ok := as(err); ok {
		return e.IsFatal()
	}
	return false
}

// GetType returns the type of an error. Untyped errors are internal.
func GetType(err error) ErrorType {
	if e, ok := as(err); ok {
		return e.Type
	}
	return ErrorTypeInternal
}

// as walks the Unwrap chain looking for an *Error
func as(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
