package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrParse           = errors.New("numeric field parse failure")
	ErrIO              = errors.New("input/output failure")
	ErrEmptyGroup      = errors.New("utterance group empty after filtering")
	ErrUnknownMethod   = errors.New("unknown aggregation method")
)

// Error represents a structured error with creation location and additional context
type Error struct {
	// original is the underlying error
	original error

	// message is the error message
	message string

	// fields contains contextual information
	fields map[string]interface{}

	// stackPC is the program counter for the error's creation
	stackPC uintptr

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	pc, file, line, _ := runtime.Caller(1)

	var fieldMap map[string]interface{}
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	} else {
		fieldMap = make(map[string]interface{})
	}

	return &Error{
		original: errors.New(message),
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}

	pc, file, line, _ := runtime.Caller(1)

	var fieldMap map[string]interface{}
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	} else {
		fieldMap = make(map[string]interface{})
	}

	return &Error{
		original: err,
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
	}
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}

	// Create a copy to avoid modifying the original
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+1),
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}

	result.fields[key] = value

	return result
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+len(fields)),
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}

	for k, v := range fields {
		result.fields[k] = v
	}

	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}

	return &Error{
		original: e.original,
		message:  e.message,
		fields:   e.fields,
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     code,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" {
		return e.original.Error()
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// Is reports whether any error in err's tree matches target.
// Implements the errors.Is interface.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}

	if errors.Is(e.original, target) {
		return true
	}

	return e == target
}

// NewMalformedRecord creates a new ErrMalformedRecord error for an input
// record that does not fit its format
func NewMalformedRecord(kind, record string) *Error {
	pc, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrMalformedRecord,
		message:  fmt.Sprintf("malformed %s %q", kind, record),
		fields: map[string]interface{}{
			"kind":   kind,
			"record": record,
		},
		stackPC: pc,
		file:    file,
		line:    line,
		Code:    "MALFORMED_RECORD",
	}
}

// NewParseError creates a new ErrParse error carrying the offending field
func NewParseError(field, value string, cause error) *Error {
	pc, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrParse,
		message:  fmt.Sprintf("cannot parse %s %q: %v", field, value, cause),
		fields: map[string]interface{}{
			"field": field,
			"value": value,
		},
		stackPC: pc,
		file:    file,
		line:    line,
		Code:    "PARSE_ERROR",
	}
}

// NewIOError creates a new ErrIO error with the failed path
func NewIOError(op, path string, cause error) *Error {
	pc, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrIO,
		message:  fmt.Sprintf("%s %s: %v", op, path, cause),
		fields: map[string]interface{}{
			"op":   op,
			"path": path,
		},
		stackPC: pc,
		file:    file,
		line:    line,
		Code:    "IO_ERROR",
	}
}

// NewEmptyGroup creates a new ErrEmptyGroup error for the given utterance
func NewEmptyGroup(utteranceID string) *Error {
	pc, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrEmptyGroup,
		message:  fmt.Sprintf("no valid phone values for %s", utteranceID),
		fields: map[string]interface{}{
			"utterance_id": utteranceID,
		},
		stackPC: pc,
		file:    file,
		line:    line,
		Code:    "EMPTY_GROUP",
	}
}

// NewUnknownMethod creates a new ErrUnknownMethod error for the given method name
func NewUnknownMethod(method string) *Error {
	pc, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrUnknownMethod,
		message:  fmt.Sprintf("unknown aggregation method %q", method),
		fields: map[string]interface{}{
			"method": method,
		},
		stackPC: pc,
		file:    file,
		line:    line,
		Code:    "UNKNOWN_METHOD",
	}
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}
