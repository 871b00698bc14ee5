// Package validation defines the structured validation error shape shared by
// all services: a human-readable top-level message plus a field-path-keyed
// map of error details. Nested payloads (key data, per-record password data)
// nest their own Details maps under the offending field.
package validation

// Details maps a field name to either a rule-keyed message map
// (map[string]string), a nested Details, or a per-record index map
// (map[int]Details).
type Details map[string]any

// Error carries a top-level message and per-field details. It is always
// recoverable by the caller correcting its input.
type Error struct {
	Message string
	Details Details
}

// NewError builds a validation error with the given message and details.
func NewError(message string, details Details) *Error {
	return &Error{Message: message, Details: details}
}

// NewFieldError builds a validation error for a single field and rule.
func NewFieldError(message, field, rule, detail string) *Error {
	return &Error{
		Message: message,
		Details: Details{field: map[string]string{rule: detail}},
	}
}

func (e *Error) Error() string {
	return e.Message
}

// Wrap nests the details of err under the given field, preserving the new
// top-level message. Non-validation errors are recorded verbatim under
// field.rule so raw parser output never escapes unannotated.
func Wrap(err error, message, field, rule string) *Error {
	if ve, ok := err.(*Error); ok {
		return &Error{Message: message, Details: Details{field: ve.Details}}
	}
	return &Error{
		Message: message,
		Details: Details{field: map[string]string{rule: err.Error()}},
	}
}

// FieldDetails returns the details stored under field, or nil.
func (e *Error) FieldDetails(field string) any {
	if e.Details == nil {
		return nil
	}
	return e.Details[field]
}

// IsError reports whether err is a validation error.
func IsError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

var _ error = (*Error)(nil)
