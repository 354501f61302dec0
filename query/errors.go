package query

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures.
type ErrorKind int

const (
	// KindExecutionFailure wraps errors returned by the store client.
	KindExecutionFailure ErrorKind = iota
	// KindPlanningConflict: more than one access path would be built, or a
	// disjunction spans incompatible columns.
	KindPlanningConflict
	// KindUnsupportedLiteralType: a filter value is neither numeric, string
	// nor a byte sequence.
	KindUnsupportedLiteralType
	// KindTypeConflict: a column's discovered type contradicts a previously
	// discovered type.
	KindTypeConflict
	// KindExpressionEvaluation: the evaluator rejected an expression.
	KindExpressionEvaluation
	// KindMissingRequiredColumn: e.g. an insert without its key column.
	KindMissingRequiredColumn
	// KindDuplicateKey: an insert would overwrite existing records.
	KindDuplicateKey
	// KindInvalidStatement: the statement itself is malformed.
	KindInvalidStatement
)

// String implements fmt.Stringer
func (k ErrorKind) String() string {
	switch k {
	case KindPlanningConflict:
		return "planning conflict"
	case KindUnsupportedLiteralType:
		return "unsupported literal type"
	case KindTypeConflict:
		return "type conflict"
	case KindExpressionEvaluation:
		return "expression evaluation error"
	case KindMissingRequiredColumn:
		return "missing required column"
	case KindDuplicateKey:
		return "duplicate key"
	case KindInvalidStatement:
		return "invalid statement"
	default:
		return "execution failure"
	}
}

// Sentinel errors usable with errors.Is against any *Error of the same kind.
var (
	ErrExecutionFailure       = &Error{Kind: KindExecutionFailure}
	ErrPlanningConflict       = &Error{Kind: KindPlanningConflict}
	ErrUnsupportedLiteralType = &Error{Kind: KindUnsupportedLiteralType}
	ErrTypeConflict           = &Error{Kind: KindTypeConflict}
	ErrExpressionEvaluation   = &Error{Kind: KindExpressionEvaluation}
	ErrMissingRequiredColumn  = &Error{Kind: KindMissingRequiredColumn}
	ErrDuplicateKey           = &Error{Kind: KindDuplicateKey}
	ErrInvalidStatement       = &Error{Kind: KindInvalidStatement}
)

// Error is the error type returned by the engine.
//
// Expression is set for KindExpressionEvaluation and holds the source
// expression text. Err is the underlying cause, if any.
type Error struct {
	Kind       ErrorKind
	Message    string
	Expression string
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Expression != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Expression)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so the package sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func planningConflict(format string, args ...interface{}) *Error {
	return newError(KindPlanningConflict, format, args...)
}

func typeConflict(format string, args ...interface{}) *Error {
	return newError(KindTypeConflict, format, args...)
}

func invalidStatement(format string, args ...interface{}) *Error {
	return newError(KindInvalidStatement, format, args...)
}

func expressionError(expr string, err error) *Error {
	return &Error{Kind: KindExpressionEvaluation, Message: "failed to evaluate expression", Expression: expr, Err: err}
}

// storeError wraps a store failure, leaving engine errors untouched.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return err
	}
	return &Error{Kind: KindExecutionFailure, Message: "failed to " + op, Err: err}
}
