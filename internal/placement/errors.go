package placement

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable category of an engine error.
type Kind string

const (
	KindExtraction Kind = "extraction_error"
	KindJudge      Kind = "judge_error"
	KindSchema     Kind = "schema_error"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error

	// Current is the stored application observed when a conflict was detected.
	Current *Application
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrExtraction = &Error{Kind: KindExtraction}
	ErrJudge      = &Error{Kind: KindJudge}
	ErrSchema     = &Error{Kind: KindSchema}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrValidation = &Error{Kind: KindValidation}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// Errorf builds an *Error; a %w verb in format is kept as the wrapped cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Op: op, Msg: err.Error(), Err: errors.Unwrap(err)}
}

// Conflict builds a conflict error carrying the observed application.
func Conflict(op string, current *Application, format string, args ...any) *Error {
	e := Errorf(KindConflict, op, format, args...)
	e.Current = current.Clone()
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CurrentOf returns the application attached to a conflict, if any.
func CurrentOf(err error) *Application {
	var e *Error
	if errors.As(err, &e) {
		return e.Current
	}
	return nil
}
