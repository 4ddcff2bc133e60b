// Package dberr - stable error codes for the SQL engine
//
// What: A small typed error carrying a stable machine-readable Code plus a
//      human message, wrapping an optional cause.
// How: Constructors pair a Code with fmt-style formatting; errors.Is matches
//      on Code so callers can branch on the class without string matching.
// Why: The engine's failure taxonomy (parse, schema, runtime, storage,
//      concurrency, resource) crosses package boundaries; a shared code
//      enum keeps retry logic and API error mapping out of message text.
package dberr

import (
	"errors"
	"fmt"
)

// Code classifies an engine error. Codes are stable across releases; message
// text is not.
type Code int

const (
	// CodeParse covers malformed SQL and planner type errors.
	CodeParse Code = iota + 1
	// CodeNotADB means the file is not a database this engine recognizes.
	CodeNotADB
	// CodeCorrupt means a page, record, or WAL frame failed validation.
	CodeCorrupt
	// CodeBusy means a lock is contended; the operation can be retried.
	CodeBusy
	// CodeInterrupt means the connection's interrupt flag was raised.
	CodeInterrupt
	// CodeInternal is a bug in the engine itself.
	CodeInternal
	// CodeWriteConflict means two concurrent transactions wrote the same
	// row; the later committer loses.
	CodeWriteConflict
	// CodeConstraint covers uniqueness and not-null violations.
	CodeConstraint
	// CodeSchema covers unknown tables/columns and ambiguous references.
	CodeSchema
)

func (c Code) String() string {
	switch c {
	case CodeParse:
		return "ParseError"
	case CodeNotADB:
		return "NotADB"
	case CodeCorrupt:
		return "Corrupt"
	case CodeBusy:
		return "Busy"
	case CodeInterrupt:
		return "Interrupt"
	case CodeInternal:
		return "InternalError"
	case CodeWriteConflict:
		return "WriteConflict"
	case CodeConstraint:
		return "ConstraintViolation"
	case CodeSchema:
		return "SchemaError"
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is a coded engine error. The zero value is not valid; use New or
// Wrap.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, dberr.Busy) style sentinels match by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New builds a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and context to an underlying cause. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(code Code, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Sentinel values for errors.Is checks against each class.
var (
	Parse         = &Error{Code: CodeParse}
	NotADB        = &Error{Code: CodeNotADB}
	Corrupt       = &Error{Code: CodeCorrupt}
	Busy          = &Error{Code: CodeBusy}
	Interrupt     = &Error{Code: CodeInterrupt}
	Internal      = &Error{Code: CodeInternal}
	WriteConflict = &Error{Code: CodeWriteConflict}
	Constraint    = &Error{Code: CodeConstraint}
	Schema        = &Error{Code: CodeSchema}
)
