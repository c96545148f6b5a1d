package goxq

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Location is a position in the source of an expression.
type Location struct {
	Module string
	Line   int
	Column int
}

// IsZero reports whether the location is unknown.
func (l Location) IsZero() bool {
	return l.Line == 0 && l.Module == ""
}

func (l Location) String() string {
	if l.IsZero() {
		return ""
	}
	var sb strings.Builder
	if l.Module != "" {
		sb.WriteString(l.Module)
		sb.WriteByte(':')
	}
	sb.WriteString(strconv.Itoa(l.Line))
	if l.Column > 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(l.Column))
	}
	return sb.String()
}

// Error is a static or dynamic error raised while compiling or evaluating.
type Error struct {
	Code      string
	Message   string
	Location  Location
	Static    bool
	TypeError bool
	// Snapshot describes the dynamic context of a dynamic error, if known.
	Snapshot *Snapshot
	Err      error
}

// Snapshot is a summary of the dynamic context at the point of an error.
type Snapshot struct {
	ContextItem Item
	Function    QName
	Depth       int
}

func (err *Error) Error() string {
	var sb strings.Builder
	if err.Code != "" {
		sb.WriteString(err.Code)
		sb.WriteString(": ")
	}
	sb.WriteString(err.Message)
	if !err.Location.IsZero() {
		sb.WriteString(" at ")
		sb.WriteString(err.Location.String())
	}
	return sb.String()
}

func (err *Error) Unwrap() error {
	return err.Err
}

// Is matches errors by code, so errors.Is(err, &Error{Code: "XPTY0004"})
// finds a type error anywhere in a chain.
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && t.Code == err.Code
}

// withLocation sets the location unless one is already known.
func (err *Error) withLocation(loc Location) *Error {
	if err.Location.IsZero() {
		err.Location = loc
	}
	return err
}

// StackOverflowError is the resource error behind SXLM0001.
type StackOverflowError struct {
	Depth int
	Limit int
}

func (err *StackOverflowError) Error() string {
	return fmt.Sprintf("call depth %d exceeds the limit %d", err.Depth, err.Limit)
}

func newDynamicError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func newTypeError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), TypeError: true}
}

func newStaticError(code string, loc Location, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Location: loc, Static: true}
}

func newStaticTypeError(code string, loc Location, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Location: loc, Static: true, TypeError: true}
}

func stackOverflow(depth, limit int) *Error {
	return &Error{
		Code:    "SXLM0001",
		Message: "Too many nested function calls. May be due to infinite recursion.",
		Err:     &StackOverflowError{depth, limit},
	}
}

// locate attaches loc to err when err is an *Error without a location.
func locate(err error, loc Location) error {
	var e *Error
	if errors.As(err, &e) {
		e.withLocation(loc)
	}
	return err
}

func typeErrorPreview(v Item) string {
	return typeOf(v) + preview(v)
}

func preview(v Item) string {
	if v == nil {
		return ""
	}
	s, l := v.StringValue(), 25
	if len(s) > l {
		s = s[:l-3] + " ..."
	}
	return " (" + strconv.Quote(s) + ")"
}
