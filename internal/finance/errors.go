package finance

import (
	"fmt"
	"strings"
)

// Kind classifies a tool failure so callers can tell "your input is wrong"
// apart from "the dependency is unavailable".
type Kind string

const (
	KindUnknownTool     Kind = "unknown_tool"
	KindInvalidArgument Kind = "invalid_argument"
	KindArithmetic      Kind = "arithmetic_domain_error"
	KindRetriever       Kind = "retriever_error"
)

// Sentinel errors for matching with [errors.Is]. They carry no message of
// their own; any *Error of the same kind matches.
var (
	ErrUnknownTool     = &Error{Kind: KindUnknownTool}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrArithmetic      = &Error{Kind: KindArithmetic}
	ErrRetriever       = &Error{Kind: KindRetriever}
)

// Error is a typed tool failure. It never accompanies a partial result.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ErrorKind returns the kind as a string. Tracing uses it as the error type.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// Invalidf returns an invalid-argument error.
func Invalidf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Domainf returns an arithmetic-domain error naming the violated precondition.
func Domainf(format string, args ...any) *Error {
	return &Error{Kind: KindArithmetic, Message: fmt.Sprintf(format, args...)}
}

// maxEcho is the longest fragment of caller input copied into a message.
const maxEcho = 50

// Sanitize makes a fragment of caller-supplied input safe to embed in an
// error message: long input is truncated, whitespace control characters
// become spaces and quoting or markup characters become '?'.
func Sanitize(s string) string {
	if len(s) > maxEcho {
		s = s[:maxEcho-3] + "..."
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r == '"' || r == '\'' || r == '`' || r == '\\' || r == '<' || r == '>':
			b.WriteByte('?')
		case r == ' ' || (r > ' ' && r < 0x7f):
			b.WriteRune(r)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}
