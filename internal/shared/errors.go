package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine errors into the transport-facing taxonomy.
type Kind string

const (
	// KindNotFound indicates a referenced id is absent.
	KindNotFound Kind = "not_found"
	// KindBadRequest indicates an illegal transition or violated precondition.
	KindBadRequest Kind = "bad_request"
	// KindForbidden indicates an immutability or role-threshold denial.
	KindForbidden Kind = "forbidden"
	// KindConflict indicates a duplicate linked resource or stale revision.
	KindConflict Kind = "conflict"
)

// Error carries the error kind plus structured detail for the caller:
// the offending fields and the current vs. allowed values where relevant.
type Error struct {
	Kind    Kind
	Msg     string
	Fields  []string
	Current string
	Allowed []string
	// RefID optionally points at an existing conflicting resource.
	RefID string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Msg)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (fields: %s)", strings.Join(e.Fields, ", "))
	}
	if e.Current != "" {
		fmt.Fprintf(&b, " (current: %s", e.Current)
		if len(e.Allowed) > 0 {
			fmt.Fprintf(&b, ", allowed: %s", strings.Join(e.Allowed, ", "))
		}
		b.WriteString(")")
	}
	return b.String()
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// BadRequestf builds a BadRequest error.
func BadRequestf(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Msg: fmt.Sprintf(format, args...)}
}

// Forbiddenf builds a Forbidden error.
func Forbiddenf(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind, or empty string for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err belongs to the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
