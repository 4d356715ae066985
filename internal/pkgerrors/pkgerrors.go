// Package pkgerrors defines the typed error kinds pkglab surfaces to users.
package pkgerrors

import "fmt"

// Kind identifies a class of user-visible failure.
type Kind string

const (
	ConflictingOptions Kind = "ConflictingOptions"
	UnknownPackage     Kind = "UnknownPackage"
	UnknownTag         Kind = "UnknownTag"
	InvalidWorkspace   Kind = "InvalidWorkspace"
	Busy               Kind = "Busy"
	RegistryDown       Kind = "RegistryDown"
	PackFailed         Kind = "PackFailed"
	PublishFailed      Kind = "PublishFailed"
	InstallFailed      Kind = "InstallFailed"
	StateCorrupt       Kind = "StateCorrupt"
)

// Error is a typed, entity-named failure. It renders as "<Kind>: <detail>"
// on stderr as a single diagnostic line.
type Error struct {
	Kind   Kind
	Entity string // the offending package, tag, consumer dir, etc.
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	detail := e.Detail
	if detail == "" && e.Entity != "" {
		detail = e.Entity
	}
	if e.Cause != nil {
		if detail == "" {
			detail = e.Cause.Error()
		} else {
			detail = fmt.Sprintf("%s: %v", detail, e.Cause)
		}
	}
	return fmt.Sprintf("%s: %s", e.Kind, detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, pkgerrors.New(Kind, "", nil)) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind naming the offending entity.
func New(kind Kind, entity string, cause error) *Error {
	return &Error{Kind: kind, Entity: entity, Cause: cause}
}

// Newf constructs an Error with a formatted detail message.
func Newf(kind Kind, entity, format string, args ...any) *Error {
	return &Error{Kind: kind, Entity: entity, Detail: fmt.Sprintf(format, args...)}
}

// Of reports whether err (or something it wraps) is a pkglab error of kind k.
func Of(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if pe, ok := err.(*Error); ok {
			e = pe
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
