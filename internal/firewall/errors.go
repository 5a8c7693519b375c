package firewall

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures reported by the Manager.
type ErrorKind int

const (
	KindInvalidArgument ErrorKind = iota + 1
	KindStoreUnavailable
	KindLookupFailed
	KindInsertFailed
	KindRemoveFailed
	KindTooManyAttempts
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindLookupFailed:
		return "lookup_failed"
	case KindInsertFailed:
		return "insert_failed"
	case KindRemoveFailed:
		return "remove_failed"
	case KindTooManyAttempts:
		return "too_many_attempts"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrLookupFailed     = &Error{Kind: KindLookupFailed}
	ErrInsertFailed     = &Error{Kind: KindInsertFailed}
	ErrRemoveFailed     = &Error{Kind: KindRemoveFailed}
	ErrTooManyAttempts  = &Error{Kind: KindTooManyAttempts}
)

// Error is the typed failure returned by Manager operations.
//
// Code carries the store's native failure code (errno for nftables) and is
// zero when the store did not report one. Removed counts the rules a
// DeleteRule call had already removed when it failed.
type Error struct {
	Kind    ErrorKind
	Op      string
	Name    string
	Code    int64
	Removed int
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.Name != "" {
		fmt.Fprintf(&b, "%q ", e.Name)
	}
	b.WriteString(strings.ReplaceAll(e.Kind.String(), "_", " "))
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %#x)", e.Code)
	}
	if e.Removed > 0 {
		fmt.Fprintf(&b, " after removing %d rule(s)", e.Removed)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Name == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the native code of the first *Error in err's chain.
func CodeOf(err error) int64 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

func newError(kind ErrorKind, op, name string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Name: name,
		Code: NativeCode(err),
		Err:  err,
	}
}
