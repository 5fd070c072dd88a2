package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies engine errors for callers.
type ErrorKind string

const (
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidState      ErrorKind = "invalid_state"
	KindDuplicateApproval ErrorKind = "duplicate_approval"
	KindNoSuchApproval    ErrorKind = "no_such_approval"
	KindInvalidSignature  ErrorKind = "invalid_signature"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindRegistrationFault ErrorKind = "registration_fault"
)

// Error is the typed error returned by the approval engine.
type Error struct {
	Kind    ErrorKind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState      = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrDuplicateApproval = &Error{Kind: KindDuplicateApproval, Message: "guardian already approved this escrow"}
	ErrNoSuchApproval    = &Error{Kind: KindNoSuchApproval, Message: "guardian has no approval for this escrow"}
	ErrInvalidSignature  = &Error{Kind: KindInvalidSignature, Message: "invalid approval signature"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "not authorized"}
	ErrRegistrationFault = &Error{Kind: KindRegistrationFault, Message: "on-chain registration failed"}
)

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFoundError is returned by store implementations for missing rows.
func NotFoundError(entity string, id any) error {
	return newError(KindNotFound, nil, "%s %v not found", entity, id)
}

// DuplicateApprovalError is returned by approval stores on a unique-key conflict.
func DuplicateApprovalError(escrowID, guardianID any) error {
	return newError(KindDuplicateApproval, nil, "guardian %v already approved escrow %v", guardianID, escrowID)
}

// KindOf returns the kind of err, or "" for errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
