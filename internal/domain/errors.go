// Package domain defines the error taxonomy shared by all core operations.
//
// Every error the core returns carries a Kind so the transport layer can map it
// to an HTTP status without the core knowing anything about HTTP. The mapping
// lives entirely in internal/api; repositories and services only ever speak in
// kinds. Postgres unique-violation errors (SQLSTATE 23505) are translated to
// KindConflict here so the uniqueness constraints that close the concurrent
// join/envelope races surface as structured conflicts rather than raw driver
// errors.
package domain

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Kind classifies a core error for the transport boundary.
type Kind int

const (
	// KindUnknown is an unclassified internal failure.
	KindUnknown Kind = iota
	// KindValidation marks missing or malformed required fields. Nothing is persisted.
	KindValidation
	// KindNotFound marks an absent repo, invite, member, or secret.
	KindNotFound
	// KindAuthorization marks a caller lacking required permission or active membership.
	KindAuthorization
	// KindConflict marks duplicate membership, duplicate envelope, or an already-processed invite.
	KindConflict
	// KindTransientStore marks an underlying persistence failure that is safe to retry.
	KindTransientStore
)

// String returns the kind's short name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindTransientStore:
		return "transient_store"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged core error. Message is safe to surface to callers:
// it never contains internal identifiers of other users.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.err }

// NewError creates a kind-tagged error with a caller-safe message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError tags an underlying error with a kind and a caller-safe message.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// Validationf builds a KindValidation error.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Authorizationf builds a KindAuthorization error.
func Authorizationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a KindConflict error.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain. Unwrapped errors from the
// store are treated as transient persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if isUniqueViolation(err) {
		return KindConflict
	}
	return KindTransientStore
}

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation anywhere in its chain.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// FromStore classifies a raw persistence error: unique violations become
// conflicts with the supplied message, everything else is transient.
func FromStore(err error, conflictMessage string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return WrapError(KindConflict, conflictMessage, err)
	}
	return WrapError(KindTransientStore, "storage operation failed", err)
}
