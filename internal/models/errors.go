package models

import (
	"errors"
	"fmt"
)

// ErrorKind buckets domain failures so the HTTP layer can pick a status code
// without string matching.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindConflict
	KindStorage
)

// Reason codes carried on domain errors. Callers branch on these, not on
// error text.
const (
	ReasonBadRoute        = "bad_route"
	ReasonBadRideType     = "bad_ride_type"
	ReasonRideNotFound    = "ride_not_found"
	ReasonUserNotFound    = "user_not_found"
	ReasonRequestNotFound = "request_not_found"
	ReasonAlreadyActive   = "already_active_request"
	ReasonRideNotJoinable = "ride_not_joinable"
	ReasonNotApprovable   = "not_approvable"
	ReasonBadTransition   = "bad_transition"
	ReasonChatLocked      = "chat_locked"
	ReasonStorage         = "storage_failure"
)

// Error is the single domain error type; Kind selects the taxonomy bucket and
// Reason is a short machine-checkable code.
type Error struct {
	Kind   ErrorKind
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Msg, e.Err)
	}
	if e.Msg == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(reason, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(reason, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(reason, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// StorageErr wraps a persistence failure verbatim; the core never retries it.
func StorageErr(op string, err error) *Error {
	return &Error{Kind: KindStorage, Reason: ReasonStorage, Msg: op, Err: err}
}

// KindOf extracts the taxonomy bucket, or zero for foreign errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// ReasonOf extracts the reason code, or "" for foreign errors.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

func IsConflict(err error) bool { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
