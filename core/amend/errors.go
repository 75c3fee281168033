package amend

import "strings"

type ErrorCode string

const (
	CodeUnauthenticated ErrorCode = "unauthenticated"
	CodeForbidden       ErrorCode = "forbidden"
	CodeNotFound        ErrorCode = "not_found"
	CodeInvalidRequest  ErrorCode = "invalid_request"
	CodePersistence     ErrorCode = "persistence_failure"
)

// AmendmentError is the single error type crossing the engine boundary. The
// reason and violation keys are user-displayable i18n keys, never internals.
type AmendmentError struct {
	Code       ErrorCode
	Reason     string
	Violations []string
	cause      error
}

func (e *AmendmentError) Error() string {
	if e == nil {
		return ""
	}
	parts := []string{string(e.Code)}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Violations) > 0 {
		parts = append(parts, strings.Join(e.Violations, ", "))
	}
	return strings.Join(parts, ": ")
}

func (e *AmendmentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func errUnauthenticated() *AmendmentError {
	return &AmendmentError{Code: CodeUnauthenticated, Reason: "amendments.unauthenticated"}
}

func errNotFound() *AmendmentError {
	return &AmendmentError{Code: CodeNotFound, Reason: "amendments.recordNotFound"}
}

func errForbidden(reason string) *AmendmentError {
	return &AmendmentError{Code: CodeForbidden, Reason: reason}
}

func errInvalid(violations []string) *AmendmentError {
	return &AmendmentError{Code: CodeInvalidRequest, Reason: "amendments.invalid", Violations: violations}
}

func errPersistence(cause error) *AmendmentError {
	return &AmendmentError{Code: CodePersistence, Reason: "amendments.persistenceFailed", cause: cause}
}
