package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Kind discriminates errors that share a class, so callers can tell an expired card
// from a wrong partner or an unknown code.
type Kind string

const (
	KindCodeGenerationExhausted Kind = "CODE_GENERATION_EXHAUSTED"
	KindCodeCollision           Kind = "CODE_COLLISION"
	KindCodeNotFound            Kind = "CODE_NOT_FOUND"
	KindMembershipNotFound      Kind = "MEMBERSHIP_NOT_FOUND"
	KindBenefitNotFound         Kind = "BENEFIT_NOT_FOUND"
	KindAccountNotFound         Kind = "ACCOUNT_NOT_FOUND"
	KindMembershipNotEligible   Kind = "MEMBERSHIP_NOT_ELIGIBLE"
	KindBenefitInactive         Kind = "BENEFIT_INACTIVE"
	KindScopeMismatch           Kind = "SCOPE_MISMATCH"
	KindInvalidRenewal          Kind = "INVALID_RENEWAL"
	KindAlreadyCancelled        Kind = "ALREADY_CANCELLED"
	KindConcurrentUpdate        Kind = "CONCURRENT_UPDATE"
	KindValidation              Kind = "VALIDATION_ERROR"
	KindStorageUnavailable      Kind = "STORAGE_UNAVAILABLE"
	KindUnauthorized            Kind = "UNAUTHORIZED"
	KindForbidden               Kind = "FORBIDDEN"
	KindNotFound                Kind = "NOT_FOUND"
	KindConflict                Kind = "CONFLICT"
	KindInternal                Kind = "INTERNAL_ERROR"
)

// kindFor is the fallback discriminator for errors built from a bare class.
func kindFor(code ErrorCode) Kind {
	switch code {
	case ErrCodeNotFound:
		return KindNotFound
	case ErrCodeInvalid:
		return KindValidation
	case ErrCodeConflict:
		return KindConflict
	case ErrCodeForbidden:
		return KindForbidden
	case ErrCodeUnauthorized:
		return KindUnauthorized
	case ErrCodeUnavailable:
		return KindStorageUnavailable
	default:
		return KindInternal
	}
}

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Kind    Kind
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Kind, so copies produced by With/WrapError still compare equal
// to the package-level sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Kind != "" {
		return e.Kind == t.Kind
	}
	return e == t
}

// With returns a copy of the error carrying additional context in its message.
func (e *Error) With(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf("%s: %s", e.Message, fmt.Sprintf(format, args...))
	return &cp
}

// NewError builds a domain error whose kind is derived from its class.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Kind: kindFor(code), Message: message}
}

func newKind(code ErrorCode, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Kind:    kindFor(code),
		Message: message,
		Err:     err,
	}
}

// Internal classifies a failure the caller cannot fix, such as an exhausted entropy
// source or a signing error.
func Internal(message string, err error) *Error {
	return &Error{
		Code:    ErrCodeInternal,
		Kind:    KindInternal,
		Message: message,
		Err:     err,
	}
}

// Unavailable classifies an infrastructure failure. Callers retry with backoff.
func Unavailable(message string, err error) *Error {
	return &Error{
		Code:    ErrCodeUnavailable,
		Kind:    KindStorageUnavailable,
		Message: message,
		Err:     err,
	}
}

// Validation builds a validation error with optional per-field problems.
func Validation(message string, fields map[string][]string) *Error {
	return &Error{
		Code:    ErrCodeInvalid,
		Kind:    KindValidation,
		Message: message,
		Fields:  fields,
	}
}

// Common domain errors.
var (
	ErrCodeGenerationExhausted = newKind(ErrCodeInternal, KindCodeGenerationExhausted, "code generation exhausted")
	ErrCodeCollision           = newKind(ErrCodeConflict, KindCodeCollision, "code already issued")
	ErrVIPCodeNotFound         = newKind(ErrCodeNotFound, KindCodeNotFound, "vip code not found")
	ErrMembershipNotFound      = newKind(ErrCodeNotFound, KindMembershipNotFound, "membership not found")
	ErrBenefitNotFound         = newKind(ErrCodeNotFound, KindBenefitNotFound, "benefit not found")
	ErrAccountNotFound         = newKind(ErrCodeNotFound, KindAccountNotFound, "account not found")
	ErrMembershipNotEligible   = newKind(ErrCodeForbidden, KindMembershipNotEligible, "membership not eligible")
	ErrBenefitInactive         = newKind(ErrCodeForbidden, KindBenefitInactive, "benefit inactive")
	ErrScopeMismatch           = newKind(ErrCodeForbidden, KindScopeMismatch, "benefit out of scope")
	ErrInvalidRenewal          = newKind(ErrCodeConflict, KindInvalidRenewal, "invalid renewal")
	ErrAlreadyCancelled        = newKind(ErrCodeConflict, KindAlreadyCancelled, "membership already cancelled")
	ErrConcurrentUpdate        = newKind(ErrCodeConflict, KindConcurrentUpdate, "membership changed concurrently")
	ErrValidation              = newKind(ErrCodeInvalid, KindValidation, "validation failed")
	ErrStorageUnavailable      = newKind(ErrCodeUnavailable, KindStorageUnavailable, "storage unavailable")
	ErrUnauthorized            = newKind(ErrCodeUnauthorized, KindUnauthorized, "unauthorized")
	ErrForbidden               = newKind(ErrCodeForbidden, KindForbidden, "forbidden")
	ErrInternal                = newKind(ErrCodeInternal, KindInternal, "internal error")
	ErrInvalidPayload          = Validation("invalid payload", nil)
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// KindOf returns the discriminator of a domain error, or "" for foreign errors.
func KindOf(err error) Kind {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Kind
	}
	return ""
}
