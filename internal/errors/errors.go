// Package errors defines the ledger error taxonomy and its reporting helpers.
package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind names an error class surfaced verbatim to clients.
type Kind string

const (
	KindInvalidArgument        Kind = "InvalidArgument"
	KindUnauthorized           Kind = "Unauthorized"
	KindRecordNotFound         Kind = "RecordNotFound"
	KindAlreadyInitialized     Kind = "AlreadyInitialized"
	KindDerivationExhausted    Kind = "DerivationExhausted"
	KindAccountLocked          Kind = "AccountLocked"
	KindArithmeticOverflow     Kind = "ArithmeticOverflow"
	KindRecordCapacityExceeded Kind = "RecordCapacityExceeded"
	KindStorage                Kind = "Storage"
	KindRateLimited            Kind = "RateLimited"
	KindInternal               Kind = "Internal"
)

type AppError struct {
	Code        string
	Kind        Kind
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	RetryAfter  int
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is matches any AppError of the same Kind, so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}

	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidArgument        = &AppError{Kind: KindInvalidArgument, Code: "E100"}
	ErrUnauthorized           = &AppError{Kind: KindUnauthorized, Code: "E110"}
	ErrRecordNotFound         = &AppError{Kind: KindRecordNotFound, Code: "E120"}
	ErrAlreadyInitialized     = &AppError{Kind: KindAlreadyInitialized, Code: "E130"}
	ErrDerivationExhausted    = &AppError{Kind: KindDerivationExhausted, Code: "E140"}
	ErrAccountLocked          = &AppError{Kind: KindAccountLocked, Code: "E150"}
	ErrArithmeticOverflow     = &AppError{Kind: KindArithmeticOverflow, Code: "E160"}
	ErrRecordCapacityExceeded = &AppError{Kind: KindRecordCapacityExceeded, Code: "E170"}
	ErrStorage                = &AppError{Kind: KindStorage, Code: "E200"}
	ErrRateLimited            = &AppError{Kind: KindRateLimited, Code: "E500"}
	ErrInternal               = &AppError{Kind: KindInternal, Code: "E900"}
)

func NewInvalidArgumentError(format string, args ...any) *AppError {
	return &AppError{
		Code:        ErrInvalidArgument.Code,
		Kind:        KindInvalidArgument,
		Message:     fmt.Sprintf(format, args...),
		UserMessage: "errors.invalid_argument",
		Severity:    SeverityLow,
	}
}

func NewUnauthorizedError(format string, args ...any) *AppError {
	return &AppError{
		Code:        ErrUnauthorized.Code,
		Kind:        KindUnauthorized,
		Message:     fmt.Sprintf(format, args...),
		UserMessage: "errors.unauthorized",
		Severity:    SeverityMedium,
	}
}

func NewRecordNotFoundError(address string) *AppError {
	return &AppError{
		Code:        ErrRecordNotFound.Code,
		Kind:        KindRecordNotFound,
		Message:     fmt.Sprintf("no progress record at %s", address),
		UserMessage: "errors.record_not_found",
		Severity:    SeverityLow,
	}
}

func NewAlreadyInitializedError(address string) *AppError {
	return &AppError{
		Code:        ErrAlreadyInitialized.Code,
		Kind:        KindAlreadyInitialized,
		Message:     fmt.Sprintf("progress record at %s is already initialized", address),
		UserMessage: "errors.already_initialized",
		Severity:    SeverityLow,
	}
}

func NewDerivationExhaustedError(user string) *AppError {
	return &AppError{
		Code:        ErrDerivationExhausted.Code,
		Kind:        KindDerivationExhausted,
		Message:     fmt.Sprintf("no viable bump seed for %s", user),
		UserMessage: "errors.derivation_exhausted",
		Severity:    SeverityCritical,
	}
}

func NewAccountLockedError(address string) *AppError {
	return &AppError{
		Code:        ErrAccountLocked.Code,
		Kind:        KindAccountLocked,
		Message:     fmt.Sprintf("account %s is being modified by another submission", address),
		UserMessage: "errors.account_locked",
		Severity:    SeverityLow,
		Retryable:   true,
	}
}

func NewArithmeticOverflowError(field string) *AppError {
	return &AppError{
		Code:        ErrArithmeticOverflow.Code,
		Kind:        KindArithmeticOverflow,
		Message:     fmt.Sprintf("%s would overflow", field),
		UserMessage: "errors.arithmetic_overflow",
		Severity:    SeverityMedium,
	}
}

func NewRecordCapacityExceededError(limit int) *AppError {
	return &AppError{
		Code:        ErrRecordCapacityExceeded.Code,
		Kind:        KindRecordCapacityExceeded,
		Message:     fmt.Sprintf("progress record is full (%d lessons)", limit),
		UserMessage: "errors.record_capacity_exceeded",
		Severity:    SeverityMedium,
	}
}

func NewStorageError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        ErrStorage.Code,
		Kind:        KindStorage,
		Message:     fmt.Sprintf("storage error: %s", underlyingMsg),
		UserMessage: "errors.storage",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        ErrRateLimited.Code,
		Kind:        KindRateLimited,
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: "errors.rate_limited",
		Severity:    SeverityLow,
		Retryable:   true,
		RetryAfter:  retryAfter,
	}
}

func NewInternalError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        ErrInternal.Code,
		Kind:        KindInternal,
		Message:     fmt.Sprintf("internal error: %s", underlyingMsg),
		UserMessage: "errors.internal",
		Severity:    SeverityHigh,
		cause:       cause,
	}
}
