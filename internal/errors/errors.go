package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput           ErrorCode = "invalid_input"
	InvalidAmount          ErrorCode = "invalid_amount"
	InvalidCurrency        ErrorCode = "invalid_currency"
	InvalidTransactionID   ErrorCode = "invalid_transaction_id"
	InvalidDescription     ErrorCode = "invalid_description"
	SameAccountTransfer    ErrorCode = "same_account_transfer"
	AccountNotFound        ErrorCode = "account_not_found"
	PaymentNotFound        ErrorCode = "payment_not_found"
	TransferNotFound       ErrorCode = "transfer_not_found"
	InvalidStateTransition ErrorCode = "invalid_state_transition"
	InsufficientBalance    ErrorCode = "insufficient_balance"
	DuplicateAccount       ErrorCode = "duplicate_account"
	DuplicateTransaction   ErrorCode = "duplicate_transaction"
	IdempotencyConflict    ErrorCode = "idempotency_conflict"
	ServiceUnavailable     ErrorCode = "service_unavailable"
	StorageError           ErrorCode = "storage_error"
	InternalError          ErrorCode = "internal_error"
)

var knownCodes = map[ErrorCode]bool{
	InvalidInput: true, InvalidAmount: true, InvalidCurrency: true, InvalidTransactionID: true,
	InvalidDescription: true, SameAccountTransfer: true, AccountNotFound: true, PaymentNotFound: true,
	TransferNotFound: true, InvalidStateTransition: true, InsufficientBalance: true, DuplicateAccount: true,
	DuplicateTransaction: true, IdempotencyConflict: true, ServiceUnavailable: true, StorageError: true,
	InternalError: true,
}

// ParseErrorCode maps a wire code back to an ErrorCode.
func ParseErrorCode(s string) (ErrorCode, bool) {
	code := ErrorCode(s)
	return code, knownCodes[code]
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AppError carrying the same code, so callers can compare
// against the predefined values below even after WithDetails.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of e carrying details. Predefined errors are
// shared values and must never be mutated.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// HTTPStatus maps the error code to the status written by the transport layer.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InvalidCurrency, InvalidTransactionID,
		InvalidDescription, SameAccountTransfer:
		return http.StatusBadRequest
	case AccountNotFound, PaymentNotFound, TransferNotFound:
		return http.StatusNotFound
	case InvalidStateTransition, DuplicateAccount, DuplicateTransaction, IdempotencyConflict:
		return http.StatusConflict
	case InsufficientBalance:
		return http.StatusUnprocessableEntity
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the failed operation unchanged.
func (e *AppError) Retryable() bool {
	return e.Code == ServiceUnavailable || e.Code == StorageError
}

// FromError extracts an AppError from err. Anything else is reported as an
// internal error carrying the original message.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").WithDetails(err.Error())
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// NewInvalidTransition reports an illegal payment state transition.
func NewInvalidTransition(current, attempted string) *AppError {
	return NewAppErrorf(InvalidStateTransition, "cannot %s payment in status %s", attempted, current)
}

// Predefined errors for common cases
var (
	ErrInvalidInput         = NewAppError(InvalidInput, "invalid input")
	ErrInvalidAmount        = NewAppError(InvalidAmount, "amount must be an integer number of cents between 0 and 999999999")
	ErrZeroAmount           = NewAppError(InvalidAmount, "amount must be greater than zero")
	ErrInvalidCurrency      = NewAppError(InvalidCurrency, "unsupported currency")
	ErrInvalidTransactionID = NewAppError(InvalidTransactionID, "transaction id must be 1 to 50 characters")
	ErrDescriptionTooLong   = NewAppError(InvalidDescription, "description must be at most 255 characters")
	ErrInvalidAccountID     = NewAppError(InvalidInput, "invalid account id")
	ErrSameAccountTransfer  = NewAppError(SameAccountTransfer, "sender and receiver must be different users")
	ErrAccountNotFound      = NewAppError(AccountNotFound, "account not found")
	ErrPaymentNotFound      = NewAppError(PaymentNotFound, "payment not found")
	ErrTransferNotFound     = NewAppError(TransferNotFound, "transfer not found")
	ErrInsufficientBalance  = NewAppError(InsufficientBalance, "insufficient balance")
	ErrDuplicateAccount     = NewAppError(DuplicateAccount, "account already exists")
	ErrDuplicateTransaction = NewAppError(DuplicateTransaction, "transaction already exists")
	ErrIdempotencyConflict  = NewAppError(IdempotencyConflict, "idempotency key reused with different parameters")
	ErrServiceUnavailable   = NewAppError(ServiceUnavailable, "account service unavailable")
	ErrStorage              = NewAppError(StorageError, "storage failure")
	ErrNestedTransaction    = NewAppError(InternalError, "cannot begin a transaction inside a transaction")
)
