package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetails_DoesNotMutateShared(t *testing.T) {
	detailed := ErrAccountNotFound.WithDetails("alice")

	assert.Equal(t, "alice", detailed.Details)
	assert.Empty(t, ErrAccountNotFound.Details)
	assert.ErrorIs(t, detailed, ErrAccountNotFound)
}

func TestIs_MatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("loading payment: %w", ErrPaymentNotFound.WithDetails("PAY_1"))

	assert.True(t, stderrors.Is(wrapped, ErrPaymentNotFound))
	assert.False(t, stderrors.Is(wrapped, ErrAccountNotFound))
	assert.True(t, HasCode(wrapped, PaymentNotFound))
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		InvalidAmount:          http.StatusBadRequest,
		SameAccountTransfer:    http.StatusBadRequest,
		PaymentNotFound:        http.StatusNotFound,
		InvalidStateTransition: http.StatusConflict,
		IdempotencyConflict:    http.StatusConflict,
		InsufficientBalance:    http.StatusUnprocessableEntity,
		ServiceUnavailable:     http.StatusServiceUnavailable,
		StorageError:           http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, NewAppError(code, "x").HTTPStatus(), code)
	}
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	appErr := FromError(stderrors.New("boom"))
	assert.Equal(t, InternalError, appErr.Code)
	assert.Equal(t, "boom", appErr.Details)

	assert.Same(t, ErrStorage, FromError(ErrStorage))
}

func TestParseErrorCode(t *testing.T) {
	code, ok := ParseErrorCode("insufficient_balance")
	assert.True(t, ok)
	assert.Equal(t, InsufficientBalance, code)

	_, ok = ParseErrorCode("teapot")
	assert.False(t, ok)
}

func TestError_Format(t *testing.T) {
	assert.Equal(t, "payment_not_found: payment not found", ErrPaymentNotFound.Error())
	assert.Equal(t, "payment_not_found: payment not found (PAY_1)", ErrPaymentNotFound.WithDetails("PAY_1").Error())
}
