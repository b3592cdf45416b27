package domain

import (
	"strings"

	"github.com/google/uuid"

	"p2p-ledger/internal/errors"
)

const (
	transactionIDPrefix    = "PAY_"
	maxTransactionIDLength = 50
)

// TransactionID identifies one payment. Uniqueness is enforced by storage.
type TransactionID struct {
	value string
}

func GenerateTransactionID() TransactionID {
	return TransactionID{value: transactionIDPrefix + uuid.NewString()}
}

func ParseTransactionID(value string) (TransactionID, error) {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxTransactionIDLength {
		return TransactionID{}, errors.ErrInvalidTransactionID.WithDetails(value)
	}
	return TransactionID{value: value}, nil
}

func (id TransactionID) String() string {
	return id.value
}

// TransferKey is the idempotency key sent with the forward balance transfer.
func (id TransactionID) TransferKey() string {
	return id.value + ":transfer"
}

// RefundKey is the idempotency key sent with the reversing transfer.
func (id TransactionID) RefundKey() string {
	return id.value + ":refund"
}
