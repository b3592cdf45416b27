package domain

import (
	"context"
	"time"
)

// AccountRepository is the payment core's view of the account service.
// TransferBalance must be atomic: both balances move or neither does.
type AccountRepository interface {
	GetAccount(ctx context.Context, userID string) (*Account, error)
	TransferBalance(ctx context.Context, req TransferRequest) (*BalanceTransfer, error)
	GetTransfer(ctx context.Context, idempotencyKey string) (*BalanceTransfer, error)
}

type PaymentRepository interface {
	Save(ctx context.Context, payment *Payment) error
	// FindByID returns nil, nil when no payment has the id.
	FindByID(ctx context.Context, id TransactionID) (*Payment, error)
	FindByUserID(ctx context.Context, userID string) ([]*Payment, error)
	// Update persists payment only if the stored status still equals expected.
	Update(ctx context.Context, payment *Payment, expected PaymentStatus) error
	FindStuck(ctx context.Context, status PaymentStatus, updatedBefore time.Time, limit int) ([]*Payment, error)
}

// AccountStorage is the account service's own persistence.
type AccountStorage interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountForUpdate(ctx context.Context, id string) (*Account, error)
	UpdateAccountBalance(ctx context.Context, id string, newBalance int64) error
}

type TransferStorage interface {
	CreateTransfer(ctx context.Context, transfer *BalanceTransfer) error
	// GetTransferByKey returns nil, nil when the key was never applied.
	GetTransferByKey(ctx context.Context, key string) (*BalanceTransfer, error)
}
