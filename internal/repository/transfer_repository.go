package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
)

type transferRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransferRepository(db SQLExecutor, logger *slog.Logger) domain.TransferStorage {
	return &transferRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transferRepository) CreateTransfer(ctx context.Context, t *domain.BalanceTransfer) error {
	query := `
		INSERT INTO balance_transfers
		(idempotency_key, from_user_id, to_user_id, amount_cents, sender_new_balance, receiver_new_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		query,
		t.IdempotencyKey,
		t.FromUserID,
		t.ToUserID,
		t.AmountCents,
		t.SenderNewBalance,
		t.ReceiverNewBalance,
		now,
	)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			r.logger.Warn("Duplicate idempotency key", "idempotency_key", t.IdempotencyKey)
			return errors.ErrDuplicateTransaction.WithDetails(t.IdempotencyKey)
		}
		r.logger.Error("Failed to record balance transfer",
			"idempotency_key", t.IdempotencyKey,
			"from_user_id", t.FromUserID,
			"to_user_id", t.ToUserID,
			"amount_cents", t.AmountCents,
			"error", err)
		return errors.ErrStorage.WithDetails(err.Error())
	}

	t.CreatedAt = now
	return nil
}

func (r *transferRepository) GetTransferByKey(ctx context.Context, key string) (*domain.BalanceTransfer, error) {
	query := `
		SELECT idempotency_key, from_user_id, to_user_id, amount_cents, sender_new_balance, receiver_new_balance, created_at
		FROM balance_transfers WHERE idempotency_key = $1
	`

	var t domain.BalanceTransfer
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&t.IdempotencyKey,
		&t.FromUserID,
		&t.ToUserID,
		&t.AmountCents,
		&t.SenderNewBalance,
		&t.ReceiverNewBalance,
		&t.CreatedAt,
	)

	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get balance transfer", "idempotency_key", key, "error", err)
		return nil, errors.ErrStorage.WithDetails(err.Error())
	}

	return &t, nil
}
