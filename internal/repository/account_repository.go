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

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountStorage {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, balance_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		query,
		account.ID,
		account.Email,
		account.Balance,
		now,
		now,
	)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			r.logger.Warn("Duplicate account creation attempt", "user_id", account.ID)
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to create account", "user_id", account.ID, "error", err)
		return errors.ErrStorage.WithDetails(err.Error())
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "user_id", account.ID)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, email, balance_cents, created_at, updated_at
		FROM accounts WHERE id = $1
	`

	return r.scanAccount(ctx, query, id)
}

func (r *accountRepository) GetAccountForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, email, balance_cents, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE
	`

	return r.scanAccount(ctx, query, id)
}

func (r *accountRepository) scanAccount(ctx context.Context, query string, id string) (*domain.Account, error) {
	var account domain.Account

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.Email,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("Account not found", "user_id", id)
			return nil, errors.ErrAccountNotFound.WithDetails(id)
		}
		r.logger.Error("Failed to get account", "user_id", id, "error", err)
		return nil, errors.ErrStorage.WithDetails(err.Error())
	}

	return &account, nil
}

func (r *accountRepository) UpdateAccountBalance(ctx context.Context, id string, newBalance int64) error {
	query := `
		UPDATE accounts
		SET balance_cents = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, newBalance, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update account balance", "user_id", id, "error", err)
		return errors.ErrStorage.WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.ErrStorage.WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "user_id", id)
		return errors.ErrAccountNotFound.WithDetails(id)
	}

	r.logger.Info("Account balance updated", "user_id", id, "new_balance_cents", newBalance)
	return nil
}
