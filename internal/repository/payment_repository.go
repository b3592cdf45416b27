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

const paymentColumns = `id, from_user_id, to_user_id, amount_cents, currency_code, status, description, failure_reason, created_at, processed_at, updated_at`

type paymentRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewPaymentRepository(db SQLExecutor, logger *slog.Logger) domain.PaymentRepository {
	return &paymentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *paymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	rec := payment.Record()
	_, err := r.db.ExecContext(ctx,
		query,
		rec.ID,
		rec.FromUserID,
		rec.ToUserID,
		rec.AmountCents,
		rec.CurrencyCode,
		string(rec.Status),
		rec.Description,
		rec.FailureReason,
		rec.CreatedAt,
		nullTime(rec.ProcessedAt),
		rec.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			r.logger.Warn("Duplicate transaction id", "transaction_id", rec.ID)
			return errors.ErrDuplicateTransaction.WithDetails(rec.ID)
		}
		r.logger.Error("Failed to save payment", "transaction_id", rec.ID, "error", err)
		return errors.ErrStorage.WithDetails(err.Error())
	}

	r.logger.Info("Payment saved", "transaction_id", rec.ID, "status", rec.Status)
	return nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id domain.TransactionID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get payment", "transaction_id", id, "error", err)
		return nil, storageErr(err)
	}
	return payment, nil
}

func (r *paymentRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE from_user_id = $1 OR to_user_id = $1`

	return r.queryPayments(ctx, query, userID)
}

func (r *paymentRepository) FindStuck(ctx context.Context, status domain.PaymentStatus, updatedBefore time.Time, limit int) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	return r.queryPayments(ctx, query, string(status), updatedBefore, limit)
}

// Update is a compare-and-swap on status: the row changes only if it is
// still in expected, so two writers racing on one payment cannot both win.
func (r *paymentRepository) Update(ctx context.Context, payment *domain.Payment, expected domain.PaymentStatus) error {
	query := `
		UPDATE payments
		SET status = $1, failure_reason = $2, processed_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`

	rec := payment.Record()
	result, err := r.db.ExecContext(ctx,
		query,
		string(rec.Status),
		rec.FailureReason,
		nullTime(rec.ProcessedAt),
		rec.UpdatedAt,
		rec.ID,
		string(expected),
	)
	if err != nil {
		r.logger.Error("Failed to update payment", "transaction_id", rec.ID, "status", rec.Status, "error", err)
		return errors.ErrStorage.WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.ErrStorage.WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		var current string
		err := r.db.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = $1`, rec.ID).Scan(&current)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.ErrPaymentNotFound.WithDetails(rec.ID)
		}
		if err != nil {
			return errors.ErrStorage.WithDetails(err.Error())
		}
		r.logger.Warn("Payment changed concurrently",
			"transaction_id", rec.ID, "expected", expected, "current", current, "attempted", rec.Status)
		return errors.NewAppErrorf(errors.InvalidStateTransition,
			"payment %s is %s, expected %s", rec.ID, current, expected)
	}

	r.logger.Info("Payment status updated", "transaction_id", rec.ID, "from", expected, "to", rec.Status)
	return nil
}

func (r *paymentRepository) queryPayments(ctx context.Context, query string, args ...interface{}) ([]*domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query payments", "error", err)
		return nil, errors.ErrStorage.WithDetails(err.Error())
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrStorage.WithDetails(err.Error())
	}
	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var rec domain.PaymentRecord
	var status string
	var processedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.FromUserID,
		&rec.ToUserID,
		&rec.AmountCents,
		&rec.CurrencyCode,
		&status,
		&rec.Description,
		&rec.FailureReason,
		&rec.CreatedAt,
		&processedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.PaymentStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	return domain.RestorePayment(rec)
}

// storageErr keeps AppErrors from RestorePayment and wraps anything else.
func storageErr(err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.ErrStorage.WithDetails(err.Error())
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
