package worker

import (
	"context"
	"log/slog"
	"time"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
)

const reconcileFailureReason = "reconciliation: transfer was never applied"

// Reconciler resolves payments left in PROCESSING by a crash or a lost
// write between the balance transfer and the final status update. The
// account service's transfer journal is the source of truth.
type Reconciler struct {
	payments   domain.PaymentRepository
	accounts   domain.AccountRepository
	logger     *slog.Logger
	interval   time.Duration
	stuckAfter time.Duration
	batchSize  int
}

func NewReconciler(
	payments domain.PaymentRepository,
	accounts domain.AccountRepository,
	logger *slog.Logger,
	interval time.Duration,
	stuckAfter time.Duration,
	batchSize int,
) *Reconciler {
	return &Reconciler{
		payments:   payments,
		accounts:   accounts,
		logger:     logger,
		interval:   interval,
		stuckAfter: stuckAfter,
		batchSize:  batchSize,
	}
}

// Run reconciles on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Reconciliation worker started",
		"interval", r.interval.String(),
		"stuck_after", r.stuckAfter.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("Reconciliation failed", "error", err)
			}
		}
	}
}

// RunOnce makes one pass over stuck payments and returns how many reached a
// terminal state. Payments whose transfer cannot be checked right now are
// left for the next pass.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-r.stuckAfter)
	stuck, err := r.payments.FindStuck(ctx, domain.PaymentProcessing, cutoff, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	r.logger.Warn("Found stuck payments", "count", len(stuck))

	resolved := 0
	for _, payment := range stuck {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if r.resolve(ctx, payment) {
			resolved++
		}
	}
	return resolved, nil
}

func (r *Reconciler) resolve(ctx context.Context, payment *domain.Payment) bool {
	logger := r.logger.With(
		"transaction_id", payment.ID(),
		"processing_since", payment.UpdatedAt())
	key := payment.ID().TransferKey()

	transfer, err := r.accounts.GetTransfer(ctx, key)
	switch {
	case err == nil:
		if err := payment.Complete(); err != nil {
			logger.Error("Cannot complete stuck payment", "error", err)
			return false
		}
		logger.Warn("Transfer was applied, completing payment",
			"sender_new_balance_cents", transfer.SenderNewBalance,
			"receiver_new_balance_cents", transfer.ReceiverNewBalance)
	case errors.HasCode(err, errors.TransferNotFound):
		if err := payment.Fail(reconcileFailureReason); err != nil {
			logger.Error("Cannot fail stuck payment", "error", err)
			return false
		}
		logger.Warn("Transfer was never applied, failing payment")
	default:
		logger.Warn("Could not check transfer, will retry", "idempotency_key", key, "error", err)
		return false
	}

	if err := r.payments.Update(ctx, payment, domain.PaymentProcessing); err != nil {
		// A ProcessPayment call that finished in the meantime wins.
		if errors.HasCode(err, errors.InvalidStateTransition) {
			logger.Info("Payment resolved concurrently, skipping")
			return false
		}
		logger.Error("Failed to persist reconciled status", "error", err)
		return false
	}
	return true
}
