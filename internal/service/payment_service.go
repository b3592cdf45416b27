package service

import (
	"context"
	"log/slog"
	"time"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
)

// PaymentService orchestrates money movement between two accounts held by
// the account service. The payment's persisted status is the durable record
// of what was attempted; every transition is written before the next step.
type PaymentService struct {
	payments domain.PaymentRepository
	accounts domain.AccountRepository
	logger   *slog.Logger
}

func NewPaymentService(
	payments domain.PaymentRepository,
	accounts domain.AccountRepository,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		accounts: accounts,
		logger:   logger,
	}
}

type SendPaymentRequest struct {
	FromUserID   string
	ToUserID     string
	AmountCents  int64
	CurrencyCode string
	Description  string
}

// ProcessResult reports how ProcessPayment ended. A failed transfer is a
// result with Success=false, not an error.
type ProcessResult struct {
	TransactionID      string               `json:"transaction_id"`
	Success            bool                 `json:"success"`
	Status             domain.PaymentStatus `json:"status"`
	ProcessedAt        *time.Time           `json:"processed_at"`
	Message            string               `json:"message"`
	ErrorCode          errors.ErrorCode     `json:"error_code,omitempty"`
	SenderNewBalance   *int64               `json:"sender_new_balance,omitempty"`
	ReceiverNewBalance *int64               `json:"receiver_new_balance,omitempty"`
}

type RefundResult struct {
	TransactionID       string               `json:"transaction_id"`
	Status              domain.PaymentStatus `json:"status"`
	RefundedAmountCents int64                `json:"refunded_amount_cents"`
	RefundedAmount      string               `json:"refunded_amount"`
	Currency            string               `json:"currency"`
	SenderNewBalance    int64                `json:"sender_new_balance"`
	ReceiverNewBalance  int64                `json:"receiver_new_balance"`
}

// SendPayment records a PENDING payment. No money moves until ProcessPayment.
func (s *PaymentService) SendPayment(ctx context.Context, req SendPaymentRequest) (*domain.PaymentRecord, error) {
	s.logger.Info("Creating payment",
		"from_user_id", req.FromUserID,
		"to_user_id", req.ToUserID,
		"amount_cents", req.AmountCents,
		"currency", req.CurrencyCode)

	// Pure validation first: nothing remote is touched for a malformed request.
	amount, err := domain.NewAmount(req.AmountCents)
	if err != nil {
		return nil, err
	}
	currency, err := domain.NewCurrency(req.CurrencyCode)
	if err != nil {
		return nil, err
	}
	payment, err := domain.NewPayment(req.FromUserID, req.ToUserID, amount, currency, req.Description)
	if err != nil {
		return nil, err
	}

	// Point-in-time check; the accounts may still disappear before processing.
	if _, err := s.accounts.GetAccount(ctx, payment.FromUserID()); err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetAccount(ctx, payment.ToUserID()); err != nil {
		return nil, err
	}

	if err := s.payments.Save(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.Info("Payment created", "transaction_id", payment.ID())
	rec := payment.Record()
	return &rec, nil
}

// ProcessPayment executes a PENDING payment: PENDING -> PROCESSING, then the
// atomic balance transfer, then COMPLETED or FAILED. Once PROCESSING is
// persisted the call runs to a terminal state even if ctx is cancelled.
func (s *PaymentService) ProcessPayment(ctx context.Context, transactionID string) (*ProcessResult, error) {
	payment, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("transaction_id", payment.ID())
	logger.Info("Processing payment", "status", payment.Status())

	if err := payment.Process(); err != nil {
		return nil, err
	}
	// Conditional on PENDING: a concurrent ProcessPayment loses here.
	if err := s.payments.Update(ctx, payment, domain.PaymentPending); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	sender, err := s.accounts.GetAccount(ctx, payment.FromUserID())
	if err != nil {
		return s.fail(ctx, logger, payment, lookupFailure("Sender", err), err)
	}
	receiver, err := s.accounts.GetAccount(ctx, payment.ToUserID())
	if err != nil {
		return s.fail(ctx, logger, payment, lookupFailure("Receiver", err), err)
	}

	if !sender.CanDebit(payment.Amount()) {
		return s.fail(ctx, logger, payment, "Insufficient balance", errors.ErrInsufficientBalance)
	}

	transfer, err := s.accounts.TransferBalance(ctx, domain.TransferRequest{
		FromUserID:     sender.ID,
		ToUserID:       receiver.ID,
		AmountCents:    payment.Amount().Cents(),
		IdempotencyKey: payment.ID().TransferKey(),
	})
	if err != nil {
		appErr := errors.FromError(err)
		if appErr.Code == errors.InsufficientBalance {
			return s.fail(ctx, logger, payment, "Insufficient balance", appErr)
		}
		transfer = s.appliedTransfer(ctx, logger, payment, appErr)
		if transfer == nil {
			logger.Error("Balance transfer failed",
				"idempotency_key", payment.ID().TransferKey(),
				"error_code", appErr.Code,
				"error", appErr)
			return s.fail(ctx, logger, payment, "Transfer failed: "+appErr.Error(), appErr)
		}
	}

	if err := payment.Complete(); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, payment, domain.PaymentProcessing); err != nil {
		// Money moved but the payment is still PROCESSING in storage; the
		// reconciler completes it from the transfer journal.
		logger.Error("Transfer applied but payment could not be marked COMPLETED",
			"idempotency_key", payment.ID().TransferKey(),
			"error", err)
		return nil, err
	}

	logger.Info("Payment completed",
		"sender_new_balance_cents", transfer.SenderNewBalance,
		"receiver_new_balance_cents", transfer.ReceiverNewBalance)

	return &ProcessResult{
		TransactionID:      payment.ID().String(),
		Success:            true,
		Status:             payment.Status(),
		ProcessedAt:        payment.ProcessedAt(),
		Message:            "Payment completed",
		SenderNewBalance:   &transfer.SenderNewBalance,
		ReceiverNewBalance: &transfer.ReceiverNewBalance,
	}, nil
}

// RefundPayment reverses a COMPLETED payment by transferring the amount from
// the original receiver back to the original sender. The payment is marked
// REFUNDED only after the reversal succeeded.
func (s *PaymentService) RefundPayment(ctx context.Context, transactionID string) (*RefundResult, error) {
	payment, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("transaction_id", payment.ID())
	logger.Info("Refunding payment", "status", payment.Status())

	// Guard before any side effect. The mutation is not persisted until the
	// reversal succeeds.
	if err := payment.Refund(); err != nil {
		return nil, err
	}

	refundKey := payment.ID().RefundKey()
	reversal, err := s.priorReversal(ctx, refundKey)
	if err != nil {
		return nil, err
	}

	if reversal == nil {
		if _, err := s.accounts.GetAccount(ctx, payment.FromUserID()); err != nil {
			return nil, err
		}
		receiver, err := s.accounts.GetAccount(ctx, payment.ToUserID())
		if err != nil {
			return nil, err
		}
		if !receiver.CanDebit(payment.Amount()) {
			return nil, errors.ErrInsufficientBalance.WithDetails(
				"receiver " + receiver.ID + " cannot cover refund of " + payment.Amount().String())
		}

		ctx = context.WithoutCancel(ctx)
		reversal, err = s.accounts.TransferBalance(ctx, domain.TransferRequest{
			FromUserID:     payment.ToUserID(),
			ToUserID:       payment.FromUserID(),
			AmountCents:    payment.Amount().Cents(),
			IdempotencyKey: refundKey,
		})
		if err != nil {
			appErr := errors.FromError(err)
			logger.Error("Refund transfer failed",
				"idempotency_key", refundKey,
				"error_code", appErr.Code,
				"error", appErr)
			return nil, appErr.WithDetails(payment.ID().String() + ": " + appErr.Details)
		}
	} else {
		logger.Info("Refund transfer already applied, finishing refund", "idempotency_key", refundKey)
		ctx = context.WithoutCancel(ctx)
	}

	if err := s.payments.Update(ctx, payment, domain.PaymentCompleted); err != nil {
		logger.Error("Refund transfer applied but payment could not be marked REFUNDED",
			"idempotency_key", refundKey,
			"error", err)
		return nil, err
	}

	logger.Info("Payment refunded", "amount_cents", payment.Amount().Cents())

	// The reversal ran receiver -> sender; relabel for the payment's roles.
	return &RefundResult{
		TransactionID:       payment.ID().String(),
		Status:              payment.Status(),
		RefundedAmountCents: payment.Amount().Cents(),
		RefundedAmount:      payment.Amount().String(),
		Currency:            payment.Currency().Code(),
		SenderNewBalance:    reversal.ReceiverNewBalance,
		ReceiverNewBalance:  reversal.SenderNewBalance,
	}, nil
}

func (s *PaymentService) GetPaymentByID(ctx context.Context, transactionID string) (*domain.PaymentRecord, error) {
	payment, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	rec := payment.Record()
	return &rec, nil
}

func (s *PaymentService) load(ctx context.Context, transactionID string) (*domain.Payment, error) {
	id, err := domain.ParseTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, errors.ErrPaymentNotFound.WithDetails(id.String())
	}
	return payment, nil
}

// fail records reason on the payment and persists FAILED. The caller gets a
// failure result; only a storage error is returned as an error.
func (s *PaymentService) fail(ctx context.Context, logger *slog.Logger, payment *domain.Payment, reason string, cause error) (*ProcessResult, error) {
	logger.Warn("Payment failed", "reason", reason)

	if err := payment.Fail(reason); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, payment, domain.PaymentProcessing); err != nil {
		logger.Error("Failed to persist FAILED status", "reason", reason, "error", err)
		return nil, err
	}

	return &ProcessResult{
		TransactionID: payment.ID().String(),
		Success:       false,
		Status:        payment.Status(),
		ProcessedAt:   payment.ProcessedAt(),
		Message:       reason,
		ErrorCode:     errors.FromError(cause).Code,
	}, nil
}

// appliedTransfer resolves an ambiguous transfer outcome. An unavailable
// account service may have committed the transfer before the response was
// lost, so the journal is checked under the payment's key. It returns nil
// unless the transfer is known to have been applied.
func (s *PaymentService) appliedTransfer(ctx context.Context, logger *slog.Logger, payment *domain.Payment, cause *errors.AppError) *domain.BalanceTransfer {
	if cause.Code != errors.ServiceUnavailable {
		return nil
	}
	key := payment.ID().TransferKey()
	transfer, err := s.accounts.GetTransfer(ctx, key)
	switch {
	case err == nil:
		logger.Warn("Transfer response lost but transfer was applied", "idempotency_key", key)
		return transfer
	case errors.HasCode(err, errors.TransferNotFound):
		logger.Info("Transfer confirmed not applied", "idempotency_key", key)
	default:
		// Still unknown. FAILED is written anyway; the journal entry, if any,
		// stays visible under key.
		logger.Error("Could not confirm transfer outcome", "idempotency_key", key, "error", err)
	}
	return nil
}

// priorReversal returns the refund transfer if an earlier RefundPayment call
// applied it but did not get to persist REFUNDED.
func (s *PaymentService) priorReversal(ctx context.Context, refundKey string) (*domain.BalanceTransfer, error) {
	transfer, err := s.accounts.GetTransfer(ctx, refundKey)
	if err != nil {
		if errors.HasCode(err, errors.TransferNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return transfer, nil
}

func lookupFailure(role string, err error) string {
	if errors.HasCode(err, errors.AccountNotFound) {
		return role + " account not found"
	}
	return role + " account lookup failed: " + errors.FromError(err).Error()
}
