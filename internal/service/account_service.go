package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
	"p2p-ledger/internal/repository"
)

const maxIdempotencyKeyLength = 100

// AccountService owns balances. Its TransferBalance is the atomic primitive
// the payment service relies on; it also satisfies domain.AccountRepository
// so it can be used in-process.
type AccountService struct {
	store  *repository.Store
	logger *slog.Logger
}

var _ domain.AccountRepository = (*AccountService)(nil)

func NewAccountService(store *repository.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
	}
}

func (s *AccountService) CreateAccount(ctx context.Context, userID, email string, initialBalance int64) (*domain.Account, error) {
	s.logger.Info("Creating account", "user_id", userID, "initial_balance_cents", initialBalance)

	if initialBalance < 0 {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance cannot be negative")
	}

	// Validate reasonable limits
	if initialBalance > domain.MaxInitialBalanceCents {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance exceeds maximum limit")
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = uuid.NewString()
	}
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:      userID,
		Email:   strings.TrimSpace(email),
		Balance: initialBalance,
	}

	if err := s.store.Account().CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Account created successfully", "user_id", account.ID)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.ErrInvalidAccountID
	}

	return s.store.Account().GetAccount(ctx, userID)
}

// TransferBalance moves req.AmountCents from sender to receiver in a single
// database transaction and journals the result under req.IdempotencyKey.
// Replaying a key returns the journaled result without moving money again.
func (s *AccountService) TransferBalance(ctx context.Context, req domain.TransferRequest) (*domain.BalanceTransfer, error) {
	logger := s.logger.With(
		"from_user_id", req.FromUserID,
		"to_user_id", req.ToUserID,
		"amount_cents", req.AmountCents,
		"idempotency_key", req.IdempotencyKey)
	logger.Info("Processing balance transfer")

	if err := validateTransfer(req); err != nil {
		return nil, err
	}

	var result *domain.BalanceTransfer
	err := s.store.WithTransaction(ctx, func(tx *repository.Store) error {
		existing, err := tx.Transfer().GetTransferByKey(ctx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.Matches(req) {
				return errors.ErrIdempotencyConflict.WithDetails(req.IdempotencyKey)
			}
			logger.Info("Returning journaled transfer for idempotency key")
			result = existing
			return nil
		}

		// Lock both rows in a fixed order so opposite transfers cannot deadlock.
		ids := []string{req.FromUserID, req.ToUserID}
		sort.Strings(ids)
		locked := make(map[string]*domain.Account, 2)
		for _, id := range ids {
			account, err := tx.Account().GetAccountForUpdate(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = account
		}

		sender := locked[req.FromUserID]
		receiver := locked[req.ToUserID]

		if sender.Balance < req.AmountCents {
			return errors.ErrInsufficientBalance.WithDetails(
				"balance " + domain.FormatCents(sender.Balance) + " < amount " + domain.FormatCents(req.AmountCents))
		}

		transfer := &domain.BalanceTransfer{
			IdempotencyKey:     req.IdempotencyKey,
			FromUserID:         req.FromUserID,
			ToUserID:           req.ToUserID,
			AmountCents:        req.AmountCents,
			SenderNewBalance:   sender.Balance - req.AmountCents,
			ReceiverNewBalance: receiver.Balance + req.AmountCents,
		}

		if err := tx.Account().UpdateAccountBalance(ctx, sender.ID, transfer.SenderNewBalance); err != nil {
			return err
		}
		if err := tx.Account().UpdateAccountBalance(ctx, receiver.ID, transfer.ReceiverNewBalance); err != nil {
			return err
		}
		if err := tx.Transfer().CreateTransfer(ctx, transfer); err != nil {
			return err
		}

		result = transfer
		return nil
	})

	if err != nil {
		// A concurrent request with the same key committed first.
		if errors.HasCode(err, errors.DuplicateTransaction) {
			return s.replay(ctx, req)
		}
		logger.Warn("Balance transfer rejected", "error", err)
		return nil, err
	}

	logger.Info("Balance transfer applied",
		"sender_new_balance_cents", result.SenderNewBalance,
		"receiver_new_balance_cents", result.ReceiverNewBalance)
	return result, nil
}

// GetTransfer looks up a journaled transfer by its idempotency key.
func (s *AccountService) GetTransfer(ctx context.Context, idempotencyKey string) (*domain.BalanceTransfer, error) {
	transfer, err := s.store.Transfer().GetTransferByKey(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, errors.ErrTransferNotFound.WithDetails(idempotencyKey)
	}
	return transfer, nil
}

func (s *AccountService) replay(ctx context.Context, req domain.TransferRequest) (*domain.BalanceTransfer, error) {
	existing, err := s.GetTransfer(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !existing.Matches(req) {
		return nil, errors.ErrIdempotencyConflict.WithDetails(req.IdempotencyKey)
	}
	return existing, nil
}

func validateTransfer(req domain.TransferRequest) error {
	if strings.TrimSpace(req.FromUserID) == "" || strings.TrimSpace(req.ToUserID) == "" {
		return errors.ErrInvalidAccountID
	}
	if req.FromUserID == req.ToUserID {
		return errors.ErrSameAccountTransfer
	}
	amount, err := domain.NewAmount(req.AmountCents)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return errors.ErrZeroAmount
	}
	if req.IdempotencyKey == "" || len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		return errors.NewAppError(errors.InvalidInput, "idempotency key must be 1 to 100 characters")
	}
	return nil
}
