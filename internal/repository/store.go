package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

// Account returns an AccountStorage using the current executor
func (s *Store) Account() domain.AccountStorage {
	return NewAccountRepository(s.executor, s.logger)
}

// Transfer returns a TransferStorage using the current executor
func (s *Store) Transfer() domain.TransferStorage {
	return NewTransferRepository(s.executor, s.logger)
}

// Payment returns a PaymentRepository using the current executor
func (s *Store) Payment() domain.PaymentRepository {
	return NewPaymentRepository(s.executor, s.logger)
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	// Only a DB can begin transactions
	db, ok := s.executor.(DB)
	if !ok {
		return errors.ErrNestedTransaction
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return errors.ErrStorage.WithDetails(err.Error())
	}

	txStore := &Store{
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return errors.ErrStorage.WithDetails(err.Error())
	}
	return nil
}
