// Package testutil holds in-memory implementations of the domain
// repositories for tests that do not need Postgres or a live account service.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// PaymentStore is an in-memory domain.PaymentRepository with the same
// conditional-update semantics as the Postgres repository.
type PaymentStore struct {
	mu        sync.Mutex
	records   map[string]domain.PaymentRecord
	updateErr error
	updates   int
}

var _ domain.PaymentRepository = (*PaymentStore)(nil)

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{records: make(map[string]domain.PaymentRecord)}
}

func (s *PaymentStore) Save(_ context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := p.Record()
	if _, exists := s.records[rec.ID]; exists {
		return errors.ErrDuplicateTransaction.WithDetails(rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *PaymentStore) FindByID(_ context.Context, id domain.TransactionID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id.String()]
	if !ok {
		return nil, nil
	}
	return domain.RestorePayment(rec)
}

func (s *PaymentStore) FindByUserID(_ context.Context, userID string) ([]*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Payment
	for _, rec := range s.records {
		if rec.FromUserID != userID && rec.ToUserID != userID {
			continue
		}
		p, err := domain.RestorePayment(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PaymentStore) Update(_ context.Context, p *domain.Payment, expected domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}

	rec := p.Record()
	current, ok := s.records[rec.ID]
	if !ok {
		return errors.ErrPaymentNotFound.WithDetails(rec.ID)
	}
	if current.Status != expected {
		return errors.NewAppErrorf(errors.InvalidStateTransition,
			"payment %s is %s, expected %s", rec.ID, current.Status, expected)
	}
	s.records[rec.ID] = rec
	s.updates++
	return nil
}

func (s *PaymentStore) FindStuck(_ context.Context, status domain.PaymentStatus, updatedBefore time.Time, limit int) ([]*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Payment
	for _, rec := range s.records {
		if len(out) >= limit {
			break
		}
		if rec.Status != status || !rec.UpdatedAt.Before(updatedBefore) {
			continue
		}
		p, err := domain.RestorePayment(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Put stores rec as-is, bypassing the aggregate. Used to seed history and
// stuck payments with chosen timestamps.
func (s *PaymentStore) Put(rec domain.PaymentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

// Get returns the stored record for id.
func (s *PaymentStore) Get(id string) (domain.PaymentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// FailUpdates makes every subsequent Update return err. Pass nil to clear.
func (s *PaymentStore) FailUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

// AccountLedger is an in-memory domain.AccountRepository. Transfers are
// atomic under one mutex and journaled by idempotency key.
type AccountLedger struct {
	mu            sync.Mutex
	accounts      map[string]*domain.Account
	transfers     map[string]*domain.BalanceTransfer
	lookupErr     map[string]error
	transferErr   error
	applyThenFail error
	transferCalls int
}

var _ domain.AccountRepository = (*AccountLedger)(nil)

func NewAccountLedger() *AccountLedger {
	return &AccountLedger{
		accounts:  make(map[string]*domain.Account),
		transfers: make(map[string]*domain.BalanceTransfer),
		lookupErr: make(map[string]error),
	}
}

// AddAccount opens an account with balance cents.
func (l *AccountLedger) AddAccount(id string, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	l.accounts[id] = &domain.Account{ID: id, Email: id + "@example.com", Balance: balance, CreatedAt: now, UpdatedAt: now}
}

// Balance returns the current balance of id.
func (l *AccountLedger) Balance(id string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[id]; ok {
		return a.Balance
	}
	return 0
}

// SetBalance overwrites the balance of an existing account.
func (l *AccountLedger) SetBalance(id string, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[id].Balance = balance
}

// FailLookup makes GetAccount(id) return err.
func (l *AccountLedger) FailLookup(id string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lookupErr[id] = err
}

// FailTransfers makes TransferBalance return err without moving money.
func (l *AccountLedger) FailTransfers(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transferErr = err
}

// ApplyThenFail makes TransferBalance move the money and then report err,
// as a timeout after the remote side committed would.
func (l *AccountLedger) ApplyThenFail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyThenFail = err
}

// TransferCalls counts TransferBalance invocations, replays included.
func (l *AccountLedger) TransferCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferCalls
}

func (l *AccountLedger) GetAccount(_ context.Context, userID string) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lookupErr[userID]; err != nil {
		return nil, err
	}
	a, ok := l.accounts[userID]
	if !ok {
		return nil, errors.ErrAccountNotFound.WithDetails(userID)
	}
	cp := *a
	return &cp, nil
}

func (l *AccountLedger) TransferBalance(_ context.Context, req domain.TransferRequest) (*domain.BalanceTransfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.transferCalls++
	if l.transferErr != nil {
		return nil, l.transferErr
	}
	if existing, ok := l.transfers[req.IdempotencyKey]; ok {
		if !existing.Matches(req) {
			return nil, errors.ErrIdempotencyConflict.WithDetails(req.IdempotencyKey)
		}
		cp := *existing
		return &cp, nil
	}

	sender, ok := l.accounts[req.FromUserID]
	if !ok {
		return nil, errors.ErrAccountNotFound.WithDetails(req.FromUserID)
	}
	receiver, ok := l.accounts[req.ToUserID]
	if !ok {
		return nil, errors.ErrAccountNotFound.WithDetails(req.ToUserID)
	}
	if sender.Balance < req.AmountCents {
		return nil, errors.ErrInsufficientBalance
	}

	sender.Balance -= req.AmountCents
	receiver.Balance += req.AmountCents
	t := &domain.BalanceTransfer{
		IdempotencyKey:     req.IdempotencyKey,
		FromUserID:         req.FromUserID,
		ToUserID:           req.ToUserID,
		AmountCents:        req.AmountCents,
		SenderNewBalance:   sender.Balance,
		ReceiverNewBalance: receiver.Balance,
		CreatedAt:          time.Now().UTC(),
	}
	l.transfers[req.IdempotencyKey] = t

	if l.applyThenFail != nil {
		return nil, l.applyThenFail
	}
	cp := *t
	return &cp, nil
}

func (l *AccountLedger) GetTransfer(_ context.Context, key string) (*domain.BalanceTransfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.transfers[key]
	if !ok {
		return nil, errors.ErrTransferNotFound.WithDetails(key)
	}
	cp := *t
	return &cp, nil
}
