package service

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
	"p2p-ledger/internal/repository"
	"p2p-ledger/internal/testutil"
)

var (
	accountColumns  = []string{"id", "email", "balance_cents", "created_at", "updated_at"}
	transferColumns = []string{
		"idempotency_key", "from_user_id", "to_user_id", "amount_cents",
		"sender_new_balance", "receiver_new_balance", "created_at",
	}
)

func newAccountService(t *testing.T) (*AccountService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAccountService(repository.NewStore(db, testutil.DiscardLogger()), testutil.DiscardLogger()), mock
}

func expectNoJournal(mock sqlmock.Sqlmock, key string) {
	mock.ExpectQuery(regexp.QuoteMeta(`FROM balance_transfers WHERE idempotency_key = $1`)).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows(transferColumns))
}

func expectLock(mock sqlmock.Sqlmock, id string, balance int64) {
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id = $1 FOR UPDATE`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(id, id+"@example.com", balance, now, now))
}

func TestTransferBalance_Applies(t *testing.T) {
	svc, mock := newAccountService(t)
	req := domain.TransferRequest{FromUserID: "zed", ToUserID: "alice", AmountCents: 2000, IdempotencyKey: "PAY_1:transfer"}

	mock.ExpectBegin()
	expectNoJournal(mock, req.IdempotencyKey)
	// Rows are locked in id order regardless of direction.
	expectLock(mock, "alice", 100)
	expectLock(mock, "zed", 5000)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts`)).
		WithArgs(int64(3000), sqlmock.AnyArg(), "zed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts`)).
		WithArgs(int64(2100), sqlmock.AnyArg(), "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO balance_transfers`)).
		WithArgs("PAY_1:transfer", "zed", "alice", int64(2000), int64(3000), int64(2100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	transfer, err := svc.TransferBalance(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), transfer.SenderNewBalance)
	assert.Equal(t, int64(2100), transfer.ReceiverNewBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferBalance_InsufficientBalanceRollsBack(t *testing.T) {
	svc, mock := newAccountService(t)
	req := domain.TransferRequest{FromUserID: "alice", ToUserID: "bob", AmountCents: 2000, IdempotencyKey: "PAY_2:transfer"}

	mock.ExpectBegin()
	expectNoJournal(mock, req.IdempotencyKey)
	expectLock(mock, "alice", 500)
	expectLock(mock, "bob", 0)
	mock.ExpectRollback()

	_, err := svc.TransferBalance(context.Background(), req)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferBalance_ReplaysJournaledKey(t *testing.T) {
	svc, mock := newAccountService(t)
	req := domain.TransferRequest{FromUserID: "alice", ToUserID: "bob", AmountCents: 2000, IdempotencyKey: "PAY_3:transfer"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM balance_transfers WHERE idempotency_key = $1`)).
		WithArgs(req.IdempotencyKey).
		WillReturnRows(sqlmock.NewRows(transferColumns).
			AddRow(req.IdempotencyKey, "alice", "bob", int64(2000), int64(3000), int64(2000), time.Now().UTC()))
	mock.ExpectCommit()

	transfer, err := svc.TransferBalance(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), transfer.SenderNewBalance)
	assert.NoError(t, mock.ExpectationsWereMet(), "a replay must not touch balances")
}

func TestTransferBalance_KeyReusedWithDifferentAmount(t *testing.T) {
	svc, mock := newAccountService(t)
	req := domain.TransferRequest{FromUserID: "alice", ToUserID: "bob", AmountCents: 999, IdempotencyKey: "PAY_4:transfer"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM balance_transfers WHERE idempotency_key = $1`)).
		WillReturnRows(sqlmock.NewRows(transferColumns).
			AddRow(req.IdempotencyKey, "alice", "bob", int64(2000), int64(3000), int64(2000), time.Now().UTC()))
	mock.ExpectRollback()

	_, err := svc.TransferBalance(context.Background(), req)
	assert.ErrorIs(t, err, errors.ErrIdempotencyConflict)
}

func TestTransferBalance_ConcurrentDuplicateReplays(t *testing.T) {
	svc, mock := newAccountService(t)
	req := domain.TransferRequest{FromUserID: "alice", ToUserID: "bob", AmountCents: 2000, IdempotencyKey: "PAY_5:transfer"}

	mock.ExpectBegin()
	expectNoJournal(mock, req.IdempotencyKey)
	expectLock(mock, "alice", 5000)
	expectLock(mock, "bob", 0)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO balance_transfers`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "balance_transfers_pkey"})
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM balance_transfers WHERE idempotency_key = $1`)).
		WithArgs(req.IdempotencyKey).
		WillReturnRows(sqlmock.NewRows(transferColumns).
			AddRow(req.IdempotencyKey, "alice", "bob", int64(2000), int64(3000), int64(2000), time.Now().UTC()))

	transfer, err := svc.TransferBalance(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), transfer.SenderNewBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferBalance_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		req  domain.TransferRequest
		code errors.ErrorCode
	}{
		{"same account", domain.TransferRequest{FromUserID: "a", ToUserID: "a", AmountCents: 1, IdempotencyKey: "k"}, errors.SameAccountTransfer},
		{"zero amount", domain.TransferRequest{FromUserID: "a", ToUserID: "b", AmountCents: 0, IdempotencyKey: "k"}, errors.InvalidAmount},
		{"negative amount", domain.TransferRequest{FromUserID: "a", ToUserID: "b", AmountCents: -5, IdempotencyKey: "k"}, errors.InvalidAmount},
		{"missing key", domain.TransferRequest{FromUserID: "a", ToUserID: "b", AmountCents: 1}, errors.InvalidInput},
		{"missing sender", domain.TransferRequest{ToUserID: "b", AmountCents: 1, IdempotencyKey: "k"}, errors.InvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newAccountService(t)

			_, err := svc.TransferBalance(context.Background(), tt.req)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet(), "validation must not reach the database")
		})
	}
}

func TestGetTransfer_Unknown(t *testing.T) {
	svc, mock := newAccountService(t)
	expectNoJournal(mock, "PAY_6:refund")

	_, err := svc.GetTransfer(context.Background(), "PAY_6:refund")
	assert.ErrorIs(t, err, errors.ErrTransferNotFound)
}

func TestCreateAccount(t *testing.T) {
	svc, mock := newAccountService(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO accounts`)).
		WithArgs("alice", "alice@example.com", int64(5000), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	account, err := svc.CreateAccount(context.Background(), " alice ", "alice@example.com", 5000)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.ID)
	assert.False(t, account.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_GeneratesID(t *testing.T) {
	svc, mock := newAccountService(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO accounts`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	account, err := svc.CreateAccount(context.Background(), "", "anon@example.com", 0)
	require.NoError(t, err)
	assert.Len(t, account.ID, 36)
}

func TestCreateAccount_InvalidBalance(t *testing.T) {
	svc, _ := newAccountService(t)

	_, err := svc.CreateAccount(context.Background(), "alice", "a@example.com", -1)
	assert.True(t, errors.HasCode(err, errors.InvalidAmount))

	_, err = svc.CreateAccount(context.Background(), "alice", "a@example.com", domain.MaxInitialBalanceCents+1)
	assert.True(t, errors.HasCode(err, errors.InvalidAmount))
}

func TestCreateAccount_RejectsUnroutableIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"slash", "team/alice"},
		{"space", "alice bob"},
		{"dot segment", ".."},
		{"too long", strings.Repeat("a", 65)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newAccountService(t)

			_, err := svc.CreateAccount(context.Background(), tt.id, "", 100)
			assert.ErrorIs(t, err, errors.ErrInvalidAccountID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetAccount_StorageFailure(t *testing.T) {
	svc, mock := newAccountService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id = $1`)).
		WillReturnError(sql.ErrConnDone)

	_, err := svc.GetAccount(context.Background(), "alice")
	assert.True(t, errors.HasCode(err, errors.StorageError))
}
