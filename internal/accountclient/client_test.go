package accountclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
	"p2p-ledger/internal/testutil"
)

func respond(w http.ResponseWriter, status int, data interface{}, wire *wireError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "error": wire})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second, testutil.DiscardLogger())
}

func TestGetAccount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/accounts/alice", r.URL.Path)
		respond(w, http.StatusOK, domain.Account{ID: "alice", Balance: 5000}, nil)
	})

	account, err := client.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.ID)
	assert.Equal(t, int64(5000), account.Balance)
}

func TestGetAccount_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusNotFound, nil, &wireError{Code: "account_not_found", Message: "account not found", Details: "ghost"})
	})

	_, err := client.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
	assert.Equal(t, "ghost", errors.FromError(err).Details)
}

func TestTransferBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req domain.TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "PAY_1:transfer", req.IdempotencyKey)
		assert.Equal(t, int64(2000), req.AmountCents)

		respond(w, http.StatusOK, domain.BalanceTransfer{
			IdempotencyKey:     req.IdempotencyKey,
			FromUserID:         req.FromUserID,
			ToUserID:           req.ToUserID,
			AmountCents:        req.AmountCents,
			SenderNewBalance:   3000,
			ReceiverNewBalance: 2000,
		}, nil)
	})

	transfer, err := client.TransferBalance(context.Background(), domain.TransferRequest{
		FromUserID: "alice", ToUserID: "bob", AmountCents: 2000, IdempotencyKey: "PAY_1:transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), transfer.SenderNewBalance)
	assert.Equal(t, int64(2000), transfer.ReceiverNewBalance)
}

func TestTransferBalance_Insufficient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusUnprocessableEntity, nil, &wireError{Code: "insufficient_balance", Message: "insufficient balance"})
	})

	_, err := client.TransferBalance(context.Background(), domain.TransferRequest{
		FromUserID: "alice", ToUserID: "bob", AmountCents: 2000, IdempotencyKey: "k",
	})
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
}

func TestGetTransfer_EscapesKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers/PAY_1:refund", r.URL.Path)
		respond(w, http.StatusNotFound, nil, &wireError{Code: "transfer_not_found", Message: "transfer not found"})
	})

	_, err := client.GetTransfer(context.Background(), "PAY_1:refund")
	assert.True(t, errors.HasCode(err, errors.TransferNotFound))
}

func TestServerFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "storage error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusInternalServerError, nil, &wireError{Code: "storage_error", Message: "storage failure"})
			},
		},
		{
			name: "unknown code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusBadGateway, nil, &wireError{Code: "upstream_exploded", Message: "boom"})
			},
		},
		{
			name: "non-json gateway page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte("<html>bad gateway</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.GetAccount(context.Background(), "alice")
			assert.True(t, errors.HasCode(err, errors.ServiceUnavailable), "got %v", err)
		})
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := New(srv.URL, 50*time.Millisecond, testutil.DiscardLogger())
	_, err := client.GetAccount(context.Background(), "alice")
	assert.True(t, errors.HasCode(err, errors.ServiceUnavailable))
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, time.Second, testutil.DiscardLogger())
	_, err := client.GetAccount(context.Background(), "alice")
	assert.True(t, errors.HasCode(err, errors.ServiceUnavailable))
}
