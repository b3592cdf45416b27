package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
)

// AccountService is the account service as seen by its HTTP layer.
type AccountService interface {
	CreateAccount(ctx context.Context, userID, email string, initialBalance int64) (*domain.Account, error)
	GetAccount(ctx context.Context, userID string) (*domain.Account, error)
	TransferBalance(ctx context.Context, req domain.TransferRequest) (*domain.BalanceTransfer, error)
	GetTransfer(ctx context.Context, idempotencyKey string) (*domain.BalanceTransfer, error)
}

type AccountHandler struct {
	accountService AccountService
}

func NewAccountHandler(accountService AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// Register mounts the account routes on r.
func (h *AccountHandler) Register(r *mux.Router) {
	r.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	r.HandleFunc("/accounts/{user_id}", h.GetAccount).Methods("GET")
	r.HandleFunc("/transfers", h.Transfer).Methods("POST")
	r.HandleFunc("/transfers/{key}", h.GetTransfer).Methods("GET")
}

type CreateAccountRequest struct {
	UserID              string      `json:"user_id"`
	Email               string      `json:"email"`
	InitialBalanceCents json.Number `json:"initial_balance_cents"`
}

// AccountResponse keeps the domain.Account field names so the payment
// service can decode it directly, and adds a display balance.
type AccountResponse struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	BalanceCents int64     `json:"balance_cents"`
	Balance      string    `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		UserID:       account.ID,
		Email:        account.Email,
		BalanceCents: account.Balance,
		Balance:      domain.FormatCents(account.Balance),
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	var initialBalance int64
	if req.InitialBalanceCents != "" {
		d, err := decimal.NewFromString(req.InitialBalanceCents.String())
		if err != nil || !d.IsInteger() {
			writeError(w, errors.NewAppError(errors.InvalidAmount, "initial_balance_cents must be a whole number of cents"))
			return
		}
		if d.GreaterThan(decimal.NewFromInt(domain.MaxInitialBalanceCents)) {
			writeError(w, errors.NewAppError(errors.InvalidAmount, "initial balance exceeds maximum limit"))
			return
		}
		initialBalance = d.IntPart()
	}

	account, err := h.accountService.CreateAccount(r.Context(), req.UserID, req.Email, initialBalance)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["user_id"]

	account, err := h.accountService.GetAccount(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

// Transfer applies an atomic balance transfer. Replaying an idempotency key
// returns the original result.
func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	transfer, err := h.accountService.TransferBalance(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transfer)
}

func (h *AccountHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	transfer, err := h.accountService.GetTransfer(r.Context(), key)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transfer)
}
