package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// Register mounts the payment routes on r.
func (h *PaymentHandler) Register(r *mux.Router) {
	r.HandleFunc("/payments", h.SendPayment).Methods("POST")
	r.HandleFunc("/payments/{transaction_id}", h.GetPayment).Methods("GET")
	r.HandleFunc("/payments/{transaction_id}/process", h.ProcessPayment).Methods("POST")
	r.HandleFunc("/payments/{transaction_id}/refund", h.RefundPayment).Methods("POST")
	r.HandleFunc("/users/{user_id}/payments", h.GetUserPayments).Methods("GET")
}

type SendPaymentRequest struct {
	FromUserID  string      `json:"from_user_id"`
	ToUserID    string      `json:"to_user_id"`
	AmountCents json.Number `json:"amount_cents"`
	Currency    string      `json:"currency"`
	Description string      `json:"description"`
}

func (h *PaymentHandler) SendPayment(w http.ResponseWriter, r *http.Request) {
	var req SendPaymentRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		writeError(w, appErr)
		return
	}

	amount, err := domain.ParseAmount(req.AmountCents.String())
	if err != nil {
		handleError(w, err)
		return
	}

	payment, err := h.paymentService.SendPayment(r.Context(), service.SendPaymentRequest{
		FromUserID:   req.FromUserID,
		ToUserID:     req.ToUserID,
		AmountCents:  amount.Cents(),
		CurrencyCode: req.Currency,
		Description:  req.Description,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, payment)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.paymentService.GetPaymentByID(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payment)
}

// ProcessPayment answers 200 for both outcomes; a failed transfer is
// reported in the body with success=false.
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	result, err := h.paymentService.ProcessPayment(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	result, err := h.paymentService.RefundPayment(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) GetUserPayments(w http.ResponseWriter, r *http.Request) {
	history, err := h.paymentService.GetUserPaymentHistory(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}
