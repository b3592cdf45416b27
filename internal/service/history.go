package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
)

type Direction string

const (
	DirectionSent     Direction = "SENT"
	DirectionReceived Direction = "RECEIVED"
)

// PaymentSummary is one payment seen from the requesting user's side.
type PaymentSummary struct {
	TransactionID string               `json:"transaction_id"`
	Direction     Direction            `json:"type"`
	OtherUserID   string               `json:"other_user_id"`
	AmountCents   int64                `json:"amount_cents"`
	Amount        string               `json:"amount"`
	Currency      string               `json:"currency"`
	Status        domain.PaymentStatus `json:"status"`
	Description   string               `json:"description"`
	CreatedAt     time.Time            `json:"created_at"`
	ProcessedAt   *time.Time           `json:"processed_at"`
}

type PaymentHistory struct {
	UserID           string           `json:"user_id"`
	TotalPayments    int              `json:"total_payments"`
	SentPayments     int              `json:"sent_payments"`
	ReceivedPayments int              `json:"received_payments"`
	Payments         []PaymentSummary `json:"payments"`
}

// GetUserPaymentHistory lists every payment the user sent or received,
// newest first.
func (s *PaymentService) GetUserPaymentHistory(ctx context.Context, userID string) (*PaymentHistory, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.ErrInvalidAccountID
	}

	payments, err := s.payments.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	history := &PaymentHistory{
		UserID:   userID,
		Payments: make([]PaymentSummary, 0, len(payments)),
	}

	for _, p := range payments {
		if !p.Involves(userID) {
			continue
		}
		summary := PaymentSummary{
			TransactionID: p.ID().String(),
			AmountCents:   p.Amount().Cents(),
			Amount:        p.Amount().String(),
			Currency:      p.Currency().Code(),
			Status:        p.Status(),
			Description:   p.Description(),
			CreatedAt:     p.CreatedAt(),
			ProcessedAt:   p.ProcessedAt(),
		}
		if p.FromUserID() == userID {
			summary.Direction = DirectionSent
			summary.OtherUserID = p.ToUserID()
			history.SentPayments++
		} else {
			summary.Direction = DirectionReceived
			summary.OtherUserID = p.FromUserID()
			history.ReceivedPayments++
		}
		history.Payments = append(history.Payments, summary)
	}

	slices.SortStableFunc(history.Payments, func(a, b PaymentSummary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	history.TotalPayments = len(history.Payments)
	return history, nil
}
