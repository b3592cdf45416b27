package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"p2p-ledger/internal/errors"
)

const MaxDescriptionLength = 255

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentFailed || s == PaymentRefunded
}

// Payment is one transfer intent and its execution state. It is mutated in
// place through Process, Complete, Fail and Refund, and is never deleted.
type Payment struct {
	id            TransactionID
	fromUserID    string
	toUserID      string
	amount        Amount
	currency      Currency
	description   string
	status        PaymentStatus
	failureReason string
	createdAt     time.Time
	processedAt   *time.Time
	updatedAt     time.Time
}

// PaymentRecord is the flat shape of a payment, used for persistence and as
// the public view returned by the payment service.
type PaymentRecord struct {
	ID            string        `json:"transaction_id"`
	FromUserID    string        `json:"from_user_id"`
	ToUserID      string        `json:"to_user_id"`
	AmountCents   int64         `json:"amount_cents"`
	Amount        string        `json:"amount"`
	CurrencyCode  string        `json:"currency"`
	Description   string        `json:"description"`
	Status        PaymentStatus `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	ProcessedAt   *time.Time    `json:"processed_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewPayment creates a PENDING payment with a fresh transaction id.
func NewPayment(fromUserID, toUserID string, amount Amount, currency Currency, description string) (*Payment, error) {
	fromUserID = strings.TrimSpace(fromUserID)
	toUserID = strings.TrimSpace(toUserID)

	if err := ValidateUserID(fromUserID); err != nil {
		return nil, err
	}
	if err := ValidateUserID(toUserID); err != nil {
		return nil, err
	}
	if fromUserID == toUserID {
		return nil, errors.ErrSameAccountTransfer
	}
	if amount.IsZero() {
		return nil, errors.ErrZeroAmount
	}
	if currency.Code() == "" {
		return nil, errors.ErrInvalidCurrency
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, errors.ErrDescriptionTooLong
	}

	now := time.Now().UTC()
	return &Payment{
		id:          GenerateTransactionID(),
		fromUserID:  fromUserID,
		toUserID:    toUserID,
		amount:      amount,
		currency:    currency,
		description: description,
		status:      PaymentPending,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// RestorePayment rebuilds a payment read back from storage, re-validating
// every field.
func RestorePayment(rec PaymentRecord) (*Payment, error) {
	id, err := ParseTransactionID(rec.ID)
	if err != nil {
		return nil, err
	}
	amount, err := NewAmount(rec.AmountCents)
	if err != nil {
		return nil, err
	}
	currency, err := NewCurrency(rec.CurrencyCode)
	if err != nil {
		return nil, err
	}
	if !rec.Status.IsValid() {
		return nil, errors.NewAppErrorf(errors.InternalError, "unknown payment status %q", rec.Status)
	}
	if rec.FromUserID == rec.ToUserID {
		return nil, errors.ErrSameAccountTransfer.WithDetails(rec.ID)
	}

	p := &Payment{
		id:            id,
		fromUserID:    rec.FromUserID,
		toUserID:      rec.ToUserID,
		amount:        amount,
		currency:      currency,
		description:   rec.Description,
		status:        rec.Status,
		failureReason: rec.FailureReason,
		createdAt:     rec.CreatedAt,
		updatedAt:     rec.UpdatedAt,
	}
	if rec.ProcessedAt != nil {
		t := *rec.ProcessedAt
		p.processedAt = &t
	}
	return p, nil
}

func (p *Payment) ID() TransactionID       { return p.id }
func (p *Payment) FromUserID() string      { return p.fromUserID }
func (p *Payment) ToUserID() string        { return p.toUserID }
func (p *Payment) Amount() Amount          { return p.amount }
func (p *Payment) Currency() Currency      { return p.currency }
func (p *Payment) Description() string     { return p.description }
func (p *Payment) Status() PaymentStatus   { return p.status }
func (p *Payment) FailureReason() string   { return p.failureReason }
func (p *Payment) CreatedAt() time.Time    { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time    { return p.updatedAt }
func (p *Payment) ProcessedAt() *time.Time { return copyTime(p.processedAt) }

// Process moves a PENDING payment to PROCESSING.
func (p *Payment) Process() error {
	if p.status != PaymentPending {
		return errors.NewInvalidTransition(string(p.status), "process")
	}
	p.transition(PaymentProcessing)
	return nil
}

// Complete moves a PROCESSING payment to COMPLETED and stamps processedAt.
func (p *Payment) Complete() error {
	if p.status != PaymentProcessing {
		return errors.NewInvalidTransition(string(p.status), "complete")
	}
	p.transition(PaymentCompleted)
	p.markProcessed()
	return nil
}

// Fail records reason and moves the payment to FAILED. Money that has moved
// (COMPLETED) or been reversed (REFUNDED) can never be failed.
func (p *Payment) Fail(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errors.ErrInvalidInput.WithDetails("failure reason is required")
	}
	if p.status.IsTerminal() || p.status == PaymentCompleted {
		return errors.NewInvalidTransition(string(p.status), "fail")
	}
	p.failureReason = reason
	p.transition(PaymentFailed)
	p.markProcessed()
	return nil
}

// Refund moves a COMPLETED payment to REFUNDED. processedAt keeps the time
// of the original completion.
func (p *Payment) Refund() error {
	if p.status != PaymentCompleted {
		return errors.NewInvalidTransition(string(p.status), "refund")
	}
	p.transition(PaymentRefunded)
	return nil
}

// Involves reports whether userID is the sender or the receiver.
func (p *Payment) Involves(userID string) bool {
	return p.fromUserID == userID || p.toUserID == userID
}

func (p *Payment) Record() PaymentRecord {
	return PaymentRecord{
		ID:            p.id.String(),
		FromUserID:    p.fromUserID,
		ToUserID:      p.toUserID,
		AmountCents:   p.amount.Cents(),
		Amount:        p.amount.String(),
		CurrencyCode:  p.currency.Code(),
		Description:   p.description,
		Status:        p.status,
		FailureReason: p.failureReason,
		CreatedAt:     p.createdAt,
		ProcessedAt:   copyTime(p.processedAt),
		UpdatedAt:     p.updatedAt,
	}
}

func (p *Payment) transition(to PaymentStatus) {
	p.status = to
	p.updatedAt = time.Now().UTC()
}

func (p *Payment) markProcessed() {
	if p.processedAt == nil {
		t := p.updatedAt
		p.processedAt = &t
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
