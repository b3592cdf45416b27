package domain

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"p2p-ledger/internal/errors"
)

// MaxInitialBalanceCents caps the opening balance of a new account.
const MaxInitialBalanceCents int64 = 1_000_000_000_000

const MaxUserIDLength = 64

// User ids appear as a single path segment in the account service's routes.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var userIDValidator = newUserIDValidator()

func newUserIDValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return userIDPattern.MatchString(id) && id != "." && id != ".."
	})
	return v
}

// ValidateUserID rejects ids that are empty, longer than MaxUserIDLength, or
// contain characters outside [A-Za-z0-9_.-].
func ValidateUserID(id string) error {
	err := userIDValidator.Var(id, "required,max=64,userid")
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.ErrInvalidAccountID.WithDetails(err.Error())
	}
	switch verrs[0].Tag() {
	case "max":
		return errors.ErrInvalidAccountID.WithDetails("user id must be at most 64 characters")
	case "userid":
		return errors.ErrInvalidAccountID.WithDetails("user id may only contain letters, digits, '_', '.' and '-'")
	default:
		return errors.ErrInvalidAccountID
	}
}

// Account is a user's balance as owned by the account service.
type Account struct {
	ID        string    `json:"user_id"`
	Email     string    `json:"email"`
	Balance   int64     `json:"balance_cents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Account) CanDebit(amount Amount) bool {
	return a.Balance >= amount.Cents()
}

// TransferRequest asks the account service to move AmountCents from one
// account to another. IdempotencyKey makes a retried request safe.
type TransferRequest struct {
	FromUserID     string `json:"from_user_id"`
	ToUserID       string `json:"to_user_id"`
	AmountCents    int64  `json:"amount_cents"`
	IdempotencyKey string `json:"idempotency_key"`
}

// BalanceTransfer is the journal entry written by an applied transfer.
type BalanceTransfer struct {
	IdempotencyKey     string    `json:"idempotency_key"`
	FromUserID         string    `json:"from_user_id"`
	ToUserID           string    `json:"to_user_id"`
	AmountCents        int64     `json:"amount_cents"`
	SenderNewBalance   int64     `json:"sender_new_balance"`
	ReceiverNewBalance int64     `json:"receiver_new_balance"`
	CreatedAt          time.Time `json:"created_at"`
}

// Matches reports whether t was produced by req, ignoring the balances.
func (t *BalanceTransfer) Matches(req TransferRequest) bool {
	return t.FromUserID == req.FromUserID &&
		t.ToUserID == req.ToUserID &&
		t.AmountCents == req.AmountCents
}
