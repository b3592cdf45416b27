package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-ledger/internal/errors"
)

func TestGenerateTransactionID(t *testing.T) {
	a := GenerateTransactionID()
	b := GenerateTransactionID()

	assert.True(t, strings.HasPrefix(a.String(), "PAY_"))
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(a.String()), 50)

	parsed, err := ParseTransactionID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestParseTransactionID(t *testing.T) {
	_, err := ParseTransactionID("")
	assert.True(t, errors.HasCode(err, errors.InvalidTransactionID))

	_, err = ParseTransactionID(strings.Repeat("x", 51))
	assert.True(t, errors.HasCode(err, errors.InvalidTransactionID))

	id, err := ParseTransactionID(strings.Repeat("x", 50))
	require.NoError(t, err)
	assert.Len(t, id.String(), 50)
}

func TestIdempotencyKeys(t *testing.T) {
	id, _ := ParseTransactionID("PAY_abc")
	assert.Equal(t, "PAY_abc:transfer", id.TransferKey())
	assert.Equal(t, "PAY_abc:refund", id.RefundKey())
}
