package banking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProfile(t *testing.T) {
	body := []byte(`{"profile": {
		"id": "customer-1", "email": "ana@example.com", "name": "Ana Torres",
		"givenName": "Ana", "familyName": "Torres", "status": "ACTIVE",
		"customerType": "INDIVIDUAL", "riskProfile": "MODERATE",
		"createdAt": "2024-05-01T10:00:00Z", "updatedAt": "2024-06-01T10:00:00Z",
		"preferences": {"notifications": {"email": false, "sms": true}, "language": "en", "currency": "EUR"}
	}}`)

	p, err := DecodeProfile(body)
	require.NoError(t, err)

	assert.Equal(t, "customer-1", p.ID)
	assert.Equal(t, "Ana Torres", p.Name)
	assert.Equal(t, "MODERATE", p.RiskProfile)
	assert.False(t, p.Preferences.EmailNotifications)
	assert.True(t, p.Preferences.SMSNotifications)
	assert.Equal(t, "en", p.Preferences.Language)
	assert.Equal(t, "EUR", p.Preferences.Currency)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), p.UpdatedAt.UTC())
}

func TestDecodeProfile_Defaults(t *testing.T) {
	p, err := DecodeProfile([]byte(`{"profile": {"id": "customer-1", "createdAt": "2024-05-01T10:00:00Z"}}`))
	require.NoError(t, err)

	assert.Equal(t, "ACTIVE", p.Status)
	assert.Equal(t, "INDIVIDUAL", p.CustomerType)
	assert.Equal(t, "CONSERVATIVE", p.RiskProfile)
	assert.Equal(t, Preferences{EmailNotifications: true, Language: "es", Currency: DefaultCurrency}, p.Preferences)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestDecodeProfile_Malformed(t *testing.T) {
	_, err := DecodeProfile([]byte(`{"profile": [`))
	assert.Error(t, err)
}

func TestDecodeSeedResult(t *testing.T) {
	r, err := DecodeSeedResult([]byte(`{"message": "Seeded", "accountsCreated": 2, "transactionsCreated": 10,
		"checkingAccountId": "acc-1", "savingsAccountId": "acc-2"}`))
	require.NoError(t, err)

	assert.Equal(t, 2, r.AccountsCreated)
	assert.Equal(t, 10, r.TransactionsCreated)
	assert.Equal(t, "acc-1", r.CheckingAccountID)
	assert.Equal(t, "acc-2", r.SavingsAccountID)
}
