package banking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAccountList(t *testing.T) {
	body := []byte(`{
		"accounts": [
			{"accountId": "acc-0001", "customerId": "c1", "balance": "1000.50", "currency": "USD",
			 "accountType": "SAVINGS", "dailyTransferUsed": 20, "dailyTransferLimit": "500",
			 "createdAt": "2024-05-01T10:00:00.123456", "updatedAt": "2024-05-02T10:00:00Z"},
			{"accountId": "acc-9876", "customerId": "c1", "balance": 12, "dailyTransferUsed": -3}
		],
		"summary": {"totalBalance": "1012.50", "totalAccounts": "2"},
		"correlationId": "corr-1"
	}`)

	list, err := DecodeAccountList(body)
	require.NoError(t, err)
	require.Len(t, list.Accounts, 2)

	savings := list.Accounts[0]
	assert.True(t, savings.Balance.Equal(decimal.RequireFromString("1000.50")))
	assert.Equal(t, AccountSavings, savings.Type)
	assert.Equal(t, "Cuenta de Ahorros ****0001", savings.AccountName)
	assert.True(t, savings.RemainingDailyLimit().Equal(decimal.NewFromInt(480)))
	assert.Equal(t, 2024, savings.CreatedAt.Year())
	assert.False(t, savings.UpdatedAt.IsZero())

	defaults := list.Accounts[1]
	assert.Equal(t, AccountChecking, defaults.Type)
	assert.Equal(t, DefaultCurrency, defaults.Currency)
	assert.True(t, defaults.DailyTransferLimit.Equal(DefaultDailyTransferLimit))
	assert.True(t, defaults.DailyTransferUsed.IsZero(), "negative daily usage is clamped")
	assert.Equal(t, "Cuenta Corriente ****9876", defaults.AccountName)

	assert.Equal(t, 2, list.Summary.TotalAccounts)
	assert.True(t, list.Summary.RemainingDailyLimit.Equal(DefaultDailyTransferLimit))
	assert.Equal(t, "corr-1", list.CorrelationID)

	found, ok := list.Find("acc-9876")
	assert.True(t, ok)
	assert.Equal(t, "acc-9876", found.AccountID)

	_, ok = list.Find("missing")
	assert.False(t, ok)
}

func TestParseAccountType(t *testing.T) {
	tests := []struct {
		raw  string
		want AccountType
	}{
		{"CHECKING", AccountChecking},
		{"SAVINGS", AccountSavings},
		{" savings ", AccountSavings},
		{"", AccountChecking},
		{"BROKERAGE", AccountChecking},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseAccountType(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestDecodeAccountList_UnknownTypeStaysInClosedSet(t *testing.T) {
	list, err := DecodeAccountList([]byte(`{"accounts":[{"accountId":"acc-0042","balance":"1","accountType":"CREDIT_LINE"}]}`))
	require.NoError(t, err)
	require.Len(t, list.Accounts, 1)

	assert.Equal(t, AccountChecking, list.Accounts[0].Type)
	assert.Equal(t, "Cuenta Corriente ****0042", list.Accounts[0].AccountName)
}

func TestDecodeAccountList_InvalidAmount(t *testing.T) {
	_, err := DecodeAccountList([]byte(`{"accounts":[{"accountId":"a","balance":"lots"}]}`))
	assert.Error(t, err)
}

func TestAccount_RemainingDailyLimitNeverNegative(t *testing.T) {
	a := Account{
		DailyTransferUsed:  decimal.NewFromInt(600),
		DailyTransferLimit: decimal.NewFromInt(500),
	}
	assert.True(t, a.RemainingDailyLimit().IsZero())
}

func TestDecodeTransactionPage(t *testing.T) {
	body := []byte(`{
		"accountId": "acc-1",
		"transactions": [
			{"accountId": "acc-1", "timestamp": "2024-05-01T10:00:00", "type": "DEBIT", "amount": -100,
			 "counterparty": "Transfer to 0002", "transferId": "t-1", "status": "COMPLETED", "note": "rent"},
			{"accountId": "acc-1", "createdAt": "2024-04-30T09:00:00Z", "type": "CREDIT", "amount": "50.25",
			 "transferId": "t-0", "status": "PENDING"}
		],
		"summary": {"totalTransactions": 2, "totalDebits": "100", "totalCredits": 50.25, "netAmount": "-49.75"},
		"pagination": {"limit": 50, "hasMore": true}
	}`)

	page, err := DecodeTransactionPage(body)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)

	assert.Equal(t, Debit, page.Transactions[0].Type)
	assert.True(t, page.Transactions[0].Amount.Equal(decimal.NewFromInt(-100)))
	assert.Equal(t, time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC), page.Transactions[1].Timestamp)
	assert.True(t, page.Pagination.HasMore)
	assert.Equal(t, 2, page.Summary.TotalTransactions)
	assert.True(t, page.Summary.NetAmount.Equal(decimal.RequireFromString("-49.75")))
	assert.Len(t, page.ByTransfer("t-1"), 1)
}

func TestDecodeTransactionPage_DefaultPagination(t *testing.T) {
	page, err := DecodeTransactionPage([]byte(`{"accountId":"acc-1"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultTransactionLimit, page.Pagination.Limit)
	assert.False(t, page.Pagination.HasMore)
	assert.Empty(t, page.Transactions)
}

func TestTransactionQuery(t *testing.T) {
	assert.Equal(t, DefaultTransactionLimit, TransactionQuery{}.Normalize().Limit)
	assert.Equal(t, MaxTransactionLimit, TransactionQuery{Limit: 1000}.Normalize().Limit)

	v := TransactionQuery{Limit: 10}.Values()
	assert.Equal(t, "10", v.Get("limit"))
	assert.Empty(t, v.Get("from"), "a half-open range is not sent")

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	ranged := TransactionQuery{From: from, To: to}
	v = ranged.Values()
	assert.Equal(t, "2024-01-01T00:00:00Z", v.Get("from"))
	assert.Equal(t, "2024-02-01T00:00:00Z", v.Get("to"))

	assert.Equal(t, "all:50", TransactionQuery{}.CacheKey())
	assert.NotEqual(t, TransactionQuery{}.CacheKey(), ranged.CacheKey())
}

func TestParseTransferStatus(t *testing.T) {
	assert.Equal(t, TransferCompleted, ParseTransferStatus("COMPLETED"))
	assert.Equal(t, TransferPending, ParseTransferStatus(" pending "))
	assert.Equal(t, TransferFailed, ParseTransferStatus("FAILED"))
	assert.Equal(t, TransferFailed, ParseTransferStatus("SOMETHING_NEW"))
	assert.Equal(t, TransferFailed, ParseTransferStatus(""))
}

func TestTransferRequest_MarshalJSON(t *testing.T) {
	req := TransferRequest{
		SourceAccountID: "a",
		TargetAccountID: "b",
		Amount:          decimal.RequireFromString("100.50"),
		IdempotencyKey:  "key-1",
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sourceAccountId":"a","targetAccountId":"b","amount":100.5,"idempotencyKey":"key-1"}`, string(data))
}

func TestDecodeTransferResult(t *testing.T) {
	res, err := DecodeTransferResult([]byte(`{"status":"COMPLETED","transferId":"k1","amount":100,"sourceAccountId":"a","targetAccountId":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, TransferCompleted, res.Status)
	assert.Equal(t, "k1", res.TransferID)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(100)))

	res, err = DecodeTransferResult([]byte(`{"status":"FAILED","error":"Insufficient Funds"}`))
	require.NoError(t, err)
	assert.Equal(t, TransferFailed, res.Status)
	assert.Equal(t, "Insufficient Funds", res.Message)
}

func TestAccount_JSONRoundTrip(t *testing.T) {
	in := Account{
		AccountID:          "acc-1",
		Balance:            decimal.RequireFromString("10.25"),
		Type:               AccountSavings,
		DailyTransferLimit: decimal.NewFromInt(500),
		CreatedAt:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Account
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Balance.Equal(in.Balance))
	assert.Equal(t, in.Type, out.Type)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
}
