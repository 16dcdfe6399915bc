package banking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is the closed set of account categories.
type AccountType string

const (
	AccountChecking AccountType = "CHECKING"
	AccountSavings  AccountType = "SAVINGS"
)

// DefaultCurrency is used when the backend omits the currency code.
const DefaultCurrency = "USD"

// DefaultDailyTransferLimit is used when the backend omits the account limit.
var DefaultDailyTransferLimit = decimal.NewFromInt(500)

// DisplayName returns the customer-facing name of the account type.
func (t AccountType) DisplayName() string {
	switch t {
	case AccountChecking:
		return "Cuenta Corriente"
	case AccountSavings:
		return "Cuenta de Ahorros"
	default:
		return "Cuenta"
	}
}

// Valid reports whether t is one of the known categories.
func (t AccountType) Valid() bool {
	return t == AccountChecking || t == AccountSavings
}

// ParseAccountType maps a wire value onto the closed set. Case and
// surrounding space are ignored; missing and unknown values are checking
// accounts.
func ParseAccountType(raw string) AccountType {
	t := AccountType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return AccountChecking
	}
	return t
}

// Account is the client-side copy of a backend account.
type Account struct {
	AccountID          string          `json:"accountId"`
	CustomerID         string          `json:"customerId"`
	Balance            decimal.Decimal `json:"balance"`
	Currency           string          `json:"currency"`
	Type               AccountType     `json:"accountType"`
	AccountName        string          `json:"accountName"`
	DailyTransferUsed  decimal.Decimal `json:"dailyTransferUsed"`
	DailyTransferLimit decimal.Decimal `json:"dailyTransferLimit"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// RemainingDailyLimit is the part of the daily limit not yet used, never negative.
func (a Account) RemainingDailyLimit() decimal.Decimal {
	remaining := a.DailyTransferLimit.Sub(a.DailyTransferUsed)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// BalanceAfter is the balance the account would show after debiting amount.
func (a Account) BalanceAfter(amount decimal.Decimal) decimal.Decimal {
	return a.Balance.Sub(amount)
}

// AccountSummary aggregates the customer's accounts.
type AccountSummary struct {
	TotalBalance        decimal.Decimal `json:"totalBalance"`
	TotalAccounts       int             `json:"totalAccounts"`
	DailyTransferUsed   decimal.Decimal `json:"dailyTransferUsed"`
	DailyTransferLimit  decimal.Decimal `json:"dailyTransferLimit"`
	RemainingDailyLimit decimal.Decimal `json:"remainingDailyLimit"`
}

// AccountList is the response of the account listing endpoint.
type AccountList struct {
	Accounts      []Account      `json:"accounts"`
	Summary       AccountSummary `json:"summary"`
	CorrelationID string         `json:"correlationId"`
}

// Find returns the account with the given id.
func (l *AccountList) Find(accountID string) (Account, bool) {
	if l == nil {
		return Account{}, false
	}
	for _, a := range l.Accounts {
		if a.AccountID == accountID {
			return a, true
		}
	}
	return Account{}, false
}

type wireAccount struct {
	AccountID          string      `json:"accountId"`
	CustomerID         string      `json:"customerId"`
	Balance            flexDecimal `json:"balance"`
	Currency           string      `json:"currency"`
	AccountType        string      `json:"accountType"`
	AccountName        string      `json:"accountName"`
	DailyTransferUsed  flexDecimal `json:"dailyTransferUsed"`
	DailyTransferLimit flexDecimal `json:"dailyTransferLimit"`
	CreatedAt          string      `json:"createdAt"`
	UpdatedAt          string      `json:"updatedAt"`
}

type wireAccountSummary struct {
	TotalBalance        flexDecimal `json:"totalBalance"`
	TotalAccounts       flexInt     `json:"totalAccounts"`
	DailyTransferUsed   flexDecimal `json:"dailyTransferUsed"`
	DailyTransferLimit  flexDecimal `json:"dailyTransferLimit"`
	RemainingDailyLimit flexDecimal `json:"remainingDailyLimit"`
}

type wireAccountList struct {
	Accounts      []wireAccount       `json:"accounts"`
	Summary       *wireAccountSummary `json:"summary"`
	CorrelationID string              `json:"correlationId"`
}

func (w wireAccount) toAccount() Account {
	accountType := ParseAccountType(w.AccountType)

	currency := w.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	used := w.DailyTransferUsed.or(decimal.Zero)
	if used.IsNegative() {
		used = decimal.Zero
	}

	name := w.AccountName
	if name == "" {
		name = GenerateAccountName(accountType, w.AccountID)
	}

	return Account{
		AccountID:          w.AccountID,
		CustomerID:         w.CustomerID,
		Balance:            w.Balance.or(decimal.Zero),
		Currency:           currency,
		Type:               accountType,
		AccountName:        name,
		DailyTransferUsed:  used,
		DailyTransferLimit: w.DailyTransferLimit.or(DefaultDailyTransferLimit),
		CreatedAt:          parseTimestamp(w.CreatedAt),
		UpdatedAt:          parseTimestamp(w.UpdatedAt),
	}
}

func (w *wireAccountSummary) toSummary() AccountSummary {
	if w == nil {
		w = &wireAccountSummary{}
	}
	return AccountSummary{
		TotalBalance:        w.TotalBalance.or(decimal.Zero),
		TotalAccounts:       w.TotalAccounts.or(0),
		DailyTransferUsed:   w.DailyTransferUsed.or(decimal.Zero),
		DailyTransferLimit:  w.DailyTransferLimit.or(DefaultDailyTransferLimit),
		RemainingDailyLimit: w.RemainingDailyLimit.or(DefaultDailyTransferLimit),
	}
}

// GenerateAccountName builds the display name used when the backend sends none,
// e.g. "Cuenta de Ahorros ****1234".
func GenerateAccountName(t AccountType, accountID string) string {
	short := accountID
	if len(short) > 4 {
		short = short[len(short)-4:]
	}
	return fmt.Sprintf("%s ****%s", t.DisplayName(), short)
}

// DecodeAccountList maps the account listing response body.
func DecodeAccountList(data []byte) (*AccountList, error) {
	var w wireAccountList
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("banking: decode account list: %w", err)
	}

	list := &AccountList{
		Accounts:      make([]Account, 0, len(w.Accounts)),
		Summary:       w.Summary.toSummary(),
		CorrelationID: w.CorrelationID,
	}
	for _, a := range w.Accounts {
		list.Accounts = append(list.Accounts, a.toAccount())
	}
	return list, nil
}

// DecodeAccount maps a single account body.
func DecodeAccount(data []byte) (Account, error) {
	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		return Account{}, fmt.Errorf("banking: decode account: %w", err)
	}
	return w.toAccount(), nil
}
