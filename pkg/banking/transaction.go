package banking

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a ledger movement.
type TransactionType string

const (
	Debit  TransactionType = "DEBIT"
	Credit TransactionType = "CREDIT"
)

// TransactionStatus is the lifecycle state of a ledger movement.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Pagination limits for transaction listing.
const (
	DefaultTransactionLimit = 50
	MaxTransactionLimit     = 100
)

// Transaction is one side of a transfer as recorded against an account.
type Transaction struct {
	AccountID    string            `json:"accountId"`
	Timestamp    time.Time         `json:"timestamp"`
	Type         TransactionType   `json:"type"`
	Amount       decimal.Decimal   `json:"amount"`
	Counterparty string            `json:"counterparty"`
	TransferID   string            `json:"transferId"`
	Status       TransactionStatus `json:"status"`
	Note         string            `json:"note,omitempty"`
}

// TransactionSummary aggregates a page of transactions.
type TransactionSummary struct {
	TotalTransactions     int             `json:"totalTransactions"`
	TotalDebits           decimal.Decimal `json:"totalDebits"`
	TotalCredits          decimal.Decimal `json:"totalCredits"`
	CompletedTransactions int             `json:"completedTransactions"`
	FailedTransactions    int             `json:"failedTransactions"`
	NetAmount             decimal.Decimal `json:"netAmount"`
}

// Pagination is the paging marker returned with a transaction page.
type Pagination struct {
	Limit   int  `json:"limit"`
	HasMore bool `json:"hasMore"`
}

// TransactionPage is the response of the transaction listing endpoint.
type TransactionPage struct {
	AccountID     string             `json:"accountId"`
	Transactions  []Transaction      `json:"transactions"`
	Summary       TransactionSummary `json:"summary"`
	Pagination    Pagination         `json:"pagination"`
	CorrelationID string             `json:"correlationId"`
}

// ByTransfer returns the transactions produced by the given transfer.
func (p *TransactionPage) ByTransfer(transferID string) []Transaction {
	var out []Transaction
	for _, tx := range p.Transactions {
		if tx.TransferID == transferID {
			out = append(out, tx)
		}
	}
	return out
}

// TransactionQuery filters a transaction listing. The date range is only
// applied when both ends are set.
type TransactionQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Normalize clamps the limit into [1, MaxTransactionLimit], defaulting to
// DefaultTransactionLimit.
func (q TransactionQuery) Normalize() TransactionQuery {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultTransactionLimit
	case q.Limit > MaxTransactionLimit:
		q.Limit = MaxTransactionLimit
	}
	return q
}

// HasRange reports whether both ends of the date range are set.
func (q TransactionQuery) HasRange() bool {
	return !q.From.IsZero() && !q.To.IsZero()
}

// Values encodes the query string for the listing endpoint.
func (q TransactionQuery) Values() url.Values {
	q = q.Normalize()
	v := url.Values{}
	if q.HasRange() {
		v.Set("from", q.From.UTC().Format(time.RFC3339))
		v.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	v.Set("limit", strconv.Itoa(q.Limit))
	return v
}

// CacheKey identifies the query inside an account's cache namespace.
func (q TransactionQuery) CacheKey() string {
	q = q.Normalize()
	if !q.HasRange() {
		return fmt.Sprintf("all:%d", q.Limit)
	}
	return fmt.Sprintf("%d-%d:%d", q.From.Unix(), q.To.Unix(), q.Limit)
}

type wireTransaction struct {
	AccountID    string      `json:"accountId"`
	Timestamp    string      `json:"timestamp"`
	CreatedAt    string      `json:"createdAt"`
	Type         string      `json:"type"`
	Amount       flexDecimal `json:"amount"`
	Counterparty string      `json:"counterparty"`
	TransferID   string      `json:"transferId"`
	Status       string      `json:"status"`
	Note         string      `json:"note"`
}

type wireTransactionSummary struct {
	TotalTransactions     flexInt     `json:"totalTransactions"`
	TotalDebits           flexDecimal `json:"totalDebits"`
	TotalCredits          flexDecimal `json:"totalCredits"`
	CompletedTransactions flexInt     `json:"completedTransactions"`
	FailedTransactions    flexInt     `json:"failedTransactions"`
	NetAmount             flexDecimal `json:"netAmount"`
}

type wireTransactionPage struct {
	AccountID    string                  `json:"accountId"`
	Transactions []wireTransaction       `json:"transactions"`
	Summary      *wireTransactionSummary `json:"summary"`
	Pagination   *struct {
		Limit   flexInt `json:"limit"`
		HasMore bool    `json:"hasMore"`
	} `json:"pagination"`
	CorrelationID string `json:"correlationId"`
}

func (w wireTransaction) toTransaction() Transaction {
	ts := w.Timestamp
	if ts == "" {
		ts = w.CreatedAt
	}
	return Transaction{
		AccountID:    w.AccountID,
		Timestamp:    parseTimestamp(ts),
		Type:         TransactionType(w.Type),
		Amount:       w.Amount.or(decimal.Zero),
		Counterparty: w.Counterparty,
		TransferID:   w.TransferID,
		Status:       TransactionStatus(w.Status),
		Note:         w.Note,
	}
}

// DecodeTransactionPage maps the transaction listing response body.
func DecodeTransactionPage(data []byte) (*TransactionPage, error) {
	var w wireTransactionPage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("banking: decode transaction page: %w", err)
	}

	page := &TransactionPage{
		AccountID:     w.AccountID,
		Transactions:  make([]Transaction, 0, len(w.Transactions)),
		Pagination:    Pagination{Limit: DefaultTransactionLimit},
		CorrelationID: w.CorrelationID,
	}
	for _, tx := range w.Transactions {
		page.Transactions = append(page.Transactions, tx.toTransaction())
	}

	if s := w.Summary; s != nil {
		page.Summary = TransactionSummary{
			TotalTransactions:     s.TotalTransactions.or(0),
			TotalDebits:           s.TotalDebits.or(decimal.Zero),
			TotalCredits:          s.TotalCredits.or(decimal.Zero),
			CompletedTransactions: s.CompletedTransactions.or(0),
			FailedTransactions:    s.FailedTransactions.or(0),
			NetAmount:             s.NetAmount.or(decimal.Zero),
		}
	}
	if p := w.Pagination; p != nil {
		page.Pagination = Pagination{
			Limit:   p.Limit.or(DefaultTransactionLimit),
			HasMore: p.HasMore,
		}
	}

	return page, nil
}
