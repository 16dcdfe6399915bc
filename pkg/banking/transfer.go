package banking

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TransferStatus is the backend's verdict on a transfer request.
type TransferStatus string

const (
	TransferCompleted TransferStatus = "COMPLETED"
	TransferPending   TransferStatus = "PENDING"
	TransferFailed    TransferStatus = "FAILED"
)

// ParseTransferStatus maps a wire status case-insensitively. Anything
// unrecognised is FAILED: the client never assumes money moved.
func ParseTransferStatus(s string) TransferStatus {
	switch TransferStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case TransferCompleted:
		return TransferCompleted
	case TransferPending:
		return TransferPending
	default:
		return TransferFailed
	}
}

// TransferRequest is the body of POST /v1/transfers.
type TransferRequest struct {
	SourceAccountID string          `json:"sourceAccountId"`
	TargetAccountID string          `json:"targetAccountId"`
	Amount          decimal.Decimal `json:"amount"`
	Note            string          `json:"note,omitempty"`
	IdempotencyKey  string          `json:"idempotencyKey"`
}

// MarshalJSON sends the amount as a JSON number, which the backend requires.
func (r TransferRequest) MarshalJSON() ([]byte, error) {
	type plain struct {
		SourceAccountID string      `json:"sourceAccountId"`
		TargetAccountID string      `json:"targetAccountId"`
		Amount          json.Number `json:"amount"`
		Note            string      `json:"note,omitempty"`
		IdempotencyKey  string      `json:"idempotencyKey"`
	}
	return json.Marshal(plain{
		SourceAccountID: r.SourceAccountID,
		TargetAccountID: r.TargetAccountID,
		Amount:          json.Number(r.Amount.String()),
		Note:            r.Note,
		IdempotencyKey:  r.IdempotencyKey,
	})
}

// TransferResult is the backend's answer to a transfer request or status lookup.
type TransferResult struct {
	Status          TransferStatus  `json:"status"`
	Message         string          `json:"message,omitempty"`
	TransferID      string          `json:"transferId,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	SourceAccountID string          `json:"sourceAccountId,omitempty"`
	TargetAccountID string          `json:"targetAccountId,omitempty"`
}

type wireTransferResult struct {
	Status          string      `json:"status"`
	Message         string      `json:"message"`
	Error           string      `json:"error"`
	TransferID      string      `json:"transferId"`
	Amount          flexDecimal `json:"amount"`
	SourceAccountID string      `json:"sourceAccountId"`
	TargetAccountID string      `json:"targetAccountId"`
}

// DecodeTransferResult maps a transfer response body.
func DecodeTransferResult(data []byte) (*TransferResult, error) {
	var w wireTransferResult
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("banking: decode transfer result: %w", err)
	}

	message := w.Message
	if message == "" {
		message = w.Error
	}

	return &TransferResult{
		Status:          ParseTransferStatus(w.Status),
		Message:         message,
		TransferID:      w.TransferID,
		Amount:          w.Amount.or(decimal.Zero),
		SourceAccountID: w.SourceAccountID,
		TargetAccountID: w.TargetAccountID,
	}, nil
}
