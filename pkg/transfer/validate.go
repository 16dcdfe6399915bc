package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"banca-client/pkg/banking"
	"banca-client/pkg/config"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Field names as the front-end knows them.
const (
	FieldSource = "sourceAccountId"
	FieldTarget = "targetAccountId"
	FieldAmount = "amount"
	FieldNote   = "note"
)

// Validation rules reported in FieldError.Rule.
const (
	RuleRequired       = "required"
	RuleSameAccount    = "same_account"
	RuleUnknownAccount = "unknown_account"
	RuleInvalid        = "invalid"
	RulePrecision      = "precision"
	RuleMinAmount      = "min_amount"
	RuleMaxAmount      = "max_amount"
	RuleMaxLength      = "max_length"
)

// DefaultMaxNoteLength applies when Limits.MaxNoteLength is unset.
const DefaultMaxNoteLength = 100

// ErrValidation matches any *ValidationError with errors.Is.
var ErrValidation = errors.New("transfer: invalid draft")

// Limits bounds what a draft may ask for. Values come from the deployment
// profile.
type Limits struct {
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	DailyLimit    decimal.Decimal
	MaxNoteLength int
}

// LimitsFromConfig converts the configured transfer limits.
func LimitsFromConfig(c config.TransferLimits) Limits {
	return Limits{
		MinAmount:     c.MinAmount,
		MaxAmount:     c.MaxAmount,
		DailyLimit:    c.DailyLimit,
		MaxNoteLength: c.MaxNoteLength,
	}
}

// Draft is the transfer form as the user filled it in. Amount is kept as
// typed; it may arrive as a JSON string or number.
type Draft struct {
	SourceAccountID string `json:"sourceAccountId" validate:"required"`
	TargetAccountID string `json:"targetAccountId" validate:"required,nefield=SourceAccountID"`
	Amount          string `json:"amount" validate:"required"`
	Note            string `json:"note,omitempty"`
}

// UnmarshalJSON accepts the amount as a string or a number.
func (d *Draft) UnmarshalJSON(data []byte) error {
	var w struct {
		SourceAccountID string          `json:"sourceAccountId"`
		TargetAccountID string          `json:"targetAccountId"`
		Amount          json.RawMessage `json:"amount"`
		Note            string          `json:"note"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	amount := strings.TrimSpace(string(w.Amount))
	if amount == "null" {
		amount = ""
	}
	if strings.HasPrefix(amount, `"`) {
		unquoted, err := strconv.Unquote(amount)
		if err != nil {
			return fmt.Errorf("transfer: amount: %w", err)
		}
		amount = unquoted
	}

	*d = Draft{
		SourceAccountID: w.SourceAccountID,
		TargetAccountID: w.TargetAccountID,
		Amount:          amount,
		Note:            w.Note,
	}
	return nil
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError lists every offending field of a draft.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "transfer: invalid draft: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Field returns the error for field, if any.
func (e *ValidationError) Field(field string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f, true
		}
	}
	return FieldError{}, false
}

// HasField reports whether field failed any rule.
func (e *ValidationError) HasField(field string) bool {
	_, ok := e.Field(field)
	return ok
}

func (e *ValidationError) add(field, rule, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Rule: rule, Message: message})
}

// Validator checks drafts against the owned accounts and the active limits.
// It does no I/O.
type Validator struct {
	validate *validator.Validate
	limits   Limits
}

// NewValidator creates a validator for limits. A zero MaxNoteLength uses
// DefaultMaxNoteLength.
func NewValidator(limits Limits) *Validator {
	if limits.MaxNoteLength <= 0 {
		limits.MaxNoteLength = DefaultMaxNoteLength
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v, limits: limits}
}

// Limits returns the active limits.
func (v *Validator) Limits() Limits {
	return v.limits
}

// Validate normalizes draft into a request without an idempotency key, or
// returns a *ValidationError naming every offending field.
func (v *Validator) Validate(draft Draft, accounts []banking.Account) (banking.TransferRequest, error) {
	draft = Draft{
		SourceAccountID: strings.TrimSpace(draft.SourceAccountID),
		TargetAccountID: strings.TrimSpace(draft.TargetAccountID),
		Amount:          strings.TrimSpace(draft.Amount),
		Note:            strings.TrimSpace(draft.Note),
	}

	verr := &ValidationError{}
	failed := make(map[string]bool)

	var structErrs validator.ValidationErrors
	if err := v.validate.Struct(draft); errors.As(err, &structErrs) {
		for _, fe := range structErrs {
			failed[fe.Field()] = true
			switch fe.Tag() {
			case "nefield":
				verr.add(fe.Field(), RuleSameAccount, "source and destination accounts must differ")
			default:
				verr.add(fe.Field(), RuleRequired, "is required")
			}
		}
	}

	owned := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		owned[a.AccountID] = true
	}
	if !failed[FieldSource] && !owned[draft.SourceAccountID] {
		verr.add(FieldSource, RuleUnknownAccount, "is not one of your accounts")
	}
	if !failed[FieldTarget] && !owned[draft.TargetAccountID] {
		verr.add(FieldTarget, RuleUnknownAccount, "is not an account you can send to")
	}

	var amount decimal.Decimal
	if !failed[FieldAmount] {
		amount = v.checkAmount(draft.Amount, verr)
	}

	if err := v.validate.Var(draft.Note, "max="+strconv.Itoa(v.limits.MaxNoteLength)); err != nil {
		verr.add(FieldNote, RuleMaxLength, fmt.Sprintf("must be at most %d characters", v.limits.MaxNoteLength))
	}

	if len(verr.Fields) > 0 {
		sortFields(verr.Fields)
		return banking.TransferRequest{}, verr
	}

	return banking.TransferRequest{
		SourceAccountID: draft.SourceAccountID,
		TargetAccountID: draft.TargetAccountID,
		Amount:          amount,
		Note:            draft.Note,
	}, nil
}

func (v *Validator) checkAmount(raw string, verr *ValidationError) decimal.Decimal {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		verr.add(FieldAmount, RuleInvalid, "must be a number")
		return decimal.Zero
	}
	if !amount.Equal(amount.Round(2)) {
		verr.add(FieldAmount, RulePrecision, "must have at most two decimal places")
		return amount
	}
	if amount.LessThan(v.limits.MinAmount) || !amount.IsPositive() {
		verr.add(FieldAmount, RuleMinAmount, "must be at least "+v.limits.MinAmount.StringFixed(2))
		return amount
	}
	if !v.limits.MaxAmount.IsZero() && amount.GreaterThan(v.limits.MaxAmount) {
		verr.add(FieldAmount, RuleMaxAmount, "must be at most "+v.limits.MaxAmount.StringFixed(2))
	}
	return amount
}

var fieldOrder = map[string]int{FieldSource: 0, FieldTarget: 1, FieldAmount: 2, FieldNote: 3}

// sortFields orders errors as the form lays fields out.
func sortFields(fields []FieldError) {
	sort.SliceStable(fields, func(i, j int) bool {
		return fieldOrder[fields[i].Field] < fieldOrder[fields[j].Field]
	})
}
