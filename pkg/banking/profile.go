package banking

import (
	"encoding/json"
	"fmt"
	"time"
)

// Profile is the signed-in customer's profile.
type Profile struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	GivenName    string      `json:"givenName"`
	FamilyName   string      `json:"familyName"`
	Status       string      `json:"status"`
	CustomerType string      `json:"customerType"`
	RiskProfile  string      `json:"riskProfile"`
	Preferences  Preferences `json:"preferences"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Preferences are the customer's notification and display choices.
type Preferences struct {
	EmailNotifications bool   `json:"emailNotifications"`
	SMSNotifications   bool   `json:"smsNotifications"`
	Language           string `json:"language"`
	Currency           string `json:"currency"`
}

// SeedResult reports the demo data created for a new customer.
type SeedResult struct {
	Message             string `json:"message"`
	AccountsCreated     int    `json:"accountsCreated"`
	TransactionsCreated int    `json:"transactionsCreated"`
	CheckingAccountID   string `json:"checkingAccountId"`
	SavingsAccountID    string `json:"savingsAccountId"`
}

type wireProfile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	GivenName    string `json:"givenName"`
	FamilyName   string `json:"familyName"`
	Status       string `json:"status"`
	CustomerType string `json:"customerType"`
	RiskProfile  string `json:"riskProfile"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	Preferences  *struct {
		Notifications *struct {
			Email *bool `json:"email"`
			SMS   *bool `json:"sms"`
		} `json:"notifications"`
		Language string `json:"language"`
		Currency string `json:"currency"`
	} `json:"preferences"`
}

// DecodeProfile maps the profile response body, {"profile": {...}}.
// Missing preferences take the backend defaults: email on, SMS off,
// Spanish, USD.
func DecodeProfile(data []byte) (*Profile, error) {
	var envelope struct {
		Profile wireProfile `json:"profile"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("banking: decode profile: %w", err)
	}
	w := envelope.Profile

	p := &Profile{
		ID:           w.ID,
		Email:        w.Email,
		Name:         w.Name,
		GivenName:    w.GivenName,
		FamilyName:   w.FamilyName,
		Status:       orDefault(w.Status, "ACTIVE"),
		CustomerType: orDefault(w.CustomerType, "INDIVIDUAL"),
		RiskProfile:  orDefault(w.RiskProfile, "CONSERVATIVE"),
		CreatedAt:    parseTimestamp(w.CreatedAt),
		UpdatedAt:    parseTimestamp(w.UpdatedAt),
		Preferences: Preferences{
			EmailNotifications: true,
			Language:           "es",
			Currency:           DefaultCurrency,
		},
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	if prefs := w.Preferences; prefs != nil {
		if n := prefs.Notifications; n != nil {
			if n.Email != nil {
				p.Preferences.EmailNotifications = *n.Email
			}
			if n.SMS != nil {
				p.Preferences.SMSNotifications = *n.SMS
			}
		}
		p.Preferences.Language = orDefault(prefs.Language, p.Preferences.Language)
		p.Preferences.Currency = orDefault(prefs.Currency, p.Preferences.Currency)
	}
	return p, nil
}

// DecodeSeedResult maps the seed endpoint response body.
func DecodeSeedResult(data []byte) (*SeedResult, error) {
	var r SeedResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("banking: decode seed result: %w", err)
	}
	return &r, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
