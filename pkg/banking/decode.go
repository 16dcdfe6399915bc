package banking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// flexDecimal accepts JSON numbers, numeric strings, empty strings and null.
// The backend serialises amounts inconsistently across endpoints.
type flexDecimal struct {
	value decimal.Decimal
	set   bool
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := strings.TrimSpace(strings.Trim(string(data), `"`))
	if raw == "" {
		return nil
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("banking: invalid amount %q: %w", raw, err)
	}
	f.value = d
	f.set = true
	return nil
}

func (f flexDecimal) or(def decimal.Decimal) decimal.Decimal {
	if !f.set {
		return def
	}
	return f.value
}

// flexInt accepts JSON integers and integer strings.
type flexInt struct {
	value int
	set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	if raw == "" || raw == "null" {
		return nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		var fl float64
		if jsonErr := json.Unmarshal([]byte(raw), &fl); jsonErr != nil {
			return fmt.Errorf("banking: invalid integer %q: %w", raw, err)
		}
		n = int(fl)
	}
	f.value = n
	f.set = true
	return nil
}

func (f flexInt) or(def int) int {
	if !f.set {
		return def
	}
	return f.value
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp reads the ISO-8601 forms the backend emits, with or without
// a zone. Zone-less values are taken as UTC. Unparseable input yields the
// zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
