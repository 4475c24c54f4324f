package swish

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a gateway amount. It keeps the JSON exactly as received so a
// payment re-encodes to what the gateway sent, and parses it for arithmetic.
// An empty string or null decodes to an unset zero amount.
type Amount struct {
	value decimal.Decimal
	raw   json.RawMessage
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{value: d}
}

func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

// String returns the amount as the gateway wrote it, or with two decimals
// when it was built locally.
func (a Amount) String() string {
	if len(a.raw) == 0 {
		return FormatAmount(a.value)
	}
	var s string
	if err := json.Unmarshal(a.raw, &s); err == nil {
		return s
	}
	return string(a.raw)
}

func (a Amount) StringFixed(places int32) string {
	return a.value.StringFixed(places)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}

	parsed := Amount{raw: append(json.RawMessage(nil), data...)}
	if text == "" {
		*a = parsed
		return nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return fmt.Errorf("swish: invalid amount %s: %w", data, err)
	}
	parsed.value = d
	*a = parsed
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if len(a.raw) > 0 {
		return a.raw, nil
	}
	return json.Marshal(FormatAmount(a.value))
}
