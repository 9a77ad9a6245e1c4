// Package flexjson holds JSON scalar types for aggregator payloads, whose
// field types drift between string, number and null across records.
package flexjson

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

var null = []byte("null")

// ID is an identifier that may arrive as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, null) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid identifier %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Text is free text. Numbers and booleans keep their literal spelling;
// objects, arrays and null decode to the empty string.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	*t = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*t = Text(s)
	case '{', '[', 'n':
	default:
		*t = Text(b)
	}
	return nil
}

func (t Text) String() string {
	return string(t)
}

// Decimal is a number that may arrive as a JSON number or numeric string.
// Anything else leaves Valid false instead of failing the decode, so one
// bad value stays confined to the record that carries it.
type Decimal struct {
	Value decimal.Decimal
	Valid bool
	// Literal is the raw JSON value, kept for error messages.
	Literal string
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	*d = Decimal{Literal: string(b)}
	if bytes.Equal(b, null) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		s = string(b)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	d.Value = v
	d.Valid = true
	return nil
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return null, nil
	}
	return d.Value.MarshalJSON()
}

// NewDecimal returns a valid Decimal holding v.
func NewDecimal(v decimal.Decimal) Decimal {
	return Decimal{Value: v, Valid: true, Literal: v.String()}
}

// Ptr returns the value, or nil when it is not a number.
func (d Decimal) Ptr() *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Value
	return &v
}
