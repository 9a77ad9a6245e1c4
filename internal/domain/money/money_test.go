package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinor(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"25.00", 2500},
		{"25", 2500},
		{"0.1", 10},
		{"19.999", 2000},
		{"-42.37", -4237},
		{"1234567.89", 123456789},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ToMinor(decimal.RequireFromString(tt.in)); got != tt.want {
				t.Errorf("ToMinor(%s) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSigned(t *testing.T) {
	tests := []struct {
		name    string
		minor   int64
		outflow bool
		want    int64
	}{
		{"debit positive", 2500, true, -2500},
		{"debit already negative", -2500, true, -2500},
		{"credit positive", 2500, false, 2500},
		{"credit negative", -2500, false, 2500},
		{"zero", 0, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Signed(tt.minor, tt.outflow); got != tt.want {
				t.Errorf("Signed(%d, %v) = %d, want %d", tt.minor, tt.outflow, got, tt.want)
			}
		})
	}
}

func TestFromMinor(t *testing.T) {
	if got := FromMinor(-2500).String(); got != "-25" {
		t.Errorf("FromMinor(-2500) = %s, want -25", got)
	}
}

func TestAmount_Minor(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    int64
		wantErr bool
	}{
		{"number", `{"amount": 25.5, "currency": "USD"}`, 2550, false},
		{"numeric string", `{"amount": "12.34"}`, 1234, false},
		{"word", `{"amount": "abc"}`, 0, true},
		{"empty string", `{"amount": ""}`, 0, true},
		{"null", `{"amount": null}`, 0, true},
		{"missing", `{"currency": "USD"}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Amount
			if err := json.Unmarshal([]byte(tt.json), &a); err != nil {
				t.Fatalf("Unmarshal() failed: %v", err)
			}
			got, err := a.Minor()
			if tt.wantErr {
				if !errors.Is(err, ErrNotANumber) {
					t.Errorf("Minor() error = %v, want %v", err, ErrNotANumber)
				}
				return
			}
			if err != nil {
				t.Fatalf("Minor() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Minor() = %d, want %d", got, tt.want)
			}
		})
	}
}
