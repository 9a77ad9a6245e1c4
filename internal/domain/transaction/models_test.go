package transaction

import (
	"testing"
	"time"
)

func TestCreateParams_Validate(t *testing.T) {
	base := CreateParams{
		LedgerAccountID: "acc-1",
		ExternalID:      "tx-1",
		AmountMinor:     -2500,
		Currency:        "USD",
		Date:            time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Description:     "Coffee",
	}

	tests := []struct {
		name    string
		mutate  func(p *CreateParams)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *CreateParams) {}},
		{name: "missing account", mutate: func(p *CreateParams) { p.LedgerAccountID = "" }, wantErr: true},
		{name: "missing external id", mutate: func(p *CreateParams) { p.ExternalID = "" }, wantErr: true},
		{name: "zero date", mutate: func(p *CreateParams) { p.Date = time.Time{} }, wantErr: true},
		{name: "missing description", mutate: func(p *CreateParams) { p.Description = "" }, wantErr: true},
		{name: "missing currency", mutate: func(p *CreateParams) { p.Currency = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransaction_IsOutflow(t *testing.T) {
	if !(&Transaction{AmountMinor: -1}).IsOutflow() {
		t.Error("IsOutflow() = false for negative amount")
	}
	if (&Transaction{AmountMinor: 1}).IsOutflow() {
		t.Error("IsOutflow() = true for positive amount")
	}
}
