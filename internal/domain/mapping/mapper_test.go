package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ledgersync/internal/domain/account"
)

func TestDefault_AccountKind(t *testing.T) {
	m := Default()

	tests := []struct {
		container string
		subtype   string
		want      account.KindType
	}{
		{"bank", "CHECKING", account.KindDepository},
		{"bank", "SAVINGS", account.KindDepository},
		{"bank", "savings", account.KindDepository},
		{"bank", "CD", account.KindOtherAsset},
		{"creditCard", "", account.KindCreditCard},
		{"investment", "BROKERAGE_MARGIN", account.KindInvestment},
		{"insurance", "", account.KindOtherAsset},
		{"loan", "MORTGAGE", account.KindLoan},
		{"loan", "PERSONAL_LOAN", account.KindLoan},
		{"realEstate", "", account.KindProperty},
		{"otherAssets", "", account.KindOtherAsset},
		{"otherLiabilities", "", account.KindOtherLiability},
		{"reward", "", account.KindOtherAsset},
		{"", "", account.KindOtherAsset},
	}

	for _, tt := range tests {
		t.Run(tt.container+"/"+tt.subtype, func(t *testing.T) {
			if got := m.AccountKind(tt.container, tt.subtype); got != tt.want {
				t.Errorf("AccountKind(%q, %q) = %s, want %s", tt.container, tt.subtype, got, tt.want)
			}
		})
	}
}

func TestDefault_Category(t *testing.T) {
	m := Default()

	if got := m.Category("9"); got != "groceries" {
		t.Errorf("Category(9) = %q, want groceries", got)
	}
	if got := m.Category(""); got != DefaultCategory {
		t.Errorf("Category(\"\") = %q, want %q", got, DefaultCategory)
	}
	if got := m.Category("99999"); got != DefaultCategory {
		t.Errorf("Category(99999) = %q, want %q", got, DefaultCategory)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr bool
	}{
		{
			name:  "empty table uses fallbacks",
			table: Table{},
		},
		{
			name:    "unknown container kind",
			table:   Table{AccountKinds: map[string]ContainerRule{"bank": {Default: "boat"}}},
			wantErr: true,
		},
		{
			name: "unknown subtype kind",
			table: Table{AccountKinds: map[string]ContainerRule{
				"bank": {Default: account.KindDepository, Subtypes: map[string]account.KindType{"CD": "boat"}},
			}},
			wantErr: true,
		},
		{
			name:    "unknown fallback kind",
			table:   Table{FallbackKind: "boat"},
			wantErr: true,
		},
		{
			name:    "empty category slug",
			table:   Table{Categories: map[string]string{"1": ""}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.table)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTable) {
				t.Errorf("New() error = %v, want ErrInvalidTable", err)
			}
		})
	}
}

func TestLoad_CustomTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	doc := `
account_kinds:
  bank:
    default: depository
fallback_kind: other_liability
default_category: misc
categories:
  "9": food
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := m.AccountKind("bank", "CD"); got != account.KindDepository {
		t.Errorf("AccountKind(bank, CD) = %s, want depository", got)
	}
	if got := m.AccountKind("crypto", ""); got != account.KindOtherLiability {
		t.Errorf("AccountKind(crypto) = %s, want other_liability", got)
	}
	if got := m.Category("9"); got != "food" {
		t.Errorf("Category(9) = %q, want food", got)
	}
	if got := m.Category("1"); got != "misc" {
		t.Errorf("Category(1) = %q, want misc", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("account_kinds: [not, a, map"))
	if !errors.Is(err, ErrInvalidTable) {
		t.Errorf("Parse() error = %v, want ErrInvalidTable", err)
	}
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	m, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() failed: %v", err)
	}
	if got := m.AccountKind("creditCard", ""); got != account.KindCreditCard {
		t.Errorf("AccountKind(creditCard) = %s, want credit_card", got)
	}
}
