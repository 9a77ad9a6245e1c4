package account

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// KindType names one variant of the Kind union.
type KindType string

const (
	KindDepository     KindType = "depository"
	KindCreditCard     KindType = "credit_card"
	KindInvestment     KindType = "investment"
	KindLoan           KindType = "loan"
	KindProperty       KindType = "property"
	KindOtherAsset     KindType = "other_asset"
	KindOtherLiability KindType = "other_liability"
)

var kindTypes = map[KindType]struct{}{
	KindDepository:     {},
	KindCreditCard:     {},
	KindInvestment:     {},
	KindLoan:           {},
	KindProperty:       {},
	KindOtherAsset:     {},
	KindOtherLiability: {},
}

// IsValid checks if the kind type is one of the known variants.
func (k KindType) IsValid() bool {
	_, ok := kindTypes[k]
	return ok
}

// IsLiability reports whether balances of this kind represent money owed.
func (k KindType) IsLiability() bool {
	return k == KindCreditCard || k == KindLoan || k == KindOtherLiability
}

// Kind is the polymorphic classification of a LedgerAccount. Each variant
// carries only the attributes relevant to it.
type Kind interface {
	Type() KindType
	isKind()
}

type Depository struct {
	Subtype string `json:"subtype"` // checking | savings
}

type CreditCard struct {
	Subtype    string `json:"subtype"`
	LimitMinor *int64 `json:"limitMinor,omitempty"`
}

type Investment struct {
	Subtype string `json:"subtype"`
}

type Loan struct {
	Subtype      string           `json:"subtype"` // mortgage | personal_loan
	InterestRate *decimal.Decimal `json:"interestRate,omitempty"`
}

type Property struct {
	Subtype string `json:"subtype"`
}

type OtherAsset struct{}

type OtherLiability struct{}

func (Depository) Type() KindType     { return KindDepository }
func (CreditCard) Type() KindType     { return KindCreditCard }
func (Investment) Type() KindType     { return KindInvestment }
func (Loan) Type() KindType           { return KindLoan }
func (Property) Type() KindType       { return KindProperty }
func (OtherAsset) Type() KindType     { return KindOtherAsset }
func (OtherLiability) Type() KindType { return KindOtherLiability }

func (Depository) isKind()     {}
func (CreditCard) isKind()     {}
func (Investment) isKind()     {}
func (Loan) isKind()           {}
func (Property) isKind()       {}
func (OtherAsset) isKind()     {}
func (OtherLiability) isKind() {}

// BuildKind derives the kind-specific attributes for t from a snapshot's details.
func BuildKind(t KindType, d Details) Kind {
	subtype := strings.ToLower(d.AccountType)

	switch t {
	case KindDepository:
		if strings.Contains(subtype, "checking") {
			return Depository{Subtype: "checking"}
		}
		return Depository{Subtype: "savings"}
	case KindCreditCard:
		cc := CreditCard{Subtype: "credit_card"}
		if d.AvailableCredit != nil {
			if limit, err := d.AvailableCredit.Minor(); err == nil {
				cc.LimitMinor = &limit
			}
		}
		return cc
	case KindInvestment:
		return Investment{Subtype: "brokerage"}
	case KindLoan:
		loan := Loan{Subtype: "personal_loan", InterestRate: d.InterestRate.Ptr()}
		if strings.Contains(subtype, "mortgage") {
			loan.Subtype = "mortgage"
		}
		return loan
	case KindProperty:
		return Property{Subtype: "residential"}
	case KindOtherLiability:
		return OtherLiability{}
	default:
		return OtherAsset{}
	}
}

// EncodeKind splits a kind into its storage tag and JSON details.
func EncodeKind(k Kind) (KindType, []byte, error) {
	if k == nil {
		return "", nil, ErrInvalidKind
	}
	details, err := json.Marshal(k)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s details: %w", k.Type(), err)
	}
	return k.Type(), details, nil
}

// DecodeKind rebuilds a kind from its storage tag and JSON details.
func DecodeKind(t KindType, details []byte) (Kind, error) {
	var k Kind
	switch t {
	case KindDepository:
		k = &Depository{}
	case KindCreditCard:
		k = &CreditCard{}
	case KindInvestment:
		k = &Investment{}
	case KindLoan:
		k = &Loan{}
	case KindProperty:
		k = &Property{}
	case KindOtherAsset:
		return OtherAsset{}, nil
	case KindOtherLiability:
		return OtherLiability{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, t)
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, k); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", t, err)
		}
	}

	switch v := k.(type) {
	case *Depository:
		return *v, nil
	case *CreditCard:
		return *v, nil
	case *Investment:
		return *v, nil
	case *Loan:
		return *v, nil
	case *Property:
		return *v, nil
	}
	return k, nil
}
