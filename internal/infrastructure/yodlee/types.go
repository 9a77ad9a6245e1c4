package yodlee

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/money"
	"ledgersync/internal/shared/flexjson"
)

const dateLayout = "2006-01-02"

// Account is one account from GET /accounts. Raw keeps the exact payload.
// Err is set when the record could not be decoded; only the identifiers
// that could be recovered are filled in then.
type Account struct {
	ID flexjson.ID `json:"id"`
	account.Details

	Raw json.RawMessage `json:"-"`
	Err error           `json:"-"`
}

func (a *Account) UnmarshalJSON(b []byte) error {
	type plain Account
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = Account(v)
	a.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Description holds the provider's description variants.
type Description struct {
	Original flexjson.Text `json:"original"`
	Simple   flexjson.Text `json:"simple"`
	Consumer flexjson.Text `json:"consumer"`
}

// Transaction is one transaction from GET /transactions. Raw keeps the exact
// payload. Err is set when the record could not be decoded.
type Transaction struct {
	ID              flexjson.ID     `json:"id"`
	AccountID       flexjson.ID     `json:"accountId"`
	Container       flexjson.Text   `json:"CONTAINER"`
	Amount          *money.Amount   `json:"amount"`
	BaseType        flexjson.Text   `json:"baseType"`
	Date            flexjson.Text   `json:"date"`
	TransactionDate flexjson.Text   `json:"transactionDate"`
	PostDate        flexjson.Text   `json:"postDate"`
	Description     Description     `json:"description"`
	CategoryID      flexjson.ID     `json:"categoryId"`
	Category        json.RawMessage `json:"category"`
	Merchant        json.RawMessage `json:"merchant"`
	Memo            flexjson.Text   `json:"memo"`
	CheckNumber     flexjson.Text   `json:"checkNumber"`

	Raw json.RawMessage `json:"-"`
	Err error           `json:"-"`
}

func (t *Transaction) UnmarshalJSON(b []byte) error {
	type plain Transaction
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = Transaction(v)
	t.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// IsDebit reports whether the provider flags the transaction as money leaving the account.
func (t *Transaction) IsDebit() bool {
	return strings.EqualFold(t.BaseType.String(), "DEBIT")
}

// AmountMinor returns the signed amount in minor units: debits are negative,
// everything else positive. A missing amount is zero; an amount that is not
// a number is an error.
func (t *Transaction) AmountMinor() (int64, error) {
	if t.Amount == nil {
		return 0, nil
	}
	minor, err := t.Amount.Minor()
	if err != nil {
		return 0, err
	}
	return money.Signed(minor, t.IsDebit()), nil
}

// Currency returns the amount's currency, if reported.
func (t *Transaction) Currency() string {
	if t.Amount == nil {
		return ""
	}
	return t.Amount.Currency.String()
}

// GetDate parses the first present of date, transactionDate and postDate.
func (t *Transaction) GetDate() (time.Time, error) {
	raw := firstNonEmpty(t.Date.String(), t.TransactionDate.String(), t.PostDate.String())
	if raw == "" {
		return time.Time{}, fmt.Errorf("transaction %s has no date", t.ID)
	}
	if d, err := time.Parse(dateLayout, raw); err == nil {
		return d, nil
	}
	d, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", raw, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
}

// DescriptionText prefers the simplified description, then the original.
// Empty when neither is present.
func (t *Transaction) DescriptionText() string {
	return firstNonEmpty(t.Description.Simple.String(), t.Description.Original.String())
}

// CategoryKey returns the provider category identifier, from categoryId or
// from a category object carrying an id.
func (t *Transaction) CategoryKey() string {
	if t.CategoryID != "" {
		return t.CategoryID.String()
	}
	if len(t.Category) == 0 || t.Category[0] != '{' {
		return ""
	}
	var ref struct {
		ID flexjson.ID `json:"id"`
	}
	if err := json.Unmarshal(t.Category, &ref); err != nil {
		return ""
	}
	return ref.ID.String()
}

// MerchantName returns the merchant name, falling back to the simplified description.
func (t *Transaction) MerchantName() string {
	if name := merchantName(t.Merchant); name != "" {
		return name
	}
	return strings.TrimSpace(t.Description.Simple.String())
}

func merchantName(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}

// Notes joins the original description, memo and check number into free text.
func (t *Transaction) Notes() string {
	var lines []string
	if t.Description.Original != "" {
		lines = append(lines, t.Description.Original.String())
	}
	if t.Memo != "" {
		lines = append(lines, t.Memo.String())
	}
	if t.CheckNumber != "" {
		lines = append(lines, "Check #"+t.CheckNumber.String())
	}
	return strings.Join(lines, "\n")
}

// Institution is one provider from GET /providers/{id}.
type Institution struct {
	ID           flexjson.ID `json:"id"`
	Name         string      `json:"name"`
	LoginURL     string      `json:"loginUrl"`
	BaseURL      string      `json:"baseUrl"`
	URL          string      `json:"url"`
	Favicon      string      `json:"favicon"`
	Logo         string      `json:"logo"`
	PrimaryColor string      `json:"primaryColor"`

	Raw json.RawMessage `json:"-"`
}

func (i *Institution) UnmarshalJSON(b []byte) error {
	type plain Institution
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*i = Institution(v)
	i.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Website returns the institution's public URL.
func (i *Institution) Website() string {
	return firstNonEmpty(i.URL, i.BaseURL, i.LoginURL)
}

// Collections are decoded one record at a time so a malformed record is
// reported on its own instead of failing the whole response.
type accountsResponse struct {
	Account []json.RawMessage `json:"account"`
}

type transactionsResponse struct {
	Transaction []json.RawMessage `json:"transaction"`
}

// recordRef holds the identifiers that can still be read from a malformed record.
type recordRef struct {
	ID                flexjson.ID `json:"id"`
	AccountID         flexjson.ID `json:"accountId"`
	ProviderAccountID flexjson.ID `json:"providerAccountId"`
}

func readRef(b []byte) recordRef {
	var ref recordRef
	_ = json.Unmarshal(b, &ref)
	return ref
}

func decodeAccounts(items []json.RawMessage) []Account {
	accounts := make([]Account, 0, len(items))
	for _, item := range items {
		var acc Account
		if err := json.Unmarshal(item, &acc); err != nil {
			ref := readRef(item)
			acc = Account{ID: ref.ID, Raw: append(json.RawMessage(nil), item...), Err: fmt.Errorf("malformed account record: %w", err)}
			acc.ProviderAccountID = ref.ProviderAccountID
		}
		accounts = append(accounts, acc)
	}
	return accounts
}

func decodeTransactions(items []json.RawMessage) []Transaction {
	txs := make([]Transaction, 0, len(items))
	for _, item := range items {
		var tx Transaction
		if err := json.Unmarshal(item, &tx); err != nil {
			ref := readRef(item)
			tx = Transaction{
				ID:        ref.ID,
				AccountID: ref.AccountID,
				Raw:       append(json.RawMessage(nil), item...),
				Err:       fmt.Errorf("malformed transaction record: %w", err),
			}
		}
		txs = append(txs, tx)
	}
	return txs
}

type providersResponse struct {
	Provider []Institution `json:"provider"`
}

type tokenResponse struct {
	Token struct {
		AccessToken string `json:"accessToken"`
		IssuedAt    string `json:"issuedAt"`
		ExpiresIn   int    `json:"expiresIn"`
	} `json:"token"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
