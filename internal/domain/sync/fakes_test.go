package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/family"
	"ledgersync/internal/domain/mapping"
	"ledgersync/internal/domain/transaction"
	"ledgersync/internal/infrastructure/yodlee"
)

// MockClient implements every provider port with overridable funcs.
type MockClient struct {
	GetAccountsFunc     func(ctx context.Context, sessionToken string) ([]yodlee.Account, error)
	GetTransactionsFunc func(ctx context.Context, sessionToken string, from, to time.Time) ([]yodlee.Transaction, error)
	GetInstitutionFunc  func(ctx context.Context, providerID string) (*yodlee.Institution, error)

	TransactionCalls int
}

func (m *MockClient) GetAccounts(ctx context.Context, sessionToken string) ([]yodlee.Account, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx, sessionToken)
	}
	return nil, nil
}

func (m *MockClient) GetTransactions(ctx context.Context, sessionToken string, from, to time.Time) ([]yodlee.Transaction, error) {
	m.TransactionCalls++
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, sessionToken, from, to)
	}
	return nil, nil
}

func (m *MockClient) GetInstitution(ctx context.Context, providerID string) (*yodlee.Institution, error) {
	if m.GetInstitutionFunc != nil {
		return m.GetInstitutionFunc(ctx, providerID)
	}
	return nil, nil
}

// store is an in-memory persistence layer honouring the storage uniqueness rules.
type store struct {
	seq          int
	snapshots    map[string]*account.Snapshot // by id
	ledger       map[string]*account.LedgerAccount
	transactions map[string]*transaction.Transaction
	merchants    map[string]*transaction.Merchant
	connections  map[string]*connection.Connection
	runs         map[string]*connection.SyncRun
	families     map[string]*family.Family
}

func newStore() *store {
	return &store{
		snapshots:    map[string]*account.Snapshot{},
		ledger:       map[string]*account.LedgerAccount{},
		transactions: map[string]*transaction.Transaction{},
		merchants:    map[string]*transaction.Merchant{},
		connections:  map[string]*connection.Connection{},
		runs:         map[string]*connection.SyncRun{},
		families:     map[string]*family.Family{},
	}
}

func (s *store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

type fakeSnapshots struct {
	*store
	UpsertFunc func(ctx context.Context, params account.UpsertSnapshotParams) (*account.Snapshot, error)
}

func (f *fakeSnapshots) Upsert(ctx context.Context, params account.UpsertSnapshotParams) (*account.Snapshot, error) {
	if f.UpsertFunc != nil {
		return f.UpsertFunc(ctx, params)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	for _, snap := range f.snapshots {
		if snap.ConnectionID == params.ConnectionID && snap.ExternalAccountID == params.ExternalAccountID {
			snap.RawPayload = params.RawPayload
			snap.ProviderAccountID = params.ProviderAccountID
			snap.LastSyncedAt = params.SyncedAt
			cp := *snap
			return &cp, nil
		}
	}
	snap := &account.Snapshot{
		ID:                f.nextID("snap"),
		ConnectionID:      params.ConnectionID,
		ExternalAccountID: params.ExternalAccountID,
		ProviderAccountID: params.ProviderAccountID,
		RawPayload:        params.RawPayload,
		LastSyncedAt:      params.SyncedAt,
		CreatedAt:         params.SyncedAt,
	}
	f.snapshots[snap.ID] = snap
	cp := *snap
	return &cp, nil
}

func (f *fakeSnapshots) ListByConnection(ctx context.Context, connectionID string) ([]*account.Snapshot, error) {
	var out []*account.Snapshot
	for _, snap := range f.snapshots {
		if snap.ConnectionID == connectionID {
			cp := *snap
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSnapshots) ListLinkedByConnection(ctx context.Context, connectionID string) ([]*account.Snapshot, error) {
	all, _ := f.ListByConnection(ctx, connectionID)
	var out []*account.Snapshot
	for _, snap := range all {
		if snap.IsLinked() {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (f *fakeSnapshots) Link(ctx context.Context, snapshotID, ledgerAccountID string) error {
	snap, ok := f.snapshots[snapshotID]
	if !ok {
		return account.ErrSnapshotNotFound
	}
	if snap.IsLinked() && *snap.LedgerAccountID != ledgerAccountID {
		return account.ErrAlreadyLinked
	}
	id := ledgerAccountID
	snap.LedgerAccountID = &id
	return nil
}

type fakeLedger struct {
	*store
	CreateForSnapshotFunc func(ctx context.Context, params account.CreateParams) (*account.LedgerAccount, error)
	refreshed             []string
}

func (f *fakeLedger) CreateForSnapshot(ctx context.Context, params account.CreateParams) (*account.LedgerAccount, error) {
	if f.CreateForSnapshotFunc != nil {
		return f.CreateForSnapshotFunc(ctx, params)
	}
	return f.create(params)
}

func (f *fakeLedger) create(params account.CreateParams) (*account.LedgerAccount, error) {
	for _, la := range f.ledger {
		if la.SnapshotID == params.SnapshotID {
			return la, nil
		}
	}
	synced := params.SyncedAt
	la := &account.LedgerAccount{
		ID:              f.nextID("acct"),
		FamilyID:        params.FamilyID,
		SnapshotID:      params.SnapshotID,
		Name:            params.Name,
		Mask:            params.Mask,
		InstitutionName: params.InstitutionName,
		Currency:        params.Currency,
		Kind:            params.Kind,
		BalanceMinor:    params.BalanceMinor,
		ExternalID:      params.ExternalID,
		Provider:        account.Provider,
		LastSyncedAt:    &synced,
	}
	f.ledger[la.ID] = la
	return la, nil
}

func (f *fakeLedger) GetByID(ctx context.Context, id string) (*account.LedgerAccount, error) {
	la, ok := f.ledger[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return la, nil
}

func (f *fakeLedger) RefreshMetadata(ctx context.Context, id string, params account.MetadataParams) error {
	la, ok := f.ledger[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	synced := params.SyncedAt
	la.Mask = params.Mask
	la.Currency = params.Currency
	la.LastSyncedAt = &synced
	la.SyncError = ""
	la.SyncErrorAt = nil
	f.refreshed = append(f.refreshed, id)
	return nil
}

type fakeTransactions struct {
	*store
	CreateFunc func(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error)
}

func (f *fakeTransactions) ExistsByExternalID(ctx context.Context, ledgerAccountID, externalID string) (bool, error) {
	for _, tx := range f.transactions {
		if tx.LedgerAccountID == ledgerAccountID && tx.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTransactions) Create(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error) {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, params)
	}
	if exists, _ := f.ExistsByExternalID(ctx, params.LedgerAccountID, params.ExternalID); exists {
		return nil, transaction.ErrDuplicate
	}
	tx := &transaction.Transaction{
		ID:              f.nextID("tx"),
		LedgerAccountID: params.LedgerAccountID,
		ExternalID:      params.ExternalID,
		AmountMinor:     params.AmountMinor,
		Currency:        params.Currency,
		Date:            params.Date,
		Description:     params.Description,
		Notes:           params.Notes,
		Category:        params.Category,
		MerchantID:      params.MerchantID,
		RawPayload:      params.RawPayload,
	}
	f.transactions[tx.ID] = tx
	return tx, nil
}

func (f *fakeTransactions) ListByLedgerAccount(ctx context.Context, ledgerAccountID string) ([]*transaction.Transaction, error) {
	var out []*transaction.Transaction
	for _, tx := range f.transactions {
		if tx.LedgerAccountID == ledgerAccountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type fakeMerchants struct {
	*store
}

func (f *fakeMerchants) FindOrCreate(ctx context.Context, familyID, name string) (*transaction.Merchant, error) {
	for _, m := range f.merchants {
		if m.FamilyID == familyID && m.Name == name {
			return m, nil
		}
	}
	m := &transaction.Merchant{ID: f.nextID("merchant"), FamilyID: familyID, Name: name}
	f.merchants[m.ID] = m
	return m, nil
}

type fakeFamilies struct {
	*store
}

func (f *fakeFamilies) GetByID(ctx context.Context, id string) (*family.Family, error) {
	fam, ok := f.families[id]
	if !ok {
		return nil, family.ErrNotFound
	}
	return fam, nil
}

type fakeConnections struct {
	*store
	statuses     []connection.Status
	institutions []connection.Institution
	leases       map[string]string // connection id -> current lease
}

func (f *fakeConnections) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	c := &connection.Connection{
		ID:           f.nextID("conn"),
		FamilyID:     params.FamilyID,
		Name:         params.Name,
		ProviderID:   params.ProviderID,
		SessionToken: params.SessionToken,
		Status:       connection.StatusGood,
		SyncState:    connection.SyncStateIdle,
	}
	f.connections[c.ID] = c
	return c, nil
}

func (f *fakeConnections) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	c, ok := f.connections[id]
	if !ok {
		return nil, connection.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConnections) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	var out []*connection.Connection
	for _, c := range f.connections {
		if !c.ScheduledForDeletion {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeConnections) ListActiveByProviderAccountIDs(ctx context.Context, ids []string) ([]*connection.Connection, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*connection.Connection
	for _, c := range f.connections {
		if c.ScheduledForDeletion {
			continue
		}
		match := want[c.ProviderID]
		for _, snap := range f.snapshots {
			if snap.ConnectionID == c.ID && (want[snap.ProviderAccountID] || want[snap.ExternalAccountID]) {
				match = true
			}
		}
		if match {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeConnections) ListNeedingUpdate(ctx context.Context) ([]*connection.Connection, error) {
	var out []*connection.Connection
	for _, c := range f.connections {
		if !c.ScheduledForDeletion && c.Status == connection.StatusRequiresUpdate {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeConnections) TryBeginSync(ctx context.Context, id string, staleBefore time.Time) (string, bool, error) {
	c, ok := f.connections[id]
	if !ok {
		return "", false, connection.ErrNotFound
	}
	if c.SyncState == connection.SyncStateRunning && c.SyncStartedAt != nil && !c.SyncStartedAt.Before(staleBefore) {
		return "", false, nil
	}
	if f.leases == nil {
		f.leases = map[string]string{}
	}
	lease := f.nextID("lease")
	f.leases[id] = lease
	now := time.Now()
	c.SyncState = connection.SyncStateRunning
	c.SyncStartedAt = &now
	return lease, true, nil
}

func (f *fakeConnections) EndSync(ctx context.Context, id, lease string) error {
	c, ok := f.connections[id]
	if !ok || f.leases[id] != lease {
		return connection.ErrSyncLockLost
	}
	delete(f.leases, id)
	c.SyncState = connection.SyncStateIdle
	c.SyncStartedAt = nil
	return nil
}

func (f *fakeConnections) MarkSynced(ctx context.Context, id string, at time.Time) error {
	c, ok := f.connections[id]
	if !ok {
		return connection.ErrNotFound
	}
	c.LastSyncedAt = &at
	c.Status = connection.StatusGood
	return nil
}

func (f *fakeConnections) SetStatus(ctx context.Context, id string, status connection.Status) error {
	c, ok := f.connections[id]
	if !ok {
		return connection.ErrNotFound
	}
	c.Status = status
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeConnections) UpdateInstitution(ctx context.Context, id string, inst connection.Institution) error {
	c, ok := f.connections[id]
	if !ok {
		return connection.ErrNotFound
	}
	c.Institution = inst
	f.institutions = append(f.institutions, inst)
	return nil
}

func (f *fakeConnections) ScheduleDeletion(ctx context.Context, id string) error {
	c, ok := f.connections[id]
	if !ok {
		return connection.ErrNotFound
	}
	c.ScheduledForDeletion = true
	return nil
}

type fakeRuns struct {
	*store
}

func (f *fakeRuns) Start(ctx context.Context, connectionID string, at time.Time) (*connection.SyncRun, error) {
	run := &connection.SyncRun{
		ID:           f.nextID("run"),
		ConnectionID: connectionID,
		Status:       connection.RunRunning,
		StartedAt:    at,
	}
	f.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

func (f *fakeRuns) finish(id string, at time.Time, status connection.RunStatus, reason string) error {
	run, ok := f.runs[id]
	if !ok {
		return connection.ErrRunNotFound
	}
	if run.IsTerminal() {
		return connection.ErrRunFinished
	}
	run.Status = status
	run.CompletedAt = &at
	run.Error = reason
	return nil
}

func (f *fakeRuns) Complete(ctx context.Context, id string, at time.Time) error {
	return f.finish(id, at, connection.RunCompleted, "")
}

func (f *fakeRuns) Fail(ctx context.Context, id string, at time.Time, reason string) error {
	return f.finish(id, at, connection.RunFailed, reason)
}

func (f *fakeRuns) LatestForConnection(ctx context.Context, connectionID string) (*connection.SyncRun, error) {
	var latest *connection.SyncRun
	for _, run := range f.runs {
		if run.ConnectionID == connectionID && (latest == nil || run.StartedAt.After(latest.StartedAt) || (run.StartedAt.Equal(latest.StartedAt) && run.ID > latest.ID)) {
			latest = run
		}
	}
	if latest == nil {
		return nil, connection.ErrRunNotFound
	}
	return latest, nil
}

// MockNotifier records downstream events.
type MockNotifier struct {
	AccountImportedFunc func(ctx context.Context, ledgerAccountID string) error
	Accounts            []string
	Transactions        [][]string
}

func (m *MockNotifier) AccountImported(ctx context.Context, ledgerAccountID string) error {
	if m.AccountImportedFunc != nil {
		if err := m.AccountImportedFunc(ctx, ledgerAccountID); err != nil {
			return err
		}
	}
	m.Accounts = append(m.Accounts, ledgerAccountID)
	return nil
}

func (m *MockNotifier) TransactionsImported(ctx context.Context, familyID string, transactionIDs []string) error {
	m.Transactions = append(m.Transactions, transactionIDs)
	return nil
}

// MockAlerter records attention notices.
type MockAlerter struct {
	Calls []string
}

func (m *MockAlerter) NotifyConnectionNeedsAttention(ctx context.Context, familyID, connectionName string) error {
	m.Calls = append(m.Calls, familyID+"/"+connectionName)
	return nil
}

// MockLogoStore returns a fixed URL for every stored logo.
type MockLogoStore struct {
	StoreLogoFunc func(ctx context.Context, institutionID, sourceURL string) (string, error)
}

func (m *MockLogoStore) StoreLogo(ctx context.Context, institutionID, sourceURL string) (string, error) {
	if m.StoreLogoFunc != nil {
		return m.StoreLogoFunc(ctx, institutionID, sourceURL)
	}
	return "https://logos.example/" + institutionID + ".png", nil
}

var testNow = time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)

// harness wires the importers and the orchestrator over one in-memory store.
type harness struct {
	store        *store
	client       *MockClient
	snapshots    *fakeSnapshots
	ledger       *fakeLedger
	transactions *fakeTransactions
	merchants    *fakeMerchants
	families     *fakeFamilies
	connections  *fakeConnections
	runs         *fakeRuns
	notifier     *MockNotifier
	alerter      *MockAlerter
	logos        *MockLogoStore
	paces        int

	accountImporter     *AccountImporter
	transactionImporter *TransactionImporter
	orchestrator        *Orchestrator
}

func newHarness() *harness {
	s := newStore()
	h := &harness{
		store:        s,
		client:       &MockClient{},
		snapshots:    &fakeSnapshots{store: s},
		ledger:       &fakeLedger{store: s},
		transactions: &fakeTransactions{store: s},
		merchants:    &fakeMerchants{store: s},
		families:     &fakeFamilies{store: s},
		connections:  &fakeConnections{store: s},
		runs:         &fakeRuns{store: s},
		notifier:     &MockNotifier{},
		alerter:      &MockAlerter{},
		logos:        &MockLogoStore{},
	}

	mapper := mapping.Default()
	pacer := PacerFunc(func(ctx context.Context) error {
		h.paces++
		return nil
	})

	h.accountImporter = NewAccountImporter(h.client, h.snapshots, h.ledger, h.families, mapper, nil)
	h.transactionImporter = NewTransactionImporter(h.client, h.snapshots, h.ledger, h.transactions, h.merchants, mapper, pacer, nil)
	h.orchestrator = NewOrchestrator(Dependencies{
		Connections:  h.connections,
		Runs:         h.runs,
		Families:     h.families,
		Accounts:     h.accountImporter,
		Transactions: h.transactionImporter,
		Institutions: NewInstitutionRefresher(h.client, h.connections, h.logos, nil),
		Notifier:     h.notifier,
		Alerter:      h.alerter,
	}, Config{Window: DefaultWindowPolicy()}, nil)
	h.orchestrator.SetClock(func() time.Time { return testNow })

	s.families["fam-1"] = &family.Family{ID: "fam-1", Name: "Doe", Currency: "USD"}
	return h
}

// addConnection stores an idle connection for fam-1.
func (h *harness) addConnection(id string) *connection.Connection {
	c := &connection.Connection{
		ID:           id,
		FamilyID:     "fam-1",
		Name:         "Dag Bank",
		ProviderID:   "16441",
		SessionToken: "sbMem1",
		Status:       connection.StatusGood,
		SyncState:    connection.SyncStateIdle,
	}
	h.store.connections[id] = c
	return c
}

// connection returns a copy of the stored connection.
func (h *harness) connection(id string) *connection.Connection {
	c, _ := h.connections.GetByID(context.Background(), id)
	return c
}

func mustAccounts(t *testing.T, raw string) []yodlee.Account {
	t.Helper()
	var accounts []yodlee.Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		t.Fatalf("failed to decode accounts: %v", err)
	}
	return accounts
}

func mustTransactions(t *testing.T, raw string) []yodlee.Transaction {
	t.Helper()
	var txs []yodlee.Transaction
	if err := json.Unmarshal([]byte(raw), &txs); err != nil {
		t.Fatalf("failed to decode transactions: %v", err)
	}
	return txs
}

const twoAccounts = `[
	{"id":1001,"providerAccountId":501,"providerId":16441,"CONTAINER":"bank","accountType":"CHECKING","accountName":"Everyday Checking","accountNumber":"xxxx4321","providerName":"Dag Bank","balance":{"amount":1200.50,"currency":"USD"}},
	{"id":1002,"providerAccountId":501,"providerId":16441,"CONTAINER":"creditCard","accountType":"CREDIT","accountName":"Rewards Card","accountNumber":"xxxx9876","providerName":"Dag Bank","balance":{"amount":310.00,"currency":"USD"},"availableCredit":{"amount":4690.00,"currency":"USD"}}
]`
