// Package app wires the sync service's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ledgersync/internal/domain/mapping"
	"ledgersync/internal/domain/notification"
	syncsvc "ledgersync/internal/domain/sync"
	"ledgersync/internal/infrastructure/crypto"
	"ledgersync/internal/infrastructure/firebase"
	"ledgersync/internal/infrastructure/postgres"
	"ledgersync/internal/infrastructure/storage"
	"ledgersync/internal/infrastructure/yodlee"
	"ledgersync/internal/shared/config"
	"ledgersync/internal/shared/messages"
)

// ErrProviderDisabled is returned when a sync is wired without aggregator credentials.
var ErrProviderDisabled = errors.New("ENABLE_YODLEE must be true to run syncs")

// Store holds the repositories backed by one database handle.
type Store struct {
	DB          *postgres.DB
	Connections *postgres.ConnectionRepository
	Runs        *postgres.SyncRunRepository
	Families    *postgres.FamilyRepository
	Snapshots   *postgres.SnapshotRepository
	Ledger      *postgres.LedgerRepository
	Txns        *postgres.TransactionRepository
	Merchants   *postgres.MerchantRepository
	Outbox      *postgres.EventOutbox
}

// OpenStore connects to the database and builds every repository.
func OpenStore(cfg *config.Config) (*Store, error) {
	cipher, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	return &Store{
		DB:          db,
		Connections: postgres.NewConnectionRepository(db, cipher),
		Runs:        postgres.NewSyncRunRepository(db),
		Families:    postgres.NewFamilyRepository(db),
		Snapshots:   postgres.NewSnapshotRepository(db),
		Ledger:      postgres.NewLedgerRepository(db),
		Txns:        postgres.NewTransactionRepository(db),
		Merchants:   postgres.NewMerchantRepository(db),
		Outbox:      postgres.NewEventOutbox(db),
	}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Syncer bundles the orchestrator with the webhook targeting policy.
type Syncer struct {
	Orchestrator *syncsvc.Orchestrator
	Targeter     *syncsvc.Targeter
}

// NewSyncer builds the aggregator client, importers and orchestrator.
// Optional collaborators (logo store, push alerts) are skipped with a log
// line when they are not configured.
func NewSyncer(ctx context.Context, cfg *config.Config, store *Store, logger *zap.Logger) (*Syncer, error) {
	policy, err := syncsvc.ParseFallbackPolicy(cfg.Sync.WebhookFallback)
	if err != nil {
		return nil, err
	}

	mapper, err := mapping.LoadOrDefault(cfg.Sync.CategoryMapPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load category map: %w", err)
	}

	texts, err := messages.LoadOrDefault(cfg.Sync.MessagesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	client, err := NewProviderClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	var logos syncsvc.LogoStore
	if logoCfg := storageConfig(cfg.LogoStore); logoCfg.Enabled() {
		logoStore, err := storage.NewLogoStore(ctx, logoCfg, logger)
		if err != nil {
			return nil, err
		}
		logos = logoStore
	} else {
		logger.Info("Logo store not configured, provider logo URLs are stored as is")
	}

	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, logger)
		if err != nil {
			return nil, err
		}
		messenger = fcm
	} else {
		logger.Info("Firebase not configured, connection alerts are logged only")
	}

	accounts := syncsvc.NewAccountImporter(client, store.Snapshots, store.Ledger, store.Families, mapper, logger)
	transactions := syncsvc.NewTransactionImporter(
		client, store.Snapshots, store.Ledger, store.Txns, store.Merchants, mapper,
		syncsvc.SleepPacer{Delay: cfg.Sync.PacingDelay}, logger,
	)

	orchestrator := syncsvc.NewOrchestrator(syncsvc.Dependencies{
		Connections:  store.Connections,
		Runs:         store.Runs,
		Families:     store.Families,
		Accounts:     accounts,
		Transactions: transactions,
		Institutions: syncsvc.NewInstitutionRefresher(client, store.Connections, logos, logger),
		Notifier:     store.Outbox,
		Alerter:      notification.NewService(messenger, texts, logger),
	}, syncsvc.Config{
		Window: syncsvc.WindowPolicy{
			MaxHistoryDays: cfg.Sync.MaxHistoryDays,
			OverlapDays:    cfg.Sync.OverlapDays,
		},
		StaleAfter: cfg.Sync.StaleAfter,
	}, logger)

	return &Syncer{
		Orchestrator: orchestrator,
		Targeter:     syncsvc.NewTargeter(store.Connections, policy, logger),
	}, nil
}

// NewProviderClient builds the aggregator client from cfg.
func NewProviderClient(cfg *config.Config, logger *zap.Logger) (*yodlee.Client, error) {
	if !cfg.Yodlee.Enabled {
		return nil, ErrProviderDisabled
	}
	return yodlee.NewClient(yodlee.Config{
		BaseURL:           cfg.Yodlee.BaseURL,
		ClientID:          cfg.Yodlee.ClientID,
		Secret:            cfg.Yodlee.Secret,
		AdminLoginName:    cfg.Yodlee.AdminLoginName,
		RequestsPerSecond: cfg.Yodlee.RequestsPerSecond,
		Timeout:           cfg.Yodlee.HTTPTimeout,
		Logger:            logger,
	}), nil
}

func storageConfig(c config.LogoStoreConfig) storage.Config {
	return storage.Config{
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PublicBaseURL:   c.PublicBaseURL,
	}
}
