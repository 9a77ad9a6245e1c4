package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ledgersync/internal/app"
	"ledgersync/internal/domain/connection"
	syncsvc "ledgersync/internal/domain/sync"
	"ledgersync/internal/infrastructure/postgres"
	"ledgersync/internal/shared/auth"
	"ledgersync/internal/shared/config"
	"ledgersync/internal/shared/logging"
)

const usage = `LedgerSync Admin CLI - Management commands for the sync service

Usage:
  admin <command> [options]

Commands:
  migrate          Apply the database schema
  sync <id>        Run one sync cycle for a connection and wait for it
  status <id>      Show a connection and its latest sync run
  needs-update     List connections that must be re-linked
  events           List pending downstream events
  token            Issue a service token for the manual sync endpoint
  register-user    Register an aggregator user before linking (no-op if it exists)
  link             Record a linked connection for a family
  unlink <id>      Schedule a connection for deletion; it is never synced again

Examples:
  admin migrate
  admin sync 0b6f7a52-1c1e-4a57-9f0e-2d1f3c9b8e11 --timeout=10m
  admin events --limit=20
  admin token --subject=ledger-api --ttl=720h
  admin register-user --login=family-42 --email=owner@example.com
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "migrate":
		err = runMigrate(args)
	case "sync":
		err = runSync(args)
	case "status":
		err = runStatus(args)
	case "needs-update":
		err = runNeedsUpdate(args)
	case "events":
		err = runEvents(args)
	case "token":
		err = runToken(args)
	case "register-user":
		err = runRegisterUser(args)
	case "link":
		err = runLink(args)
	case "unlink":
		err = runUnlink(args)
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

// openStore loads config and connects to the database.
func openStore() (*config.Config, *app.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := app.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	timeout := fs.Duration("timeout", time.Minute, "Timeout for the migration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := postgres.Migrate(ctx, store.DB); err != nil {
		return err
	}
	fmt.Println("Schema is up to date")
	return nil
}

func runSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	timeout := fs.Duration("timeout", 30*time.Minute, "Timeout for the sync cycle")
	fs.Usage = func() {
		fmt.Println("Usage: admin sync [options] <connection-id>")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	connectionID := fs.Arg(0)

	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	syncer, err := app.NewSyncer(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	outcome, err := syncer.Orchestrator.RunSync(ctx, connectionID)
	if err != nil {
		return err
	}
	printOutcome(connectionID, outcome)
	logger.Info("Sync finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func printOutcome(connectionID string, outcome *syncsvc.Outcome) {
	fmt.Printf("\n=== Connection %s ===\n", connectionID)
	if outcome.Skipped {
		fmt.Println("  Skipped: already syncing or scheduled for deletion")
		return
	}

	if outcome.Run != nil {
		fmt.Printf("  Run:                  %s (%s)\n", outcome.Run.ID, outcome.Run.Status)
	}
	fmt.Printf("  Window:               %s .. %s\n", outcome.Window.From.Format("2006-01-02"), outcome.Window.To.Format("2006-01-02"))

	var errs []string
	if a := outcome.Accounts; a != nil {
		fmt.Printf("  Accounts found:       %d\n", a.Found)
		fmt.Printf("  Accounts created:     %d\n", a.Created)
		fmt.Printf("  Accounts refreshed:   %d\n", a.Refreshed)
		errs = append(errs, a.Errors...)
	}
	if t := outcome.Transactions; t != nil {
		fmt.Printf("  Transactions fetched: %d\n", t.Fetched)
		fmt.Printf("  Imported:             %d\n", t.Imported)
		fmt.Printf("  Already imported:     %d\n", t.Skipped)
		fmt.Printf("  Failed:               %d\n", t.Failed)
		errs = append(errs, t.Errors...)
	}

	if len(errs) > 0 {
		fmt.Printf("  Errors:               %d\n", len(errs))
		for i, e := range errs {
			if i >= 5 {
				fmt.Printf("    ... and %d more errors\n", len(errs)-5)
				break
			}
			fmt.Printf("    - %s\n", e)
		}
	}
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Println("Usage: admin status <connection-id>")
		os.Exit(1)
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := store.Connections.GetByID(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("Connection:   %s (%s)\n", conn.ID, conn.Name)
	fmt.Printf("Status:       %s\n", conn.Status)
	fmt.Printf("Sync state:   %s\n", conn.SyncState)
	if conn.LastSyncedAt != nil {
		fmt.Printf("Last synced:  %s\n", conn.LastSyncedAt.Format(time.RFC3339))
	} else {
		fmt.Println("Last synced:  never")
	}

	run, err := store.Runs.LatestForConnection(ctx, conn.ID)
	switch {
	case errors.Is(err, connection.ErrRunNotFound):
		fmt.Println("Latest run:   none")
	case err != nil:
		return err
	default:
		fmt.Printf("Latest run:   %s %s started %s\n", run.ID, run.Status, run.StartedAt.Format(time.RFC3339))
		if run.Error != "" {
			fmt.Printf("Run error:    %s\n", run.Error)
		}
	}

	snapshots, err := store.Snapshots.ListByConnection(ctx, conn.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\nAccounts:     %d\n", len(snapshots))
	for _, snap := range snapshots {
		if !snap.IsLinked() {
			fmt.Printf("  %s  not linked\n", snap.ExternalAccountID)
			continue
		}
		txns, err := store.Txns.ListByLedgerAccount(ctx, *snap.LedgerAccountID)
		if err != nil {
			return err
		}
		fmt.Printf("  %s  ledger=%s  transactions=%d  synced=%s\n",
			snap.ExternalAccountID, *snap.LedgerAccountID, len(txns), snap.LastSyncedAt.Format(time.RFC3339))
	}
	return nil
}

func runNeedsUpdate(args []string) error {
	fs := flag.NewFlagSet("needs-update", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conns, err := store.Connections.ListNeedingUpdate(ctx)
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		fmt.Println("No connections need re-linking")
		return nil
	}

	for _, c := range conns {
		fmt.Printf("%s  family=%s  name=%q  updated=%s\n", c.ID, c.FamilyID, c.Name, c.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func runEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum number of events to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events, err := store.Outbox.Pending(ctx, *limit)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%s  %-22s %s  %s\n", e.CreatedAt.Format(time.RFC3339), e.Kind, e.ID, e.Payload)
	}
	fmt.Printf("%d pending event(s)\n", len(events))
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "", "Caller name recorded in the token")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime; 0 for no expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tokens, err := auth.NewServiceTokens(cfg.Trigger.TokenSecret)
	if err != nil {
		return fmt.Errorf("TRIGGER_TOKEN_SECRET: %w", err)
	}

	token, err := tokens.Issue(*subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runRegisterUser(args []string) error {
	fs := flag.NewFlagSet("register-user", flag.ExitOnError)
	login := fs.String("login", "", "Aggregator login name; becomes the connection's session token")
	email := fs.String("email", "", "Contact email registered with the aggregator")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *login == "" || *email == "" {
		fmt.Println("Usage: admin register-user --login=<name> --email=<address>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := app.NewProviderClient(cfg, zap.NewNop())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := client.EnsureUser(ctx, *login, *email); err != nil {
		return err
	}
	fmt.Printf("Aggregator user %s is registered\n", *login)
	return nil
}

func runLink(args []string) error {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	familyID := fs.String("family-id", "", "Owning family")
	name := fs.String("name", "", "Display name of the connection")
	login := fs.String("login", "", "Aggregator login name of the linked user")
	providerID := fs.String("provider-id", "", "Aggregator provider (institution) id, optional")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := store.Connections.Create(ctx, connection.CreateParams{
		FamilyID:     *familyID,
		Name:         *name,
		ProviderID:   *providerID,
		SessionToken: *login,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created connection %s\n", conn.ID)
	return nil
}

func runUnlink(args []string) error {
	fs := flag.NewFlagSet("unlink", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Println("Usage: admin unlink <connection-id>")
		os.Exit(1)
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.Connections.ScheduleDeletion(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Printf("Connection %s scheduled for deletion\n", fs.Arg(0))
	return nil
}
