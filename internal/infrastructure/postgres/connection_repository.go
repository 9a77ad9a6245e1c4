package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ledgersync/internal/domain/connection"
)

// TokenCipher encrypts session tokens at rest.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ConnectionRepository implements connection.Repository for PostgreSQL
type ConnectionRepository struct {
	db     *DB
	cipher TokenCipher
}

// NewConnectionRepository creates a new PostgreSQL connection repository
func NewConnectionRepository(db *DB, cipher TokenCipher) *ConnectionRepository {
	return &ConnectionRepository{db: db, cipher: cipher}
}

const connectionColumns = `
	c.id, c.family_id, c.name, c.provider_id, c.session_token, c.status, c.sync_state,
	c.sync_started_at, c.last_synced_at, c.scheduled_for_deletion,
	c.institution_id, c.institution_url, c.institution_color, c.institution_logo_url,
	c.raw_institution_payload, c.created_at, c.updated_at`

func (r *ConnectionRepository) scan(row rowScanner) (*connection.Connection, error) {
	var c connection.Connection
	var providerID, instID, instURL, instColor, instLogo sql.NullString
	var syncStartedAt, lastSyncedAt sql.NullTime
	var rawInstitution []byte
	var token string

	err := row.Scan(
		&c.ID, &c.FamilyID, &c.Name, &providerID, &token, &c.Status, &c.SyncState,
		&syncStartedAt, &lastSyncedAt, &c.ScheduledForDeletion,
		&instID, &instURL, &instColor, &instLogo,
		&rawInstitution, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ProviderID = providerID.String
	c.SyncStartedAt = timePtr(syncStartedAt)
	c.LastSyncedAt = timePtr(lastSyncedAt)
	c.Institution = connection.Institution{
		ID:      instID.String,
		URL:     instURL.String,
		Color:   instColor.String,
		LogoURL: instLogo.String,
	}
	if len(rawInstitution) > 0 {
		c.Institution.RawPayload = json.RawMessage(rawInstitution)
	}

	c.SessionToken, err = r.cipher.Decrypt(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session token for connection %s: %w", c.ID, err)
	}
	return &c, nil
}

func (r *ConnectionRepository) list(ctx context.Context, query string, args ...any) ([]*connection.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

// Create stores a newly linked connection
func (r *ConnectionRepository) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	token, err := r.cipher.Encrypt(params.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session token: %w", err)
	}

	query := `
		INSERT INTO connections AS c (id, family_id, name, provider_id, session_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING` + connectionColumns

	c, err := r.scan(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.FamilyID, params.Name, nullString(params.ProviderID), token,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return c, nil
}

// GetByID retrieves a connection by its ID
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	query := `SELECT` + connectionColumns + ` FROM connections c WHERE c.id = $1`

	c, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, connection.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

// ListActive returns every connection not scheduled for deletion
func (r *ConnectionRepository) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	query := `SELECT` + connectionColumns + `
		FROM connections c
		WHERE c.scheduled_for_deletion = FALSE
		ORDER BY c.created_at, c.id`
	return r.list(ctx, query)
}

// ListActiveByProviderAccountIDs matches ids against the connection's provider
// id and against the provider and external ids of its account snapshots.
func (r *ConnectionRepository) ListActiveByProviderAccountIDs(ctx context.Context, ids []string) ([]*connection.Connection, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT` + connectionColumns + `
		FROM connections c
		WHERE c.scheduled_for_deletion = FALSE
		  AND (
			c.provider_id = ANY($1)
			OR EXISTS (
				SELECT 1 FROM account_snapshots s
				WHERE s.connection_id = c.id
				  AND (s.provider_account_id = ANY($1) OR s.external_account_id = ANY($1))
			)
		  )
		ORDER BY c.created_at, c.id`
	return r.list(ctx, query, pq.Array(ids))
}

// ListNeedingUpdate returns active connections whose credentials need attention
func (r *ConnectionRepository) ListNeedingUpdate(ctx context.Context) ([]*connection.Connection, error) {
	query := `SELECT` + connectionColumns + `
		FROM connections c
		WHERE c.scheduled_for_deletion = FALSE AND c.status = $1
		ORDER BY c.updated_at DESC`
	return r.list(ctx, query, connection.StatusRequiresUpdate)
}

// TryBeginSync takes the sync lock with a single conditional update so two
// callers can never both succeed. The new lease replaces any stale one.
func (r *ConnectionRepository) TryBeginSync(ctx context.Context, id string, staleBefore time.Time) (string, bool, error) {
	query := `
		UPDATE connections
		SET sync_state = $2, sync_started_at = NOW(), sync_lease = $5, updated_at = NOW()
		WHERE id = $1
		  AND scheduled_for_deletion = FALSE
		  AND (sync_state = $3 OR sync_started_at IS NULL OR sync_started_at < $4)
	`

	lease := uuid.NewString()
	result, err := r.db.ExecContext(ctx, query, id, connection.SyncStateRunning, connection.SyncStateIdle, staleBefore, lease)
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows != 1 {
		return "", false, nil
	}
	return lease, true, nil
}

// EndSync releases the sync lock held under lease
func (r *ConnectionRepository) EndSync(ctx context.Context, id, lease string) error {
	query := `
		UPDATE connections
		SET sync_state = $2, sync_started_at = NULL, sync_lease = NULL, updated_at = NOW()
		WHERE id = $1 AND sync_lease = $3
	`
	err := r.execOne(ctx, "release sync lock", query, id, connection.SyncStateIdle, lease)
	if errors.Is(err, connection.ErrNotFound) {
		return connection.ErrSyncLockLost
	}
	return err
}

// MarkSynced records a successful cycle
func (r *ConnectionRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE connections
		SET last_synced_at = $2, status = $3, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, "mark connection synced", query, id, at, connection.StatusGood)
}

// SetStatus updates the connection status
func (r *ConnectionRepository) SetStatus(ctx context.Context, id string, status connection.Status) error {
	if !connection.IsValidStatus(string(status)) {
		return connection.ErrInvalidStatus
	}

	query := `UPDATE connections SET status = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "update connection status", query, id, status)
}

// UpdateInstitution stores the latest institution snapshot
func (r *ConnectionRepository) UpdateInstitution(ctx context.Context, id string, inst connection.Institution) error {
	query := `
		UPDATE connections
		SET institution_id = $2, institution_url = $3, institution_color = $4,
		    institution_logo_url = $5, raw_institution_payload = $6, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, "update institution", query, id,
		nullString(inst.ID), nullString(inst.URL), nullString(inst.Color), nullString(inst.LogoURL), jsonb(inst.RawPayload),
	)
}

// ScheduleDeletion soft-deletes the connection
func (r *ConnectionRepository) ScheduleDeletion(ctx context.Context, id string) error {
	query := `UPDATE connections SET scheduled_for_deletion = TRUE, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "schedule connection deletion", query, id)
}

func (r *ConnectionRepository) execOne(ctx context.Context, action, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return connection.ErrNotFound
	}
	return nil
}
