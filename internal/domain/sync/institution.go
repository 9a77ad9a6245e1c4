package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ledgersync/internal/domain/connection"
)

// InstitutionRefresher copies institution details from the provider onto a connection.
type InstitutionRefresher struct {
	source      InstitutionSource
	connections connection.Repository
	logos       LogoStore
	logger      *zap.Logger
}

// NewInstitutionRefresher creates a refresher. logos may be nil, in which
// case the provider's logo URL is stored as is.
func NewInstitutionRefresher(source InstitutionSource, connections connection.Repository, logos LogoStore, logger *zap.Logger) *InstitutionRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstitutionRefresher{
		source:      source,
		connections: connections,
		logos:       logos,
		logger:      logger.Named("institution"),
	}
}

// Refresh fetches providerID and stores it on the connection. A provider
// that is unknown to the aggregator leaves the connection untouched.
func (r *InstitutionRefresher) Refresh(ctx context.Context, conn *connection.Connection, providerID string) error {
	if providerID == "" {
		return nil
	}

	inst, err := r.source.GetInstitution(ctx, providerID)
	if err != nil {
		return fmt.Errorf("failed to fetch institution: %w", err)
	}
	if inst == nil {
		r.logger.Info("Institution not found at provider", zap.String("provider_id", providerID))
		return nil
	}

	updated := connection.Institution{
		ID:         inst.ID.String(),
		URL:        inst.Website(),
		Color:      inst.PrimaryColor,
		LogoURL:    firstOf(inst.Logo, inst.Favicon),
		RawPayload: inst.Raw,
	}

	if updated.LogoURL != "" && r.logos != nil {
		stored, err := r.logos.StoreLogo(ctx, updated.ID, updated.LogoURL)
		if err != nil {
			r.logger.Warn("Failed to store institution logo",
				zap.String("provider_id", providerID),
				zap.Error(err),
			)
		} else {
			updated.LogoURL = stored
		}
	}

	if err := r.connections.UpdateInstitution(ctx, conn.ID, updated); err != nil {
		return fmt.Errorf("failed to update institution: %w", err)
	}
	conn.Institution = updated
	return nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
