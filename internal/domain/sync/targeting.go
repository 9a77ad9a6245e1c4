package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ledgersync/internal/domain/connection"
)

// ErrInvalidWebhook is returned for a webhook body that is not valid JSON.
var ErrInvalidWebhook = errors.New("invalid webhook body")

// FallbackPolicy decides what a webhook without an identifiable target syncs.
type FallbackPolicy string

const (
	// FallbackAllActive syncs every active connection.
	FallbackAllActive FallbackPolicy = "all_active"
	// FallbackNone syncs nothing.
	FallbackNone FallbackPolicy = "none"
)

// ParseFallbackPolicy parses a policy name. Empty selects FallbackAllActive.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FallbackAllActive, nil
	case FallbackAllActive, FallbackNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown webhook fallback policy %q", s)
	}
}

// Targeter resolves which connections a webhook notification should sync.
type Targeter struct {
	connections connection.Repository
	policy      FallbackPolicy
	logger      *zap.Logger
}

// NewTargeter creates a new targeter
func NewTargeter(connections connection.Repository, policy FallbackPolicy, logger *zap.Logger) *Targeter {
	if policy == "" {
		policy = FallbackAllActive
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Targeter{
		connections: connections,
		policy:      policy,
		logger:      logger.Named("targeter"),
	}
}

// Targets returns the active, idle connections matching providerAccountIDs.
// With no ids the fallback policy applies. Running connections are dropped
// here as a courtesy; the sync guard remains authoritative.
func (t *Targeter) Targets(ctx context.Context, providerAccountIDs []string) ([]*connection.Connection, error) {
	var (
		conns []*connection.Connection
		err   error
	)

	if len(providerAccountIDs) > 0 {
		conns, err = t.connections.ListActiveByProviderAccountIDs(ctx, providerAccountIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to list targeted connections: %w", err)
		}
	} else {
		switch t.policy {
		case FallbackNone:
			t.logger.Info("Webhook has no target, fallback policy syncs nothing")
			return []*connection.Connection{}, nil
		default:
			t.logger.Info("Webhook has no target, syncing all active connections")
			conns, err = t.connections.ListActive(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list active connections: %w", err)
			}
		}
	}

	targets := make([]*connection.Connection, 0, len(conns))
	for _, c := range conns {
		if !c.IsActive() || c.IsSyncing() {
			continue
		}
		targets = append(targets, c)
	}
	return targets, nil
}

// webhookEvent is the subset of the provider's webhook body used for targeting.
type webhookEvent struct {
	Event struct {
		Data struct {
			ProviderAccountID json.RawMessage `json:"providerAccountId"`
		} `json:"data"`
	} `json:"event"`
}

// ExtractProviderAccountIDs reads event.data.providerAccountId, which may be a
// single value or an array of strings or numbers. Returns an error only for
// a body that is not valid JSON.
func ExtractProviderAccountIDs(body []byte) ([]string, error) {
	if !json.Valid(body) {
		return nil, ErrInvalidWebhook
	}

	// A body of an unexpected shape simply has no target.
	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, nil
	}

	raw := evt.Event.Data.ProviderAccountID
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var values []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, nil
		}
	} else {
		values = []json.RawMessage{raw}
	}

	ids := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		id := scalarString(v)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
