package main

import (
	"net/http"

	"go.uber.org/zap"

	httphandlers "ledgersync/internal/interfaces/http"
)

// NewRouter mounts the webhook, manual trigger and health endpoints.
func NewRouter(deps *Dependencies, logger *zap.Logger) http.Handler {
	runner := deps.Syncer.Orchestrator

	cfg := httphandlers.RouterConfig{
		Webhooks: httphandlers.NewWebhookHandler(deps.Syncer.Targeter, deps.Pool, runner, logger),
		Trigger:  httphandlers.NewTriggerHandler(deps.Store.Connections, deps.Pool, runner, logger),
		Logger:   logger,
	}
	if deps.Tokens != nil {
		cfg.Tokens = deps.Tokens
	}
	return httphandlers.NewRouter(cfg)
}
