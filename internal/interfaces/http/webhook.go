package http

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"ledgersync/internal/domain/connection"
	syncsvc "ledgersync/internal/domain/sync"
	"ledgersync/internal/interfaces/scheduler"
)

// maxWebhookBody bounds how much of a webhook body is read.
const maxWebhookBody = 1 << 20

// JobSubmitter queues jobs for asynchronous execution.
type JobSubmitter interface {
	Submit(job scheduler.Job) error
}

// TargetResolver maps webhook account identifiers to the connections to sync.
type TargetResolver interface {
	Targets(ctx context.Context, providerAccountIDs []string) ([]*connection.Connection, error)
}

type WebhookHandler struct {
	targets TargetResolver
	jobs    JobSubmitter
	runner  scheduler.SyncRunner
	logger  *zap.Logger
}

func NewWebhookHandler(targets TargetResolver, jobs JobSubmitter, runner scheduler.SyncRunner, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		targets: targets,
		jobs:    jobs,
		runner:  runner,
		logger:  logger.Named("webhook"),
	}
}

type webhookResponse struct {
	Received  bool `json:"received"`
	Scheduled int  `json:"scheduled"`
}

// HandleYodlee accepts an aggregator notification and schedules a sync for
// every connection it resolves to. The body is acknowledged before any sync runs.
func (h *WebhookHandler) HandleYodlee(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ids, err := syncsvc.ExtractProviderAccountIDs(body)
	if err != nil {
		h.logger.Warn("Rejected webhook", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	conns, err := h.targets.Targets(r.Context(), ids)
	if err != nil {
		h.logger.Error("Failed to resolve webhook targets", zap.Error(err), zap.Int("identifiers", len(ids)))
		writeError(w, http.StatusInternalServerError, "failed to resolve connections")
		return
	}

	scheduled := 0
	for _, c := range conns {
		job := scheduler.NewConnectionSyncJob(c.ID, "webhook", h.runner, h.logger)
		if err := h.jobs.Submit(job); err != nil {
			h.logger.Warn("Failed to schedule webhook sync", zap.String("connection_id", c.ID), zap.Error(err))
			continue
		}
		scheduled++
	}

	h.logger.Info("Webhook received",
		zap.Int("identifiers", len(ids)),
		zap.Int("targets", len(conns)),
		zap.Int("scheduled", scheduled),
	)
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Scheduled: scheduled})
}
