package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ledgersync/internal/domain/connection"
	"ledgersync/internal/interfaces/scheduler"
	"ledgersync/internal/shared/middleware"
)

// ConnectionGetter looks up a single connection.
type ConnectionGetter interface {
	GetByID(ctx context.Context, id string) (*connection.Connection, error)
}

type TriggerHandler struct {
	connections ConnectionGetter
	jobs        JobSubmitter
	runner      scheduler.SyncRunner
	logger      *zap.Logger
}

func NewTriggerHandler(connections ConnectionGetter, jobs JobSubmitter, runner scheduler.SyncRunner, logger *zap.Logger) *TriggerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerHandler{
		connections: connections,
		jobs:        jobs,
		runner:      runner,
		logger:      logger.Named("trigger"),
	}
}

type triggerResponse struct {
	Scheduled bool `json:"scheduled"`
}

// HandleSync queues a manual sync of the connection named in the path.
func (h *TriggerHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	conn, err := h.connections.GetByID(r.Context(), id)
	if errors.Is(err, connection.ErrNotFound) {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load connection", zap.String("connection_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load connection")
		return
	}
	if conn.ScheduledForDeletion {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	err = h.jobs.Submit(scheduler.NewConnectionSyncJob(conn.ID, "manual", h.runner, h.logger))
	switch {
	case errors.Is(err, scheduler.ErrQueueFull), errors.Is(err, scheduler.ErrPoolClosed):
		writeError(w, http.StatusServiceUnavailable, "sync queue unavailable")
		return
	case err != nil:
		h.logger.Error("Failed to schedule sync", zap.String("connection_id", conn.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to schedule sync")
		return
	}

	subject, _ := r.Context().Value(middleware.SubjectKey).(string)
	h.logger.Info("Manual sync scheduled", zap.String("connection_id", conn.ID), zap.String("requested_by", subject))
	writeJSON(w, http.StatusAccepted, triggerResponse{Scheduled: true})
}
