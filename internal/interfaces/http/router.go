package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ledgersync/internal/shared/middleware"
)

// RouterConfig holds the handlers mounted by NewRouter. A nil Tokens leaves
// the manual trigger endpoint unmounted.
type RouterConfig struct {
	Webhooks *WebhookHandler
	Trigger  *TriggerHandler
	Tokens   middleware.TokenValidator
	Logger   *zap.Logger
}

// NewRouter builds the service's HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Tracing)

	router.HandleFunc("/health", HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/webhooks/yodlee", cfg.Webhooks.HandleYodlee).Methods(http.MethodPost)

	if cfg.Tokens != nil && cfg.Trigger != nil {
		protected := router.PathPrefix("/connections").Subrouter()
		protected.Use(middleware.ServiceAuth(cfg.Tokens))
		protected.HandleFunc("/{id}/sync", cfg.Trigger.HandleSync).Methods(http.MethodPost)
	}

	return middleware.Logging(cfg.Logger)(router)
}
