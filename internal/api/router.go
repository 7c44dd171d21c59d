package api

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bcnelson/autoreply-console/internal/analytics"
	"github.com/bcnelson/autoreply-console/internal/api/handler"
	"github.com/bcnelson/autoreply-console/internal/api/middleware"
	"github.com/bcnelson/autoreply-console/internal/automation"
	"github.com/bcnelson/autoreply-console/internal/storage"
)

// Options configures the backend router.
type Options struct {
	// BootstrapKey authenticates while no API keys exist.
	BootstrapKey string
	// VerifyToken is echoed back by the webhook subscription handshake.
	// Empty disables verification.
	VerifyToken string
	// Processor handles webhook comments. Defaults to a log-only processor.
	Processor *automation.Processor
	// Stats computes dashboard counters. Defaults to a service over store.
	Stats *analytics.Service
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(store storage.Storage, logger *log.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Processor == nil {
		opts.Processor = automation.NewProcessor(store, nil)
	}
	if opts.Stats == nil {
		opts.Stats = analytics.NewService(store)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(middleware.WithLogger(logger))
	r.Use(middleware.Logging)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ContentType)

		// Platform webhook (verified by handshake token, not API key)
		webhookHandler := handler.NewWebhookHandler(opts.Processor, opts.VerifyToken)
		r.Get("/webhook/instagram", webhookHandler.Verify)
		r.Post("/webhook/instagram", webhookHandler.Receive)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(store, opts.BootstrapKey))

			// API Keys
			keyHandler := handler.NewAPIKeyHandler(store)
			r.Post("/keys", keyHandler.Create)
			r.Get("/keys", keyHandler.List)
			r.Delete("/keys/{id}", keyHandler.Delete)

			// Rules
			ruleHandler := handler.NewRuleHandler(store)
			r.Post("/rules", ruleHandler.Create)
			r.Get("/rules", ruleHandler.List)
			r.Get("/rules/{id}", ruleHandler.Get)
			r.Put("/rules/{id}", ruleHandler.Update)
			r.Delete("/rules/{id}", ruleHandler.Delete)

			// Activity logs and stats
			logHandler := handler.NewLogHandler(store, opts.Stats)
			r.Get("/logs/comments", logHandler.Comments)
			r.Get("/logs/dms", logHandler.DMs)
			r.Get("/logs/stats", logHandler.Stats)
		})
	})

	return r
}
