package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"github.com/trellohooks/trellohooks/config"
	"github.com/trellohooks/trellohooks/webhook"
)

// Handlers sets up the callback and management API routes
func Handlers(ctx context.Context, service webhook.UseCase, cfg *config.Config, metricsHandler http.Handler) *chi.Mux {
	logger := httplog.NewLogger("trellohooks", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// Management API
	r.Route("/v1", func(r chi.Router) {
		r.Get("/webhooks", getWebhooks(service).ServeHTTP)
		r.Post("/webhooks", postWebhook(service).ServeHTTP)
		r.Get("/webhooks/{id}", getWebhook(service).ServeHTTP)
		r.Put("/webhooks/{id}", putWebhook(service).ServeHTTP)
		r.Delete("/webhooks/{id}", deleteWebhook(service).ServeHTTP)
		r.Post("/webhooks/{id}/sync", postWebhookSync(service).ServeHTTP)
		r.Get("/webhooks/{id}/events", getWebhookEvents(service).ServeHTTP)
		r.Post("/sync", postFleetSync(service).ServeHTTP)
	})

	/* Callback endpoint. The path pair is the authentication key: Trello
	 * calls back on the URL the webhook was registered with, which embeds
	 * the user token and the watched model id.
	 */
	r.Head("/{auth_token}/{model_id}/", headCallback().ServeHTTP)
	r.Post("/{auth_token}/{model_id}/", postCallback(service, cfg).ServeHTTP)

	return r
}
