package chi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/trellohooks/trellohooks/config"
	"github.com/trellohooks/trellohooks/webhook"
	"github.com/trellohooks/trellohooks/webhook/signature"
)

// maxCallbackBody bounds inbound callback payloads
const maxCallbackBody = 1 << 20 // 1 MiB

/* headCallback answers Trello's activation probe. Trello issues a HEAD
 * request to the callback URL when a webhook is registered - before the
 * local record necessarily exists - so this responds 200 unconditionally
 * and has no side effects.
 */
func headCallback() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// postCallback ingests one event delivery
func postCallback(service webhook.UseCase, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authToken := chi.URLParam(r, "auth_token")
		modelID := chi.URLParam(r, "model_id")

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if cfg.VerifyCallbacks {
			callbackURL := strings.TrimSuffix(cfg.CallbackDomain, "/") +
				"/" + authToken + "/" + modelID + "/"
			received := r.Header.Get(signature.Header)
			if !signature.Verify(cfg.TrelloAPISecret, body, callbackURL, received) {
				http.Error(w, "invalid callback signature", http.StatusBadRequest)
				return
			}
		}

		if _, err := service.Receive(r.Context(), authToken, modelID, body); err != nil {
			switch {
			case errors.Is(err, webhook.ErrNotFound):
				http.NotFound(w, r)
			case errors.Is(err, webhook.ErrMalformedPayload):
				http.Error(w, "malformed payload", http.StatusBadRequest)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Message received"))
	})
}
