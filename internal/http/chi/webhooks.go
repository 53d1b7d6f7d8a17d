package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trellohooks/trellohooks/webhook"
)

/* HTTP layer DTOs for the management API
 * Separate from domain entities to avoid leaking internal structure -
 * most importantly, auth tokens never appear in responses
 */

type webhookRequest struct {
	ModelID     string `json:"model_id"`
	AuthToken   string `json:"auth_token"`
	Description string `json:"description"`
}

type webhookResponse struct {
	ID          string `json:"id"`
	ModelID     string `json:"model_id"`
	TrelloID    string `json:"trello_id,omitempty"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"`
	Active      string `json:"active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"last_updated_at"`
}

type eventResponse struct {
	ID        string          `json:"id"`
	WebhookID string          `json:"webhook_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"event_payload"`
	Timestamp string          `json:"timestamp"`
}

type fleetSyncRequest struct {
	Tokens []string `json:"tokens"`
}

type fleetSyncResponse struct {
	Synced        int      `json:"synced"`
	Discovered    int      `json:"discovered"`
	Failed        int      `json:"failed"`
	MissingRemote []string `json:"missing_remote,omitempty"`
}

func toWebhookResponse(w webhook.Webhook) webhookResponse {
	return webhookResponse{
		ID:          w.ID,
		ModelID:     w.ModelID,
		TrelloID:    w.TrelloID,
		Description: w.Description,
		State:       w.State().String(),
		Active:      w.Active.String(),
		CreatedAt:   w.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   w.LastUpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, webhook.ErrNotFound):
		http.Error(w, "webhook not found", http.StatusNotFound)
	case errors.Is(err, webhook.ErrDuplicate):
		http.Error(w, "webhook already exists for model and token", http.StatusConflict)
	case errors.Is(err, webhook.ErrMissingModelID),
		errors.Is(err, webhook.ErrModelIDTooLong),
		errors.Is(err, webhook.ErrMissingAuthToken):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// getWebhooks handles GET /v1/webhooks
func getWebhooks(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooks, err := service.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		responses := make([]webhookResponse, 0, len(hooks))
		for _, h := range hooks {
			responses = append(responses, toWebhookResponse(h))
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// postWebhook handles POST /v1/webhooks - creates a record and syncs it
func postWebhook(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		created, err := service.Create(r.Context(), webhook.Webhook{
			ModelID:     req.ModelID,
			AuthToken:   req.AuthToken,
			Description: req.Description,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWebhookResponse(created))
	})
}

// getWebhook handles GET /v1/webhooks/{id}
func getWebhook(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hook, err := service.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWebhookResponse(hook))
	})
}

// putWebhook handles PUT /v1/webhooks/{id} - description changes only
func putWebhook(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		current, err := service.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		current.Description = req.Description
		updated, err := service.Update(r.Context(), current)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWebhookResponse(updated))
	})
}

// deleteWebhook handles DELETE /v1/webhooks/{id}
func deleteWebhook(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// postWebhookSync handles POST /v1/webhooks/{id}/sync
func postWebhookSync(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		synced, err := service.Sync(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWebhookResponse(synced))
	})
}

// getWebhookEvents handles GET /v1/webhooks/{id}/events
func getWebhookEvents(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		events, err := service.ListEvents(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, err)
			return
		}

		responses := make([]eventResponse, 0, len(events))
		for _, e := range events {
			responses = append(responses, eventResponse{
				ID:        e.ID,
				WebhookID: e.WebhookID,
				EventType: e.EventType,
				Payload:   e.Payload,
				Timestamp: e.Timestamp.Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// postFleetSync handles POST /v1/sync - batch reconciliation
func postFleetSync(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fleetSyncRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		report, err := service.SyncFleet(r.Context(), req.Tokens)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fleetSyncResponse{
			Synced:        report.Synced,
			Discovered:    report.Discovered,
			Failed:        report.Failed,
			MissingRemote: report.MissingRemote,
		})
	})
}
