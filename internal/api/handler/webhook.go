package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/bcnelson/autoreply-console/internal/automation"
	"github.com/bcnelson/autoreply-console/internal/domain"
)

// WebhookHandler receives platform webhook calls.
type WebhookHandler struct {
	processor   *automation.Processor
	verifyToken string
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(processor *automation.Processor, verifyToken string) *WebhookHandler {
	return &WebhookHandler{processor: processor, verifyToken: verifyToken}
}

// webhookPayload is the subset of the platform's change notification we read.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				ID    string `json:"id"`
				Text  string `json:"text"`
				Media struct {
					ID string `json:"id"`
				} `json:"media"`
				From struct {
					ID       string `json:"id"`
					Username string `json:"username"`
				} `json:"from"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Verify answers the subscription handshake by echoing hub.challenge.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		respondError(w, http.StatusForbidden, domain.ErrCodeForbidden, "verification failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(q.Get("hub.challenge")))
}

// Receive processes comment change notifications. Individual comment
// failures are logged and do not fail the delivery.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	logger := log.FromContext(r.Context()).WithPrefix("webhook")
	processed := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "comments" {
				continue
			}
			v := change.Value
			_, err := h.processor.Process(r.Context(), automation.Comment{
				ID:                v.ID,
				PostID:            v.Media.ID,
				Text:              v.Text,
				CommenterID:       v.From.ID,
				CommenterUsername: v.From.Username,
			})
			switch {
			case err == nil:
				processed++
			case errors.Is(err, domain.ErrNoMatchingRule):
			default:
				logger.Error("failed to process comment", "comment_id", v.ID, "error", err)
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "processed": processed})
}
