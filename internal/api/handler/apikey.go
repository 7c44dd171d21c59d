package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/storage"
)

// APIKeyHandler issues and revokes the operator keys the console logs in
// with.
type APIKeyHandler struct {
	store storage.Storage
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(store storage.Storage) *APIKeyHandler {
	return &APIKeyHandler{store: store}
}

// Create issues a key. The token is in this response only.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}

	key, token, err := domain.IssueAPIKey(generateID(), req.Name, time.Now())
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, domain.ErrCodeValidationError, "name is required")
		return
	case err != nil:
		log.FromContext(r.Context()).Error("issuing API key", "error", err)
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "failed to generate API key")
		return
	}

	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		handleError(w, r, err)
		return
	}

	log.FromContext(r.Context()).Info("API key issued", "id", key.ID, "name", key.Name, "key", key.Masked())
	respondJSON(w, http.StatusCreated, &domain.IssuedAPIKey{APIKey: key, Token: token})
}

// List returns every key without its token.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if keys == nil {
		keys = []*domain.APIKey{}
	}
	respondJSON(w, http.StatusOK, domain.APIKeyList{Keys: keys})
}

// Delete revokes a key. Consoles holding it get 401 from then on.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	log.FromContext(r.Context()).Info("API key revoked", "id", id)
	w.WriteHeader(http.StatusNoContent)
}
