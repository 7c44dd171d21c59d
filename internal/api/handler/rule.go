package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/storage"
	"github.com/bcnelson/autoreply-console/internal/validation"
)

// RuleHandler handles automation rule endpoints.
type RuleHandler struct {
	store storage.Storage
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(store storage.Storage) *RuleHandler {
	return &RuleHandler{store: store}
}

// normalize trims keywords and drops blanks and exact duplicates, keeping
// first-seen order.
func normalize(req *domain.RuleRequest) {
	seen := make(map[string]bool, len(req.Keywords))
	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}
	req.Keywords = keywords
}

func (h *RuleHandler) decode(w http.ResponseWriter, r *http.Request) (domain.RuleRequest, bool) {
	var req domain.RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return req, false
	}
	normalize(&req)
	if errs := validation.ValidateRule(req); errs.HasErrors() {
		respondValidationErrors(w, errs)
		return req, false
	}
	return req, true
}

// Create creates a new rule.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	rule := &domain.Rule{
		ID:           generateID(),
		RuleName:     req.RuleName,
		Keywords:     req.Keywords,
		CommentReply: req.CommentReply,
		Toggle:       req.Toggle,
		IsActive:     req.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := h.store.BeginTx(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := tx.CreateRule(r.Context(), rule); err != nil {
		_ = tx.Rollback()
		handleError(w, r, err)
		return
	}
	if err := tx.Commit(); err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// List lists all rules in creation order.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if rules == nil {
		rules = []*domain.Rule{}
	}

	respondJSON(w, http.StatusOK, domain.RuleList{Rules: rules})
}

// Get gets a rule by id.
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.store.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Update replaces a rule.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	tx, err := h.store.BeginTx(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	rule, err := tx.GetRule(r.Context(), id)
	if err != nil {
		_ = tx.Rollback()
		handleError(w, r, err)
		return
	}

	rule.RuleName = req.RuleName
	rule.Keywords = req.Keywords
	rule.CommentReply = req.CommentReply
	rule.Toggle = req.Toggle
	rule.IsActive = req.IsActive
	rule.UpdatedAt = time.Now().UTC()

	if err := tx.UpdateRule(r.Context(), rule); err != nil {
		_ = tx.Rollback()
		handleError(w, r, err)
		return
	}
	if err := tx.Commit(); err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Delete deletes a rule.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
