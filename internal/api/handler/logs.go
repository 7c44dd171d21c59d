package handler

import (
	"net/http"

	"github.com/bcnelson/autoreply-console/internal/analytics"
	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/storage"
)

// LogHandler handles activity log and stats endpoints.
type LogHandler struct {
	store storage.Storage
	stats *analytics.Service
}

// NewLogHandler creates a new LogHandler.
func NewLogHandler(store storage.Storage, stats *analytics.Service) *LogHandler {
	return &LogHandler{store: store, stats: stats}
}

func parsePage(r *http.Request) (domain.Page, error) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		return domain.Page{}, err
	}
	limit, err := queryInt(r, "limit", domain.DefaultPageLimit)
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{Skip: skip, Limit: limit}.Normalize(), nil
}

// Comments lists comment logs, newest first.
func (h *LogHandler) Comments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	logs, total, err := h.store.ListCommentLogs(r.Context(), page)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*domain.CommentLog{}
	}

	respondJSON(w, http.StatusOK, domain.CommentLogPage{Comments: logs, Total: total})
}

// DMs lists DM logs, newest first.
func (h *LogHandler) DMs(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	logs, total, err := h.store.ListDMLogs(r.Context(), page)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*domain.DMLog{}
	}

	respondJSON(w, http.StatusOK, domain.DMLogPage{DMs: logs, Total: total})
}

// Stats returns the dashboard counters.
func (h *LogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Compute(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
