package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/autoreply-console/internal/activity"
	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/gateway"
	"github.com/bcnelson/autoreply-console/internal/ruleeditor"
	"github.com/bcnelson/autoreply-console/internal/rules"
)

// Console banner messages.
const (
	MsgStatsFailed    = "Failed to load stats"
	MsgConfirmExpired = "Delete confirmation expired, nothing was deleted"
	MsgFormResumed    = "This form was already submitted or has expired. Review it and save again."
)

// handleLoginPage renders the login page.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Title: "Login",
	}

	// Check for flash message in query params
	if msg := r.URL.Query().Get("error"); msg != "" {
		data.Flash = &FlashMessage{Type: "error", Message: msg}
	}

	s.render(w, "base-noauth", "login", data)
}

// handleLogin checks the API key against the backend and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=Invalid+form+data", http.StatusSeeOther)
		return
	}

	apiKey := r.FormValue("api_key")
	if apiKey == "" {
		http.Redirect(w, r, "/login?error=API+key+required", http.StatusSeeOther)
		return
	}

	session, err := s.sessions.Create(w, apiKey)
	if err != nil {
		log.FromContext(r.Context()).Error("failed to create session", "error", err)
		http.Redirect(w, r, "/login?error=Server+error", http.StatusSeeOther)
		return
	}

	ws := s.workspaceFor(session.ID, session.Token)
	if err := ws.rules.FetchAll(r.Context()); err != nil {
		s.workspaces.remove(ws.id)
		s.sessions.Clear(w)
		msg := "Backend+unavailable"
		if gateway.IsUnauthorized(err) {
			msg = "Invalid+API+key"
		}
		http.Redirect(w, r, "/login?error="+msg, http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout clears the session and redirects to login.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if session, err := s.sessions.Get(r); err == nil {
		s.workspaces.remove(session.ID)
	}
	s.sessions.Clear(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// DashboardData holds data for the dashboard page.
type DashboardData struct {
	Stats         *domain.Stats
	TotalRules    int
	ActiveRules   int
	InactiveRules int
}

// handleDashboard renders the dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := getWorkspace(ctx)

	data := PageData{
		Title:  "Dashboard",
		Active: "dashboard",
	}

	stats, err := ws.client.Stats(ctx)
	if err != nil {
		if gateway.IsUnauthorized(err) {
			s.unauthorized(w, r)
			return
		}
		log.FromContext(ctx).Error("failed to load stats", "error", err)
		data.Flash = &FlashMessage{Type: "error", Message: MsgStatsFailed}
	}
	if err := s.ensureRules(ctx, ws); gateway.IsUnauthorized(err) {
		s.unauthorized(w, r)
		return
	}

	counts := ws.rules.Counts()
	data.Content = DashboardData{
		Stats:         stats,
		TotalRules:    counts[domain.FilterAll],
		ActiveRules:   counts[domain.FilterActive],
		InactiveRules: counts[domain.FilterInactive],
	}
	s.render(w, "base", "dashboard", data)
}

// ensureRules fetches the rule list on first use.
func (s *Server) ensureRules(ctx context.Context, ws *workspace) error {
	if ws.rules.Loaded() {
		return nil
	}
	return ws.rules.FetchAll(ctx)
}

func rulesBanner(ws *workspace) *FlashMessage {
	if msg := ws.rules.Banner(); msg != "" {
		return &FlashMessage{Type: "error", Message: msg, Dismiss: "/rules/dismiss"}
	}
	return nil
}

// FilterTab is one activation filter button.
type FilterTab struct {
	Filter domain.ActivationFilter
	Label  string
	Count  int
	Active bool
}

// RulesListData holds data for the rules page.
type RulesListData struct {
	Rules   []*domain.Rule
	Filters []FilterTab
	Loaded  bool
}

// handleRulesList renders the rule cards. The filter query parameter
// selects all, active or inactive rules without refetching.
func (s *Server) handleRulesList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := getWorkspace(ctx)

	if f := r.URL.Query().Get("filter"); f != "" {
		ws.rules.SetFilter(domain.ParseActivationFilter(f))
	}
	if r.URL.Query().Get("refresh") != "" {
		if err := ws.rules.FetchAll(ctx); gateway.IsUnauthorized(err) {
			s.unauthorized(w, r)
			return
		}
	} else if err := s.ensureRules(ctx, ws); gateway.IsUnauthorized(err) {
		s.unauthorized(w, r)
		return
	}

	counts := ws.rules.Counts()
	current := ws.rules.Filter()
	var filters []FilterTab
	for _, f := range []struct {
		filter domain.ActivationFilter
		label  string
	}{
		{domain.FilterAll, "All"},
		{domain.FilterActive, "Active"},
		{domain.FilterInactive, "Inactive"},
	} {
		filters = append(filters, FilterTab{
			Filter: f.filter,
			Label:  f.label,
			Count:  counts[f.filter],
			Active: f.filter == current,
		})
	}

	flash := rulesBanner(ws)
	if flash == nil && r.URL.Query().Get("notice") == MsgConfirmExpired {
		flash = &FlashMessage{Type: "info", Message: MsgConfirmExpired}
	}

	data := PageData{
		Title:  "Rules",
		Active: "rules",
		Flash:  flash,
		Content: RulesListData{
			Rules:   ws.rules.Visible(),
			Filters: filters,
			Loaded:  ws.rules.Loaded(),
		},
	}
	s.render(w, "base", "rules", data)
}

// handleRulesDismiss clears the rules banner.
func (s *Server) handleRulesDismiss(w http.ResponseWriter, r *http.Request) {
	getWorkspace(r.Context()).rules.DismissBanner()
	http.Redirect(w, r, "/rules", http.StatusSeeOther)
}

// RuleFormData holds data for the rule editor.
type RuleFormData struct {
	State   ruleeditor.State
	Visible ruleeditor.Visibility
}

// renderEditor shows the rule form. A non-nil notice takes the place of the
// collection banner for this render.
func (s *Server) renderEditor(w http.ResponseWriter, ws *workspace, state ruleeditor.State, status int, notice *FlashMessage) {
	title := "New Rule"
	if state.IsEdit() {
		title = "Edit Rule"
	}
	flash := notice
	if flash == nil {
		flash = rulesBanner(ws)
	}
	data := PageData{
		Title:   title,
		Active:  "rules",
		Flash:   flash,
		Content: RuleFormData{State: state, Visible: state.Visible()},
	}
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	s.render(w, "base", "rule_form", data)
}

// handleRuleNew opens an empty editor.
func (s *Server) handleRuleNew(w http.ResponseWriter, r *http.Request) {
	ws := getWorkspace(r.Context())
	state := ruleeditor.New(nil)
	ws.setDraft(state)
	s.renderEditor(w, ws, state, http.StatusOK, nil)
}

// findRule looks a rule up in the collection, refetching once on a miss.
func (s *Server) findRule(ctx context.Context, ws *workspace, id string) (*domain.Rule, error) {
	if rule, ok := ws.rules.Find(id); ok {
		return rule, nil
	}
	if err := ws.rules.FetchAll(ctx); err != nil {
		return nil, err
	}
	rule, ok := ws.rules.Find(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rule, nil
}

// handleRuleEdit opens the editor on an existing rule.
func (s *Server) handleRuleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := getWorkspace(ctx)

	rule, err := s.findRule(ctx, ws, chi.URLParam(r, "id"))
	if err != nil {
		s.ruleError(w, r, err)
		return
	}

	state := ruleeditor.New(rule)
	ws.setDraft(state)
	s.renderEditor(w, ws, state, http.StatusOK, nil)
}

// handleRuleEditor applies a posted form to the draft. A save button
// submits; a valid draft is then written through the collection.
func (s *Server) handleRuleEditor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := getWorkspace(ctx)

	if err := r.ParseForm(); err != nil {
		s.renderError(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	// A create form posted without its open draft was already saved or
	// its draft expired. Refill the form but never write it again.
	resumed := false
	draft, open := ws.openDraft()
	if id := r.PostForm.Get("id"); !open || id != draft.ID {
		draft = ruleeditor.New(nil)
		if id != "" {
			rule, err := s.findRule(ctx, ws, id)
			if err != nil {
				s.ruleError(w, r, err)
				return
			}
			draft = ruleeditor.New(rule)
		} else {
			resumed = true
		}
	}

	events := formEvents(draft, r.PostForm)
	if resumed {
		events = slices.DeleteFunc(events, func(ev ruleeditor.Event) bool {
			return ev.Type == ruleeditor.Submit
		})
	}
	state := ruleeditor.Apply(draft, events...)
	ws.setDraft(state)

	if resumed {
		s.renderEditor(w, ws, state, http.StatusOK, &FlashMessage{Type: "info", Message: MsgFormResumed})
		return
	}
	if !state.Ready {
		status := http.StatusOK
		if state.Attempted && state.Errors.HasErrors() {
			status = http.StatusUnprocessableEntity
		}
		s.renderEditor(w, ws, state, status, nil)
		return
	}

	saved, err := ws.rules.Save(ctx, state.Rule())
	switch {
	case gateway.IsUnauthorized(err):
		s.unauthorized(w, r)
		return
	case saved == nil:
		// The write failed and the collection set the banner; keep the form open.
		s.renderEditor(w, ws, state, http.StatusBadGateway, nil)
		return
	case err != nil:
		// Written, but the list is stale. The rules page shows the load banner.
		log.FromContext(ctx).Warn("rule saved but refetch failed", "rule_id", saved.ID, "error", err)
	}

	ws.clearDraft()
	http.Redirect(w, r, "/rules", http.StatusSeeOther)
}

// RuleDeleteData holds data for the delete confirmation page.
type RuleDeleteData struct {
	Rule *domain.Rule
}

// handleRuleDeleteConfirm records the delete request and asks for
// confirmation. Nothing is sent to the backend yet.
func (s *Server) handleRuleDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := getWorkspace(ctx)

	rule, err := s.findRule(ctx, ws, chi.URLParam(r, "id"))
	if err != nil {
		s.ruleError(w, r, err)
		return
	}

	ws.rules.RequestDelete(rule.ID)
	data := PageData{
		Title:   "Delete Rule",
		Active:  "rules",
		Content: RuleDeleteData{Rule: rule},
	}
	s.render(w, "base", "rule_delete", data)
}

// handleRuleDelete deletes a rule whose deletion was confirmed.
func (s *Server) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := getWorkspace(ctx)

	err := ws.rules.ConfirmDelete(ctx, chi.URLParam(r, "id"))
	switch {
	case gateway.IsUnauthorized(err):
		s.unauthorized(w, r)
		return
	case errors.Is(err, rules.ErrNotConfirmed):
		// Nothing is deleted. The pending request may have been lost with an
		// evicted workspace.
		log.FromContext(ctx).Warn("delete posted without a pending confirmation", "rule_id", chi.URLParam(r, "id"))
		http.Redirect(w, r, "/rules?notice="+url.QueryEscape(MsgConfirmExpired), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/rules", http.StatusSeeOther)
}

// handleRuleDeleteCancel abandons a pending delete.
func (s *Server) handleRuleDeleteCancel(w http.ResponseWriter, r *http.Request) {
	getWorkspace(r.Context()).rules.CancelDelete()
	http.Redirect(w, r, "/rules", http.StatusSeeOther)
}

func (s *Server) ruleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case gateway.IsUnauthorized(err):
		s.unauthorized(w, r)
	case errors.Is(err, domain.ErrNotFound):
		s.renderError(w, "Rule not found", http.StatusNotFound)
	default:
		s.renderError(w, rules.MsgLoadFailed, http.StatusBadGateway)
	}
}

// TabLink is one stream tab of the logs page.
type TabLink struct {
	Tab    activity.Tab
	Label  string
	Count  int
	Active bool
}

// LogsData holds data for the logs page.
type LogsData struct {
	Tab         activity.Tab
	Tabs        []TabLink
	Table       activity.Table
	Skip        int
	PageSize    int
	HasOlder    bool
	HasNewer    bool
	Total       int
	Placeholder string // fills the single row of an empty stream
}

// handleLogs renders the activity log. Query parameters switch tab, click
// a sortable header or move the page; sorting and tab switching never
// refetch.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := getWorkspace(ctx)
	view := ws.logs
	q := r.URL.Query()

	if t := q.Get("tab"); t != "" {
		view.SetTab(activity.ParseTab(t))
	}
	tab := view.Tab()

	// Header clicks mutate sort state, so redirect to keep reloads idempotent.
	if key := q.Get("sort"); key != "" {
		view.ClickHeader(tab, key)
		http.Redirect(w, r, "/logs?tab="+url.QueryEscape(string(tab)), http.StatusSeeOther)
		return
	}

	reload := false
	if raw := q.Get("skip"); raw != "" {
		skip := max(parseInt(raw, 0), 0)
		if skip != view.Skip() {
			view.SetSkip(skip)
			reload = true
		}
	}

	ws.mu.Lock()
	loaded := ws.logsLoaded
	ws.mu.Unlock()
	if !loaded || reload {
		if !s.loadLogs(w, r, ws) {
			return
		}
	}

	s.renderLogs(w, ws)
}

// loadLogs fetches both streams. It reports false when the session ended.
func (s *Server) loadLogs(w http.ResponseWriter, r *http.Request, ws *workspace) bool {
	res := ws.logs.Load(r.Context(), ws.client)
	if res.Unauthorized() {
		s.unauthorized(w, r)
		return false
	}
	ws.mu.Lock()
	ws.logsLoaded = true
	ws.mu.Unlock()
	return true
}

func (s *Server) renderLogs(w http.ResponseWriter, ws *workspace) {
	view := ws.logs
	tab := view.Tab()

	tabs := []TabLink{
		{Tab: activity.TabComments, Label: "Comments"},
		{Tab: activity.TabDMs, Label: "Direct Messages"},
	}
	for i := range tabs {
		tabs[i].Count = view.Count(tabs[i].Tab)
		tabs[i].Active = tabs[i].Tab == tab
	}

	data := PageData{
		Title:  "Activity Logs",
		Active: "logs",
		Content: LogsData{
			Tab:         tab,
			Tabs:        tabs,
			Table:       view.Table(tab),
			Skip:        view.Skip(),
			PageSize:    view.PageSize(),
			HasOlder:    view.HasOlder(tab),
			HasNewer:    view.Skip() > 0,
			Total:       view.Total(tab),
			Placeholder: activity.Placeholder,
		},
	}
	if msg := view.Banner(); msg != "" {
		data.Flash = &FlashMessage{Type: "error", Message: msg, Dismiss: "/logs/dismiss"}
	}
	s.render(w, "base", "logs", data)
}

// handleLogsRefresh refetches both streams.
func (s *Server) handleLogsRefresh(w http.ResponseWriter, r *http.Request) {
	ws := getWorkspace(r.Context())
	if !s.loadLogs(w, r, ws) {
		return
	}
	http.Redirect(w, r, "/logs?tab="+string(ws.logs.Tab()), http.StatusSeeOther)
}

// handleLogsDismiss clears the logs banner.
func (s *Server) handleLogsDismiss(w http.ResponseWriter, r *http.Request) {
	getWorkspace(r.Context()).logs.DismissBanner()
	http.Redirect(w, r, "/logs", http.StatusSeeOther)
}

// render renders a full page using the base template.
// page is the page name (e.g., "login", "dashboard", "rules")
// base is the base template to use ("base" or "base-noauth")
func (s *Server) render(w http.ResponseWriter, base, page string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	tmpl, ok := s.templates[page]
	if !ok {
		http.Error(w, "Template not found: "+page, http.StatusInternalServerError)
		return
	}

	err := tmpl.ExecuteTemplate(w, base, data)
	if err != nil {
		s.logger.Error("template error", "page", page, "error", err)
	}
}

// renderError renders an error message.
func (s *Server) renderError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`<div class="flash flash-error">` + message + `</div>`))
}

// pageLink builds a logs URL for paging.
func pageLink(tab activity.Tab, skip int) string {
	return "/logs?tab=" + url.QueryEscape(string(tab)) + "&skip=" + strconv.Itoa(max(skip, 0))
}
