package web

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/autoreply-console/internal/api"
	"github.com/bcnelson/autoreply-console/internal/auth"
	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/ruleeditor"
	"github.com/bcnelson/autoreply-console/internal/storage/memory"
)

const bootstrapKey = "test-bootstrap-key"

type consoleHarness struct {
	t       *testing.T
	store   *memory.Store
	backend *httptest.Server
	console *httptest.Server
	client  *http.Client
}

func newHarness(t *testing.T) *consoleHarness {
	return newHarnessWith(t, nil)
}

// newHarnessWith runs the backend behind wrap, when set.
func newHarnessWith(t *testing.T, wrap func(http.Handler) http.Handler) *consoleHarness {
	t.Helper()
	logger := log.New(io.Discard)
	store := memory.New()
	var backendHandler http.Handler = api.NewRouter(store, logger, api.Options{BootstrapKey: bootstrapKey})
	if wrap != nil {
		backendHandler = wrap(backendHandler)
	}
	backend := httptest.NewServer(backendHandler)
	t.Cleanup(backend.Close)

	sessions, err := auth.NewSessionManager(nil, time.Hour, false)
	require.NoError(t, err)
	srv, err := NewServer(Options{
		APIURL:     backend.URL,
		Timeout:    5 * time.Second,
		PageSize:   50,
		HTTPClient: backend.Client(),
	}, sessions, logger)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	console := httptest.NewServer(srv.Router())
	t.Cleanup(console.Close)

	jar, _ := cookiejar.New(nil)
	return &consoleHarness{
		t:       t,
		store:   store,
		backend: backend,
		console: console,
		client:  &http.Client{Jar: jar},
	}
}

func (h *consoleHarness) get(path string) (*http.Response, string) {
	h.t.Helper()
	resp, err := h.client.Get(h.console.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (h *consoleHarness) post(path string, form url.Values) (*http.Response, string) {
	h.t.Helper()
	resp, err := h.client.PostForm(h.console.URL+path, form)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (h *consoleHarness) login() {
	h.t.Helper()
	resp, body := h.post("/login", url.Values{"api_key": {bootstrapKey}})
	require.Equal(h.t, "/", resp.Request.URL.Path)
	require.Contains(h.t, body, "Dashboard")
}

func leadsForm(op string) url.Values {
	return url.Values{
		"id":            {""},
		"rule_name":     {"Leads"},
		"comment_reply": {"DM you!"},
		"send_dm":       {"on"},
		"dm_message":    {"Here is our price list"},
		"is_active":     {"on"},
		"op":            {op},
	}
}

func TestRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get("/rules")
	assert.Equal(t, "/login", resp.Request.URL.Path)
	assert.Contains(t, body, "Sign in")
}

func TestLoginRejectsBadKey(t *testing.T) {
	h := newHarness(t)

	resp, body := h.post("/login", url.Values{"api_key": {"wrong"}})
	assert.Equal(t, "/login", resp.Request.URL.Path)
	assert.Contains(t, body, "Invalid API key")
}

func TestRuleLifecycle(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, body := h.get("/rules/new")
	assert.Contains(t, body, "Create rule")

	// Add keywords one at a time, then save.
	form := leadsForm("add_keyword")
	form.Set("keyword_input", "price")
	_, body = h.post("/rules/editor", form)
	assert.Contains(t, body, "price")

	form.Set("keyword_input", "cost")
	_, _ = h.post("/rules/editor", form)

	form.Set("keyword_input", "")
	form.Set("op", "save")
	resp, body := h.post("/rules/editor", form)
	require.Equal(t, "/rules", resp.Request.URL.Path)
	assert.Contains(t, body, "Leads")
	assert.Contains(t, body, "Comment + DM")
	assert.Contains(t, body, "Here is our price list")

	rules, err := h.store.ListRules(t.Context())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"price", "cost"}, rules[0].Keywords)
	id := rules[0].ID

	// Delete without confirmation is a no-op.
	_, _ = h.post("/rules/"+id+"/delete", nil)
	rules, _ = h.store.ListRules(t.Context())
	assert.Len(t, rules, 1)

	// Cancelled confirmation also keeps the rule.
	_, body = h.get("/rules/" + id + "/delete")
	assert.Contains(t, body, "Are you sure")
	_, _ = h.post("/rules/delete/cancel", nil)
	_, _ = h.post("/rules/"+id+"/delete", nil)
	rules, _ = h.store.ListRules(t.Context())
	assert.Len(t, rules, 1)

	_, _ = h.get("/rules/" + id + "/delete")
	resp, body = h.post("/rules/"+id+"/delete", nil)
	assert.Equal(t, "/rules", resp.Request.URL.Path)
	assert.NotContains(t, body, "Leads")
	rules, _ = h.store.ListRules(t.Context())
	assert.Empty(t, rules)
}

// failListAfterCreate answers 500 to the first rule list after each create.
func failListAfterCreate(next http.Handler) http.Handler {
	var mu sync.Mutex
	failNext := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if r.URL.Path == "/api/rules" && r.Method == http.MethodGet && failNext {
			failNext = false
			mu.Unlock()
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		if r.URL.Path == "/api/rules" && r.Method == http.MethodPost {
			failNext = true
		}
		mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func TestSaveWithFailedRefetchIsNotReplayed(t *testing.T) {
	h := newHarnessWith(t, failListAfterCreate)
	h.login()

	_, _ = h.get("/rules/new")
	form := leadsForm("save")
	resp, body := h.post("/rules/editor", form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/rules", resp.Request.URL.Path)
	assert.Contains(t, body, "Failed to load rules")

	// Resubmitting the same form refills the editor without writing.
	resp, body = h.post("/rules/editor", form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/rules/editor", resp.Request.URL.Path)
	assert.Contains(t, body, "Review it and save again")

	rules, err := h.store.ListRules(t.Context())
	require.NoError(t, err)
	require.Len(t, rules, 1)

	_, body = h.get("/rules?refresh=1")
	assert.Contains(t, body, "Leads")
}

func TestDraftlessCreateIsNotWritten(t *testing.T) {
	h := newHarness(t)
	h.login()

	// No editor was opened in this session.
	resp, body := h.post("/rules/editor", leadsForm("save"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Review it and save again")
	assert.Contains(t, body, "Leads")

	rules, _ := h.store.ListRules(t.Context())
	assert.Empty(t, rules)

	// The refilled form is now the open draft and saves normally.
	resp, _ = h.post("/rules/editor", leadsForm("save"))
	assert.Equal(t, "/rules", resp.Request.URL.Path)
	rules, _ = h.store.ListRules(t.Context())
	assert.Len(t, rules, 1)
}

func TestDeleteWithoutPendingConfirmationShowsNotice(t *testing.T) {
	h := newHarness(t)
	h.login()

	require.NoError(t, h.store.CreateRule(t.Context(), &domain.Rule{
		ID: "r1", RuleName: "Leads", Keywords: []string{"price"}, CommentReply: "DM you!", IsActive: true,
	}))

	resp, body := h.post("/rules/r1/delete", nil)
	assert.Equal(t, "/rules", resp.Request.URL.Path)
	assert.Contains(t, body, MsgConfirmExpired)

	_, err := h.store.GetRule(t.Context(), "r1")
	assert.NoError(t, err)
}

func TestSharedHTTPClientKeepsItsTimeout(t *testing.T) {
	h := newHarness(t)
	h.login()
	_, _ = h.get("/rules")
	assert.Zero(t, h.backend.Client().Timeout)
}

func TestEditorValidation(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, _ = h.get("/rules/new")
	form := leadsForm("save")
	form.Set("rule_name", "")
	form.Set("dm_message", "")
	resp, body := h.post("/rules/editor", form)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Rule name is required")
	assert.Contains(t, body, "DM message is required when Send DM is enabled")

	rules, _ := h.store.ListRules(t.Context())
	assert.Empty(t, rules)
}

func TestEditRule(t *testing.T) {
	h := newHarness(t)
	h.login()

	now := time.Now().UTC()
	require.NoError(t, h.store.CreateRule(t.Context(), &domain.Rule{
		ID: "r1", RuleName: "Leads", Keywords: []string{"price"}, CommentReply: "DM you!",
		Toggle: domain.Toggle{SendDM: true, DMMessage: "list"}, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}))

	_, body := h.get("/rules/r1/edit")
	assert.Contains(t, body, "Save changes")

	form := url.Values{
		"id":            {"r1"},
		"rule_name":     {"Leads"},
		"comment_reply": {"DM you!"},
		"comment_only":  {"on"},
		"send_dm":       {"on"},
		"dm_message":    {"list"},
		"op":            {"save"},
	}
	resp, _ := h.post("/rules/editor", form)
	assert.Equal(t, "/rules", resp.Request.URL.Path)

	rule, err := h.store.GetRule(t.Context(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeCommentOnly, rule.Mode())
	assert.False(t, rule.IsActive)
	assert.Equal(t, "list", rule.Toggle.DMMessage)

	_, body = h.get("/rules?filter=inactive")
	assert.Contains(t, body, "Leads")
	_, body = h.get("/rules?filter=active")
	assert.NotContains(t, body, "<h2>Leads</h2>")
}

func TestLogsPage(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, body := h.get("/logs")
	assert.Contains(t, body, "Comments (0)")
	assert.Contains(t, body, "Direct Messages (0)")
	assert.Contains(t, body, "No data available")
	assert.Contains(t, body, `colspan="4"`)

	now := time.Now().UTC()
	require.NoError(t, h.store.CreateDMLog(t.Context(), &domain.DMLog{
		ID: "d1", RecipientUsername: "alice", Message: strings.Repeat("x", 45),
		Status: domain.DMStatusDelivered, SentAt: now,
	}))

	resp, body := h.post("/logs/refresh", nil)
	assert.Equal(t, "/logs", resp.Request.URL.Path)
	assert.Contains(t, body, "Direct Messages (1)")

	_, body = h.get("/logs?tab=dms")
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, strings.Repeat("x", 40)+"...")

	// Header clicks flip direction and redirect back to the tab.
	resp, body = h.get("/logs?tab=dms&sort=sent_at")
	assert.Equal(t, "dms", resp.Request.URL.Query().Get("tab"))
	assert.Contains(t, body, "↑")
}

func TestUnauthorizedEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login()

	// Creating a key disables the bootstrap key the session holds.
	require.NoError(t, h.store.CreateAPIKey(t.Context(), &domain.APIKey{
		ID: "k1", Name: "ops", KeyHash: "hash", Hint: "ar_", CreatedAt: time.Now(),
	}))

	resp, body := h.get("/rules?refresh=1")
	assert.Equal(t, "/login", resp.Request.URL.Path)
	assert.Contains(t, body, "Session expired")

	resp, _ = h.get("/")
	assert.Equal(t, "/login", resp.Request.URL.Path)
}

func TestFormEventsOnlyEmitsChanges(t *testing.T) {
	draft := ruleeditor.New(&domain.Rule{
		ID: "r1", RuleName: "Leads", CommentReply: "hi", IsActive: true,
		Toggle: domain.Toggle{SendDM: true, DMMessage: "list"},
	})

	form := url.Values{
		"rule_name":     {"Leads"},
		"comment_reply": {"hi"},
		"send_dm":       {"on"},
		"dm_message":    {"list"},
		"is_active":     {"on"},
	}
	assert.Empty(t, formEvents(draft, form))

	form.Set("comment_only", "on")
	form.Set("remove", "price")
	form.Set("op", "save")
	events := formEvents(draft, form)
	require.Len(t, events, 3)
	assert.Equal(t, ruleeditor.Event{Type: ruleeditor.SetCommentOnly, On: true}, events[0])
	assert.Equal(t, ruleeditor.Event{Type: ruleeditor.RemoveKeyword, Value: "price"}, events[1])
	assert.Equal(t, ruleeditor.Event{Type: ruleeditor.Submit}, events[2])
}
