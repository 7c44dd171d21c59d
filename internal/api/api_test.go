package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bcnelson/autoreply-console/internal/api"
	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/storage/memory"
)

// testServer creates a test server with in-memory storage
type testServer struct {
	handler      http.Handler
	store        *memory.Store
	bootstrapKey string
}

func newTestServer() *testServer {
	store := memory.New()
	bootstrapKey := "test-bootstrap-key"

	handler := api.NewRouter(store, log.New(io.Discard), api.Options{
		BootstrapKey: bootstrapKey,
		VerifyToken:  "verify-me",
	})

	return &testServer{
		handler:      handler,
		store:        store,
		bootstrapKey: bootstrapKey,
	}
}

func (ts *testServer) request(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func leadsRule() domain.RuleRequest {
	return domain.RuleRequest{
		RuleName:     "Leads",
		Keywords:     []string{"price", "cost"},
		CommentReply: "DM you!",
		Toggle:       domain.Toggle{CommentOnly: false, SendDM: true, DMMessage: "Here is our price list"},
		IsActive:     true,
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("GET", "/health", nil, "")

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer()

	// Request without auth header
	rr := ts.request("GET", "/api/rules", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid auth header format
	req := httptest.NewRequest("GET", "/api/rules", nil)
	req.Header.Set("Authorization", "Basic invalid")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid API key
	rr = ts.request("GET", "/api/logs/comments", nil, "invalid-key")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}

func TestBootstrapKeyAuth(t *testing.T) {
	ts := newTestServer()

	// Bootstrap key should work when no API keys exist
	rr := ts.request("GET", "/api/rules", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with bootstrap key, got %d", rr.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ts := newTestServer()

	// Create API key using bootstrap key
	createReq := domain.IssueAPIKeyRequest{Name: "Console"}
	rr := ts.request("POST", "/api/keys", createReq, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var createResp domain.IssuedAPIKey
	_ = json.Unmarshal(rr.Body.Bytes(), &createResp)
	if !strings.HasPrefix(createResp.Token, domain.KeyPrefix) {
		t.Fatalf("Expected an issued key, got %q", createResp.Token)
	}
	if createResp.Hint != createResp.Token[:len(domain.KeyPrefix)+8] {
		t.Errorf("Expected hint to match the token, got %q", createResp.Hint)
	}

	// Bootstrap key stops working once a key exists
	rr = ts.request("GET", "/api/rules", nil, ts.bootstrapKey)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for bootstrap key after key creation, got %d", rr.Code)
	}

	// Use the new API key
	rr = ts.request("GET", "/api/rules", nil, createResp.Token)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with new API key, got %d", rr.Code)
	}

	// List API keys
	rr = ts.request("GET", "/api/keys", nil, createResp.Token)
	var keys domain.APIKeyList
	_ = json.Unmarshal(rr.Body.Bytes(), &keys)
	if len(keys.Keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(keys.Keys))
	}
	if strings.Contains(rr.Body.String(), createResp.Token) {
		t.Error("Expected the token to be shown only on creation")
	}

	// Blank names are rejected
	rr = ts.request("POST", "/api/keys", domain.IssueAPIKeyRequest{Name: "  "}, createResp.Token)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a blank name, got %d", rr.Code)
	}

	// Delete API key
	rr = ts.request("DELETE", "/api/keys/"+createResp.ID, nil, createResp.Token)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
}

func TestRuleCRUD(t *testing.T) {
	ts := newTestServer()

	// Create rule
	rr := ts.request("POST", "/api/rules", leadsRule(), ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var rule domain.Rule
	_ = json.Unmarshal(rr.Body.Bytes(), &rule)
	if rule.ID == "" {
		t.Fatal("Expected rule id to be assigned")
	}
	if rule.Mode() != domain.ModeCommentAndDM {
		t.Errorf("Expected mode comment_and_dm, got %s", rule.Mode())
	}

	// List rules
	rr = ts.request("GET", "/api/rules", nil, ts.bootstrapKey)
	var list domain.RuleList
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Rules) != 1 || list.Rules[0].RuleName != "Leads" {
		t.Fatalf("Expected Leads rule in list, got %+v", list.Rules)
	}
	if got := list.Rules[0].Keywords; len(got) != 2 || got[0] != "price" || got[1] != "cost" {
		t.Errorf("Expected keywords [price cost], got %v", got)
	}

	// Update rule to comment only; dm_message is retained
	update := leadsRule()
	update.Toggle.CommentOnly = true
	update.IsActive = false
	rr = ts.request("PUT", "/api/rules/"+rule.ID, update, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated domain.Rule
	_ = json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.Mode() != domain.ModeCommentOnly {
		t.Errorf("Expected mode comment_only, got %s", updated.Mode())
	}
	if updated.Toggle.DMMessage != "Here is our price list" {
		t.Errorf("Expected dm_message retained, got %q", updated.Toggle.DMMessage)
	}

	// Get rule
	rr = ts.request("GET", "/api/rules/"+rule.ID, nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	// Delete rule
	rr = ts.request("DELETE", "/api/rules/"+rule.ID, nil, ts.bootstrapKey)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/rules/"+rule.ID, nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", rr.Code)
	}
}

func TestRuleValidation(t *testing.T) {
	ts := newTestServer()

	req := leadsRule()
	req.RuleName = "  "
	req.Toggle.DMMessage = ""
	rr := ts.request("POST", "/api/rules", req, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}

	var resp struct {
		Errors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	fields := map[string]string{}
	for _, e := range resp.Errors {
		fields[e.Field] = e.Message
	}
	if fields["rule_name"] != "Rule name is required" {
		t.Errorf("Expected rule_name error, got %v", fields)
	}
	if fields["dm_message"] != "DM message is required when Send DM is enabled" {
		t.Errorf("Expected dm_message error, got %v", fields)
	}

	// Comment only does not need a DM message
	req = leadsRule()
	req.Toggle = domain.Toggle{CommentOnly: true}
	rr = ts.request("POST", "/api/rules", req, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestInvalidRequests(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("GET", "/api/rules/nonexistent", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}

	rr = ts.request("PUT", "/api/rules/nonexistent", leadsRule(), ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}

	req := httptest.NewRequest("POST", "/api/rules", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+ts.bootstrapKey)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed body, got %d", rec.Code)
	}

	rr = ts.request("GET", "/api/logs/comments?limit=abc", nil, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad limit, got %d", rr.Code)
	}
}

func TestLogPaging(t *testing.T) {
	ts := newTestServer()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 25 {
		_ = ts.store.CreateCommentLog(ctx, &domain.CommentLog{
			ID:        "c" + string(rune('a'+i)),
			CommentID: "ig" + string(rune('a'+i)),
			ReplySent: true,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	rr := ts.request("GET", "/api/logs/comments", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var page domain.CommentLogPage
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if page.Total != 25 {
		t.Errorf("Expected total 25, got %d", page.Total)
	}
	if len(page.Comments) != domain.DefaultPageLimit {
		t.Errorf("Expected %d comments, got %d", domain.DefaultPageLimit, len(page.Comments))
	}
	if !page.Comments[0].Timestamp.Equal(base.Add(24 * time.Minute)) {
		t.Errorf("Expected newest first, got %v", page.Comments[0].Timestamp)
	}

	rr = ts.request("GET", "/api/logs/comments?skip=20&limit=50", nil, ts.bootstrapKey)
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if len(page.Comments) != 5 {
		t.Errorf("Expected 5 comments on second page, got %d", len(page.Comments))
	}

	rr = ts.request("GET", "/api/logs/dms", nil, ts.bootstrapKey)
	var dms domain.DMLogPage
	_ = json.Unmarshal(rr.Body.Bytes(), &dms)
	if dms.DMs == nil || len(dms.DMs) != 0 || dms.Total != 0 {
		t.Errorf("Expected empty dm page, got %+v", dms)
	}
}

func TestWebhookVerify(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("GET", "/api/webhook/instagram?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "42" {
		t.Errorf("Expected challenge echo, got %q", rr.Body.String())
	}

	rr = ts.request("GET", "/api/webhook/instagram?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestWebhookProcessesComments(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("POST", "/api/rules", leadsRule(), ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rr.Code)
	}

	comment := func(id, text string) map[string]any {
		return map[string]any{
			"field": "comments",
			"value": map[string]any{
				"id":    id,
				"text":  text,
				"media": map[string]any{"id": "post-1"},
				"from":  map[string]any{"id": "u-" + id, "username": "user_" + id},
			},
		}
	}
	payload := map[string]any{
		"object": "instagram",
		"entry": []any{map[string]any{
			"id": "page-1",
			"changes": []any{
				comment("1", "What's the PRICE?"),
				comment("2", "nice photo"),
				map[string]any{"field": "mentions", "value": map[string]any{}},
			},
		}},
	}

	rr = ts.request("POST", "/api/webhook/instagram", payload, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.request("GET", "/api/logs/comments", nil, ts.bootstrapKey)
	var comments domain.CommentLogPage
	_ = json.Unmarshal(rr.Body.Bytes(), &comments)
	if comments.Total != 1 {
		t.Fatalf("Expected 1 comment log, got %d", comments.Total)
	}
	if comments.Comments[0].CommenterUsername != "user_1" || !comments.Comments[0].ReplySent {
		t.Errorf("Unexpected comment log %+v", comments.Comments[0])
	}

	rr = ts.request("GET", "/api/logs/dms", nil, ts.bootstrapKey)
	var dms domain.DMLogPage
	_ = json.Unmarshal(rr.Body.Bytes(), &dms)
	if dms.Total != 1 || dms.DMs[0].Message != "Here is our price list" {
		t.Errorf("Expected one DM with the rule message, got %+v", dms)
	}

	rr = ts.request("GET", "/api/logs/stats", nil, ts.bootstrapKey)
	var stats domain.Stats
	_ = json.Unmarshal(rr.Body.Bytes(), &stats)
	if stats.TotalComments != 1 || stats.TotalDMsSent != 1 || stats.ActiveRules != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if len(stats.WeeklyActivity) != 7 {
		t.Errorf("Expected 7 days of weekly activity, got %d", len(stats.WeeklyActivity))
	}
}
