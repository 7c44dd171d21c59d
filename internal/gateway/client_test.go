package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/autoreply-console/internal/domain"
)

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.RuleList{Rules: []*domain.Rule{{ID: "r1", RuleName: "Leads"}}})
	}))
	defer srv.Close()

	c := New(srv.URL, NewSession("secret"))
	rules, err := c.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestSharedHTTPClientUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rules":[]}`))
	}))
	defer srv.Close()

	shared := srv.Client()
	c := New(srv.URL, NewSession("secret"), WithHTTPClient(shared), WithTimeout(3*time.Second))
	_, err := c.ListRules(context.Background())
	require.NoError(t, err)
	assert.Zero(t, shared.Timeout)
	assert.Equal(t, 3*time.Second, c.http.Timeout)
}

func TestNoTokenNoHeader(t *testing.T) {
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{"rules":null}`))
	}))
	defer srv.Close()

	rules, err := New(srv.URL, nil).ListRules(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rules)
	assert.False(t, present)
}

func TestUnauthorizedClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := FileStore{Path: filepath.Join(t.TempDir(), "session")}
	require.NoError(t, store.Save("stale"))
	session, err := LoadSession(store)
	require.NoError(t, err)
	require.True(t, session.Authenticated())

	cleared := 0
	session.OnClear(func() { cleared++ })

	_, err = New(srv.URL, session).Stats(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, IsUnauthorized(err))
	assert.False(t, session.Authenticated())
	assert.Equal(t, 1, cleared)

	token, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, NewSession("k"))

	err := c.DeleteRule(context.Background(), "missing")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.ListDMLogs(context.Background(), 0, 50)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusInternalServerError, serr.StatusCode)
	assert.True(t, NewSession("k").Authenticated(), "non-401 errors leave the session alone")
}

func TestPagingQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/logs/comments", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("skip"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"comments":[{"id":"c1","comment_text":"hi"}],"total":11}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL+"/", NewSession("k")).ListCommentLogs(context.Background(), 10, 50)
	require.NoError(t, err)
	assert.Equal(t, 11, page.Total)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, "hi", page.Comments[0].CommentText)
}

func TestSessionAttach(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "nested", "session")}
	session, err := LoadSession(store)
	require.NoError(t, err)
	assert.False(t, session.Authenticated())

	assert.Error(t, session.Attach("   "))
	require.NoError(t, session.Attach(" ar_abc "))
	assert.Equal(t, "ar_abc", session.Token())

	token, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "ar_abc", token)

	require.NoError(t, session.Clear())
	require.NoError(t, session.Clear(), "clearing twice is fine")
}
