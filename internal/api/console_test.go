package api_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/autoreply-console/internal/activity"
	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/gateway"
	"github.com/bcnelson/autoreply-console/internal/rules"
)

// newConsole starts a live backend and returns a gateway client
// authenticated with the bootstrap key.
func newConsole(t *testing.T) (*testServer, *gateway.Client) {
	t.Helper()
	ts := newTestServer()
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)
	return ts, gateway.New(srv.URL, gateway.NewSession(ts.bootstrapKey))
}

func TestConsoleRuleLifecycle(t *testing.T) {
	ctx := context.Background()
	_, client := newConsole(t)
	coll := rules.New(client)

	created, err := coll.Create(ctx, leadsRule())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	list := coll.Rules()
	require.Len(t, list, 1)
	assert.Equal(t, "Leads", list[0].RuleName)
	assert.Equal(t, []string{"price", "cost"}, list[0].Keywords)
	assert.Equal(t, domain.ModeCommentAndDM, list[0].Mode())

	// Delete without confirmation leaves the list unchanged.
	err = coll.ConfirmDelete(ctx, created.ID)
	assert.ErrorIs(t, err, rules.ErrNotConfirmed)
	require.NoError(t, coll.FetchAll(ctx))
	assert.Len(t, coll.Rules(), 1)

	// Cancelled confirmation also sends nothing.
	coll.RequestDelete(created.ID)
	coll.CancelDelete()
	assert.ErrorIs(t, coll.ConfirmDelete(ctx, created.ID), rules.ErrNotConfirmed)
	assert.Len(t, coll.Rules(), 1)

	coll.SetFilter(domain.FilterInactive)
	assert.Empty(t, coll.Visible())

	coll.RequestDelete(created.ID)
	require.NoError(t, coll.ConfirmDelete(ctx, created.ID))
	assert.Empty(t, coll.Rules())
	assert.Empty(t, coll.Banner())
}

func TestConsoleUnauthorizedClearsSession(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer()
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	session := gateway.NewSession("stale-token")
	cleared := false
	session.OnClear(func() { cleared = true })
	client := gateway.New(srv.URL, session)

	coll := rules.New(client)
	err := coll.FetchAll(ctx)
	assert.True(t, gateway.IsUnauthorized(err))
	assert.True(t, cleared)
	assert.False(t, session.Authenticated())
	assert.Empty(t, coll.Banner())
}

func TestConsoleActivityLoad(t *testing.T) {
	ctx := context.Background()
	ts, client := newConsole(t)

	_, err := rules.New(client).Create(ctx, leadsRule())
	require.NoError(t, err)

	rr := ts.request("POST", "/api/webhook/instagram", map[string]any{
		"entry": []any{map[string]any{"changes": []any{map[string]any{
			"field": "comments",
			"value": map[string]any{
				"id":   "c1",
				"text": "how much does it cost",
				"from": map[string]any{"id": "u1", "username": "alice"},
			},
		}}}},
	}, "")
	require.Equal(t, 200, rr.Code)

	view := activity.NewView(activity.DefaultPageSize)
	res := view.Load(ctx, client)
	require.NoError(t, res.Err())

	assert.Equal(t, 1, view.Count(activity.TabComments))
	assert.Equal(t, 1, view.Count(activity.TabDMs))

	table := view.Table(activity.TabComments)
	assert.False(t, table.Empty)
	require.Len(t, table.Rows, 1)
	assert.Contains(t, table.Rows[0], "alice")
	assert.Contains(t, table.Rows[0], "✓ Replied")
}
