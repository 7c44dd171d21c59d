package web

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/bcnelson/autoreply-console/internal/activity"
	"github.com/bcnelson/autoreply-console/internal/gateway"
	"github.com/bcnelson/autoreply-console/internal/ruleeditor"
	"github.com/bcnelson/autoreply-console/internal/rules"
)

// workspace is the console state of one login session.
type workspace struct {
	id      string
	session *gateway.Session
	client  *gateway.Client
	rules   *rules.Collection
	logs    *activity.View

	mu         sync.Mutex
	draft      *ruleeditor.State
	logsLoaded bool
}

func (w *workspace) setDraft(s ruleeditor.State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = &s
}

// openDraft returns the editor draft and whether one is open. Saving a
// rule closes the draft.
func (w *workspace) openDraft() (ruleeditor.State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft == nil {
		return ruleeditor.State{}, false
	}
	return *w.draft, true
}

func (w *workspace) clearDraft() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = nil
}

// workspaces caches workspaces by session id. Entries expire with the
// session cookie and are evicted early under memory pressure, in which case
// the next request rebuilds an empty one.
type workspaces struct {
	cache *ristretto.Cache[string, *workspace]
	ttl   time.Duration
}

func newWorkspaces(maxSessions int64, ttl time.Duration) (*workspaces, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *workspace]{
		NumCounters: maxSessions * 10,
		MaxCost:     maxSessions,
		BufferItems: 64,
		OnReject: func(item *ristretto.Item[*workspace]) {
			log.Warn("workspace rejected by cache", "session", item.Value.id)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace cache: %w", err)
	}
	return &workspaces{cache: c, ttl: ttl}, nil
}

func (w *workspaces) get(id string) (*workspace, bool) {
	return w.cache.Get(id)
}

// put caches ws. A dropped Set leaves ws usable for the current request
// only; drafts and pending deletes are lost on the next one.
func (w *workspaces) put(ws *workspace) bool {
	if !w.cache.SetWithTTL(ws.id, ws, 1, w.ttl) {
		log.Warn("workspace not cached, state will not survive this request", "session", ws.id)
		return false
	}
	w.cache.Wait()
	return true
}

func (w *workspaces) remove(id string) {
	w.cache.Del(id)
}

func (w *workspaces) close() {
	w.cache.Close()
}

// workspaceFor returns the cached workspace of the session, building one on
// a miss. A backend 401 clears the gateway session, which drops the
// workspace.
func (s *Server) workspaceFor(id, token string) *workspace {
	if ws, ok := s.workspaces.get(id); ok && ws.session.Token() == token {
		return ws
	}

	session := gateway.NewSession(token)
	session.OnClear(func() { s.workspaces.remove(id) })

	opts := []gateway.Option{gateway.WithLogger(s.logger)}
	if s.opts.HTTPClient != nil {
		opts = append(opts, gateway.WithHTTPClient(s.opts.HTTPClient))
	}
	if s.opts.Timeout > 0 {
		opts = append(opts, gateway.WithTimeout(s.opts.Timeout))
	}
	client := gateway.New(s.opts.APIURL, session, opts...)

	ws := &workspace{
		id:      id,
		session: session,
		client:  client,
		rules:   rules.New(client),
		logs:    activity.NewView(s.opts.PageSize),
	}
	s.workspaces.put(ws)
	return ws
}

// unauthorized ends the browser session after the backend rejected the
// token and sends the operator back to the login page.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	if ws := getWorkspace(r.Context()); ws != nil {
		_ = ws.session.Clear()
		s.workspaces.remove(ws.id)
	}
	s.sessions.Clear(w)
	http.Redirect(w, r, "/login?error=Session+expired", http.StatusSeeOther)
}
