// Package web is the server-rendered operator console. Every page is backed
// by a per-session workspace holding the rule collection, the activity view
// and the rule editor draft.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bcnelson/autoreply-console/internal/auth"
)

//go:embed templates/* static/*
var content embed.FS

// Options configures the console.
type Options struct {
	// APIURL is the backend base URL.
	APIURL string
	// Timeout bounds every backend request.
	Timeout time.Duration
	// PageSize is the number of log entries fetched per stream.
	PageSize int
	// MaxSessions bounds the number of cached workspaces.
	MaxSessions int64
	// HTTPClient overrides the backend transport.
	HTTPClient *http.Client
}

// Server holds dependencies for web handlers.
type Server struct {
	opts       Options
	sessions   *auth.SessionManager
	workspaces *workspaces
	logger     *log.Logger
	templates  map[string]*template.Template
	funcMap    template.FuncMap
}

// NewServer creates the console server.
func NewServer(opts Options, sessions *auth.SessionManager, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1000
	}
	ws, err := newWorkspaces(opts.MaxSessions, sessions.Duration())
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:       opts,
		sessions:   sessions,
		workspaces: ws,
		logger:     logger.WithPrefix("console"),
	}
	s.templates = s.parseTemplates()
	return s, nil
}

// Close releases the workspace cache.
func (s *Server) Close() {
	s.workspaces.close()
}

// Router creates the console router with all routes configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)

	// Static files
	staticFS, _ := fs.Sub(content, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Public routes
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)
	r.Post("/logout", s.handleLogout)

	// Protected routes (require session)
	r.Group(func(r chi.Router) {
		r.Use(s.sessionAuth)

		r.Get("/", s.handleDashboard)

		// Rules
		r.Get("/rules", s.handleRulesList)
		r.Post("/rules/dismiss", s.handleRulesDismiss)
		r.Get("/rules/new", s.handleRuleNew)
		r.Get("/rules/{id}/edit", s.handleRuleEdit)
		r.Post("/rules/editor", s.handleRuleEditor)
		r.Get("/rules/{id}/delete", s.handleRuleDeleteConfirm)
		r.Post("/rules/{id}/delete", s.handleRuleDelete)
		r.Post("/rules/delete/cancel", s.handleRuleDeleteCancel)

		// Activity logs
		r.Get("/logs", s.handleLogs)
		r.Post("/logs/refresh", s.handleLogsRefresh)
		r.Post("/logs/dismiss", s.handleLogsDismiss)
	})

	return r
}

// parseTemplates parses all templates with custom functions.
func (s *Server) parseTemplates() map[string]*template.Template {
	s.funcMap = template.FuncMap{
		"join":  strings.Join,
		"lower": strings.ToLower,
		"dict":  dict,
		"add":   func(a, b int) int { return a + b },
		"sub":   func(a, b int) int { return a - b },
		"page":  pageLink,
	}

	templates := make(map[string]*template.Template)

	// Read base template and components
	baseContent, _ := content.ReadFile("templates/base.html")
	navContent, _ := content.ReadFile("templates/components/nav.html")
	flashContent, _ := content.ReadFile("templates/components/flash.html")

	// Combine base with components
	baseWithComponents := string(baseContent) + string(navContent) + string(flashContent)

	// Parse each page template separately with the base
	pageFiles, _ := fs.Glob(content, "templates/pages/*.html")
	for _, pagePath := range pageFiles {
		pageName := filepath.Base(pagePath)
		pageName = strings.TrimSuffix(pageName, ".html")

		pageContent, _ := content.ReadFile(pagePath)

		// Create new template for this page
		tmpl := template.New(pageName).Funcs(s.funcMap)
		tmpl, err := tmpl.Parse(baseWithComponents + string(pageContent))
		if err != nil {
			panic("failed to parse template " + pageName + ": " + err.Error())
		}

		templates[pageName] = tmpl
	}

	return templates
}

// dict creates a map from key-value pairs for use in templates.
func dict(values ...any) map[string]any {
	if len(values)%2 != 0 {
		return nil
	}
	m := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		m[key] = values[i+1]
	}
	return m
}

// PageData holds common data passed to all page templates.
type PageData struct {
	Title   string
	Active  string // Current nav item
	Flash   *FlashMessage
	Content any
}

// FlashMessage represents a flash message.
type FlashMessage struct {
	Type    string // "success", "error", "info"
	Message string
	// Dismiss is the URL that clears a persistent banner, if any.
	Dismiss string
}
