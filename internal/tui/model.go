// Package tui is a terminal viewer for the activity log. It drives the same
// activity.View as the web console.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bcnelson/autoreply-console/internal/activity"
)

// ErrSessionExpired is returned by Run when the backend rejected the token.
var ErrSessionExpired = errors.New("session expired, run \"console login\" again")

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 1)
	activeTabStyle = tabStyle.Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	bannerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	faintStyle     = lipgloss.NewStyle().Faint(true)
)

// Column widths in cells; the text columns fit the truncated text plus the
// ellipsis.
var columnWidths = []int{14, 20, activity.CommentTextLimit + 3, 12}

// changedMsg reports that one stream settled during a load.
type changedMsg struct{}

// loadedMsg reports that both streams settled.
type loadedMsg struct {
	result activity.LoadResult
}

// Model is the bubbletea model of the log viewer.
type Model struct {
	ctx     context.Context
	view    *activity.View
	fetcher activity.Fetcher
	keys    KeyMap
	help    help.Model

	width   int
	loading bool
	expired bool
}

// New creates a viewer over view that loads through fetcher.
func New(ctx context.Context, view *activity.View, fetcher activity.Fetcher) Model {
	return Model{
		ctx:     ctx,
		view:    view,
		fetcher: fetcher,
		keys:    DefaultKeyMap,
		help:    help.New(),
		// Init always starts a load.
		loading: true,
	}
}

// Expired reports whether the viewer quit because of a 401.
func (m Model) Expired() bool {
	return m.expired
}

func (m Model) load() tea.Cmd {
	view, fetcher, ctx := m.view, m.fetcher, m.ctx
	return func() tea.Msg {
		return loadedMsg{result: view.Load(ctx, fetcher)}
	}
}

// Init starts the first load.
func (m Model) Init() tea.Cmd {
	return m.load()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case changedMsg:
		// A stream arrived; re-render with partial data.
		return m, nil

	case loadedMsg:
		m.loading = false
		if msg.result.Unauthorized() {
			m.expired = true
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.SwitchTab):
			if m.view.Tab() == activity.TabComments {
				m.view.SetTab(activity.TabDMs)
			} else {
				m.view.SetTab(activity.TabComments)
			}
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			return m.startLoad()
		case key.Matches(msg, m.keys.Older):
			tab := m.view.Tab()
			if !m.view.HasOlder(tab) {
				return m, nil
			}
			m.view.SetSkip(m.view.Skip() + m.view.PageSize())
			return m.startLoad()
		case key.Matches(msg, m.keys.Newer):
			if m.view.Skip() == 0 {
				return m, nil
			}
			m.view.SetSkip(m.view.Skip() - m.view.PageSize())
			return m.startLoad()
		case key.Matches(msg, m.keys.Dismiss):
			m.view.DismissBanner()
			return m, nil
		}
		if i, ok := m.keys.columnIndex(msg); ok {
			tab := m.view.Tab()
			cols := activity.Columns(tab)
			if i < len(cols) {
				m.view.ClickHeader(tab, cols[i].Key)
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) startLoad() (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	m.loading = true
	return m, m.load()
}

func cell(s string, width int) string {
	return lipgloss.NewStyle().Width(width).MaxWidth(width).Render(s)
}

func row(cells []string) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		w := 16
		if i < len(columnWidths) {
			w = columnWidths[i]
		}
		parts[i] = cell(c, w)
	}
	return strings.Join(parts, " ")
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	tab := m.view.Tab()

	tabs := []struct {
		tab   activity.Tab
		label string
	}{
		{activity.TabComments, "Comments"},
		{activity.TabDMs, "Direct Messages"},
	}
	var rendered []string
	for _, t := range tabs {
		label := fmt.Sprintf("%s (%d)", t.label, m.view.Count(t.tab))
		if t.tab == tab {
			rendered = append(rendered, activeTabStyle.Render(label))
		} else {
			rendered = append(rendered, tabStyle.Render(label))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	if m.loading || m.view.Loading() {
		b.WriteString(faintStyle.Render("  loading..."))
	}
	b.WriteString("\n\n")

	if msg := m.view.Banner(); msg != "" {
		b.WriteString(bannerStyle.Render(msg) + faintStyle.Render("  (x to dismiss)") + "\n\n")
	}

	table := m.view.Table(tab)
	headers := make([]string, len(table.Headers))
	for i, h := range table.Headers {
		label := fmt.Sprintf("%d %s", i+1, h.Label)
		if h.Indicator != "" {
			label += " " + h.Indicator
		}
		headers[i] = label
	}
	b.WriteString(headerStyle.Render(row(headers)) + "\n")

	if table.Empty {
		b.WriteString(faintStyle.Render(activity.Placeholder) + "\n")
	}
	for _, r := range table.Rows {
		b.WriteString(row(r) + "\n")
	}

	b.WriteString("\n" + faintStyle.Render(fmt.Sprintf("showing %d-%d of %d",
		min(m.view.Skip()+1, m.view.Total(tab)), m.view.Skip()+len(table.Rows), m.view.Total(tab))))
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

// Run shows the viewer until the user quits. Partial results are drawn as
// each stream arrives.
func Run(ctx context.Context, view *activity.View, fetcher activity.Fetcher, opts ...tea.ProgramOption) error {
	model := New(ctx, view, fetcher)
	program := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	view.SetOnChange(func() { program.Send(changedMsg{}) })
	defer view.SetOnChange(nil)

	final, err := program.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.Expired() {
		return ErrSessionExpired
	}
	return nil
}
