package activity

import (
	"time"
	"unicode/utf8"

	"github.com/bcnelson/autoreply-console/internal/domain"
)

// Tab selects which log stream is displayed.
type Tab string

const (
	TabComments Tab = "comments"
	TabDMs      Tab = "dms"
)

// ParseTab parses a tab name, falling back to TabComments.
func ParseTab(s string) Tab {
	if Tab(s) == TabDMs {
		return TabDMs
	}
	return TabComments
}

// Column keys.
const (
	ColTimestamp   = "timestamp"
	ColCommenter   = "commenter_username"
	ColCommentText = "comment_text"
	ColReplySent   = "reply_sent"
	ColSentAt      = "sent_at"
	ColRecipient   = "recipient_username"
	ColMessage     = "message"
	ColStatus      = "status"
)

// Display limits, counted in characters.
const (
	CommentTextLimit = 50
	DMMessageLimit   = 40
)

// Ellipsis is appended to truncated text.
const Ellipsis = "..."

// Placeholder is the text of the single row shown for an empty stream.
const Placeholder = "No data available"

// TimeLayout formats timestamps in the tables.
const TimeLayout = "Jan 2, 15:04"

// Column describes one table column.
type Column struct {
	Key      string
	Label    string
	Sortable bool
}

// CommentColumns are the columns of the comment stream.
var CommentColumns = []Column{
	{Key: ColTimestamp, Label: "Timestamp", Sortable: true},
	{Key: ColCommenter, Label: "Username", Sortable: true},
	{Key: ColCommentText, Label: "Comment"},
	{Key: ColReplySent, Label: "Status"},
}

// DMColumns are the columns of the DM stream.
var DMColumns = []Column{
	{Key: ColSentAt, Label: "Sent At", Sortable: true},
	{Key: ColRecipient, Label: "Recipient", Sortable: true},
	{Key: ColMessage, Label: "Message"},
	{Key: ColStatus, Label: "Status"},
}

// Columns returns the columns of tab.
func Columns(tab Tab) []Column {
	if tab == TabDMs {
		return DMColumns
	}
	return CommentColumns
}

// ColumnByKey looks up a column of tab.
func ColumnByKey(tab Tab, key string) (Column, bool) {
	for _, c := range Columns(tab) {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// Truncate shortens s to limit characters plus Ellipsis. Strings at or
// under the limit are returned unchanged.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + Ellipsis
}

// ReplyLabel renders the reply_sent column.
func ReplyLabel(sent bool) string {
	if sent {
		return "✓ Replied"
	}
	return "✗ Pending"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimeLayout)
}

// HeaderCell is a rendered column header.
type HeaderCell struct {
	Column
	Indicator string
}

// Table is a stream rendered for display. When Empty is set, Rows holds
// nothing and the view shows Placeholder spanning ColSpan columns.
type Table struct {
	Tab     Tab
	Headers []HeaderCell
	Rows    [][]string
	Empty   bool
	ColSpan int
}

func headers(cols []Column, s Sort) []HeaderCell {
	out := make([]HeaderCell, len(cols))
	for i, c := range cols {
		out[i] = HeaderCell{Column: c, Indicator: s.Indicator(c.Key)}
	}
	return out
}

// CommentTable renders already sorted comment logs.
func CommentTable(logs []*domain.CommentLog, s Sort) Table {
	t := Table{Tab: TabComments, Headers: headers(CommentColumns, s), ColSpan: len(CommentColumns)}
	for _, l := range logs {
		t.Rows = append(t.Rows, []string{
			formatTime(l.Timestamp),
			l.CommenterUsername,
			Truncate(l.CommentText, CommentTextLimit),
			ReplyLabel(l.ReplySent),
		})
	}
	t.Empty = len(t.Rows) == 0
	return t
}

// DMTable renders already sorted DM logs.
func DMTable(logs []*domain.DMLog, s Sort) Table {
	t := Table{Tab: TabDMs, Headers: headers(DMColumns, s), ColSpan: len(DMColumns)}
	for _, l := range logs {
		t.Rows = append(t.Rows, []string{
			formatTime(l.SentAt),
			l.RecipientUsername,
			Truncate(l.Message, DMMessageLimit),
			l.Status,
		})
	}
	t.Empty = len(t.Rows) == 0
	return t
}
