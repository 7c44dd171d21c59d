package activity

import (
	"cmp"
	"slices"
	"strings"

	"github.com/bcnelson/autoreply-console/internal/domain"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// Sort is the active sort key and direction of one stream.
type Sort struct {
	Key string
	Dir Direction
}

// Click returns the sort after the header of column key is clicked.
// The active column flips direction; any other sortable column becomes
// active in descending order. Unsortable columns leave s unchanged.
func (s Sort) Click(col Column) Sort {
	if !col.Sortable {
		return s
	}
	if s.Key == col.Key {
		return Sort{Key: s.Key, Dir: s.Dir.Flip()}
	}
	return Sort{Key: col.Key, Dir: Desc}
}

// Indicator returns the header marker for column key.
func (s Sort) Indicator(key string) string {
	if s.Key != key {
		return ""
	}
	if s.Dir == Asc {
		return "↑"
	}
	return "↓"
}

func directed(c int, dir Direction) int {
	if dir == Desc {
		return -c
	}
	return c
}

var commentComparators = map[string]func(a, b *domain.CommentLog) int{
	ColTimestamp: func(a, b *domain.CommentLog) int { return a.Timestamp.Compare(b.Timestamp) },
	ColCommenter: func(a, b *domain.CommentLog) int {
		return cmp.Compare(strings.ToLower(a.CommenterUsername), strings.ToLower(b.CommenterUsername))
	},
}

var dmComparators = map[string]func(a, b *domain.DMLog) int{
	ColSentAt: func(a, b *domain.DMLog) int { return a.SentAt.Compare(b.SentAt) },
	ColRecipient: func(a, b *domain.DMLog) int {
		return cmp.Compare(strings.ToLower(a.RecipientUsername), strings.ToLower(b.RecipientUsername))
	},
}

// SortComments returns a stably sorted copy of logs.
func SortComments(logs []*domain.CommentLog, s Sort) []*domain.CommentLog {
	out := slices.Clone(logs)
	if less, ok := commentComparators[s.Key]; ok {
		slices.SortStableFunc(out, func(a, b *domain.CommentLog) int { return directed(less(a, b), s.Dir) })
	}
	return out
}

// SortDMs returns a stably sorted copy of logs.
func SortDMs(logs []*domain.DMLog, s Sort) []*domain.DMLog {
	out := slices.Clone(logs)
	if less, ok := dmComparators[s.Key]; ok {
		slices.SortStableFunc(out, func(a, b *domain.DMLog) int { return directed(less(a, b), s.Dir) })
	}
	return out
}
