// Package ruleeditor holds the rule form as an explicit state value and a
// pure reducer. No network calls originate here.
package ruleeditor

import (
	"slices"
	"strings"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/validation"
)

// EventType names a single user interaction with the form.
type EventType string

const (
	SetRuleName     EventType = "set_rule_name"
	SetCommentReply EventType = "set_comment_reply"
	SetKeywordInput EventType = "set_keyword_input"
	AddKeyword      EventType = "add_keyword"
	RemoveKeyword   EventType = "remove_keyword"
	SetCommentOnly  EventType = "set_comment_only"
	SetSendDM       EventType = "set_send_dm"
	SetDMMessage    EventType = "set_dm_message"
	SetActive       EventType = "set_active"
	Submit          EventType = "submit"
)

// Event is one transition input. Value carries text payloads and On carries
// checkbox payloads; each event type reads only the field it needs.
type Event struct {
	Type  EventType
	Value string
	On    bool
}

// State is the full form state. Treat it as a value: Reduce never mutates
// the state it is given.
type State struct {
	ID           string
	RuleName     string
	Keywords     []string
	KeywordInput string
	CommentReply string
	Toggle       domain.Toggle
	IsActive     bool

	// Attempted is set by the first Submit; afterwards every edit
	// re-validates the field it touches.
	Attempted bool
	Errors    validation.ValidationErrors
	// Ready is true when the last Submit produced a valid rule.
	Ready bool
}

// New returns the initial state for creating a rule, or for editing
// initial when it is non-nil.
func New(initial *domain.Rule) State {
	if initial == nil {
		return State{IsActive: true, Keywords: []string{}}
	}
	return State{
		ID:           initial.ID,
		RuleName:     initial.RuleName,
		Keywords:     slices.Clone(initial.Keywords),
		CommentReply: initial.CommentReply,
		Toggle:       initial.Toggle,
		IsActive:     initial.IsActive,
	}
}

// IsEdit reports whether the form edits an existing rule.
func (s State) IsEdit() bool {
	return s.ID != ""
}

// Mode is recomputed from the toggle on every call.
func (s State) Mode() domain.ActionMode {
	return s.Toggle.Mode()
}

// Visibility describes which parts of the DM section are meaningful.
type Visibility struct {
	// DMSection covers the send_dm checkbox and the dm_message field.
	DMSection bool
	// DMMessage is true when the dm_message input should be shown.
	DMMessage bool
	// DMInert is true when send_dm/dm_message hold values that the
	// effective mode ignores.
	DMInert bool
}

// Visible derives the DM section visibility from the current toggle.
func (s State) Visible() Visibility {
	t := s.Toggle
	return Visibility{
		DMSection: !t.CommentOnly,
		DMMessage: !t.CommentOnly && t.SendDM,
		DMInert:   t.CommentOnly && (t.SendDM || t.DMMessage != ""),
	}
}

// Rule assembles the form fields and keywords into a rule.
func (s State) Rule() *domain.Rule {
	return &domain.Rule{
		ID:           s.ID,
		RuleName:     s.RuleName,
		Keywords:     slices.Clone(s.Keywords),
		CommentReply: s.CommentReply,
		Toggle:       s.Toggle,
		IsActive:     s.IsActive,
	}
}

// Reduce applies ev to s and returns the next state.
func Reduce(s State, ev Event) State {
	next := s
	next.Keywords = slices.Clone(s.Keywords)
	next.Errors = slices.Clone(s.Errors)
	next.Ready = false

	switch ev.Type {
	case SetRuleName:
		next.RuleName = ev.Value
		if next.Attempted {
			next.Errors = replace(next.Errors, validation.FieldRuleName, validation.ValidateRuleName(next.RuleName))
		}
	case SetCommentReply:
		next.CommentReply = ev.Value
		if next.Attempted {
			next.Errors = replace(next.Errors, validation.FieldCommentReply, validation.ValidateCommentReply(next.CommentReply))
		}
	case SetKeywordInput:
		next.KeywordInput = ev.Value
	case AddKeyword:
		input := ev.Value
		if input == "" {
			input = next.KeywordInput
		}
		next.Keywords = addKeyword(next.Keywords, input)
		next.KeywordInput = ""
	case RemoveKeyword:
		next.Keywords = slices.DeleteFunc(next.Keywords, func(k string) bool { return k == ev.Value })
	case SetCommentOnly:
		next.Toggle.CommentOnly = ev.On
		next.Errors = replace(next.Errors, validation.FieldDMMessage, validation.ValidateDMMessage(next.Toggle))
	case SetSendDM:
		next.Toggle.SendDM = ev.On
		next.Errors = replace(next.Errors, validation.FieldDMMessage, validation.ValidateDMMessage(next.Toggle))
	case SetDMMessage:
		next.Toggle.DMMessage = ev.Value
		if next.Attempted || next.Errors.For(validation.FieldDMMessage) != nil {
			next.Errors = replace(next.Errors, validation.FieldDMMessage, validation.ValidateDMMessage(next.Toggle))
		}
	case SetActive:
		next.IsActive = ev.On
	case Submit:
		next.Attempted = true
		next.Errors = validation.ValidateRule(next.Rule().Request())
		next.Ready = !next.Errors.HasErrors()
	}
	return next
}

// Apply folds events over s in order.
func Apply(s State, events ...Event) State {
	for _, ev := range events {
		s = Reduce(s, ev)
	}
	return s
}

// addKeyword appends the trimmed input unless it is empty or already
// present (exact match).
func addKeyword(keywords []string, input string) []string {
	kw := strings.TrimSpace(input)
	if kw == "" || slices.Contains(keywords, kw) {
		return keywords
	}
	return append(keywords, kw)
}

// replace drops the errors recorded for field and appends err if it is a
// validation error.
func replace(errs validation.ValidationErrors, field string, err error) validation.ValidationErrors {
	errs = slices.DeleteFunc(errs, func(ve *validation.ValidationError) bool { return ve.Field == field })
	if ve, ok := err.(*validation.ValidationError); ok {
		errs = append(errs, ve)
	}
	return errs
}
