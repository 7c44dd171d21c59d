package web

import (
	"net/url"
	"strconv"

	"github.com/bcnelson/autoreply-console/internal/ruleeditor"
)

// parseInt parses a string to int with a default value.
func parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func checked(form url.Values, name string) bool {
	return form.Get(name) != ""
}

// formEvents turns a posted rule form into editor events. Only fields that
// differ from the draft produce an event, so a resubmitted form does not
// replay toggles. The button that submitted the form, if any, comes last.
func formEvents(draft ruleeditor.State, form url.Values) []ruleeditor.Event {
	var events []ruleeditor.Event
	text := func(t ruleeditor.EventType, name, current string) {
		if v := form.Get(name); v != current {
			events = append(events, ruleeditor.Event{Type: t, Value: v})
		}
	}
	toggle := func(t ruleeditor.EventType, name string, current bool) {
		if on := checked(form, name); on != current {
			events = append(events, ruleeditor.Event{Type: t, On: on})
		}
	}

	text(ruleeditor.SetRuleName, "rule_name", draft.RuleName)
	text(ruleeditor.SetCommentReply, "comment_reply", draft.CommentReply)
	text(ruleeditor.SetKeywordInput, "keyword_input", draft.KeywordInput)
	toggle(ruleeditor.SetCommentOnly, "comment_only", draft.Toggle.CommentOnly)
	toggle(ruleeditor.SetSendDM, "send_dm", draft.Toggle.SendDM)
	text(ruleeditor.SetDMMessage, "dm_message", draft.Toggle.DMMessage)
	toggle(ruleeditor.SetActive, "is_active", draft.IsActive)

	if kw := form.Get("remove"); kw != "" {
		events = append(events, ruleeditor.Event{Type: ruleeditor.RemoveKeyword, Value: kw})
	}
	switch form.Get("op") {
	case "add_keyword":
		events = append(events, ruleeditor.Event{Type: ruleeditor.AddKeyword})
	case "save":
		events = append(events, ruleeditor.Event{Type: ruleeditor.Submit})
	}
	return events
}
