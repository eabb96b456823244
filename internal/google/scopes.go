package google

import (
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes used by the agent tools.
const (
	ScopeGmailRead = gmail.GmailReadonlyScope
	ScopeGmailSend = gmail.GmailSendScope
	ScopeCalendar  = calendar.CalendarScope
)

// DefaultScopes is requested when authorizing eagerly during setup, so that
// no tool needs a second consent later.
var DefaultScopes = []string{
	ScopeGmailRead,
	ScopeGmailSend,
	ScopeCalendar,
}
