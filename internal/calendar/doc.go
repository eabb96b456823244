// Package calendar provides the calendar client used by the calendar_event
// tool.
//
// Events are created on the user's primary calendar as all-day events in
// UTC. A date given as YYYY-MM-DD becomes an event starting on that day and
// ending on the next, since the Calendar API treats the end date of an
// all-day event as exclusive.
package calendar
