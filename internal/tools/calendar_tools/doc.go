// Package calendar_tools provides the calendar_event tool, which creates an
// all-day event on the user's primary Google Calendar.
package calendar_tools
