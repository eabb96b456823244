package calendar_tools

import (
	"context"
	"fmt"

	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/server"
	"github.com/teemow/agentim/internal/tools"
	"github.com/teemow/agentim/internal/tools/common"
)

// EventToolName is the name of the event creation tool.
const EventToolName = "calendar_event"

// RegisterCalendarTools registers all calendar-related tools with the registry
func RegisterCalendarTools(r *tools.Registry, sc *server.ServerContext) error {
	event := tools.ToolSpec{
		Name:        EventToolName,
		Description: "Create an all-day event (UTC) on the user's primary Google Calendar",
		Params: []tools.ParamSpec{
			{Name: "title", Type: tools.ParamString, Required: true, Description: "Event title"},
			{Name: "date", Type: tools.ParamString, Required: true, Description: "Event date in YYYY-MM-DD format"},
		},
		Scopes:  []string{google.ScopeCalendar},
		Handler: common.InstrumentedToolHandler(EventToolName, sc, handleCreateEvent(sc)),
	}
	if err := r.Register(event); err != nil {
		return fmt.Errorf("failed to register %s: %w", EventToolName, err)
	}
	return nil
}

func handleCreateEvent(sc *server.ServerContext) tools.Handler {
	return func(ctx context.Context, args tools.Arguments) (tools.Result, error) {
		cred, err := sc.Credentials().Obtain(ctx, []string{google.ScopeCalendar})
		if err != nil {
			return tools.Result{}, err
		}
		client, err := sc.CalendarClient(ctx, cred)
		if err != nil {
			return tools.Result{}, err
		}
		res := client.CreateEvent(ctx, args.String("title"), args.String("date"))
		return common.ToolResult(ctx, sc, res), nil
	}
}
