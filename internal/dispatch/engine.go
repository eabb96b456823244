package dispatch

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Decision is what the engine wants to happen next: either a reply to the
// user or a set of tool invocations.
type Decision struct {
	// Reply is the text for the user. It may accompany invocations as a
	// preamble, in which case it is kept in the history but not shown.
	Reply       string
	Invocations []Invocation
}

// WantsTools reports whether the decision requests tool invocations.
func (d Decision) WantsTools() bool {
	return len(d.Invocations) > 0
}

// Engine selects the next action given the full history and the tools on
// offer.
type Engine interface {
	SelectActions(ctx context.Context, history []Turn, catalog []mcp.Tool) (Decision, error)
}
