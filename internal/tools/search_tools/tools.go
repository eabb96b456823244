package search_tools

import (
	"context"
	"fmt"

	"github.com/teemow/agentim/internal/server"
	"github.com/teemow/agentim/internal/tools"
	"github.com/teemow/agentim/internal/tools/common"
)

// SearchToolName is the name of the web search tool.
const SearchToolName = "google_search"

// RegisterSearchTools registers the web search tool with the registry. The
// tool needs no OAuth scope; it authenticates with an API key.
func RegisterSearchTools(r *tools.Registry, sc *server.ServerContext) error {
	spec := tools.ToolSpec{
		Name:        SearchToolName,
		Description: "Search the web with Google and return the top result",
		Params: []tools.ParamSpec{
			{Name: "query", Type: tools.ParamString, Required: true, Description: "Search query"},
		},
		Handler: common.InstrumentedToolHandler(SearchToolName, sc, handleSearch(sc)),
	}
	if err := r.Register(spec); err != nil {
		return fmt.Errorf("failed to register %s: %w", SearchToolName, err)
	}
	return nil
}

func handleSearch(sc *server.ServerContext) tools.Handler {
	return func(ctx context.Context, args tools.Arguments) (tools.Result, error) {
		client, err := sc.SearchClient(ctx)
		if err != nil {
			return tools.Result{}, err
		}
		return common.ToolResult(ctx, sc, client.Search(ctx, args.String("query"))), nil
	}
}
