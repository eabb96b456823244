package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterMCP exposes every registered tool on s.
func (r *Registry) RegisterMCP(s *mcpserver.MCPServer) {
	for _, spec := range r.Specs() {
		s.AddTool(spec.Tool(), mcpHandler(spec))
	}
}

func mcpHandler(spec ToolSpec) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := Arguments(request.GetArguments())
		if err := spec.Validate(args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = WithInvocationID(ctx, uuid.NewString())
		res, err := spec.Handler(ctx, args)
		if err != nil {
			var inputErr *ToolInputError
			if errors.As(err, &inputErr) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("%s could not run: %v", spec.Name, err)), nil
		}
		if res.IsError {
			return mcp.NewToolResultError(res.Text), nil
		}
		return mcp.NewToolResultText(res.Text), nil
	}
}
