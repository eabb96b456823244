package gmail_tools

import (
	"context"
	"fmt"

	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/server"
	"github.com/teemow/agentim/internal/tools"
	"github.com/teemow/agentim/internal/tools/common"
)

const (
	SearchToolName = "gmail_search"
	SendToolName   = "gmail_send"
)

// RegisterGmailTools registers all Gmail-related tools with the registry
func RegisterGmailTools(r *tools.Registry, sc *server.ServerContext) error {
	search := tools.ToolSpec{
		Name:        SearchToolName,
		Description: "Search the user's Gmail and summarize the latest matching email (sender, subject and preview)",
		Params: []tools.ParamSpec{
			{
				Name:        "query",
				Type:        tools.ParamString,
				Required:    true,
				Description: "Gmail search query (e.g., 'from:alice@example.com', 'subject:invoice newer_than:7d')",
			},
		},
		Scopes:  []string{google.ScopeGmailRead},
		Handler: common.InstrumentedToolHandler(SearchToolName, sc, handleSearch(sc)),
	}
	if err := r.Register(search); err != nil {
		return fmt.Errorf("failed to register %s: %w", SearchToolName, err)
	}

	send := tools.ToolSpec{
		Name:        SendToolName,
		Description: "Send a plain-text email from the user's Gmail account",
		Params: []tools.ParamSpec{
			{Name: "to", Type: tools.ParamString, Required: true, Description: "Recipient email address"},
			{Name: "subject", Type: tools.ParamString, Required: true, Description: "Email subject"},
			{Name: "body", Type: tools.ParamString, Required: true, Description: "Email body (plain text)"},
		},
		Scopes:  []string{google.ScopeGmailSend},
		Handler: common.InstrumentedToolHandler(SendToolName, sc, handleSend(sc)),
	}
	if err := r.Register(send); err != nil {
		return fmt.Errorf("failed to register %s: %w", SendToolName, err)
	}

	return nil
}

func handleSearch(sc *server.ServerContext) tools.Handler {
	return func(ctx context.Context, args tools.Arguments) (tools.Result, error) {
		cred, err := sc.Credentials().Obtain(ctx, []string{google.ScopeGmailRead})
		if err != nil {
			return tools.Result{}, err
		}
		client, err := sc.GmailClient(ctx, cred)
		if err != nil {
			return tools.Result{}, err
		}
		return common.ToolResult(ctx, sc, client.SearchMessages(ctx, args.String("query"))), nil
	}
}

func handleSend(sc *server.ServerContext) tools.Handler {
	return func(ctx context.Context, args tools.Arguments) (tools.Result, error) {
		cred, err := sc.Credentials().Obtain(ctx, []string{google.ScopeGmailSend})
		if err != nil {
			return tools.Result{}, err
		}
		client, err := sc.GmailClient(ctx, cred)
		if err != nil {
			return tools.Result{}, err
		}
		res := client.SendMessage(ctx, args.String("to"), args.String("subject"), args.String("body"))
		return common.ToolResult(ctx, sc, res), nil
	}
}
