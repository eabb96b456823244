package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/agentim/internal/server"
)

// CredentialStatusURI identifies the credential status resource.
const CredentialStatusURI = "agentim://credential/status"

// CredentialStatus is the JSON document served for CredentialStatusURI.
type CredentialStatus struct {
	State         string     `json:"state"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	Refreshable   bool       `json:"refreshable"`
	GrantedScopes []string   `json:"grantedScopes,omitempty"`
	SearchMode    string     `json:"searchMode"`
}

// RegisterStatusResources registers the read-only status resources.
func RegisterStatusResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	statusResource := mcp.NewResource(
		CredentialStatusURI,
		"Google Credential Status",
		mcp.WithResourceDescription("Lifecycle state and granted scopes of the stored Google credential"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCredentialStatus(ctx, request, sc)
	})

	return nil
}

func handleCredentialStatus(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	manager := sc.Credentials()
	status := CredentialStatus{
		State:      manager.Load(ctx).String(),
		SearchMode: "placeholder",
	}
	if sc.Config().Search.Enabled() {
		status.SearchMode = "configured"
	}

	if cred := manager.Current(); cred != nil {
		if !cred.Expiry.IsZero() {
			expiry := cred.Expiry.UTC()
			status.Expiry = &expiry
		}
		status.Refreshable = cred.Refreshable()
		status.GrantedScopes = cred.Scopes
	}

	jsonData, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential status: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
