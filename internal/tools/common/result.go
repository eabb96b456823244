package common

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/server"
	"github.com/teemow/agentim/internal/tools"
)

// ToolResult converts a service client result. When the provider rejected
// the credential the manager is told, so the next invocation refreshes.
func ToolResult(ctx context.Context, sc *server.ServerContext, res google.Result) tools.Result {
	if IsUnauthorized(res.Err) {
		sc.Logger().Warn("Provider rejected the access token, invalidating credential", logging.Err(res.Err))
		sc.Credentials().Invalidate(ctx)
	}
	if !res.Success {
		return tools.ErrorResult(res.Message)
	}
	return tools.TextResult(res.Message)
}

// IsUnauthorized reports whether err is a 401 from a Google API.
func IsUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}
