// Package tools holds the registry of tools the agent can invoke.
//
// A tool is described by a ToolSpec: a unique name, a description for the
// reasoning engine, an ordered list of typed parameters, the OAuth scopes it
// needs and the handler that runs it. The registry is filled once at
// startup and read-only afterwards; it is safe for concurrent lookups.
//
// The same registry is presented to the reasoning engine as a catalog of
// mcp.Tool schemas and can be served to MCP clients with RegisterMCP.
//
// Tool handlers live in sub-packages, one per Google service:
//   - gmail_tools: gmail_search, gmail_send
//   - calendar_tools: calendar_event
//   - search_tools: google_search
package tools
