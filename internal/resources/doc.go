// Package resources provides MCP resources for exposing session data.
// Resources are read-only data sources that MCP clients can fetch. The
// credential status resource tells a client whether the next Google tool
// call will need interactive consent, without revealing any token.
package resources
