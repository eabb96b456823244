// Package gmail_tools provides the Gmail tools of the agent.
//
//   - gmail_search: summarize the latest email matching a Gmail search query
//   - gmail_send: send a plain-text email from the user's account
//
// Each invocation obtains a credential covering only the scopes the tool
// needs, so a user who never sends mail is never asked to grant the send
// scope.
package gmail_tools
