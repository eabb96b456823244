// Package gmail provides the mail client used by the gmail_search and
// gmail_send tools.
//
// The client searches the authenticated user's mailbox and sends plain-text
// messages on their behalf. Every operation returns a google.Result whose
// message is ready to be handed to the reasoning engine; provider errors are
// rendered into that message instead of being returned.
//
// Read calls are retried once on transient failures. Sending is never
// retried: a send that fails transiently may still have been delivered, and
// the result says so.
//
// Example usage:
//
//	cred, err := manager.Obtain(ctx, []string{google.ScopeGmailRead})
//	if err != nil {
//	    return err
//	}
//	client, err := gmail.NewClient(ctx, google.NewHTTPClient(cred, 30*time.Second))
//	if err != nil {
//	    return err
//	}
//	res := client.SearchMessages(ctx, "from:alice subject:invoice")
//	fmt.Println(res.Message)
package gmail
