// Package retry classifies provider failures and performs the single bounded
// retry allowed for idempotent operations.
//
// Side-effecting operations such as sending mail must not go through Do;
// they use Classify only, so that callers can tell the user the outcome is
// unknown.
package retry
