// Package credential manages the lifecycle of the Google OAuth2 credential
// used by every service client: loading it from disk, refreshing it,
// re-running interactive authorization when necessary and persisting every
// change.
//
// The Manager is the only writer of the credential. Service clients call
// Obtain before each provider call and never refresh on their own.
package credential
