// Package google connects the credential manager to Google's OAuth2
// endpoints: it loads the client-secret descriptor, runs the installed-app
// loopback authorization flow, refreshes tokens and builds authenticated
// HTTP clients for the service APIs.
package google
