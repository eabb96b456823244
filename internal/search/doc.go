// Package search provides the web search client used by the google_search
// tool, backed by the Custom Search JSON API of a Programmable Search Engine.
//
// Search needs an API key and a search engine id. Without them the client
// still answers, with a placeholder that echoes the query.
package search
