// Package search_tools provides the google_search tool.
package search_tools
