// Package common provides helpers shared by the tool handler packages:
// instrumentation of handlers and conversion of service client results.
package common
