// Package reasoning adapts the Anthropic Messages API to the dispatch
// engine contract.
//
// The conversation history is mapped to alternating user and assistant
// messages. Agent turns that requested tools become assistant messages
// with tool_use blocks, and the results of one round are grouped into a
// single user message of tool_result blocks. The reply of the model is
// converted back into a dispatch.Decision: text becomes the reply and every
// tool_use block becomes an invocation whose id is preserved so that the
// result can be correlated on the next call.
package reasoning
