// Package dispatch runs the conversation: it reads user utterances, asks
// the reasoning engine what to do, executes the requested tools through the
// tool registry and renders the engine's reply.
//
// A user turn may lead to several rounds of tool calls: after every round
// the results are appended to the conversation and the engine is asked
// again, until it replies or the round limit is reached. Within a round,
// tools may run concurrently; their results are always appended in the
// order the engine requested them.
//
// Nothing that goes wrong inside a turn ends the session. Unknown tools,
// invalid arguments, failed authorizations, engine errors and handler
// panics all become diagnostics the user (and the engine) can see.
package dispatch
