// Package bridge dispatches shell commands to the helper process and waits for its reply.
//
// Bridge.Execute registers a one-shot reply listener on a per-request channel,
// sends the command through a Transport, and resolves a CommandOutcome from
// whichever completes first: the reply, the timeout, or context cancellation.
// ReplyInterpreter turns the helper's loosely-typed reply into an outcome,
// including the acknowledgement-only rescue rule.
package bridge
