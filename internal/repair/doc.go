// Package repair runs the helper diagnostic and setup sequence.
//
// Orchestrator verifies that a helper process is discoverable, recent
// enough, and reachable with the required permission, probes the command
// bridge, and then executes an ordered list of setup steps. Each outcome is
// classified and fed through a table-driven step policy that either
// continues, warns, or aborts the run. Progress is streamed line by line to
// a sink and ends with a single "__DONE__:success" or "__DONE__:failed"
// sentinel.
package repair
