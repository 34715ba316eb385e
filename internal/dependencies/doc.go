// Package dependencies assembles the runtime graph shared by the CLI commands:
// the helper transport, the command bridge, the host inspector, and the repair orchestrator.
package dependencies
