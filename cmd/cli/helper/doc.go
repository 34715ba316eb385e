// Package helper provides the Cobra commands that talk to the helper process:
// single command execution, helper discovery and launch, and the repair run.
package helper
