// Package execshell provides structured helpers for invoking local executables.
//
// ShellExecutor wraps a CommandRunner with lifecycle logging and typed errors,
// and OSCommandRunner backs it with os/exec. The platform layer uses them to
// query the helper's version and to launch the helper as a detached process.
package execshell
