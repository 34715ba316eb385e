// Package platform answers host-level questions about the helper process.
//
// OSHost discovers the helper (an executable on PATH or a running process),
// reads its version, launches it detached, and checks that the current user
// may open the helper's socket.
package platform
