// Package progress carries the human-readable repair log to whoever is listening.
//
// Stream forwards each pushed line to the currently attached Consumer and drops
// lines while nothing is attached. TailLines bounds noisy command output.
package progress
