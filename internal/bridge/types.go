package bridge

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/temirov/shellbridge/internal/payload"
)

const (
	absentOptionalIntLabelConstant = "none"
)

// Errors reported by transports and surfaced as communication failures.
var (
	ErrHelperUnreachable = errors.New("helper process unreachable")
	ErrPermissionDenied  = errors.New("permission denied")
)

// CommandRequest describes a single command dispatched to the helper process.
type CommandRequest struct {
	TargetProcessIdentity string
	ShellCommand          string
	Timeout               time.Duration
}

// OptionalInt holds an integer that may be absent from a reply.
type OptionalInt struct {
	Value   int
	Present bool
}

// SomeInt wraps a present integer value.
func SomeInt(value int) OptionalInt {
	return OptionalInt{Value: value, Present: true}
}

// NoInt returns an absent integer.
func NoInt() OptionalInt {
	return OptionalInt{}
}

// Equals reports whether the value is present and equal to candidate.
func (optional OptionalInt) Equals(candidate int) bool {
	return optional.Present && optional.Value == candidate
}

// String renders the value or a placeholder when absent.
func (optional OptionalInt) String() string {
	if !optional.Present {
		return absentOptionalIntLabelConstant
	}
	return strconv.Itoa(optional.Value)
}

// CommandOutcome captures everything learned about one command execution.
type CommandOutcome struct {
	StandardOutput      string
	StandardError       string
	ExitCode            OptionalInt
	ErrorCode           OptionalInt
	ErrorMessage        string
	AcknowledgementCode OptionalInt
	AcknowledgedOnly    bool
	MinimalPayload      bool
	Succeeded           bool
}

// CommandDispatch is the transport-level request delivered to the helper process.
type CommandDispatch struct {
	ProcessIdentity  string
	Executable       string
	Arguments        []string
	WorkingDirectory string
	Background       bool
	ReplyChannel     string
}

// ReplyListener receives the raw reply envelope for a registered channel.
type ReplyListener func(rawReply payload.ReplyPayload)

// ListenerHandle identifies a registered reply listener.
type ListenerHandle struct {
	ChannelIdentifier string
	Sequence          uint64
}

// Transport delivers command dispatches and routes replies to registered listeners.
type Transport interface {
	RegisterReplyListener(channelIdentifier string, listener ReplyListener) (ListenerHandle, error)
	UnregisterReplyListener(handle ListenerHandle)
	SendCommandRequest(executionContext context.Context, dispatch CommandDispatch) error
}
