package bridge

import "time"

// ExecutionObserver receives lifecycle notifications for bridged commands.
type ExecutionObserver interface {
	// CommandDispatched reports that a request was handed to the transport.
	CommandDispatched(request CommandRequest, replyChannel string)
	// ReplyReceived reports the outcome interpreted from a helper reply.
	ReplyReceived(request CommandRequest, outcome CommandOutcome)
	// CommandTimedOut reports that no reply arrived within timeout.
	CommandTimedOut(request CommandRequest, timeout time.Duration)
	// CommunicationFailed reports transport failures and cancellations.
	CommunicationFailed(request CommandRequest, failure error)
}

type noopExecutionObserver struct{}

func (noopExecutionObserver) CommandDispatched(CommandRequest, string) {}

func (noopExecutionObserver) ReplyReceived(CommandRequest, CommandOutcome) {}

func (noopExecutionObserver) CommandTimedOut(CommandRequest, time.Duration) {}

func (noopExecutionObserver) CommunicationFailed(CommandRequest, error) {}
