package ui

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/shellbridge/internal/bridge"
)

const (
	commandStartedMessageTemplateConstant          = "Running %s"
	commandCompletedMessageTemplateConstant        = "Completed %s"
	commandFailedExitCodeMessageTemplateConstant   = "%s failed with exit code %d"
	commandFailedMessageTemplateConstant           = "%s failed: %s"
	commandTimedOutMessageTemplateConstant         = "%s timed out after %s"
	commandExecutionFailureMessageTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant                   = "%s%s"
	processSuffixTemplateConstant                  = " (via %s)"
	standardErrorSuffixTemplateConstant            = ": %s"
	unknownFailureMessageConstant                  = "unknown error"
	missingExitCodeMessageConstant                 = "reply without exit code"
	emptyStringConstant                            = ""
	replyChannelLogFieldConstant                   = "reply_channel"
)

// CommandEventFormatter builds human-readable messages for bridged command lifecycle events.
type CommandEventFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandEventFormatter) BuildStartedMessage(request bridge.CommandRequest) string {
	return fmt.Sprintf(commandStartedMessageTemplateConstant, formatter.formatCommandLabel(request))
}

// BuildSuccessMessage formats the message describing a command the helper reported as successful.
func (formatter CommandEventFormatter) BuildSuccessMessage(request bridge.CommandRequest) string {
	return fmt.Sprintf(commandCompletedMessageTemplateConstant, formatter.formatCommandLabel(request))
}

// BuildFailureMessage formats the message describing an unsuccessful outcome.
func (formatter CommandEventFormatter) BuildFailureMessage(request bridge.CommandRequest, outcome bridge.CommandOutcome) string {
	commandLabel := formatter.formatCommandLabel(request)
	if !outcome.ExitCode.Present {
		failureMessage := strings.TrimSpace(outcome.ErrorMessage)
		if len(failureMessage) == 0 {
			failureMessage = missingExitCodeMessageConstant
		}
		return fmt.Sprintf(commandFailedMessageTemplateConstant, commandLabel, failureMessage)
	}

	baseMessage := fmt.Sprintf(commandFailedExitCodeMessageTemplateConstant, commandLabel, outcome.ExitCode.Value)
	return baseMessage + formatter.formatStandardErrorSuffix(outcome.StandardError)
}

// BuildTimeoutMessage formats the message describing a command that never received a reply.
func (formatter CommandEventFormatter) BuildTimeoutMessage(request bridge.CommandRequest, timeout time.Duration) string {
	return fmt.Sprintf(commandTimedOutMessageTemplateConstant, formatter.formatCommandLabel(request), timeout)
}

// BuildExecutionFailureMessage formats the message describing a communication failure.
func (formatter CommandEventFormatter) BuildExecutionFailureMessage(request bridge.CommandRequest, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	return fmt.Sprintf(commandExecutionFailureMessageTemplateConstant, formatter.formatCommandLabel(request), failureMessage)
}

func (formatter CommandEventFormatter) formatCommandLabel(request bridge.CommandRequest) string {
	return fmt.Sprintf(commandLabelTemplateConstant, strings.TrimSpace(request.ShellCommand), formatter.formatProcessSuffix(request))
}

func (formatter CommandEventFormatter) formatProcessSuffix(request bridge.CommandRequest) string {
	trimmedIdentity := strings.TrimSpace(request.TargetProcessIdentity)
	if len(trimmedIdentity) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(processSuffixTemplateConstant, trimmedIdentity)
}

func (formatter CommandEventFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

// ConsoleBridgeEventLogger renders bridge lifecycle events using a zap logger configured for human-readable output.
type ConsoleBridgeEventLogger struct {
	logger    *zap.Logger
	formatter CommandEventFormatter
}

// NewConsoleBridgeEventLogger constructs a console event logger backed by the provided zap logger.
func NewConsoleBridgeEventLogger(logger *zap.Logger) *ConsoleBridgeEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleBridgeEventLogger{logger: logger, formatter: CommandEventFormatter{}}
}

// CommandDispatched implements bridge.ExecutionObserver by logging dispatch notifications.
func (eventLogger *ConsoleBridgeEventLogger) CommandDispatched(request bridge.CommandRequest, replyChannel string) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStartedMessage(request), zap.String(replyChannelLogFieldConstant, replyChannel))
}

// ReplyReceived implements bridge.ExecutionObserver by logging interpreted outcomes.
func (eventLogger *ConsoleBridgeEventLogger) ReplyReceived(request bridge.CommandRequest, outcome bridge.CommandOutcome) {
	if eventLogger == nil {
		return
	}
	if outcome.Succeeded {
		eventLogger.logger.Info(eventLogger.formatter.BuildSuccessMessage(request))
		return
	}
	eventLogger.logger.Warn(eventLogger.formatter.BuildFailureMessage(request, outcome))
}

// CommandTimedOut implements bridge.ExecutionObserver by logging protocol timeouts.
func (eventLogger *ConsoleBridgeEventLogger) CommandTimedOut(request bridge.CommandRequest, timeout time.Duration) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Error(eventLogger.formatter.BuildTimeoutMessage(request, timeout))
}

// CommunicationFailed implements bridge.ExecutionObserver by logging transport failures.
func (eventLogger *ConsoleBridgeEventLogger) CommunicationFailed(request bridge.CommandRequest, failure error) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Error(eventLogger.formatter.BuildExecutionFailureMessage(request, failure))
}
