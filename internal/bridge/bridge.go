package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/shellbridge/internal/payload"
)

const (
	defaultShellPathConstant                 = "/usr/bin/bash"
	defaultPrefixDirectoryConstant           = "/usr"
	defaultCommandTimeoutConstant            = 300 * time.Second
	pathSeparatorConstant                    = "/"
	shellRelativePathConstant                = "/bin/bash"
	shellLoginCommandFlagConstant            = "-lc"
	preparedCommandTemplateConstant          = "export PREFIX='%s'; export PATH='%s/bin':$PATH; %s"
	timeoutMessageTemplateConstant           = "Timeout after %s"
	communicationFailureMessageTemplate      = "communication failure: %v"
	permissionDeniedMessageTemplate          = "permission denied: %v"
	replyHandlingFailureMessageTemplate      = "communication failure: reply handling failed: %v"
	dispatchingCommandLogMessageConstant     = "dispatching command to helper"
	replyChannelLogFieldConstant             = "reply_channel"
	processIdentityLogFieldConstant          = "process"
	commandLogFieldConstant                  = "command"
	panicLogFieldConstant                    = "panic"
	timeoutLogFieldConstant                  = "timeout"
	replyHandlingPanicLogMessageConstant     = "reply listener panicked"
	unregisteringListenerLogMessageConstant  = "releasing reply listener"
	replyListenerRegistrationFailureTemplate = "register reply listener: %w"
)

// ErrTransportNotConfigured indicates that a bridge was constructed without a transport.
var ErrTransportNotConfigured = errors.New("bridge transport not configured")

// Configuration shapes how commands are prepared and how replies are judged.
type Configuration struct {
	ShellPath              string        `mapstructure:"shell_path"`
	PrefixDirectory        string        `mapstructure:"prefix_directory"`
	HomeDirectory          string        `mapstructure:"home_directory"`
	DefaultTimeout         time.Duration `mapstructure:"default_timeout"`
	ReplyChannelPrefix     string        `mapstructure:"reply_channel_prefix"`
	AcknowledgementOkValue int           `mapstructure:"acknowledgement_ok_value"`
	StrictRescue           bool          `mapstructure:"strict_rescue"`
}

// DefaultConfiguration returns the configuration used when no overrides are supplied.
func DefaultConfiguration() Configuration {
	return Configuration{
		ShellPath:              defaultShellPathConstant,
		PrefixDirectory:        defaultPrefixDirectoryConstant,
		DefaultTimeout:         defaultCommandTimeoutConstant,
		ReplyChannelPrefix:     defaultReplyChannelPrefixConstant,
		AcknowledgementOkValue: DefaultAcknowledgementOkValue,
	}
}

// Sanitize fills blank fields with defaults.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration
	sanitized.PrefixDirectory = strings.TrimRight(strings.TrimSpace(sanitized.PrefixDirectory), pathSeparatorConstant)
	if len(sanitized.PrefixDirectory) == 0 {
		sanitized.PrefixDirectory = defaultPrefixDirectoryConstant
	}
	sanitized.ShellPath = strings.TrimSpace(sanitized.ShellPath)
	if len(sanitized.ShellPath) == 0 {
		sanitized.ShellPath = sanitized.PrefixDirectory + shellRelativePathConstant
	}
	sanitized.HomeDirectory = strings.TrimSpace(sanitized.HomeDirectory)
	if sanitized.DefaultTimeout <= 0 {
		sanitized.DefaultTimeout = defaults.DefaultTimeout
	}
	if len(strings.TrimSpace(sanitized.ReplyChannelPrefix)) == 0 {
		sanitized.ReplyChannelPrefix = defaults.ReplyChannelPrefix
	}
	return sanitized
}

// Dependencies enumerates the collaborators required by Bridge.
type Dependencies struct {
	Logger           *zap.Logger
	Transport        Transport
	Resolver         *payload.KeyResolver
	Observer         ExecutionObserver
	ChannelGenerator *ReplyChannelGenerator
}

// Bridge executes shell commands inside the helper process, one at a time.
type Bridge struct {
	logger           *zap.Logger
	transport        Transport
	observer         ExecutionObserver
	interpreter      *ReplyInterpreter
	channelGenerator *ReplyChannelGenerator
	configuration    Configuration
	executionMutex   sync.Mutex
}

// NewBridge validates dependencies and constructs a Bridge.
func NewBridge(dependencies Dependencies, configuration Configuration) (*Bridge, error) {
	if dependencies.Transport == nil {
		return nil, ErrTransportNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	executionObserver := dependencies.Observer
	if executionObserver == nil {
		executionObserver = noopExecutionObserver{}
	}

	sanitizedConfiguration := configuration.Sanitize()

	channelGenerator := dependencies.ChannelGenerator
	if channelGenerator == nil {
		channelGenerator = NewReplyChannelGenerator(sanitizedConfiguration.ReplyChannelPrefix)
	}

	return &Bridge{
		logger:           logger,
		transport:        dependencies.Transport,
		observer:         executionObserver,
		interpreter:      NewReplyInterpreter(dependencies.Resolver, sanitizedConfiguration.AcknowledgementOkValue, sanitizedConfiguration.StrictRescue),
		channelGenerator: channelGenerator,
		configuration:    sanitizedConfiguration,
	}, nil
}

// Execute dispatches request and blocks until a reply arrives, the timeout elapses, or
// executionContext is cancelled. Failures are reported in the outcome, never as errors.
func (bridge *Bridge) Execute(executionContext context.Context, request CommandRequest) CommandOutcome {
	bridge.executionMutex.Lock()
	defer bridge.executionMutex.Unlock()

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = bridge.configuration.DefaultTimeout
	}

	replyChannel := bridge.channelGenerator.Next()
	completion := newOutcomeCompletion()

	listenerHandle, registrationError := bridge.transport.RegisterReplyListener(replyChannel, bridge.newReplyListener(request, completion))
	if registrationError != nil {
		return bridge.communicationFailure(request, fmt.Errorf(replyListenerRegistrationFailureTemplate, registrationError))
	}
	defer func() {
		bridge.logger.Debug(unregisteringListenerLogMessageConstant, zap.String(replyChannelLogFieldConstant, replyChannel))
		bridge.transport.UnregisterReplyListener(listenerHandle)
	}()

	bridge.logger.Debug(
		dispatchingCommandLogMessageConstant,
		zap.String(processIdentityLogFieldConstant, request.TargetProcessIdentity),
		zap.String(commandLogFieldConstant, request.ShellCommand),
		zap.String(replyChannelLogFieldConstant, replyChannel),
		zap.Duration(timeoutLogFieldConstant, timeout),
	)
	bridge.observer.CommandDispatched(request, replyChannel)

	sendError := bridge.transport.SendCommandRequest(executionContext, bridge.buildDispatch(request, replyChannel))
	if sendError != nil {
		return bridge.communicationFailure(request, sendError)
	}

	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	select {
	case <-completion.done:
		outcome := completion.result()
		bridge.observer.ReplyReceived(request, outcome)
		return outcome
	case <-timeoutTimer.C:
		if completion.resolve(CommandOutcome{ErrorMessage: fmt.Sprintf(timeoutMessageTemplateConstant, timeout)}) {
			bridge.observer.CommandTimedOut(request, timeout)
			return completion.result()
		}
		outcome := completion.result()
		bridge.observer.ReplyReceived(request, outcome)
		return outcome
	case <-executionContext.Done():
		if completion.resolve(CommandOutcome{ErrorMessage: fmt.Sprintf(communicationFailureMessageTemplate, executionContext.Err())}) {
			bridge.observer.CommunicationFailed(request, executionContext.Err())
			return completion.result()
		}
		outcome := completion.result()
		bridge.observer.ReplyReceived(request, outcome)
		return outcome
	}
}

func (bridge *Bridge) newReplyListener(request CommandRequest, completion *outcomeCompletion) ReplyListener {
	return func(rawReply payload.ReplyPayload) {
		defer func() {
			if recovered := recover(); recovered != nil {
				bridge.logger.Error(replyHandlingPanicLogMessageConstant, zap.String(commandLogFieldConstant, request.ShellCommand), zap.Any(panicLogFieldConstant, recovered))
				completion.resolve(CommandOutcome{ErrorMessage: fmt.Sprintf(replyHandlingFailureMessageTemplate, recovered)})
			}
		}()
		completion.resolve(bridge.interpreter.Interpret(rawReply))
	}
}

func (bridge *Bridge) buildDispatch(request CommandRequest, replyChannel string) CommandDispatch {
	preparedCommand := fmt.Sprintf(
		preparedCommandTemplateConstant,
		bridge.configuration.PrefixDirectory,
		bridge.configuration.PrefixDirectory,
		request.ShellCommand,
	)
	return CommandDispatch{
		ProcessIdentity:  request.TargetProcessIdentity,
		Executable:       bridge.configuration.ShellPath,
		Arguments:        []string{shellLoginCommandFlagConstant, preparedCommand},
		WorkingDirectory: bridge.configuration.HomeDirectory,
		Background:       true,
		ReplyChannel:     replyChannel,
	}
}

func (bridge *Bridge) communicationFailure(request CommandRequest, failure error) CommandOutcome {
	bridge.observer.CommunicationFailed(request, failure)
	if errors.Is(failure, ErrPermissionDenied) {
		return CommandOutcome{ErrorMessage: fmt.Sprintf(permissionDeniedMessageTemplate, failure)}
	}
	return CommandOutcome{ErrorMessage: fmt.Sprintf(communicationFailureMessageTemplate, failure)}
}

// outcomeCompletion is a single-assignment outcome slot; the first resolve wins.
type outcomeCompletion struct {
	once    sync.Once
	done    chan struct{}
	outcome CommandOutcome
}

func newOutcomeCompletion() *outcomeCompletion {
	return &outcomeCompletion{done: make(chan struct{})}
}

func (completion *outcomeCompletion) resolve(outcome CommandOutcome) bool {
	resolved := false
	completion.once.Do(func() {
		completion.outcome = outcome
		resolved = true
		close(completion.done)
	})
	return resolved
}

func (completion *outcomeCompletion) result() CommandOutcome {
	<-completion.done
	return completion.outcome
}
