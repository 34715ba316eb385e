package execshell

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	commandFailedErrorTemplateConstant    = "%s exited with code %d"
	commandExecutionErrorTemplateConstant = "%s could not run: %v"
)

// Errors returned while constructing executors.
var (
	ErrLoggerNotConfigured         = errors.New("shell executor logger not configured")
	ErrCommandRunnerNotConfigured  = errors.New("shell executor command runner not configured")
	ErrProcessStarterNotConfigured = errors.New("shell executor runner cannot start detached processes")
)

// CommandName identifies the executable to invoke.
type CommandName string

// CommandDetails carries arguments and environment for a command.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand couples an executable with its details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outputs of a finished command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner runs a command to completion.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ProcessStarter starts a command without waiting for it and reports its process identifier.
type ProcessStarter interface {
	Start(executionContext context.Context, command ShellCommand) (int, error)
}

// CommandFailedError reports a command that ran but exited with a non-zero code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error implements error.
func (failedError CommandFailedError) Error() string {
	return fmt.Sprintf(commandFailedErrorTemplateConstant, failedError.Command.Name, failedError.Result.ExitCode)
}

// CommandExecutionError reports a command that could not be run at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error implements error.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, executionError.Command.Name, executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// ShellExecutor runs commands through a CommandRunner and logs their lifecycle.
type ShellExecutor struct {
	logger    *zap.Logger
	runner    CommandRunner
	formatter CommandMessageFormatter
}

// NewShellExecutor validates dependencies and constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{logger: logger, runner: runner, formatter: CommandMessageFormatter{}}, nil
}

// Execute runs command. A non-zero exit yields CommandFailedError; a runner failure yields CommandExecutionError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logger.Info(executor.formatter.BuildStartedMessage(command))

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.logger.Error(executor.formatter.BuildExecutionFailureMessage(command, runError))
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	if executionResult.ExitCode != 0 {
		executor.logger.Warn(executor.formatter.BuildFailureMessage(command, executionResult))
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logger.Info(executor.formatter.BuildSuccessMessage(command))
	return executionResult, nil
}

// ExecuteProcess runs the named executable with details.
func (executor *ShellExecutor) ExecuteProcess(executionContext context.Context, name string, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandName(name), Details: details})
}

// StartDetached launches the named executable without waiting for it to exit.
func (executor *ShellExecutor) StartDetached(executionContext context.Context, name string, details CommandDetails) (int, error) {
	command := ShellCommand{Name: CommandName(name), Details: details}
	starter, canStart := executor.runner.(ProcessStarter)
	if !canStart {
		return 0, ErrProcessStarterNotConfigured
	}

	executor.logger.Info(executor.formatter.BuildLaunchStartedMessage(command))
	processIdentifier, startError := starter.Start(executionContext, command)
	if startError != nil {
		executor.logger.Error(executor.formatter.BuildLaunchFailureMessage(command, startError))
		return 0, CommandExecutionError{Command: command, Cause: startError}
	}
	executor.logger.Info(executor.formatter.BuildLaunchSuccessMessage(command, processIdentifier))
	return processIdentifier, nil
}
