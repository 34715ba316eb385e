package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant                 = "Running %s"
	genericSuccessTemplateConstant               = "Completed %s"
	genericFailureTemplateConstant               = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant      = "%s failed: %s"
	versionQueryStartTemplateConstant            = "Checking %s version"
	versionQuerySuccessTemplateConstant          = "Read %s version"
	versionQueryFailureTemplateConstant          = "Failed to read %s version (exit code %d%s)"
	versionQueryExecutionFailureTemplateConstant = "Unable to read %s version: %s"
	launchStartTemplateConstant                  = "Launching %s"
	launchSuccessTemplateConstant                = "Launched %s (pid %d)"
	launchFailureTemplateConstant                = "Unable to launch %s: %s"
	commandLabelTemplateConstant                 = "%s%s"
	commandWithArgumentsTemplateConstant         = "%s %s"
	workingDirectorySuffixTemplateConstant       = " (in %s)"
	commandArgumentsJoinSeparatorConstant        = " "
	standardErrorSuffixTemplateConstant          = ": %s"
	unknownFailureMessageConstant                = "unknown error"
	emptyStringConstant                          = ""
	versionFlagConstant                          = "--version"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

// BuildLaunchStartedMessage formats the message describing a detached process about to start.
func (formatter CommandMessageFormatter) BuildLaunchStartedMessage(command ShellCommand) string {
	return fmt.Sprintf(launchStartTemplateConstant, formatter.formatCommandLabel(command))
}

// BuildLaunchSuccessMessage formats the message describing a started detached process.
func (formatter CommandMessageFormatter) BuildLaunchSuccessMessage(command ShellCommand, processIdentifier int) string {
	return fmt.Sprintf(launchSuccessTemplateConstant, formatter.formatCommandLabel(command), processIdentifier)
}

// BuildLaunchFailureMessage formats the message describing a detached process that could not start.
func (formatter CommandMessageFormatter) BuildLaunchFailureMessage(command ShellCommand, failure error) string {
	return fmt.Sprintf(launchFailureTemplateConstant, formatter.formatCommandLabel(command), formatter.describeFailure(failure))
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if formatter.isVersionQuery(command) {
		return formatter.describeVersionQuery(command, result, failure, stage)
	}
	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) isVersionQuery(command ShellCommand) bool {
	return len(command.Details.Arguments) == 1 && strings.TrimSpace(command.Details.Arguments[0]) == versionFlagConstant
}

func (formatter CommandMessageFormatter) describeVersionQuery(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandName := string(command.Name)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(versionQueryStartTemplateConstant, commandName)
	case messageStageSuccess:
		return fmt.Sprintf(versionQuerySuccessTemplateConstant, commandName)
	case messageStageFailure:
		return fmt.Sprintf(versionQueryFailureTemplateConstant, commandName, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(versionQueryExecutionFailureTemplateConstant, commandName, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandLabel := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLabel = fmt.Sprintf(commandWithArgumentsTemplateConstant, commandLabel, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	workingDirectorySuffix := formatter.formatWorkingDirectorySuffix(command)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, workingDirectorySuffix)
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}
