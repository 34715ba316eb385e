package execshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

const (
	environmentAssignmentSeparatorConstant = "="
	environmentAssignmentTemplateConstant  = "%s%s%s"
	outputDrainTimeoutConstant             = 2 * time.Second
)

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the supplied command using os/exec.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable := exec.CommandContext(executionContext, string(command.Name), command.Details.Arguments...)
	applyCommandDetails(executable, command.Details)
	executable.WaitDelay = outputDrainTimeoutConstant

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	if runError != nil {
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			return ExecutionResult{
				StandardOutput: standardOutputBuffer.String(),
				StandardError:  standardErrorBuffer.String(),
				ExitCode:       exitError.ExitCode(),
			}, nil
		}
		return ExecutionResult{}, runError
	}

	return ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
		ExitCode:       0,
	}, nil
}

// Start launches the supplied command without waiting for it. The process outlives executionContext.
func (runner *OSCommandRunner) Start(executionContext context.Context, command ShellCommand) (int, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return 0, contextError
	}
	executable := exec.Command(string(command.Name), command.Details.Arguments...)
	applyCommandDetails(executable, command.Details)

	if startError := executable.Start(); startError != nil {
		return 0, startError
	}
	processIdentifier := executable.Process.Pid
	go func() {
		_ = executable.Wait()
	}()
	return processIdentifier, nil
}

func applyCommandDetails(executable *exec.Cmd, details CommandDetails) {
	if len(details.WorkingDirectory) > 0 {
		executable.Dir = details.WorkingDirectory
	}

	if len(details.EnvironmentVariables) > 0 {
		mergedEnvironment := append([]string{}, os.Environ()...)
		for environmentKey, environmentValue := range details.EnvironmentVariables {
			mergedEnvironment = append(mergedEnvironment, fmt.Sprintf(environmentAssignmentTemplateConstant, environmentKey, environmentAssignmentSeparatorConstant, environmentValue))
		}
		executable.Env = mergedEnvironment
	}
}
