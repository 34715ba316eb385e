package execshell_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/shellbridge/internal/execshell"
)

const (
	testExecutionSuccessCaseNameConstant         = "success"
	testExecutionFailureCaseNameConstant         = "failure_exit_code"
	testExecutionRunnerErrorCaseNameConstant     = "runner_error"
	testCommandArgumentConstant                  = "--version"
	testWorkingDirectoryConstant                 = "."
	testStandardErrorOutputConstant              = "failure"
	testHelperNameConstant                       = "shellhelper"
	testLoggerInitializationCaseNameConstant     = "logger_validation"
	testRunnerInitializationCaseNameConstant     = "runner_validation"
	testSuccessfulInitializationCaseNameConstant = "successful_initialization"
)

type recordingCommandRunner struct {
	executionResult  execshell.ExecutionResult
	executionError   error
	recordedCommands []execshell.ShellCommand
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.executionResult, runner.executionError
}

type recordingProcessStarter struct {
	recordingCommandRunner
	processIdentifier int
	startError        error
}

func (starter *recordingProcessStarter) Start(executionContext context.Context, command execshell.ShellCommand) (int, error) {
	starter.recordedCommands = append(starter.recordedCommands, command)
	return starter.processIdentifier, starter.startError
}

func TestShellExecutorInitializationValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		runner        execshell.CommandRunner
		expectError   error
		expectSuccess bool
	}{
		{
			name:        testLoggerInitializationCaseNameConstant,
			logger:      nil,
			runner:      &recordingCommandRunner{},
			expectError: execshell.ErrLoggerNotConfigured,
		},
		{
			name:        testRunnerInitializationCaseNameConstant,
			logger:      zap.NewNop(),
			runner:      nil,
			expectError: execshell.ErrCommandRunnerNotConfigured,
		},
		{
			name:          testSuccessfulInitializationCaseNameConstant,
			logger:        zap.NewNop(),
			runner:        &recordingCommandRunner{},
			expectSuccess: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.runner)
			if testCase.expectSuccess {
				require.NoError(testInstance, creationError)
				require.NotNil(testInstance, executor)
			} else {
				require.Error(testInstance, creationError)
				require.ErrorIs(testInstance, creationError, testCase.expectError)
			}
		})
	}
}

func TestShellExecutorExecuteBehavior(testInstance *testing.T) {
	testCases := []struct {
		name             string
		runnerResult     execshell.ExecutionResult
		runnerError      error
		expectErrorType  any
		expectedLogCount int
	}{
		{
			name: testExecutionSuccessCaseNameConstant,
			runnerResult: execshell.ExecutionResult{
				StandardOutput: "shellhelper 0.118",
				ExitCode:       0,
			},
			expectedLogCount: 2,
		},
		{
			name: testExecutionFailureCaseNameConstant,
			runnerResult: execshell.ExecutionResult{
				StandardError: testStandardErrorOutputConstant,
				ExitCode:      1,
			},
			expectErrorType:  execshell.CommandFailedError{},
			expectedLogCount: 2,
		},
		{
			name:             testExecutionRunnerErrorCaseNameConstant,
			runnerError:      errors.New("runner failure"),
			expectErrorType:  execshell.CommandExecutionError{},
			expectedLogCount: 2,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observerCore, observerLogs := observer.New(zap.DebugLevel)
			logger := zap.New(observerCore)

			recordingRunner := &recordingCommandRunner{
				executionResult: testCase.runnerResult,
				executionError:  testCase.runnerError,
			}

			shellExecutor, creationError := execshell.NewShellExecutor(logger, recordingRunner)
			require.NoError(testInstance, creationError)

			commandDetails := execshell.CommandDetails{Arguments: []string{testCommandArgumentConstant}, WorkingDirectory: testWorkingDirectoryConstant}
			executionResult, executionError := shellExecutor.ExecuteProcess(context.Background(), testHelperNameConstant, commandDetails)

			if testCase.expectErrorType != nil {
				require.Error(testInstance, executionError)
				require.IsType(testInstance, testCase.expectErrorType, executionError)
				require.Empty(testInstance, executionResult.StandardOutput)
			} else {
				require.NoError(testInstance, executionError)
				require.Equal(testInstance, testCase.runnerResult.StandardOutput, executionResult.StandardOutput)
			}

			require.Len(testInstance, observerLogs.All(), testCase.expectedLogCount)
			require.Len(testInstance, recordingRunner.recordedCommands, 1)
			require.Equal(testInstance, execshell.CommandName(testHelperNameConstant), recordingRunner.recordedCommands[0].Name)
		})
	}
}

func TestShellExecutorStartDetached(testInstance *testing.T) {
	testCases := []struct {
		name              string
		runner            execshell.CommandRunner
		expectedError     error
		expectedProcessID int
	}{
		{
			name:          "runner_without_start",
			runner:        &recordingCommandRunner{},
			expectedError: execshell.ErrProcessStarterNotConfigured,
		},
		{
			name:              "started",
			runner:            &recordingProcessStarter{processIdentifier: 4242},
			expectedProcessID: 4242,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), testCase.runner)
			require.NoError(testInstance, creationError)

			processIdentifier, startError := shellExecutor.StartDetached(context.Background(), testHelperNameConstant, execshell.CommandDetails{})
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, startError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, startError)
			require.Equal(testInstance, testCase.expectedProcessID, processIdentifier)
		})
	}
}

func TestShellExecutorStartDetachedWrapsFailures(testInstance *testing.T) {
	startFailure := errors.New("exec format error")
	shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), &recordingProcessStarter{startError: startFailure})
	require.NoError(testInstance, creationError)

	_, startError := shellExecutor.StartDetached(context.Background(), testHelperNameConstant, execshell.CommandDetails{})
	require.IsType(testInstance, execshell.CommandExecutionError{}, startError)
	require.ErrorIs(testInstance, startError, startFailure)
}

func TestOSCommandRunnerReportsExitCodes(testInstance *testing.T) {
	shellPath, lookupError := exec.LookPath("sh")
	if lookupError != nil {
		testInstance.Skip("sh not available")
	}

	runner := execshell.NewOSCommandRunner()
	executionResult, runError := runner.Run(context.Background(), execshell.ShellCommand{
		Name: execshell.CommandName(shellPath),
		Details: execshell.CommandDetails{
			Arguments:            []string{"-c", "printf \"$GREETING\"; printf oops >&2; exit 3"},
			EnvironmentVariables: map[string]string{"GREETING": "hello"},
		},
	})
	require.NoError(testInstance, runError)
	require.Equal(testInstance, "hello", executionResult.StandardOutput)
	require.Equal(testInstance, "oops", executionResult.StandardError)
	require.Equal(testInstance, 3, executionResult.ExitCode)
}
