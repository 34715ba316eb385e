package helper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/temirov/shellbridge/internal/bridge"
)

const (
	execCommandUseConstant              = "exec <command>"
	execCommandShortDescriptionConstant = "Run one shell command inside the helper"
	execCommandLongDescriptionConstant  = "exec dispatches a shell command through the helper bridge, waits for the reply, and prints the outcome as YAML."
	processFlagNameConstant             = "process"
	processFlagDescriptionConstant      = "Helper identity that executes the command (defaults to the first discoverable identity)"
	commandTimeoutFlagNameConstant      = "command-timeout"
	commandTimeoutFlagDescription       = "Timeout for this command (defaults to bridge.default_timeout)"
	missingShellCommandMessageConstant  = "exec requires a shell command"
	argumentSeparatorConstant           = " "
	outcomeEncodingErrorTemplate        = "unable to encode command outcome: %w"
	commandFailedErrorTemplateConstant  = "%w: %s"
)

// ErrCommandFailed indicates that the helper reported a failed command.
var ErrCommandFailed = errors.New("command failed")

// ExecCommandBuilder assembles the exec command.
type ExecCommandBuilder struct {
	CommandDependencies
}

type outcomeReport struct {
	Process             string `yaml:"process"`
	Command             string `yaml:"command"`
	Succeeded           bool   `yaml:"succeeded"`
	ExitCode            *int   `yaml:"exit_code,omitempty"`
	ErrorCode           *int   `yaml:"error_code,omitempty"`
	ErrorMessage        string `yaml:"error_message,omitempty"`
	AcknowledgementCode *int   `yaml:"acknowledgement_code,omitempty"`
	AcknowledgedOnly    bool   `yaml:"acknowledged_only,omitempty"`
	StandardOutput      string `yaml:"stdout"`
	StandardError       string `yaml:"stderr"`
}

// Build constructs the exec command.
func (builder *ExecCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   execCommandUseConstant,
		Short: execCommandShortDescriptionConstant,
		Long:  execCommandLongDescriptionConstant,
		RunE:  builder.run,
	}

	// Everything after the first positional argument is part of the shell command.
	command.Flags().SetInterspersed(false)
	command.Flags().String(processFlagNameConstant, "", processFlagDescriptionConstant)
	command.Flags().Duration(commandTimeoutFlagNameConstant, 0, commandTimeoutFlagDescription)

	return command, nil
}

func (builder *ExecCommandBuilder) run(command *cobra.Command, arguments []string) error {
	shellCommand := strings.TrimSpace(strings.Join(arguments, argumentSeparatorConstant))
	if len(shellCommand) == 0 {
		return errors.New(missingShellCommandMessageConstant)
	}

	processFlagValue, processFlagError := command.Flags().GetString(processFlagNameConstant)
	if processFlagError != nil {
		return processFlagError
	}
	commandTimeout, timeoutFlagError := command.Flags().GetDuration(commandTimeoutFlagNameConstant)
	if timeoutFlagError != nil {
		return timeoutFlagError
	}

	configuration := builder.resolveConfiguration()
	runtime, runtimeError := builder.resolveRuntime(configuration)
	if runtimeError != nil {
		return runtimeError
	}
	defer runtime.Close()

	processIdentity := strings.TrimSpace(processFlagValue)
	if len(processIdentity) == 0 {
		processIdentity = defaultProcessIdentity(command, runtime)
	}

	request := bridge.CommandRequest{
		TargetProcessIdentity: processIdentity,
		ShellCommand:          shellCommand,
		Timeout:               commandTimeout,
	}
	outcome := runtime.Bridge.Execute(command.Context(), request)

	encoder := yaml.NewEncoder(commandOutput(command))
	if encodeError := encoder.Encode(newOutcomeReport(request, outcome)); encodeError != nil {
		return fmt.Errorf(outcomeEncodingErrorTemplate, encodeError)
	}
	if closeError := encoder.Close(); closeError != nil {
		return fmt.Errorf(outcomeEncodingErrorTemplate, closeError)
	}

	if !outcome.Succeeded {
		return fmt.Errorf(commandFailedErrorTemplateConstant, ErrCommandFailed, shellCommand)
	}
	return nil
}

func newOutcomeReport(request bridge.CommandRequest, outcome bridge.CommandOutcome) outcomeReport {
	return outcomeReport{
		Process:             request.TargetProcessIdentity,
		Command:             request.ShellCommand,
		Succeeded:           outcome.Succeeded,
		ExitCode:            optionalIntPointer(outcome.ExitCode),
		ErrorCode:           optionalIntPointer(outcome.ErrorCode),
		ErrorMessage:        outcome.ErrorMessage,
		AcknowledgementCode: optionalIntPointer(outcome.AcknowledgementCode),
		AcknowledgedOnly:    outcome.AcknowledgedOnly,
		StandardOutput:      outcome.StandardOutput,
		StandardError:       outcome.StandardError,
	}
}

func optionalIntPointer(optional bridge.OptionalInt) *int {
	if !optional.Present {
		return nil
	}
	value := optional.Value
	return &value
}
