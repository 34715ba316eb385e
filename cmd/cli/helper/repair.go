package helper

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/temirov/shellbridge/internal/progress"
	"github.com/temirov/shellbridge/internal/utils"
)

const (
	repairCommandUseConstant              = "repair"
	repairCommandShortDescriptionConstant = "Diagnose the helper and install the toolchain"
	repairCommandLongDescriptionConstant  = "repair checks that the helper is installed, recent, and reachable, then runs the setup script through it while streaming progress."
	scriptFlagNameConstant                = "script"
	scriptFlagDescriptionConstant         = "Path to a YAML setup script replacing the built-in steps"
	repairFailedMessageConstant           = "repair failed; see the log above"
)

// ErrRepairFailed indicates that a repair run finished in the failed state.
var ErrRepairFailed = errors.New(repairFailedMessageConstant)

// RepairCommandBuilder assembles the repair command.
type RepairCommandBuilder struct {
	CommandDependencies
}

// Build constructs the repair command.
func (builder *RepairCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   repairCommandUseConstant,
		Short: repairCommandShortDescriptionConstant,
		Long:  repairCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(scriptFlagNameConstant, "", scriptFlagDescriptionConstant)

	return command, nil
}

func (builder *RepairCommandBuilder) run(command *cobra.Command, arguments []string) error {
	scriptFlagValue, scriptFlagError := command.Flags().GetString(scriptFlagNameConstant)
	if scriptFlagError != nil {
		return scriptFlagError
	}

	configuration := builder.resolveConfiguration()
	configuration.Repair.ScriptPath = selectStringValue(scriptFlagValue, configuration.Repair.ScriptPath)

	runtime, runtimeError := builder.resolveRuntime(configuration)
	if runtimeError != nil {
		return runtimeError
	}
	defer runtime.Close()

	progressStream := progress.NewStream()
	detach := progressStream.Attach(progress.NewWriterConsumer(utils.NewFlushingWriter(commandOutput(command))))
	defer detach()

	orchestrator, orchestratorError := runtime.NewOrchestrator(progressStream)
	if orchestratorError != nil {
		return orchestratorError
	}

	result, runError := orchestrator.Run(command.Context())
	if runError != nil {
		return runError
	}
	if !result.OverallSuccess {
		return ErrRepairFailed
	}
	return nil
}
