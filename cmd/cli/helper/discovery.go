package helper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/shellbridge/internal/dependencies"
)

const (
	findCommandUseConstant                   = "find"
	findCommandShortDescriptionConstant      = "Print the first discoverable helper identity"
	findCommandLongDescriptionConstant       = "find checks the configured helper identities in order and prints the first one that is installed or running."
	installedCommandUseConstant              = "installed <identity>"
	installedCommandShortDescriptionConstant = "Report whether a helper identity is discoverable"
	installedCommandLongDescriptionConstant  = "installed prints true when the identity is an executable on PATH or a running process, and false otherwise."
	launchCommandUseConstant                 = "launch <identity>"
	launchCommandShortDescriptionConstant    = "Start the helper process"
	launchCommandLongDescriptionConstant     = "launch starts the helper as a detached process and reports whether it started."
	helperNotFoundErrorTemplateConstant      = "%w: %s"
	launchFailedErrorTemplateConstant        = "%w: %s"
	identitiesSeparatorConstant              = ", "
	launchedMessageTemplateConstant          = "launched %s\n"
	lineTemplateConstant                     = "%s\n"
)

// Discovery errors.
var (
	ErrHelperNotFound = errors.New("helper process not found")
	ErrLaunchFailed   = errors.New("helper launch failed")
)

// FindCommandBuilder assembles the find command.
type FindCommandBuilder struct {
	CommandDependencies
}

// Build constructs the find command.
func (builder *FindCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   findCommandUseConstant,
		Short: findCommandShortDescriptionConstant,
		Long:  findCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}, nil
}

func (builder *FindCommandBuilder) run(command *cobra.Command, arguments []string) error {
	runtime, runtimeError := builder.resolveRuntime(builder.resolveConfiguration())
	if runtimeError != nil {
		return runtimeError
	}
	defer runtime.Close()

	processIdentities := runtime.Configuration.Repair.ProcessIdentities
	identity, found := runtime.Host.FindInstalledProcess(command.Context(), processIdentities)
	if !found {
		return fmt.Errorf(helperNotFoundErrorTemplateConstant, ErrHelperNotFound, strings.Join(processIdentities, identitiesSeparatorConstant))
	}
	_, writeError := fmt.Fprintf(commandOutput(command), lineTemplateConstant, identity)
	return writeError
}

// InstalledCommandBuilder assembles the installed command.
type InstalledCommandBuilder struct {
	CommandDependencies
}

// Build constructs the installed command.
func (builder *InstalledCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   installedCommandUseConstant,
		Short: installedCommandShortDescriptionConstant,
		Long:  installedCommandLongDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE:  builder.run,
	}, nil
}

func (builder *InstalledCommandBuilder) run(command *cobra.Command, arguments []string) error {
	runtime, runtimeError := builder.resolveRuntime(builder.resolveConfiguration())
	if runtimeError != nil {
		return runtimeError
	}
	defer runtime.Close()

	installed := runtime.Host.IsProcessInstalled(command.Context(), arguments[0])
	_, writeError := fmt.Fprintf(commandOutput(command), lineTemplateConstant, strconv.FormatBool(installed))
	return writeError
}

// LaunchCommandBuilder assembles the launch command.
type LaunchCommandBuilder struct {
	CommandDependencies
}

// Build constructs the launch command.
func (builder *LaunchCommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   launchCommandUseConstant,
		Short: launchCommandShortDescriptionConstant,
		Long:  launchCommandLongDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE:  builder.run,
	}, nil
}

func (builder *LaunchCommandBuilder) run(command *cobra.Command, arguments []string) error {
	runtime, runtimeError := builder.resolveRuntime(builder.resolveConfiguration())
	if runtimeError != nil {
		return runtimeError
	}
	defer runtime.Close()

	identity := strings.TrimSpace(arguments[0])
	if !runtime.Host.LaunchProcess(command.Context(), identity) {
		return fmt.Errorf(launchFailedErrorTemplateConstant, ErrLaunchFailed, identity)
	}
	_, writeError := fmt.Fprintf(commandOutput(command), launchedMessageTemplateConstant, identity)
	return writeError
}

// defaultProcessIdentity prefers the first discoverable identity and falls back to the first configured one.
func defaultProcessIdentity(command *cobra.Command, runtime *dependencies.Runtime) string {
	processIdentities := runtime.Configuration.Repair.ProcessIdentities
	if identity, found := runtime.Host.FindInstalledProcess(command.Context(), processIdentities); found {
		return identity
	}
	if len(processIdentities) == 0 {
		return ""
	}
	return processIdentities[0]
}
