package helper

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/shellbridge/internal/dependencies"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current runtime configuration.
type ConfigurationProvider func() dependencies.Configuration

// CommandDependencies carries the collaborators shared by every helper command.
type CommandDependencies struct {
	LoggerProvider        LoggerProvider
	ConsoleLoggerProvider LoggerProvider
	ConfigurationProvider ConfigurationProvider
	RuntimeResolver       dependencies.RuntimeResolver
}

func (commandDependencies CommandDependencies) resolveLogger() *zap.Logger {
	return resolveProvidedLogger(commandDependencies.LoggerProvider)
}

func (commandDependencies CommandDependencies) resolveConsoleLogger() *zap.Logger {
	if commandDependencies.ConsoleLoggerProvider == nil {
		return commandDependencies.resolveLogger()
	}
	return resolveProvidedLogger(commandDependencies.ConsoleLoggerProvider)
}

func (commandDependencies CommandDependencies) resolveConfiguration() dependencies.Configuration {
	if commandDependencies.ConfigurationProvider == nil {
		return dependencies.DefaultConfiguration()
	}
	return commandDependencies.ConfigurationProvider()
}

func (commandDependencies CommandDependencies) resolveRuntime(configuration dependencies.Configuration) (*dependencies.Runtime, error) {
	runtimeResolver := commandDependencies.RuntimeResolver
	if runtimeResolver == nil {
		runtimeResolver = &dependencies.DefaultRuntimeResolver{}
	}
	return runtimeResolver.Resolve(commandDependencies.resolveLogger(), commandDependencies.resolveConsoleLogger(), configuration)
}

func resolveProvidedLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func commandOutput(command *cobra.Command) io.Writer {
	if command == nil {
		return io.Discard
	}
	return command.OutOrStdout()
}

func selectStringValue(flagValue string, configurationValue string) string {
	trimmedFlagValue := strings.TrimSpace(flagValue)
	if len(trimmedFlagValue) > 0 {
		return trimmedFlagValue
	}
	return strings.TrimSpace(configurationValue)
}
