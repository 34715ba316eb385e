package utils

import "context"

const (
	configurationMetadataContextKeyConstant = commandContextKey("configurationMetadata")
)

type commandContextKey string

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationMetadata records where the active configuration came from.
func (accessor CommandContextAccessor) WithConfigurationMetadata(parentContext context.Context, metadata LoadedConfiguration) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, configurationMetadataContextKeyConstant, metadata)
}

// ConfigurationMetadata returns the configuration metadata recorded by WithConfigurationMetadata.
func (accessor CommandContextAccessor) ConfigurationMetadata(executionContext context.Context) (LoadedConfiguration, bool) {
	if executionContext == nil {
		return LoadedConfiguration{}, false
	}
	metadata, metadataAvailable := executionContext.Value(configurationMetadataContextKeyConstant).(LoadedConfiguration)
	return metadata, metadataAvailable
}

// ConfigurationFilePath returns the configuration file recorded in the context, if any.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	metadata, metadataAvailable := accessor.ConfigurationMetadata(executionContext)
	if !metadataAvailable || len(metadata.ConfigFileUsed) == 0 {
		return "", false
	}
	return metadata.ConfigFileUsed, true
}
