// Package utils exposes reusable helpers consumed by multiple commands.
//
// ConfigurationLoader layers embedded defaults, configuration files, dotenv
// files, and environment variables through Viper; LoggerFactory builds the
// zap loggers used for diagnostics and human-readable bridge events.
package utils
