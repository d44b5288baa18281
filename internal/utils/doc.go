// Package utils exposes reusable helpers consumed by the command-line entrypoint.
//
// ConfigurationLoader layers embedded defaults, configuration files, and
// environment variables through Viper. LoggerFactory builds zap loggers, and
// FlushingWriter keeps appended log files current while a run progresses.
package utils
