package compaction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gitcompact/internal/backup"
	"github.com/temirov/gitcompact/internal/execshell"
	"github.com/temirov/gitcompact/internal/metrics"
	"github.com/temirov/gitcompact/internal/repos/dependencies"
	"github.com/temirov/gitcompact/internal/repos/shared"
	"github.com/temirov/gitcompact/internal/runlock"
	"github.com/temirov/gitcompact/internal/ui"
	"github.com/temirov/gitcompact/internal/utils"
	pathutils "github.com/temirov/gitcompact/internal/utils/path"
	"github.com/temirov/gitcompact/internal/validation"
)

const (
	commandUseConstant              = "git-compact [root]"
	commandShortDescriptionConstant = "Safely compact every git repository beneath a root directory"
	commandLongDescriptionConstant  = "git-compact finds every git repository beneath the root directory and compacts its object storage. Each repository is validated, backed up to a bundle, repacked, and validated again; any failure after the backup restores the repository from the bundle."
	commandExampleConstant          = "git-compact ~/Development --exclude vendor,archive --backup-path /mnt/backups"

	pathFlagNameConstant              = "path"
	pathFlagShorthandConstant         = "p"
	pathFlagUsageConstant             = "Root directory scanned for repositories"
	backupPathFlagNameConstant        = "backup-path"
	backupPathFlagUsageConstant       = "Directory receiving backup bundles (default: a folder beside each repository)"
	keepBackupFlagNameConstant        = "keep-backup"
	keepBackupFlagUsageConstant       = "Keep backup bundles after successful compaction"
	dryRunFlagNameConstant            = "dry-run"
	dryRunFlagUsageConstant           = "Validate repositories without modifying them"
	skipRemoteCheckFlagNameConstant   = "skip-remote-check"
	skipRemoteCheckFlagUsageConstant  = "Compact repositories that have no configured remote"
	noAutoCommitFlagNameConstant      = "no-auto-commit"
	noAutoCommitFlagUsageConstant     = "Leave uncommitted changes untouched"
	excludeFlagNameConstant           = "exclude"
	excludeFlagShorthandConstant      = "e"
	excludeFlagUsageConstant          = "Skip repositories whose path contains the pattern (repeatable, comma separated)"
	logFileFlagNameConstant           = "log-file"
	logFileFlagUsageConstant          = "Append a plain-text copy of the console output to this file"
	timeoutFlagNameConstant           = "timeout"
	timeoutFlagUsageConstant          = "Timeout applied to each git command"
	reportFileFlagNameConstant        = "report-file"
	reportFileFlagUsageConstant       = "Write a YAML run report to this file"
	metricsFileFlagNameConstant       = "metrics-file"
	metricsFileFlagUsageConstant      = "Write Prometheus textfile metrics to this file"
	conflictingRootMessageConstant    = "root given both as an argument and with --path"
	conflictingRootTemplateConstant   = "%w: %s and %s"
	logFileCloseFailedMessageConstant = "Unable to close log file"
)

// ErrConflictingRoot indicates the root was provided twice with different values.
var ErrConflictingRoot = errors.New(conflictingRootMessageConstant)

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the compaction cobra command with configurable dependencies.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	Discoverer                   shared.RepositoryDiscoverer
	GitExecutor                  shared.GitExecutor
	GitManager                   shared.GitRepositoryManager
	FileSystem                   shared.FileSystem
	Clock                        shared.Clock
	HomeExpander                 *pathutils.HomeExpander
	LockDirectory                string
}

// Build constructs the compaction command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		Example:       commandExampleConstant,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          builder.run,
	}

	builder.BindFlags(command)
	return command, nil
}

// BindFlags registers the compaction flags on the provided command.
func (builder *CommandBuilder) BindFlags(command *cobra.Command) {
	defaults := DefaultCommandConfiguration()
	flagSet := command.Flags()
	flagSet.StringP(pathFlagNameConstant, pathFlagShorthandConstant, "", pathFlagUsageConstant)
	flagSet.String(backupPathFlagNameConstant, "", backupPathFlagUsageConstant)
	flagSet.Bool(keepBackupFlagNameConstant, false, keepBackupFlagUsageConstant)
	flagSet.Bool(dryRunFlagNameConstant, false, dryRunFlagUsageConstant)
	flagSet.Bool(skipRemoteCheckFlagNameConstant, false, skipRemoteCheckFlagUsageConstant)
	flagSet.Bool(noAutoCommitFlagNameConstant, false, noAutoCommitFlagUsageConstant)
	flagSet.StringSliceP(excludeFlagNameConstant, excludeFlagShorthandConstant, nil, excludeFlagUsageConstant)
	flagSet.String(logFileFlagNameConstant, "", logFileFlagUsageConstant)
	flagSet.Duration(timeoutFlagNameConstant, defaults.CommandTimeout, timeoutFlagUsageConstant)
	flagSet.String(reportFileFlagNameConstant, "", reportFileFlagUsageConstant)
	flagSet.String(metricsFileFlagNameConstant, "", metricsFileFlagUsageConstant)
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	commandConfiguration, configurationError := builder.applyFlags(command, arguments, builder.resolveConfiguration())
	if configurationError != nil {
		return configurationError
	}

	fileSystem := dependencies.ResolveFileSystem(builder.FileSystem)
	homeExpander := builder.HomeExpander
	if homeExpander == nil {
		homeExpander = pathutils.NewHomeExpander()
	}
	runConfiguration, runConfigurationError := NewRunConfiguration(commandConfiguration, fileSystem, homeExpander)
	if runConfigurationError != nil {
		return runConfigurationError
	}

	logger := builder.resolveLogger()
	clock := builder.resolveClock()

	reporterOptions := []ui.ConsoleReporterOption{}
	if len(runConfiguration.LogFile()) > 0 {
		logFile, openError := utils.OpenAppendLogFile(runConfiguration.LogFile())
		if openError != nil {
			return openError
		}
		defer func() {
			if closeError := logFile.Close(); closeError != nil {
				logger.Warn(logFileCloseFailedMessageConstant, zap.Error(closeError))
			}
		}()
		reporterOptions = append(reporterOptions, ui.WithLogMirror(logFile, clock))
	}
	reporter := ui.NewConsoleReporter(command.OutOrStdout(), reporterOptions...)

	var recorders []shared.RunRecorder
	observers := execshell.CommandEventObservers{}
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		observers = append(observers, ui.NewConsoleCommandEventLogger(logger))
	}
	if len(runConfiguration.ReportFile()) > 0 {
		recorders = append(recorders, NewReportWriter(fileSystem, runConfiguration.ReportFile()))
	}
	if len(runConfiguration.MetricsFile()) > 0 {
		metricsRecorder, metricsError := metrics.NewRecorder(runConfiguration.MetricsFile())
		if metricsError != nil {
			return metricsError
		}
		observers = append(observers, metricsRecorder)
		recorders = append(recorders, metricsRecorder)
	}

	gitExecutor, executorError := dependencies.ResolveGitExecutor(
		builder.GitExecutor,
		logger,
		execshell.WithDefaultTimeout(runConfiguration.CommandTimeout()),
		execshell.WithCommandEventObserver(observers),
	)
	if executorError != nil {
		return executorError
	}
	gitManager, managerError := dependencies.ResolveGitRepositoryManager(builder.GitManager, gitExecutor)
	if managerError != nil {
		return managerError
	}

	validator, validatorError := validation.NewValidator(validation.Dependencies{RepositoryManager: gitManager, FileSystem: fileSystem})
	if validatorError != nil {
		return validatorError
	}
	backupManager, backupError := backup.NewManager(backup.Dependencies{
		RepositoryManager: gitManager,
		FileSystem:        fileSystem,
		Clock:             clock,
		Logger:            logger,
	}, runConfiguration.BackupPath())
	if backupError != nil {
		return backupError
	}
	compactor, compactorError := NewCompactor(CompactorDependencies{
		RepositoryManager: gitManager,
		Validator:         validator,
		Backups:           backupManager,
		FileSystem:        fileSystem,
		Clock:             clock,
		Logger:            logger,
	}, PipelineOptionsFromConfiguration(runConfiguration))
	if compactorError != nil {
		return compactorError
	}

	lockDirectory := builder.LockDirectory
	if len(lockDirectory) == 0 {
		lockDirectory = runConfiguration.BackupPath()
	}
	service, serviceError := NewService(ServiceDependencies{
		Discoverer: dependencies.ResolveRepositoryDiscoverer(builder.Discoverer, fileSystem, logger, runConfiguration.Exclusions()),
		Processor:  compactor,
		Reporter:   reporter,
		Locker:     runlock.NewGuard(lockDirectory),
		Recorders:  recorders,
		Clock:      clock,
		Logger:     logger,
	})
	if serviceError != nil {
		return serviceError
	}

	_, runError := service.Run(command.Context(), runConfiguration)
	return runError
}

// applyFlags overlays explicitly set flags and the positional root onto the configuration.
func (builder *CommandBuilder) applyFlags(command *cobra.Command, arguments []string, configuration CommandConfiguration) (CommandConfiguration, error) {
	flagSet := command.Flags()

	pathValue, _ := flagSet.GetString(pathFlagNameConstant)
	pathValue = strings.TrimSpace(pathValue)
	if len(arguments) > 0 {
		argumentRoot := strings.TrimSpace(arguments[0])
		if flagSet.Changed(pathFlagNameConstant) && len(pathValue) > 0 && pathValue != argumentRoot {
			return configuration, fmt.Errorf(conflictingRootTemplateConstant, ErrConflictingRoot, argumentRoot, pathValue)
		}
		configuration.Root = argumentRoot
	} else if flagSet.Changed(pathFlagNameConstant) {
		configuration.Root = pathValue
	}

	if flagSet.Changed(backupPathFlagNameConstant) {
		configuration.BackupPath, _ = flagSet.GetString(backupPathFlagNameConstant)
	}
	if flagSet.Changed(keepBackupFlagNameConstant) {
		configuration.KeepBackup, _ = flagSet.GetBool(keepBackupFlagNameConstant)
	}
	if flagSet.Changed(dryRunFlagNameConstant) {
		configuration.DryRun, _ = flagSet.GetBool(dryRunFlagNameConstant)
	}
	if flagSet.Changed(skipRemoteCheckFlagNameConstant) {
		configuration.SkipRemoteCheck, _ = flagSet.GetBool(skipRemoteCheckFlagNameConstant)
	}
	if flagSet.Changed(noAutoCommitFlagNameConstant) {
		disableAutoCommit, _ := flagSet.GetBool(noAutoCommitFlagNameConstant)
		configuration.AutoCommit = !disableAutoCommit
	}
	if flagSet.Changed(excludeFlagNameConstant) {
		configuration.Exclude, _ = flagSet.GetStringSlice(excludeFlagNameConstant)
	}
	if flagSet.Changed(logFileFlagNameConstant) {
		configuration.LogFile, _ = flagSet.GetString(logFileFlagNameConstant)
	}
	if flagSet.Changed(timeoutFlagNameConstant) {
		configuration.CommandTimeout, _ = flagSet.GetDuration(timeoutFlagNameConstant)
	}
	if flagSet.Changed(reportFileFlagNameConstant) {
		configuration.ReportFile, _ = flagSet.GetString(reportFileFlagNameConstant)
	}
	if flagSet.Changed(metricsFileFlagNameConstant) {
		configuration.MetricsFile, _ = flagSet.GetString(metricsFileFlagNameConstant)
	}
	return configuration, nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveClock() shared.Clock {
	if builder.Clock == nil {
		return shared.SystemClock{}
	}
	return builder.Clock
}
