package compaction

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/temirov/gitcompact/internal/execshell"
	"github.com/temirov/gitcompact/internal/repos/shared"
	pathutils "github.com/temirov/gitcompact/internal/utils/path"
)

const (
	configurationRootKeyConstant             = "root"
	configurationBackupPathKeyConstant       = "backup_path"
	configurationKeepBackupKeyConstant       = "keep_backup"
	configurationDryRunKeyConstant           = "dry_run"
	configurationSkipRemoteCheckKeyConstant  = "skip_remote_check"
	configurationAutoCommitKeyConstant       = "auto_commit"
	configurationExcludeKeyConstant          = "exclude"
	configurationLogFileKeyConstant          = "log_file"
	configurationCommandTimeoutKeyConstant   = "command_timeout"
	configurationReportFileKeyConstant       = "report_file"
	configurationMetricsFileKeyConstant      = "metrics_file"
	configurationCompressionLevelKeyConstant = "compression_level"
	configurationPackDepthKeyConstant        = "pack_depth"
	configurationPackWindowKeyConstant       = "pack_window"
	configurationKeySeparatorConstant        = "."
	exclusionSeparatorConstant               = ","
	minimumCompressionLevelConstant          = 0
	maximumCompressionLevelConstant          = 9

	rootRequiredMessageConstant             = "repository root is required"
	rootMissingMessageConstant              = "repository root does not exist"
	rootNotDirectoryMessageConstant         = "repository root is not a directory"
	invalidTimeoutMessageConstant           = "command timeout must be positive"
	invalidCompressionLevelMessageConstant  = "compression level must be between 0 and 9"
	invalidPackSettingMessageConstant       = "pack depth and window must be positive"
	configurationValueErrorTemplateConstant = "%w: %s"
	rootResolutionErrorTemplateConstant     = "unable to resolve repository root %s: %w"
	backupResolutionErrorTemplateConstant   = "unable to resolve backup path %s: %w"
	compressionErrorTemplateConstant        = "%w: %d"
	packSettingErrorTemplateConstant        = "%w: depth=%d window=%d"
)

// ErrRootRequired indicates no repository root was configured.
var ErrRootRequired = errors.New(rootRequiredMessageConstant)

// ErrRootMissing indicates the configured repository root does not exist.
var ErrRootMissing = errors.New(rootMissingMessageConstant)

// ErrRootNotDirectory indicates the configured repository root is a file.
var ErrRootNotDirectory = errors.New(rootNotDirectoryMessageConstant)

// ErrInvalidCommandTimeout indicates a non-positive command timeout.
var ErrInvalidCommandTimeout = errors.New(invalidTimeoutMessageConstant)

// ErrInvalidCompressionLevel indicates a compression level outside the supported range.
var ErrInvalidCompressionLevel = errors.New(invalidCompressionLevelMessageConstant)

// ErrInvalidPackSettings indicates a non-positive pack depth or window.
var ErrInvalidPackSettings = errors.New(invalidPackSettingMessageConstant)

// CommandConfiguration captures persisted configuration values for the compaction command.
type CommandConfiguration struct {
	Root             string        `mapstructure:"root"`
	BackupPath       string        `mapstructure:"backup_path"`
	KeepBackup       bool          `mapstructure:"keep_backup"`
	DryRun           bool          `mapstructure:"dry_run"`
	SkipRemoteCheck  bool          `mapstructure:"skip_remote_check"`
	AutoCommit       bool          `mapstructure:"auto_commit"`
	Exclude          []string      `mapstructure:"exclude"`
	LogFile          string        `mapstructure:"log_file"`
	CommandTimeout   time.Duration `mapstructure:"command_timeout"`
	ReportFile       string        `mapstructure:"report_file"`
	MetricsFile      string        `mapstructure:"metrics_file"`
	CompressionLevel int           `mapstructure:"compression_level"`
	PackDepth        int           `mapstructure:"pack_depth"`
	PackWindow       int           `mapstructure:"pack_window"`
}

// DefaultCommandConfiguration provides baseline configuration values for compaction.
func DefaultCommandConfiguration() CommandConfiguration {
	defaultCompression := shared.DefaultCompressionSettings()
	return CommandConfiguration{
		AutoCommit:       true,
		CommandTimeout:   execshell.DefaultCommandTimeout,
		CompressionLevel: defaultCompression.Level,
		PackDepth:        defaultCompression.Depth,
		PackWindow:       defaultCompression.Window,
	}
}

// DefaultConfigurationValues returns the configuration defaults keyed beneath the provided prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	qualify := func(key string) string {
		if len(prefix) == 0 {
			return key
		}
		return prefix + configurationKeySeparatorConstant + key
	}
	return map[string]any{
		qualify(configurationRootKeyConstant):             defaults.Root,
		qualify(configurationBackupPathKeyConstant):       defaults.BackupPath,
		qualify(configurationKeepBackupKeyConstant):       defaults.KeepBackup,
		qualify(configurationDryRunKeyConstant):           defaults.DryRun,
		qualify(configurationSkipRemoteCheckKeyConstant):  defaults.SkipRemoteCheck,
		qualify(configurationAutoCommitKeyConstant):       defaults.AutoCommit,
		qualify(configurationExcludeKeyConstant):          []string{},
		qualify(configurationLogFileKeyConstant):          defaults.LogFile,
		qualify(configurationCommandTimeoutKeyConstant):   defaults.CommandTimeout.String(),
		qualify(configurationReportFileKeyConstant):       defaults.ReportFile,
		qualify(configurationMetricsFileKeyConstant):      defaults.MetricsFile,
		qualify(configurationCompressionLevelKeyConstant): defaults.CompressionLevel,
		qualify(configurationPackDepthKeyConstant):        defaults.PackDepth,
		qualify(configurationPackWindowKeyConstant):       defaults.PackWindow,
	}
}

// RunConfiguration is the validated, immutable configuration of one run.
type RunConfiguration struct {
	root            string
	backupPath      string
	keepBackup      bool
	dryRun          bool
	skipRemoteCheck bool
	autoCommit      bool
	exclusions      []string
	logFile         string
	commandTimeout  time.Duration
	reportFile      string
	metricsFile     string
	compression     shared.CompressionSettings
}

// NewRunConfiguration validates the command configuration and resolves its paths.
func NewRunConfiguration(configuration CommandConfiguration, fileSystem shared.FileSystem, homeExpander *pathutils.HomeExpander) (RunConfiguration, error) {
	sanitized := configuration.sanitize()

	if len(sanitized.Root) == 0 {
		return RunConfiguration{}, ErrRootRequired
	}
	absoluteRoot, rootError := fileSystem.Abs(homeExpander.Expand(sanitized.Root))
	if rootError != nil {
		return RunConfiguration{}, fmt.Errorf(rootResolutionErrorTemplateConstant, sanitized.Root, rootError)
	}
	rootInfo, statError := fileSystem.Stat(absoluteRoot)
	if statError != nil {
		return RunConfiguration{}, fmt.Errorf(configurationValueErrorTemplateConstant, ErrRootMissing, absoluteRoot)
	}
	if !rootInfo.IsDir() {
		return RunConfiguration{}, fmt.Errorf(configurationValueErrorTemplateConstant, ErrRootNotDirectory, absoluteRoot)
	}

	absoluteBackupPath := ""
	if len(sanitized.BackupPath) > 0 {
		resolvedBackupPath, backupError := fileSystem.Abs(homeExpander.Expand(sanitized.BackupPath))
		if backupError != nil {
			return RunConfiguration{}, fmt.Errorf(backupResolutionErrorTemplateConstant, sanitized.BackupPath, backupError)
		}
		absoluteBackupPath = resolvedBackupPath
	}

	if sanitized.CommandTimeout <= 0 {
		return RunConfiguration{}, fmt.Errorf(configurationValueErrorTemplateConstant, ErrInvalidCommandTimeout, sanitized.CommandTimeout)
	}
	if sanitized.CompressionLevel < minimumCompressionLevelConstant || sanitized.CompressionLevel > maximumCompressionLevelConstant {
		return RunConfiguration{}, fmt.Errorf(compressionErrorTemplateConstant, ErrInvalidCompressionLevel, sanitized.CompressionLevel)
	}
	if sanitized.PackDepth <= 0 || sanitized.PackWindow <= 0 {
		return RunConfiguration{}, fmt.Errorf(packSettingErrorTemplateConstant, ErrInvalidPackSettings, sanitized.PackDepth, sanitized.PackWindow)
	}

	return RunConfiguration{
		root:            filepath.Clean(absoluteRoot),
		backupPath:      absoluteBackupPath,
		keepBackup:      sanitized.KeepBackup,
		dryRun:          sanitized.DryRun,
		skipRemoteCheck: sanitized.SkipRemoteCheck,
		autoCommit:      sanitized.AutoCommit,
		exclusions:      sanitized.Exclude,
		logFile:         homeExpander.Expand(sanitized.LogFile),
		commandTimeout:  sanitized.CommandTimeout,
		reportFile:      homeExpander.Expand(sanitized.ReportFile),
		metricsFile:     homeExpander.Expand(sanitized.MetricsFile),
		compression: shared.CompressionSettings{
			Level:  sanitized.CompressionLevel,
			Depth:  sanitized.PackDepth,
			Window: sanitized.PackWindow,
		},
	}, nil
}

// Root returns the absolute directory scanned for repositories.
func (configuration RunConfiguration) Root() string {
	return configuration.root
}

// BackupPath returns the absolute backup root, or an empty string for per-repository sibling folders.
func (configuration RunConfiguration) BackupPath() string {
	return configuration.backupPath
}

// DryRun reports whether mutations are simulated.
func (configuration RunConfiguration) DryRun() bool {
	return configuration.dryRun
}

// Exclusions returns a copy of the exclusion patterns.
func (configuration RunConfiguration) Exclusions() []string {
	duplicated := make([]string, len(configuration.exclusions))
	copy(duplicated, configuration.exclusions)
	return duplicated
}

// LogFile returns the optional plain-text run log path.
func (configuration RunConfiguration) LogFile() string {
	return configuration.logFile
}

// CommandTimeout returns the per-command timeout.
func (configuration RunConfiguration) CommandTimeout() time.Duration {
	return configuration.commandTimeout
}

// ReportFile returns the optional YAML report path.
func (configuration RunConfiguration) ReportFile() string {
	return configuration.reportFile
}

// MetricsFile returns the optional Prometheus textfile path.
func (configuration RunConfiguration) MetricsFile() string {
	return configuration.metricsFile
}

// Compression returns the compression settings applied during compaction.
func (configuration RunConfiguration) Compression() shared.CompressionSettings {
	return configuration.compression
}

// AutoCommitPolicy returns the auto-commit policy.
func (configuration RunConfiguration) AutoCommitPolicy() shared.AutoCommitPolicy {
	return shared.AutoCommitPolicyFromBool(configuration.autoCommit)
}

// RemoteCheckPolicy returns the remote presence policy.
func (configuration RunConfiguration) RemoteCheckPolicy() shared.RemoteCheckPolicy {
	return shared.RemoteCheckPolicyFromSkipFlag(configuration.skipRemoteCheck)
}

// BackupRetentionPolicy returns the backup retention policy.
func (configuration RunConfiguration) BackupRetentionPolicy() shared.BackupRetentionPolicy {
	return shared.BackupRetentionPolicyFromBool(configuration.keepBackup)
}

// Description summarizes the configuration for reporters.
func (configuration RunConfiguration) Description(startedAt time.Time) shared.RunDescription {
	return shared.RunDescription{
		Root:            configuration.root,
		BackupPath:      configuration.backupPath,
		DryRun:          configuration.dryRun,
		KeepBackup:      configuration.keepBackup,
		SkipRemoteCheck: configuration.skipRemoteCheck,
		AutoCommit:      configuration.autoCommit,
		Exclusions:      configuration.Exclusions(),
		StartedAt:       startedAt,
	}
}

func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.Root = strings.TrimSpace(configuration.Root)
	sanitized.BackupPath = strings.TrimSpace(configuration.BackupPath)
	sanitized.LogFile = strings.TrimSpace(configuration.LogFile)
	sanitized.ReportFile = strings.TrimSpace(configuration.ReportFile)
	sanitized.MetricsFile = strings.TrimSpace(configuration.MetricsFile)
	sanitized.Exclude = sanitizeExclusions(configuration.Exclude)
	return sanitized
}

func sanitizeExclusions(raw []string) []string {
	sanitized := make([]string, 0, len(raw))
	for _, candidate := range raw {
		for _, pattern := range strings.Split(candidate, exclusionSeparatorConstant) {
			trimmedPattern := strings.TrimSpace(pattern)
			if len(trimmedPattern) == 0 {
				continue
			}
			sanitized = append(sanitized, trimmedPattern)
		}
	}
	return sanitized
}
