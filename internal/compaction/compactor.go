package compaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/temirov/gitcompact/internal/repos/filesystem"
	"github.com/temirov/gitcompact/internal/repos/shared"
	"github.com/temirov/gitcompact/internal/validation"
)

const (
	autoCommitMessageTemplateConstant       = "Auto commit by git-compact [%s]"
	autoCommitTimestampLayoutConstant       = "2006-01-02 15:04:05"
	autoCommitFailedTemplateConstant        = "auto-commit failed: %v"
	countsUnavailableTemplateConstant       = "unable to count history: commits=%d branches=%d tags=%d"
	dryRunMessageConstant                   = "[DRY-RUN] compaction simulated"
	backupFailedTemplateConstant            = "backup failed, nothing was modified: %v"
	compactionStepFailedTemplateConstant    = "%s failed: %v"
	postValidationFailedTemplateConstant    = "post-compaction validation failed: %v"
	compactedMessageTemplateConstant        = "compacted %s -> %s"
	restoredMessageTemplateConstant         = "%s; repository restored from backup"
	restoredCountsDifferTemplateConstant    = "%s; warning: restored history differs from original: %v"
	restoreFailedMessageTemplateConstant    = "%s; BACKUP RESTORE ALSO FAILED: %v (backup kept at %s)"
	stepApplyConfigurationConstant          = "compression configuration"
	stepExpireReflogConstant                = "reflog expiry"
	stepRepackConstant                      = "repack"
	stepCollectGarbageConstant              = "garbage collection"
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	validatorMissingMessageConstant         = "validator not configured"
	backupManagerMissingMessageConstant     = "backup manager not configured"
	fileSystemMissingMessageConstant        = "filesystem not configured"

	statusCheckFailedMessageConstant   = "Unable to determine working tree status"
	autoCommittedMessageConstant       = "Committed uncommitted changes"
	dryRunAutoCommitMessageConstant    = "Would commit uncommitted changes"
	repositorySkippedMessageConstant   = "Repository skipped"
	repositoryCompactedMessageConstant = "Repository compacted"
	repositoryRestoredMessageConstant  = "Repository restored after failed compaction"
	repositoryFailedMessageConstant    = "Repository failed"
	backupRemovalFailedMessageConstant = "Unable to remove backup after compaction"
	logFieldRepositoryConstant         = "repository"
	logFieldStatusConstant             = "status"
	logFieldReasonConstant             = "reason"
	logFieldSizeBeforeConstant         = "size_before"
	logFieldSizeAfterConstant          = "size_after"
	logFieldBackupConstant             = "backup"
	logFieldFailureKindConstant        = "failure_kind"
)

// ErrRepositoryManagerNotConfigured indicates the compactor was constructed without a repository manager.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// ErrValidatorNotConfigured indicates the compactor was constructed without a validator.
var ErrValidatorNotConfigured = errors.New(validatorMissingMessageConstant)

// ErrBackupManagerNotConfigured indicates the compactor was constructed without a backup manager.
var ErrBackupManagerNotConfigured = errors.New(backupManagerMissingMessageConstant)

// ErrFileSystemNotConfigured indicates the compactor was constructed without a filesystem.
var ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)

// RepositoryValidator runs the checks surrounding compaction.
type RepositoryValidator interface {
	CheckLocks(repository shared.Repository) validation.PreCompactionResult
	ValidatePreCompaction(executionContext context.Context, repository shared.Repository, remotePolicy shared.RemoteCheckPolicy) validation.PreCompactionResult
	CaptureCounts(executionContext context.Context, repositoryPath string) shared.RepositoryCounts
	ValidatePostCompaction(executionContext context.Context, repositoryPath string, original shared.RepositoryCounts) error
}

// BackupManager creates and restores repository backups.
type BackupManager interface {
	CreateBackup(executionContext context.Context, repository shared.Repository) (string, error)
	RestoreBackup(executionContext context.Context, repository shared.Repository, bundlePath string) error
	RemoveBackup(bundlePath string) error
}

// PipelineOptions captures the run-level switches consulted by the compactor.
type PipelineOptions struct {
	DryRun          bool
	AutoCommit      shared.AutoCommitPolicy
	RemoteCheck     shared.RemoteCheckPolicy
	BackupRetention shared.BackupRetentionPolicy
	Compression     shared.CompressionSettings
}

// PipelineOptionsFromConfiguration derives pipeline options from a run configuration.
func PipelineOptionsFromConfiguration(configuration RunConfiguration) PipelineOptions {
	return PipelineOptions{
		DryRun:          configuration.DryRun(),
		AutoCommit:      configuration.AutoCommitPolicy(),
		RemoteCheck:     configuration.RemoteCheckPolicy(),
		BackupRetention: configuration.BackupRetentionPolicy(),
		Compression:     configuration.Compression(),
	}
}

// CompactorDependencies enumerates collaborators required by the compactor.
type CompactorDependencies struct {
	RepositoryManager shared.GitRepositoryManager
	Validator         RepositoryValidator
	Backups           BackupManager
	FileSystem        shared.FileSystem
	Clock             shared.Clock
	Logger            *zap.Logger
}

// Compactor drives a single repository through the compaction state machine.
type Compactor struct {
	repositoryManager shared.GitRepositoryManager
	validator         RepositoryValidator
	backups           BackupManager
	fileSystem        shared.FileSystem
	clock             shared.Clock
	logger            *zap.Logger
	options           PipelineOptions
}

type compactionStep struct {
	name   string
	action func(executionContext context.Context, repositoryPath string) error
}

// NewCompactor constructs a Compactor.
func NewCompactor(dependencies CompactorDependencies, options PipelineOptions) (*Compactor, error) {
	if dependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	if dependencies.Validator == nil {
		return nil, ErrValidatorNotConfigured
	}
	if dependencies.Backups == nil {
		return nil, ErrBackupManagerNotConfigured
	}
	if dependencies.FileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		repositoryManager: dependencies.RepositoryManager,
		validator:         dependencies.Validator,
		backups:           dependencies.Backups,
		fileSystem:        dependencies.FileSystem,
		clock:             clock,
		logger:            logger,
		options:           options,
	}, nil
}

// Process runs the repository through every pipeline stage and returns its terminal record.
// Once a backup exists every failure goes through the restore path.
func (compactor *Compactor) Process(executionContext context.Context, repository shared.Repository) shared.Repository {
	repository = repository.WithSizeBefore(compactor.measure(repository))

	if lockResult := compactor.validator.CheckLocks(repository); !lockResult.Allowed {
		return compactor.finish(repository.Enter(shared.PipelineStagePreValidating).Skip(lockResult.Status, lockResult.Reason))
	}

	repository, commitError := compactor.autoCommit(executionContext, repository)
	if commitError != nil {
		return compactor.finish(repository.Fail(shared.FailureKindSafe, fmt.Sprintf(autoCommitFailedTemplateConstant, commitError)).WithSizeAfter(repository.SizeBefore))
	}

	repository = repository.Enter(shared.PipelineStagePreValidating)
	preValidation := compactor.validator.ValidatePreCompaction(executionContext, repository, compactor.options.RemoteCheck)
	if !preValidation.Allowed {
		return compactor.finish(repository.Skip(preValidation.Status, preValidation.Reason))
	}

	counts := compactor.validator.CaptureCounts(executionContext, repository.Path)
	repository = repository.WithCounts(counts)
	if !counts.Valid() {
		reason := fmt.Sprintf(countsUnavailableTemplateConstant, counts.Commits, counts.Branches, counts.Tags)
		return compactor.finish(repository.Skip(shared.RepositoryStatusSkippedCorrupt, reason))
	}

	if compactor.options.DryRun {
		return compactor.finish(repository.Compact(dryRunMessageConstant).WithSizeAfter(repository.SizeBefore))
	}

	repository = repository.Enter(shared.PipelineStageBackingUp)
	backupPath, backupError := compactor.backups.CreateBackup(executionContext, repository)
	if backupError != nil {
		return compactor.finish(repository.Fail(shared.FailureKindSafe, fmt.Sprintf(backupFailedTemplateConstant, backupError)).WithSizeAfter(repository.SizeBefore))
	}
	repository = repository.WithBackupPath(backupPath)

	repository = repository.Enter(shared.PipelineStageCompacting)
	for _, step := range compactor.compactionSteps() {
		if stepError := step.action(executionContext, repository.Path); stepError != nil {
			return compactor.finish(compactor.rollback(executionContext, repository, fmt.Sprintf(compactionStepFailedTemplateConstant, step.name, stepError)))
		}
	}

	repository = repository.Enter(shared.PipelineStagePostValidating)
	if validationError := compactor.validator.ValidatePostCompaction(executionContext, repository.Path, repository.Counts); validationError != nil {
		return compactor.finish(compactor.rollback(executionContext, repository, fmt.Sprintf(postValidationFailedTemplateConstant, validationError)))
	}

	repository = repository.WithSizeAfter(compactor.measure(repository))
	repository = repository.Compact(fmt.Sprintf(compactedMessageTemplateConstant, humanize.Bytes(uint64(repository.SizeBefore)), humanize.Bytes(uint64(repository.SizeAfter))))

	if !compactor.options.BackupRetention.KeepBackup() {
		if removalError := compactor.backups.RemoveBackup(repository.BackupPath); removalError != nil {
			compactor.logger.Warn(backupRemovalFailedMessageConstant, zap.String(logFieldBackupConstant, repository.BackupPath), zap.Error(removalError))
		} else {
			repository = repository.WithBackupPath("")
		}
	}

	return compactor.finish(repository)
}

func (compactor *Compactor) autoCommit(executionContext context.Context, repository shared.Repository) (shared.Repository, error) {
	if !compactor.options.AutoCommit.ShouldCommit() {
		return repository, nil
	}

	dirty, statusError := compactor.repositoryManager.HasUncommittedChanges(executionContext, repository.Path)
	if statusError != nil {
		compactor.logger.Warn(statusCheckFailedMessageConstant, zap.String(logFieldRepositoryConstant, repository.Path), zap.Error(statusError))
		return repository, nil
	}
	if !dirty {
		return repository, nil
	}

	repository = repository.Enter(shared.PipelineStageAutoCommitting)
	if compactor.options.DryRun {
		compactor.logger.Info(dryRunAutoCommitMessageConstant, zap.String(logFieldRepositoryConstant, repository.Path))
		return repository.WithAutoCommitted(), nil
	}

	if stageError := compactor.repositoryManager.StageAll(executionContext, repository.Path); stageError != nil {
		return repository, stageError
	}
	commitMessage := fmt.Sprintf(autoCommitMessageTemplateConstant, compactor.clock.Now().Format(autoCommitTimestampLayoutConstant))
	if commitError := compactor.repositoryManager.Commit(executionContext, repository.Path, commitMessage); commitError != nil {
		return repository, commitError
	}

	compactor.logger.Info(autoCommittedMessageConstant, zap.String(logFieldRepositoryConstant, repository.Path))
	return repository.WithAutoCommitted(), nil
}

func (compactor *Compactor) compactionSteps() []compactionStep {
	compression := compactor.options.Compression
	return []compactionStep{
		{
			name: stepApplyConfigurationConstant,
			action: func(executionContext context.Context, repositoryPath string) error {
				return compactor.repositoryManager.ApplyCompressionConfiguration(executionContext, repositoryPath, compression)
			},
		},
		{name: stepExpireReflogConstant, action: compactor.repositoryManager.ExpireReflog},
		{
			name: stepRepackConstant,
			action: func(executionContext context.Context, repositoryPath string) error {
				return compactor.repositoryManager.Repack(executionContext, repositoryPath, compression)
			},
		},
		{name: stepCollectGarbageConstant, action: compactor.repositoryManager.CollectGarbage},
	}
}

func (compactor *Compactor) rollback(executionContext context.Context, repository shared.Repository, failureMessage string) shared.Repository {
	repository = repository.Enter(shared.PipelineStageRestoring)

	restoreError := compactor.backups.RestoreBackup(executionContext, repository, repository.BackupPath)
	if restoreError != nil {
		message := fmt.Sprintf(restoreFailedMessageTemplateConstant, failureMessage, restoreError, repository.BackupPath)
		return repository.Fail(shared.FailureKindRestoreFailed, message).WithSizeAfter(compactor.measure(repository))
	}

	restoredCounts := compactor.validator.CaptureCounts(executionContext, repository.Path)
	message := fmt.Sprintf(restoredMessageTemplateConstant, failureMessage)
	if mismatchError := validation.CompareCounts(repository.Counts, restoredCounts); mismatchError != nil {
		message = fmt.Sprintf(restoredCountsDifferTemplateConstant, message, mismatchError)
	}
	return repository.WithRestoredCounts(restoredCounts).Restore(message).WithSizeAfter(compactor.measure(repository))
}

func (compactor *Compactor) finish(repository shared.Repository) shared.Repository {
	fields := []zap.Field{
		zap.String(logFieldRepositoryConstant, repository.Path),
		zap.String(logFieldStatusConstant, repository.Status.String()),
		zap.String(logFieldReasonConstant, repository.Message),
		zap.Int64(logFieldSizeBeforeConstant, repository.SizeBefore),
		zap.Int64(logFieldSizeAfterConstant, repository.SizeAfter),
	}
	switch repository.Status {
	case shared.RepositoryStatusSkippedLocked, shared.RepositoryStatusSkippedCorrupt, shared.RepositoryStatusSkippedNoRemote:
		compactor.logger.Info(repositorySkippedMessageConstant, fields...)
	case shared.RepositoryStatusCompacted:
		compactor.logger.Info(repositoryCompactedMessageConstant, fields...)
	case shared.RepositoryStatusRestored:
		compactor.logger.Warn(repositoryRestoredMessageConstant, append(fields, zap.String(logFieldBackupConstant, repository.BackupPath))...)
	case shared.RepositoryStatusFailed:
		compactor.logger.Error(repositoryFailedMessageConstant, append(fields, zap.String(logFieldFailureKindConstant, string(repository.FailureKind)))...)
	case shared.RepositoryStatusPending:
		compactor.logger.Error(repositoryFailedMessageConstant, fields...)
	}
	return repository
}

func (compactor *Compactor) measure(repository shared.Repository) int64 {
	return filesystem.DirectorySize(compactor.fileSystem, repository.GitDirectory())
}
