package shared

import (
	"fmt"
	"path/filepath"
)

const (
	repositoryStatusPendingLabelConstant         = "PENDING"
	repositoryStatusSkippedLockedLabelConstant   = "SKIPPED_LOCKED"
	repositoryStatusSkippedCorruptLabelConstant  = "SKIPPED_CORRUPT"
	repositoryStatusSkippedNoRemoteLabelConstant = "SKIPPED_NO_REMOTE"
	repositoryStatusCompactedLabelConstant       = "COMPACTED"
	repositoryStatusFailedLabelConstant          = "FAILED"
	repositoryStatusRestoredLabelConstant        = "RESTORED"
	repositoryStatusUnknownTemplateConstant      = "UNKNOWN(%d)"

	// InvalidCountSentinel is returned by counting helpers when the underlying command fails.
	InvalidCountSentinel = -1
)

// RepositoryStatus enumerates the interim and terminal states of a repository within one run.
type RepositoryStatus int

// Repository statuses.
const (
	RepositoryStatusPending RepositoryStatus = iota
	RepositoryStatusSkippedLocked
	RepositoryStatusSkippedCorrupt
	RepositoryStatusSkippedNoRemote
	RepositoryStatusCompacted
	RepositoryStatusFailed
	RepositoryStatusRestored
)

// RepositoryStatuses lists every status in declaration order.
var RepositoryStatuses = []RepositoryStatus{
	RepositoryStatusPending,
	RepositoryStatusSkippedLocked,
	RepositoryStatusSkippedCorrupt,
	RepositoryStatusSkippedNoRemote,
	RepositoryStatusCompacted,
	RepositoryStatusFailed,
	RepositoryStatusRestored,
}

// String returns the canonical label of the status.
func (status RepositoryStatus) String() string {
	switch status {
	case RepositoryStatusPending:
		return repositoryStatusPendingLabelConstant
	case RepositoryStatusSkippedLocked:
		return repositoryStatusSkippedLockedLabelConstant
	case RepositoryStatusSkippedCorrupt:
		return repositoryStatusSkippedCorruptLabelConstant
	case RepositoryStatusSkippedNoRemote:
		return repositoryStatusSkippedNoRemoteLabelConstant
	case RepositoryStatusCompacted:
		return repositoryStatusCompactedLabelConstant
	case RepositoryStatusFailed:
		return repositoryStatusFailedLabelConstant
	case RepositoryStatusRestored:
		return repositoryStatusRestoredLabelConstant
	default:
		return fmt.Sprintf(repositoryStatusUnknownTemplateConstant, int(status))
	}
}

// IsTerminal reports whether the status ends a repository's pipeline run.
func (status RepositoryStatus) IsTerminal() bool {
	switch status {
	case RepositoryStatusSkippedLocked, RepositoryStatusSkippedCorrupt, RepositoryStatusSkippedNoRemote,
		RepositoryStatusCompacted, RepositoryStatusFailed, RepositoryStatusRestored:
		return true
	default:
		return false
	}
}

// IsSkipped reports whether the status is one of the skip outcomes.
func (status RepositoryStatus) IsSkipped() bool {
	switch status {
	case RepositoryStatusSkippedLocked, RepositoryStatusSkippedCorrupt, RepositoryStatusSkippedNoRemote:
		return true
	default:
		return false
	}
}

// PipelineStage names a step of the compaction state machine.
type PipelineStage string

// Pipeline stages.
const (
	PipelineStagePending        PipelineStage = "pending"
	PipelineStageAutoCommitting PipelineStage = "auto_committing"
	PipelineStagePreValidating  PipelineStage = "pre_validating"
	PipelineStageBackingUp      PipelineStage = "backing_up"
	PipelineStageCompacting     PipelineStage = "compacting"
	PipelineStagePostValidating PipelineStage = "post_validating"
	PipelineStageRestoring      PipelineStage = "restoring"
	PipelineStageCompacted      PipelineStage = "compacted"
	PipelineStageRestored       PipelineStage = "restored"
	PipelineStageFailed         PipelineStage = "failed"
	PipelineStageSkipped        PipelineStage = "skipped"
)

// FailureKind distinguishes safe failures from failures after an unsuccessful restore.
type FailureKind string

// Failure kinds.
const (
	FailureKindNone          FailureKind = "none"
	FailureKindSafe          FailureKind = "safe"
	FailureKindRestoreFailed FailureKind = "restore_failed"
)

// RepositoryCounts captures the history shape compared before and after compaction.
type RepositoryCounts struct {
	Commits  int
	Branches int
	Tags     int
}

// Valid reports whether every count was obtained successfully.
func (counts RepositoryCounts) Valid() bool {
	return counts.Commits >= 0 && counts.Branches >= 0 && counts.Tags >= 0
}

// Repository is the per-run record of one repository. Transitions return new values.
type Repository struct {
	Path           string
	SizeBefore     int64
	SizeAfter      int64
	Status         RepositoryStatus
	Message        string
	FailureKind    FailureKind
	Counts         RepositoryCounts
	RestoredCounts *RepositoryCounts
	AutoCommitted  bool
	BackupPath     string
	Stages         []PipelineStage
}

// NewRepository constructs a pending repository record for the provided absolute path.
func NewRepository(path string) Repository {
	return Repository{
		Path:        path,
		Status:      RepositoryStatusPending,
		FailureKind: FailureKindNone,
		Stages:      []PipelineStage{PipelineStagePending},
	}
}

// Name returns the final path element of the repository.
func (repository Repository) Name() string {
	return filepath.Base(repository.Path)
}

// GitDirectory returns the path of the repository's metadata directory.
func (repository Repository) GitDirectory() string {
	return filepath.Join(repository.Path, GitMetadataDirectoryNameConstant)
}

// BytesSaved returns the difference between the measured sizes.
func (repository Repository) BytesSaved() int64 {
	return repository.SizeBefore - repository.SizeAfter
}

// CurrentStage returns the most recent pipeline stage.
func (repository Repository) CurrentStage() PipelineStage {
	if len(repository.Stages) == 0 {
		return PipelineStagePending
	}
	return repository.Stages[len(repository.Stages)-1]
}

// Enter records a transition into the provided stage.
func (repository Repository) Enter(stage PipelineStage) Repository {
	stages := make([]PipelineStage, len(repository.Stages), len(repository.Stages)+1)
	copy(stages, repository.Stages)
	repository.Stages = append(stages, stage)
	return repository
}

// WithSizeBefore records the size measured before any mutation.
func (repository Repository) WithSizeBefore(size int64) Repository {
	repository.SizeBefore = size
	return repository
}

// WithSizeAfter records the size measured after the pipeline finished.
func (repository Repository) WithSizeAfter(size int64) Repository {
	repository.SizeAfter = size
	return repository
}

// WithCounts records the ground truth counts captured after pre-validation.
func (repository Repository) WithCounts(counts RepositoryCounts) Repository {
	repository.Counts = counts
	return repository
}

// WithRestoredCounts records counts measured after a successful restore.
func (repository Repository) WithRestoredCounts(counts RepositoryCounts) Repository {
	restoredCounts := counts
	repository.RestoredCounts = &restoredCounts
	return repository
}

// WithAutoCommitted marks the repository as auto-committed.
func (repository Repository) WithAutoCommitted() Repository {
	repository.AutoCommitted = true
	return repository
}

// WithBackupPath records the backup artifact created for this attempt.
func (repository Repository) WithBackupPath(backupPath string) Repository {
	repository.BackupPath = backupPath
	return repository
}

// Skip finishes the repository with a skip status; size-after equals size-before.
func (repository Repository) Skip(status RepositoryStatus, reason string) Repository {
	repository = repository.Enter(PipelineStageSkipped)
	repository.Status = status
	repository.Message = reason
	repository.SizeAfter = repository.SizeBefore
	return repository
}

// Compact finishes the repository as compacted.
func (repository Repository) Compact(message string) Repository {
	repository = repository.Enter(PipelineStageCompacted)
	repository.Status = RepositoryStatusCompacted
	repository.Message = message
	return repository
}

// Restore finishes the repository as restored after a failed compaction.
func (repository Repository) Restore(message string) Repository {
	repository = repository.Enter(PipelineStageRestored)
	repository.Status = RepositoryStatusRestored
	repository.Message = message
	return repository
}

// Fail finishes the repository as failed with the provided failure kind.
func (repository Repository) Fail(failureKind FailureKind, message string) Repository {
	repository = repository.Enter(PipelineStageFailed)
	repository.Status = RepositoryStatusFailed
	repository.FailureKind = failureKind
	repository.Message = message
	return repository
}
