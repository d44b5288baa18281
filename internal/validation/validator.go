// Package validation implements the integrity checks run before and after compacting a repository.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	fileSystemMissingMessageConstant        = "filesystem not configured"
	lockFileSuffixConstant                  = ".lock"
	lockFilesPresentTemplateConstant        = "lock files present: %s"
	remoteListingFailedTemplateConstant     = "no remote configured: %v"
	noRemoteConfiguredMessageConstant       = "no remote configured"
	postIntegrityFailedTemplateConstant     = "post-compaction integrity check failed: %w"
	countMismatchTemplateConstant           = "%s count changed: %d -> %d"
	countUnavailableTemplateConstant        = "%s count unavailable: %d -> %d"
	commitCountLabelConstant                = "commit"
	branchCountLabelConstant                = "branch"
	tagCountLabelConstant                   = "tag"
	countMismatchMessageConstant            = "history count mismatch"
)

// ErrRepositoryManagerNotConfigured indicates the validator was constructed without a repository manager.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// ErrFileSystemNotConfigured indicates the validator was constructed without a filesystem.
var ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)

// ErrCountMismatch is matched by CountMismatchError.
var ErrCountMismatch = errors.New(countMismatchMessageConstant)

// CountMismatchError reports a history count that differs from the value recorded before compaction.
type CountMismatchError struct {
	Label    string
	Original int
	Current  int
}

// Error describes the mismatch as "original -> current".
func (mismatchError CountMismatchError) Error() string {
	if mismatchError.Original < 0 || mismatchError.Current < 0 {
		return fmt.Sprintf(countUnavailableTemplateConstant, mismatchError.Label, mismatchError.Original, mismatchError.Current)
	}
	return fmt.Sprintf(countMismatchTemplateConstant, mismatchError.Label, mismatchError.Original, mismatchError.Current)
}

// Is allows errors.Is(err, ErrCountMismatch).
func (mismatchError CountMismatchError) Is(target error) bool {
	return target == ErrCountMismatch
}

// Dependencies enumerates collaborators required by the validator.
type Dependencies struct {
	RepositoryManager shared.GitRepositoryManager
	FileSystem        shared.FileSystem
}

// PreCompactionResult captures the decision of the pre-compaction checks.
type PreCompactionResult struct {
	Allowed bool
	Status  shared.RepositoryStatus
	Reason  string
}

// Validator runs structural checks against a repository.
type Validator struct {
	repositoryManager shared.GitRepositoryManager
	fileSystem        shared.FileSystem
}

// NewValidator constructs a Validator.
func NewValidator(dependencies Dependencies) (*Validator, error) {
	if dependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	if dependencies.FileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	return &Validator{repositoryManager: dependencies.RepositoryManager, fileSystem: dependencies.FileSystem}, nil
}

// ValidatePreCompaction checks, in order, for lock files, a configured remote, and structural integrity.
// The first failing check decides the skip status and later checks are not run.
func (validator *Validator) ValidatePreCompaction(executionContext context.Context, repository shared.Repository, remotePolicy shared.RemoteCheckPolicy) PreCompactionResult {
	if lockResult := validator.CheckLocks(repository); !lockResult.Allowed {
		return lockResult
	}

	if remotePolicy.RequireRemote() {
		remotes, remoteError := validator.repositoryManager.ListRemotes(executionContext, repository.Path)
		if remoteError != nil {
			return PreCompactionResult{
				Status: shared.RepositoryStatusSkippedNoRemote,
				Reason: fmt.Sprintf(remoteListingFailedTemplateConstant, remoteError),
			}
		}
		if len(remotes) == 0 {
			return PreCompactionResult{
				Status: shared.RepositoryStatusSkippedNoRemote,
				Reason: noRemoteConfiguredMessageConstant,
			}
		}
	}

	if integrityError := validator.repositoryManager.CheckIntegrity(executionContext, repository.Path); integrityError != nil {
		return PreCompactionResult{
			Status: shared.RepositoryStatusSkippedCorrupt,
			Reason: integrityError.Error(),
		}
	}

	return PreCompactionResult{Allowed: true, Status: shared.RepositoryStatusPending}
}

// CheckLocks skips repositories holding a lock marker. It only reads the filesystem.
func (validator *Validator) CheckLocks(repository shared.Repository) PreCompactionResult {
	if lockFile, locked := validator.FindLockFile(repository); locked {
		return PreCompactionResult{
			Status: shared.RepositoryStatusSkippedLocked,
			Reason: fmt.Sprintf(lockFilesPresentTemplateConstant, lockFile),
		}
	}
	return PreCompactionResult{Allowed: true, Status: shared.RepositoryStatusPending}
}

// FindLockFile returns the first lock marker found under the repository metadata directory, relative to it.
func (validator *Validator) FindLockFile(repository shared.Repository) (string, bool) {
	gitDirectory := repository.GitDirectory()
	var lockFile string
	_ = validator.fileSystem.WalkDir(gitDirectory, func(path string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			return nil
		}
		if directoryEntry.IsDir() || !strings.HasSuffix(directoryEntry.Name(), lockFileSuffixConstant) {
			return nil
		}
		relativePath, relativeError := filepath.Rel(gitDirectory, path)
		if relativeError != nil {
			relativePath = path
		}
		lockFile = relativePath
		return fs.SkipAll
	})
	return lockFile, len(lockFile) > 0
}

// CaptureCounts records the commit, branch, and tag counts of the repository.
func (validator *Validator) CaptureCounts(executionContext context.Context, repositoryPath string) shared.RepositoryCounts {
	return shared.RepositoryCounts{
		Commits:  validator.repositoryManager.CountCommits(executionContext, repositoryPath),
		Branches: validator.repositoryManager.CountBranches(executionContext, repositoryPath),
		Tags:     validator.repositoryManager.CountTags(executionContext, repositoryPath),
	}
}

// ValidatePostCompaction re-runs the integrity check and then requires every count to equal the original.
// A count that could not be obtained on either side is treated as a mismatch.
func (validator *Validator) ValidatePostCompaction(executionContext context.Context, repositoryPath string, original shared.RepositoryCounts) error {
	if integrityError := validator.repositoryManager.CheckIntegrity(executionContext, repositoryPath); integrityError != nil {
		return fmt.Errorf(postIntegrityFailedTemplateConstant, integrityError)
	}
	return CompareCounts(original, validator.CaptureCounts(executionContext, repositoryPath))
}

// CompareCounts returns a CountMismatchError for the first count, in commit, branch, tag order, that differs.
func CompareCounts(original shared.RepositoryCounts, current shared.RepositoryCounts) error {
	comparisons := []CountMismatchError{
		{Label: commitCountLabelConstant, Original: original.Commits, Current: current.Commits},
		{Label: branchCountLabelConstant, Original: original.Branches, Current: current.Branches},
		{Label: tagCountLabelConstant, Original: original.Tags, Current: current.Tags},
	}
	for _, comparison := range comparisons {
		if comparison.Original < 0 || comparison.Current < 0 || comparison.Original != comparison.Current {
			return comparison
		}
	}
	return nil
}
