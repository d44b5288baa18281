package shared

import (
	"errors"
	"fmt"
)

const (
	nonTerminalRepositoryMessageConstant   = "repository finished without a terminal status"
	unknownRepositoryStatusMessageConstant = "unknown repository status"
	repositoryStatusErrorTemplateConstant  = "%w: %s (%s)"
)

// ErrNonTerminalRepository indicates a repository was folded into a summary while still pending.
var ErrNonTerminalRepository = errors.New(nonTerminalRepositoryMessageConstant)

// ErrUnknownRepositoryStatus indicates a status outside the closed set of repository statuses.
var ErrUnknownRepositoryStatus = errors.New(unknownRepositoryStatusMessageConstant)

// RunSummary aggregates repository outcomes for a run.
type RunSummary struct {
	TotalRepositories int
	Compacted         int
	SkippedLocked     int
	SkippedCorrupt    int
	SkippedNoRemote   int
	Failed            int
	// RestoreFailed counts failed repositories whose restore also failed; it is a subset of Failed.
	RestoreFailed     int
	Restored          int
	AutoCommitted     int
	TotalSizeBefore   int64
	TotalSizeAfter    int64
}

// Skipped returns the number of repositories that ended in any skip status.
func (summary RunSummary) Skipped() int {
	return summary.SkippedLocked + summary.SkippedCorrupt + summary.SkippedNoRemote
}

// BytesSaved returns the total reduction across all processed repositories.
func (summary RunSummary) BytesSaved() int64 {
	return summary.TotalSizeBefore - summary.TotalSizeAfter
}

// Record folds a terminal repository record into a new summary value.
func (summary RunSummary) Record(repository Repository) (RunSummary, error) {
	switch repository.Status {
	case RepositoryStatusPending:
		return summary, fmt.Errorf(repositoryStatusErrorTemplateConstant, ErrNonTerminalRepository, repository.Path, repository.Status)
	case RepositoryStatusSkippedLocked:
		summary.SkippedLocked++
	case RepositoryStatusSkippedCorrupt:
		summary.SkippedCorrupt++
	case RepositoryStatusSkippedNoRemote:
		summary.SkippedNoRemote++
	case RepositoryStatusCompacted:
		summary.Compacted++
	case RepositoryStatusFailed:
		summary.Failed++
		if repository.FailureKind == FailureKindRestoreFailed {
			summary.RestoreFailed++
		}
	case RepositoryStatusRestored:
		summary.Restored++
	default:
		return summary, fmt.Errorf(repositoryStatusErrorTemplateConstant, ErrUnknownRepositoryStatus, repository.Path, repository.Status)
	}

	summary.TotalRepositories++
	if repository.AutoCommitted {
		summary.AutoCommitted++
	}
	summary.TotalSizeBefore += repository.SizeBefore
	summary.TotalSizeAfter += repository.SizeAfter
	return summary, nil
}
