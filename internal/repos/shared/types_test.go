package shared_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitcompact/internal/repos/shared"
)

func TestRepositoryStatusLabels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		status     shared.RepositoryStatus
		expected   string
		isTerminal bool
		isSkipped  bool
	}{
		{name: "pending", status: shared.RepositoryStatusPending, expected: "PENDING"},
		{name: "skipped_locked", status: shared.RepositoryStatusSkippedLocked, expected: "SKIPPED_LOCKED", isTerminal: true, isSkipped: true},
		{name: "skipped_corrupt", status: shared.RepositoryStatusSkippedCorrupt, expected: "SKIPPED_CORRUPT", isTerminal: true, isSkipped: true},
		{name: "skipped_no_remote", status: shared.RepositoryStatusSkippedNoRemote, expected: "SKIPPED_NO_REMOTE", isTerminal: true, isSkipped: true},
		{name: "compacted", status: shared.RepositoryStatusCompacted, expected: "COMPACTED", isTerminal: true},
		{name: "failed", status: shared.RepositoryStatusFailed, expected: "FAILED", isTerminal: true},
		{name: "restored", status: shared.RepositoryStatusRestored, expected: "RESTORED", isTerminal: true},
		{name: "unknown", status: shared.RepositoryStatus(42), expected: "UNKNOWN(42)"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, testCase.expected, testCase.status.String())
			require.Equal(t, testCase.isTerminal, testCase.status.IsTerminal())
			require.Equal(t, testCase.isSkipped, testCase.status.IsSkipped())
		})
	}
}

func TestRepositoryTransitionsDoNotShareStages(t *testing.T) {
	t.Parallel()

	pending := shared.NewRepository("/projects/sample")
	validating := pending.Enter(shared.PipelineStagePreValidating)
	backingUp := validating.Enter(shared.PipelineStageBackingUp)
	skipped := validating.WithSizeBefore(512).Skip(shared.RepositoryStatusSkippedNoRemote, "no remote")

	require.Equal(t, []shared.PipelineStage{shared.PipelineStagePending}, pending.Stages)
	require.Equal(t, []shared.PipelineStage{shared.PipelineStagePending, shared.PipelineStagePreValidating}, validating.Stages)
	require.Equal(t, shared.PipelineStageBackingUp, backingUp.CurrentStage())
	require.Equal(t, shared.PipelineStageSkipped, skipped.CurrentStage())
	require.Equal(t, shared.RepositoryStatusPending, validating.Status)
	require.Equal(t, shared.RepositoryStatusSkippedNoRemote, skipped.Status)
	require.Equal(t, int64(512), skipped.SizeAfter)
	require.Zero(t, skipped.BytesSaved())
	require.Equal(t, "sample", pending.Name())
	require.Equal(t, "/projects/sample/.git", pending.GitDirectory())
}

func TestRepositoryFailureKinds(t *testing.T) {
	t.Parallel()

	repository := shared.NewRepository("/projects/sample")
	require.Equal(t, shared.FailureKindNone, repository.FailureKind)

	failed := repository.Fail(shared.FailureKindRestoreFailed, "repack failed; BACKUP RESTORE ALSO FAILED")
	require.Equal(t, shared.RepositoryStatusFailed, failed.Status)
	require.Equal(t, shared.FailureKindRestoreFailed, failed.FailureKind)
	require.Equal(t, shared.FailureKindNone, repository.FailureKind)

	restored := repository.WithRestoredCounts(shared.RepositoryCounts{Commits: 3, Branches: 1, Tags: 0}).Restore("repack failed")
	require.NotNil(t, restored.RestoredCounts)
	require.Equal(t, 3, restored.RestoredCounts.Commits)
	require.Nil(t, repository.RestoredCounts)
}

func TestRepositoryCountsValidity(t *testing.T) {
	t.Parallel()

	require.True(t, shared.RepositoryCounts{Commits: 0, Branches: 0, Tags: 0}.Valid())
	require.False(t, shared.RepositoryCounts{Commits: shared.InvalidCountSentinel, Branches: 1, Tags: 1}.Valid())
	require.False(t, shared.RepositoryCounts{Commits: 1, Branches: 1, Tags: shared.InvalidCountSentinel}.Valid())
}

func TestRunSummaryRecord(t *testing.T) {
	t.Parallel()

	outcomes := []shared.Repository{
		shared.NewRepository("/a").WithSizeBefore(1000).WithSizeAfter(400).WithAutoCommitted().Compact("compacted"),
		shared.NewRepository("/b").WithSizeBefore(300).Skip(shared.RepositoryStatusSkippedLocked, "locked"),
		shared.NewRepository("/c").WithSizeBefore(200).Skip(shared.RepositoryStatusSkippedCorrupt, "corrupt"),
		shared.NewRepository("/d").WithSizeBefore(100).Skip(shared.RepositoryStatusSkippedNoRemote, "no remote"),
		shared.NewRepository("/e").WithSizeBefore(50).WithSizeAfter(50).Fail(shared.FailureKindSafe, "backup failed"),
		shared.NewRepository("/f").WithSizeBefore(60).WithSizeAfter(60).Fail(shared.FailureKindRestoreFailed, "restore failed"),
		shared.NewRepository("/g").WithSizeBefore(70).WithSizeAfter(70).Restore("repack failed"),
	}

	summary := shared.RunSummary{}
	for _, outcome := range outcomes {
		var recordError error
		summary, recordError = summary.Record(outcome)
		require.NoError(t, recordError)
	}

	require.Equal(t, 7, summary.TotalRepositories)
	require.Equal(t, 1, summary.Compacted)
	require.Equal(t, 3, summary.Skipped())
	require.Equal(t, 2, summary.Failed)
	require.Equal(t, 1, summary.RestoreFailed)
	require.Equal(t, 1, summary.Restored)
	require.Equal(t, 1, summary.AutoCommitted)
	require.Equal(t, int64(1780), summary.TotalSizeBefore)
	require.Equal(t, int64(1180), summary.TotalSizeAfter)
	require.Equal(t, int64(600), summary.BytesSaved())
}

func TestRunSummaryRejectsNonTerminalStatuses(t *testing.T) {
	t.Parallel()

	summary := shared.RunSummary{}
	_, pendingError := summary.Record(shared.NewRepository("/pending"))
	require.True(t, errors.Is(pendingError, shared.ErrNonTerminalRepository))

	unknown := shared.NewRepository("/unknown")
	unknown.Status = shared.RepositoryStatus(99)
	unchanged, unknownError := summary.Record(unknown)
	require.ErrorIs(t, unknownError, shared.ErrUnknownRepositoryStatus)
	require.Zero(t, unchanged.TotalRepositories)
}

func TestPoliciesFromFlags(t *testing.T) {
	t.Parallel()

	require.True(t, shared.AutoCommitPolicyFromBool(true).ShouldCommit())
	require.False(t, shared.AutoCommitPolicyFromBool(false).ShouldCommit())
	require.True(t, shared.RemoteCheckPolicyFromSkipFlag(false).RequireRemote())
	require.False(t, shared.RemoteCheckPolicyFromSkipFlag(true).RequireRemote())
	require.True(t, shared.BackupRetentionPolicyFromBool(true).KeepBackup())
	require.False(t, shared.BackupRetentionPolicyFromBool(false).KeepBackup())
}
