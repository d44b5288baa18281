package compaction_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/gitcompact/internal/compaction"
	"github.com/temirov/gitcompact/internal/repos/filesystem"
	"github.com/temirov/gitcompact/internal/repos/shared"
)

func sampleOutcome() shared.RunOutcome {
	compacted := shared.NewRepository("/projects/alpha").
		WithSizeBefore(5_000_000).
		WithCounts(shared.RepositoryCounts{Commits: 10, Branches: 2, Tags: 1}).
		WithSizeAfter(2_000_000).
		Compact("compacted 5.0 MB -> 2.0 MB")
	restored := shared.NewRepository("/projects/beta").
		WithSizeBefore(1000).
		WithBackupPath("/backups/beta.bundle").
		WithRestoredCounts(shared.RepositoryCounts{Commits: 3, Branches: 1}).
		WithSizeAfter(1000).
		Restore("repack failed: boom; repository restored from backup")

	summary := shared.RunSummary{}
	summary, _ = summary.Record(compacted)
	summary, _ = summary.Record(restored)

	return shared.RunOutcome{
		Description:  shared.RunDescription{Root: "/projects", StartedAt: testInstant},
		Repositories: []shared.Repository{compacted, restored},
		Summary:      summary,
		Elapsed:      2500 * time.Millisecond,
	}
}

func TestBuildRunReport(testInstance *testing.T) {
	report := compaction.BuildRunReport(sampleOutcome())

	require.Equal(testInstance, "/projects", report.Root)
	require.Equal(testInstance, "2025-03-04T05:06:07Z", report.StartedAt)
	require.Equal(testInstance, "2.5s", report.Elapsed)
	require.Equal(testInstance, 2, report.Summary.Total)
	require.Equal(testInstance, 1, report.Summary.Compacted)
	require.Equal(testInstance, 1, report.Summary.Restored)
	require.Equal(testInstance, int64(3_000_000), report.Summary.BytesSaved)
	require.Equal(testInstance, "3.0 MB", report.Summary.Saved)

	require.Len(testInstance, report.Repositories, 2)
	require.Equal(testInstance, "COMPACTED", report.Repositories[0].Status)
	require.Equal(testInstance, []string{"pending", "compacted"}, report.Repositories[0].Stages)
	require.Nil(testInstance, report.Repositories[0].RestoredCounts)
	require.Equal(testInstance, "RESTORED", report.Repositories[1].Status)
	require.Equal(testInstance, "/backups/beta.bundle", report.Repositories[1].BackupPath)
	require.Equal(testInstance, &compaction.ReportCounts{Commits: 3, Branches: 1}, report.Repositories[1].RestoredCounts)
}

func TestBuildRunReportClampsNegativeSavings(testInstance *testing.T) {
	report := compaction.BuildRunReport(shared.RunOutcome{Summary: shared.RunSummary{TotalSizeBefore: 100, TotalSizeAfter: 300}})

	require.Equal(testInstance, int64(-200), report.Summary.BytesSaved)
	require.Equal(testInstance, "0 B", report.Summary.Saved)
}

func TestReportWriterWritesYAML(testInstance *testing.T) {
	reportPath := filepath.Join(testInstance.TempDir(), "reports", "run.yaml")
	writer := compaction.NewReportWriter(filesystem.OSFileSystem{}, reportPath)

	require.NoError(testInstance, writer.RecordRun(sampleOutcome()))

	content, readError := os.ReadFile(reportPath)
	require.NoError(testInstance, readError)
	var decoded compaction.RunReport
	require.NoError(testInstance, yaml.Unmarshal(content, &decoded))
	require.Equal(testInstance, compaction.BuildRunReport(sampleOutcome()), decoded)
	require.NoFileExists(testInstance, reportPath+".tmp")
}

func TestReportWriterReportsWriteFailure(testInstance *testing.T) {
	blockingFile := filepath.Join(testInstance.TempDir(), "blocked")
	require.NoError(testInstance, os.WriteFile(blockingFile, []byte("x"), 0o644))
	writer := compaction.NewReportWriter(filesystem.OSFileSystem{}, filepath.Join(blockingFile, "run.yaml"))

	require.Error(testInstance, writer.RecordRun(sampleOutcome()))
}
