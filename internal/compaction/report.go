package compaction

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	reportTimestampLayoutConstant        = time.RFC3339
	reportFilePermissionsConstant        = fs.FileMode(0o644)
	reportDirectoryPermissionsConstant   = fs.FileMode(0o755)
	reportMarshalErrorTemplateConstant   = "unable to encode run report: %w"
	reportWriteErrorTemplateConstant     = "unable to write run report %s: %w"
	reportTemporarySuffixConstant        = ".tmp"
	reportDirectoryErrorTemplateConstant = "unable to create report directory %s: %w"
)

// RunReport is the YAML document written after a run.
type RunReport struct {
	Root         string             `yaml:"root"`
	StartedAt    string             `yaml:"started_at"`
	Elapsed      string             `yaml:"elapsed"`
	DryRun       bool               `yaml:"dry_run"`
	Interrupted  bool               `yaml:"interrupted"`
	Summary      ReportSummary      `yaml:"summary"`
	Repositories []ReportRepository `yaml:"repositories"`
}

// ReportSummary mirrors shared.RunSummary with derived totals.
type ReportSummary struct {
	Total           int    `yaml:"total"`
	Compacted       int    `yaml:"compacted"`
	SkippedLocked   int    `yaml:"skipped_locked"`
	SkippedCorrupt  int    `yaml:"skipped_corrupt"`
	SkippedNoRemote int    `yaml:"skipped_no_remote"`
	Failed          int    `yaml:"failed"`
	RestoreFailed   int    `yaml:"restore_failed"`
	Restored        int    `yaml:"restored"`
	AutoCommitted   int    `yaml:"auto_committed"`
	SizeBefore      int64  `yaml:"size_before"`
	SizeAfter       int64  `yaml:"size_after"`
	BytesSaved      int64  `yaml:"bytes_saved"`
	Saved           string `yaml:"saved"`
}

// ReportRepository describes one repository in the run report.
type ReportRepository struct {
	Path           string        `yaml:"path"`
	Status         string        `yaml:"status"`
	Message        string        `yaml:"message,omitempty"`
	FailureKind    string        `yaml:"failure_kind"`
	SizeBefore     int64         `yaml:"size_before"`
	SizeAfter      int64         `yaml:"size_after"`
	AutoCommitted  bool          `yaml:"auto_committed"`
	BackupPath     string        `yaml:"backup_path,omitempty"`
	Counts         ReportCounts  `yaml:"counts"`
	RestoredCounts *ReportCounts `yaml:"restored_counts,omitempty"`
	Stages         []string      `yaml:"stages"`
}

// ReportCounts mirrors shared.RepositoryCounts.
type ReportCounts struct {
	Commits  int `yaml:"commits"`
	Branches int `yaml:"branches"`
	Tags     int `yaml:"tags"`
}

// ReportWriter writes a YAML run report to a file.
type ReportWriter struct {
	fileSystem shared.FileSystem
	reportPath string
}

// NewReportWriter constructs a ReportWriter targeting reportPath.
func NewReportWriter(fileSystem shared.FileSystem, reportPath string) *ReportWriter {
	return &ReportWriter{fileSystem: fileSystem, reportPath: reportPath}
}

// RecordRun implements shared.RunRecorder. The report is written to a temporary file and renamed into place.
func (writer *ReportWriter) RecordRun(outcome shared.RunOutcome) error {
	encoded, marshalError := yaml.Marshal(BuildRunReport(outcome))
	if marshalError != nil {
		return fmt.Errorf(reportMarshalErrorTemplateConstant, marshalError)
	}

	reportDirectory := filepath.Dir(writer.reportPath)
	if directoryError := writer.fileSystem.MkdirAll(reportDirectory, reportDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(reportDirectoryErrorTemplateConstant, reportDirectory, directoryError)
	}

	temporaryPath := writer.reportPath + reportTemporarySuffixConstant
	if writeError := writer.fileSystem.WriteFile(temporaryPath, encoded, reportFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(reportWriteErrorTemplateConstant, writer.reportPath, writeError)
	}
	if renameError := writer.fileSystem.Rename(temporaryPath, writer.reportPath); renameError != nil {
		_ = writer.fileSystem.Remove(temporaryPath)
		return fmt.Errorf(reportWriteErrorTemplateConstant, writer.reportPath, renameError)
	}
	return nil
}

// BuildRunReport converts a run outcome into its report document.
func BuildRunReport(outcome shared.RunOutcome) RunReport {
	summary := outcome.Summary
	bytesSaved := summary.BytesSaved()
	savedLabel := humanize.Bytes(uint64(max(bytesSaved, 0)))

	repositories := make([]ReportRepository, 0, len(outcome.Repositories))
	for _, repository := range outcome.Repositories {
		repositories = append(repositories, buildReportRepository(repository))
	}

	return RunReport{
		Root:        outcome.Description.Root,
		StartedAt:   outcome.Description.StartedAt.Format(reportTimestampLayoutConstant),
		Elapsed:     outcome.Elapsed.Round(time.Millisecond).String(),
		DryRun:      outcome.Description.DryRun,
		Interrupted: outcome.Interrupted,
		Summary: ReportSummary{
			Total:           summary.TotalRepositories,
			Compacted:       summary.Compacted,
			SkippedLocked:   summary.SkippedLocked,
			SkippedCorrupt:  summary.SkippedCorrupt,
			SkippedNoRemote: summary.SkippedNoRemote,
			Failed:          summary.Failed,
			RestoreFailed:   summary.RestoreFailed,
			Restored:        summary.Restored,
			AutoCommitted:   summary.AutoCommitted,
			SizeBefore:      summary.TotalSizeBefore,
			SizeAfter:       summary.TotalSizeAfter,
			BytesSaved:      bytesSaved,
			Saved:           savedLabel,
		},
		Repositories: repositories,
	}
}

func buildReportRepository(repository shared.Repository) ReportRepository {
	stages := make([]string, 0, len(repository.Stages))
	for _, stage := range repository.Stages {
		stages = append(stages, string(stage))
	}

	reportRepository := ReportRepository{
		Path:          repository.Path,
		Status:        repository.Status.String(),
		Message:       repository.Message,
		FailureKind:   string(repository.FailureKind),
		SizeBefore:    repository.SizeBefore,
		SizeAfter:     repository.SizeAfter,
		AutoCommitted: repository.AutoCommitted,
		BackupPath:    repository.BackupPath,
		Counts:        reportCounts(repository.Counts),
		Stages:        stages,
	}
	if repository.RestoredCounts != nil {
		restoredCounts := reportCounts(*repository.RestoredCounts)
		reportRepository.RestoredCounts = &restoredCounts
	}
	return reportRepository
}

func reportCounts(counts shared.RepositoryCounts) ReportCounts {
	return ReportCounts{Commits: counts.Commits, Branches: counts.Branches, Tags: counts.Tags}
}
