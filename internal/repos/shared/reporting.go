package shared

import "time"

// RunDescription summarizes the configuration a run was started with.
type RunDescription struct {
	Root            string
	BackupPath      string
	DryRun          bool
	KeepBackup      bool
	SkipRemoteCheck bool
	AutoCommit      bool
	Exclusions      []string
	StartedAt       time.Time
}

// RunReporter renders run progress for humans. It consumes repository records and never mutates them.
type RunReporter interface {
	RunStarted(description RunDescription)
	ScanCompleted(result ScanResult)
	RepositoryStarted(position int, total int, repository Repository)
	RepositoryFinished(repository Repository)
	RunInterrupted(processed int, total int)
	RunFinished(summary RunSummary, elapsed time.Duration)
}

// NopRunReporter discards all run events.
type NopRunReporter struct{}

// RunStarted implements RunReporter.
func (NopRunReporter) RunStarted(RunDescription) {}

// ScanCompleted implements RunReporter.
func (NopRunReporter) ScanCompleted(ScanResult) {}

// RepositoryStarted implements RunReporter.
func (NopRunReporter) RepositoryStarted(int, int, Repository) {}

// RepositoryFinished implements RunReporter.
func (NopRunReporter) RepositoryFinished(Repository) {}

// RunInterrupted implements RunReporter.
func (NopRunReporter) RunInterrupted(int, int) {}

// RunFinished implements RunReporter.
func (NopRunReporter) RunFinished(RunSummary, time.Duration) {}

// RunOutcome is the complete result of one run handed to recorders.
type RunOutcome struct {
	Description  RunDescription
	Repositories []Repository
	Summary      RunSummary
	Elapsed      time.Duration
	Interrupted  bool
}

// RunRecorder persists a run outcome, for example as a report or a metrics file.
type RunRecorder interface {
	RecordRun(outcome RunOutcome) error
}
