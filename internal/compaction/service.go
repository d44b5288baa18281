package compaction

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	discovererMissingMessageConstant   = "repository discoverer not configured"
	processorMissingMessageConstant    = "repository processor not configured"
	repositoriesFailedMessageConstant  = "one or more repositories failed"
	runInterruptedMessageConstant      = "run interrupted"
	runLockErrorTemplateConstant       = "unable to lock run root %s: %w"
	scanErrorTemplateConstant          = "unable to scan %s: %w"
	summaryErrorTemplateConstant       = "unable to summarize run: %w"
	repositoriesFailedTemplateConstant = "%w: %d of %d"
	recorderErrorTemplateConstant      = "unable to record run: %w"

	runStartedMessageConstant           = "Compaction run started"
	scanCompletedMessageConstant        = "Repository scan completed"
	runInterruptedLogMessageConstant    = "Compaction run interrupted between repositories"
	runFinishedMessageConstant          = "Compaction run finished"
	runLockReleaseFailedMessageConstant = "Unable to release run lock"
	logFieldRootConstant                = "root"
	logFieldDryRunConstant              = "dry_run"
	logFieldRepositoryCountConstant     = "repository_count"
	logFieldNestedCountConstant         = "nested_count"
	logFieldExcludedCountConstant       = "excluded_count"
	logFieldProcessedConstant           = "processed"
	logFieldCompactedConstant           = "compacted"
	logFieldSkippedConstant             = "skipped"
	logFieldFailedConstant              = "failed"
	logFieldRestoredConstant            = "restored"
	logFieldBytesSavedConstant          = "bytes_saved"
	logFieldElapsedConstant             = "elapsed"
)

// ErrDiscovererNotConfigured indicates the service was constructed without a repository discoverer.
var ErrDiscovererNotConfigured = errors.New(discovererMissingMessageConstant)

// ErrProcessorNotConfigured indicates the service was constructed without a repository processor.
var ErrProcessorNotConfigured = errors.New(processorMissingMessageConstant)

// ErrRepositoriesFailed indicates at least one repository ended in the Failed status.
var ErrRepositoriesFailed = errors.New(repositoriesFailedMessageConstant)

// ErrRunInterrupted indicates the run stopped at a repository boundary after cancellation.
var ErrRunInterrupted = fmt.Errorf("%s: %w", runInterruptedMessageConstant, context.Canceled)

// RepositoryProcessor drives one repository to a terminal record.
type RepositoryProcessor interface {
	Process(executionContext context.Context, repository shared.Repository) shared.Repository
}

// RunLocker guards a run root against concurrent runs.
type RunLocker interface {
	Acquire(root string) (func() error, error)
}

// ServiceDependencies enumerates collaborators required by the run service.
type ServiceDependencies struct {
	Discoverer shared.RepositoryDiscoverer
	Processor  RepositoryProcessor
	Reporter   shared.RunReporter
	Locker     RunLocker
	Recorders  []shared.RunRecorder
	Clock      shared.Clock
	Logger     *zap.Logger
}

// RunResult is the outcome of a run.
type RunResult struct {
	Summary      shared.RunSummary
	Repositories []shared.Repository
	ScanResult   shared.ScanResult
	Interrupted  bool
}

// Service coordinates a run over every discovered repository.
type Service struct {
	discoverer shared.RepositoryDiscoverer
	processor  RepositoryProcessor
	reporter   shared.RunReporter
	locker     RunLocker
	recorders  []shared.RunRecorder
	clock      shared.Clock
	logger     *zap.Logger
}

// NewService constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Discoverer == nil {
		return nil, ErrDiscovererNotConfigured
	}
	if dependencies.Processor == nil {
		return nil, ErrProcessorNotConfigured
	}
	reporter := dependencies.Reporter
	if reporter == nil {
		reporter = shared.NopRunReporter{}
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorders := make([]shared.RunRecorder, 0, len(dependencies.Recorders))
	for _, recorder := range dependencies.Recorders {
		if recorder != nil {
			recorders = append(recorders, recorder)
		}
	}
	return &Service{
		discoverer: dependencies.Discoverer,
		processor:  dependencies.Processor,
		reporter:   reporter,
		locker:     dependencies.Locker,
		recorders:  recorders,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Run processes every repository beneath the configured root sequentially.
// Cancellation of runContext is honored only between repositories; a repository in flight always reaches a terminal status.
func (service *Service) Run(runContext context.Context, configuration RunConfiguration) (RunResult, error) {
	if service.locker != nil {
		release, lockError := service.locker.Acquire(configuration.Root())
		if lockError != nil {
			return RunResult{}, fmt.Errorf(runLockErrorTemplateConstant, configuration.Root(), lockError)
		}
		defer func() {
			if releaseError := release(); releaseError != nil {
				service.logger.Warn(runLockReleaseFailedMessageConstant, zap.Error(releaseError))
			}
		}()
	}

	startedAt := service.clock.Now()
	description := configuration.Description(startedAt)
	service.reporter.RunStarted(description)
	service.logger.Info(runStartedMessageConstant, zap.String(logFieldRootConstant, description.Root), zap.Bool(logFieldDryRunConstant, description.DryRun))

	scanResult, scanError := service.discoverer.DiscoverRepositories(configuration.Root())
	if scanError != nil {
		return RunResult{}, fmt.Errorf(scanErrorTemplateConstant, configuration.Root(), scanError)
	}
	service.reporter.ScanCompleted(scanResult)
	service.logger.Info(
		scanCompletedMessageConstant,
		zap.Int(logFieldRepositoryCountConstant, len(scanResult.Repositories)),
		zap.Int(logFieldNestedCountConstant, len(scanResult.NestedRepositories)),
		zap.Int(logFieldExcludedCountConstant, len(scanResult.ExcludedRepositories)),
	)

	result := RunResult{
		ScanResult:   scanResult,
		Repositories: make([]shared.Repository, 0, len(scanResult.Repositories)),
	}
	pipelineContext := context.WithoutCancel(runContext)
	totalRepositories := len(scanResult.Repositories)

	for repositoryIndex, repository := range scanResult.Repositories {
		if runContext.Err() != nil {
			result.Interrupted = true
			service.reporter.RunInterrupted(repositoryIndex, totalRepositories)
			service.logger.Warn(runInterruptedLogMessageConstant, zap.Int(logFieldProcessedConstant, repositoryIndex), zap.Int(logFieldRepositoryCountConstant, totalRepositories))
			break
		}

		service.reporter.RepositoryStarted(repositoryIndex+1, totalRepositories, repository)
		processed := service.processor.Process(pipelineContext, repository)

		updatedSummary, summaryError := result.Summary.Record(processed)
		if summaryError != nil {
			return result, fmt.Errorf(summaryErrorTemplateConstant, summaryError)
		}
		result.Summary = updatedSummary
		result.Repositories = append(result.Repositories, processed)
		service.reporter.RepositoryFinished(processed)
	}

	elapsed := service.clock.Now().Sub(startedAt)
	service.reporter.RunFinished(result.Summary, elapsed)
	service.logger.Info(
		runFinishedMessageConstant,
		zap.Int(logFieldProcessedConstant, result.Summary.TotalRepositories),
		zap.Int(logFieldCompactedConstant, result.Summary.Compacted),
		zap.Int(logFieldSkippedConstant, result.Summary.Skipped()),
		zap.Int(logFieldFailedConstant, result.Summary.Failed),
		zap.Int(logFieldRestoredConstant, result.Summary.Restored),
		zap.Int64(logFieldBytesSavedConstant, result.Summary.BytesSaved()),
		zap.Duration(logFieldElapsedConstant, elapsed),
	)

	outcome := shared.RunOutcome{
		Description:  description,
		Repositories: result.Repositories,
		Summary:      result.Summary,
		Elapsed:      elapsed,
		Interrupted:  result.Interrupted,
	}
	var recorderErrors []error
	for _, recorder := range service.recorders {
		if recordError := recorder.RecordRun(outcome); recordError != nil {
			recorderErrors = append(recorderErrors, fmt.Errorf(recorderErrorTemplateConstant, recordError))
		}
	}

	var runErrors []error
	if result.Interrupted {
		runErrors = append(runErrors, ErrRunInterrupted)
	}
	if result.Summary.Failed > 0 {
		runErrors = append(runErrors, fmt.Errorf(repositoriesFailedTemplateConstant, ErrRepositoriesFailed, result.Summary.Failed, result.Summary.TotalRepositories))
	}
	runErrors = append(runErrors, recorderErrors...)

	return result, errors.Join(runErrors...)
}
