// Package metrics exports run results and git command counters in the Prometheus text format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/temirov/gitcompact/internal/execshell"
	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	metricNamespaceConstant                = "git_compact"
	repositoriesMetricNameConstant         = "repositories"
	repositoriesMetricHelpConstant         = "Repositories processed in the last run by terminal status."
	bytesMetricNameConstant                = "bytes"
	bytesMetricHelpConstant                = "Total metadata directory size in the last run by phase."
	bytesSavedMetricNameConstant           = "bytes_saved"
	bytesSavedMetricHelpConstant           = "Bytes reclaimed in the last run."
	runDurationMetricNameConstant          = "run_duration_seconds"
	runDurationMetricHelpConstant          = "Wall-clock duration of the last run."
	runInterruptedMetricNameConstant       = "run_interrupted"
	runInterruptedMetricHelpConstant       = "Whether the last run was interrupted before processing every repository."
	gitCommandsMetricNameConstant          = "git_commands_total"
	gitCommandsMetricHelpConstant          = "Git commands executed by subcommand and outcome."
	statusLabelConstant                    = "status"
	phaseLabelConstant                     = "phase"
	subcommandLabelConstant                = "subcommand"
	outcomeLabelConstant                   = "outcome"
	phaseBeforeConstant                    = "before"
	phaseAfterConstant                     = "after"
	outcomeSuccessConstant                 = "success"
	outcomeFailureConstant                 = "failure"
	outcomeErrorConstant                   = "error"
	textfileWriteErrorTemplateConstant     = "unable to write metrics file %s: %w"
	collectorRegisterErrorTemplateConstant = "unable to register metrics collector: %w"
)

// Recorder collects git command counters during a run and writes run metrics to a textfile.
type Recorder struct {
	registry        *prometheus.Registry
	outputPath      string
	formatter       execshell.CommandMessageFormatter
	repositories    *prometheus.GaugeVec
	bytes           *prometheus.GaugeVec
	bytesSaved      prometheus.Gauge
	runDuration     prometheus.Gauge
	runInterrupted  prometheus.Gauge
	gitCommandTotal *prometheus.CounterVec
}

// NewRecorder constructs a Recorder writing to outputPath.
func NewRecorder(outputPath string) (*Recorder, error) {
	recorder := &Recorder{
		registry:   prometheus.NewRegistry(),
		outputPath: outputPath,
		repositories: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespaceConstant,
			Name:      repositoriesMetricNameConstant,
			Help:      repositoriesMetricHelpConstant,
		}, []string{statusLabelConstant}),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespaceConstant,
			Name:      bytesMetricNameConstant,
			Help:      bytesMetricHelpConstant,
		}, []string{phaseLabelConstant}),
		bytesSaved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespaceConstant,
			Name:      bytesSavedMetricNameConstant,
			Help:      bytesSavedMetricHelpConstant,
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespaceConstant,
			Name:      runDurationMetricNameConstant,
			Help:      runDurationMetricHelpConstant,
		}),
		runInterrupted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespaceConstant,
			Name:      runInterruptedMetricNameConstant,
			Help:      runInterruptedMetricHelpConstant,
		}),
		gitCommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespaceConstant,
			Name:      gitCommandsMetricNameConstant,
			Help:      gitCommandsMetricHelpConstant,
		}, []string{subcommandLabelConstant, outcomeLabelConstant}),
	}

	collectors := []prometheus.Collector{
		recorder.repositories,
		recorder.bytes,
		recorder.bytesSaved,
		recorder.runDuration,
		recorder.runInterrupted,
		recorder.gitCommandTotal,
	}
	for _, collector := range collectors {
		if registerError := recorder.registry.Register(collector); registerError != nil {
			return nil, fmt.Errorf(collectorRegisterErrorTemplateConstant, registerError)
		}
	}
	return recorder, nil
}

// Registry exposes the underlying registry.
func (recorder *Recorder) Registry() *prometheus.Registry {
	return recorder.registry
}

// CommandStarted implements execshell.CommandEventObserver.
func (recorder *Recorder) CommandStarted(execshell.ShellCommand) {}

// CommandCompleted implements execshell.CommandEventObserver.
func (recorder *Recorder) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	outcome := outcomeSuccessConstant
	if result.ExitCode != 0 {
		outcome = outcomeFailureConstant
	}
	recorder.gitCommandTotal.WithLabelValues(recorder.formatter.Subcommand(command), outcome).Inc()
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (recorder *Recorder) CommandExecutionFailed(command execshell.ShellCommand, _ error) {
	recorder.gitCommandTotal.WithLabelValues(recorder.formatter.Subcommand(command), outcomeErrorConstant).Inc()
}

// RecordRun implements shared.RunRecorder by updating the run gauges and writing the textfile.
func (recorder *Recorder) RecordRun(outcome shared.RunOutcome) error {
	summary := outcome.Summary
	statusCounts := map[shared.RepositoryStatus]int{
		shared.RepositoryStatusSkippedLocked:   summary.SkippedLocked,
		shared.RepositoryStatusSkippedCorrupt:  summary.SkippedCorrupt,
		shared.RepositoryStatusSkippedNoRemote: summary.SkippedNoRemote,
		shared.RepositoryStatusCompacted:       summary.Compacted,
		shared.RepositoryStatusFailed:          summary.Failed,
		shared.RepositoryStatusRestored:        summary.Restored,
	}
	for status, count := range statusCounts {
		recorder.repositories.WithLabelValues(status.String()).Set(float64(count))
	}
	recorder.bytes.WithLabelValues(phaseBeforeConstant).Set(float64(summary.TotalSizeBefore))
	recorder.bytes.WithLabelValues(phaseAfterConstant).Set(float64(summary.TotalSizeAfter))
	recorder.bytesSaved.Set(float64(summary.BytesSaved()))
	recorder.runDuration.Set(outcome.Elapsed.Seconds())
	interrupted := 0.0
	if outcome.Interrupted {
		interrupted = 1
	}
	recorder.runInterrupted.Set(interrupted)

	if writeError := prometheus.WriteToTextfile(recorder.outputPath, recorder.registry); writeError != nil {
		return fmt.Errorf(textfileWriteErrorTemplateConstant, recorder.outputPath, writeError)
	}
	return nil
}
