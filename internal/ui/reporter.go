package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	headerRuleCharacterConstant        = "="
	headerRuleWidthConstant            = 60
	runTitleConstant                   = "GIT COMPACT"
	summaryTitleConstant               = "SUMMARY"
	rootLineTemplateConstant           = "Root: %s"
	backupLineTemplateConstant         = "Backups: %s"
	perRepositoryBackupLabelConstant   = "next to each repository"
	dryRunLineTemplateConstant         = "Dry run: %s"
	keepBackupLineTemplateConstant     = "Keep backups: %s"
	autoCommitLineTemplateConstant     = "Auto-commit: %s"
	remoteCheckLineTemplateConstant    = "Remote check: %s"
	exclusionsLineTemplateConstant     = "Exclusions: %s"
	exclusionsSeparatorConstant        = ", "
	yesLabelConstant                   = "yes"
	noLabelConstant                    = "no"
	remoteRequiredLabelConstant        = "required"
	remoteSkippedLabelConstant         = "skipped"
	scanStartedMessageConstant         = "Scanning for repositories..."
	scanFoundTemplateConstant          = "Found %d repositories"
	scanEmptyMessageConstant           = "No repositories found"
	nestedRepositoryTemplateConstant   = "Skipping nested repository %s"
	excludedRepositoryTemplateConstant = "Excluded %s"
	processingTemplateConstant         = "[%d/%d] Processing: %s"
	autoCommittedTemplateConstant      = "%s: auto-committed pending changes"
	compactedTemplateConstant          = "%s: %s -> %s (saved %s)"
	skippedTemplateConstant            = "%s: skipped (%s) - %s"
	restoredTemplateConstant           = "%s: restored after failed compaction - %s"
	failedTemplateConstant             = "%s: FAILED - %s"
	restoreFailedTemplateConstant      = "%s: FAILED, REPOSITORY NEEDS MANUAL RECOVERY (backup at %s) - %s"
	pendingTemplateConstant            = "%s: finished without a terminal status"
	unknownStatusTemplateConstant      = "%s: unknown status %s"
	interruptedTemplateConstant        = "Interrupted after %d of %d repositories"
	elapsedTemplateConstant            = "Elapsed: %s"
	successPrefixConstant              = "[OK] "
	warningPrefixConstant              = "[!!] "
	errorPrefixConstant                = "[XX] "
	commitPrefixConstant               = "[>>] "
	negativeSizePrefixConstant         = "-"
	mirrorTimestampLayoutConstant      = "2006-01-02 15:04:05"
	mirrorLineTemplateConstant         = "%s %s\n"
	summaryMetricHeaderConstant        = "Metric"
	summaryValueHeaderConstant         = "Value"
	summaryTotalLabelConstant          = "Total repositories"
	summaryCompactedLabelConstant      = "Compacted"
	summaryAutoCommittedLabelConstant  = "Auto-committed"
	summarySkippedLabelConstant        = "Skipped"
	summaryRestoredLabelConstant       = "Restored"
	summaryFailedLabelConstant         = "Failed"
	summaryRestoreFailedLabelConstant  = "Restore also failed"
	summarySizeBeforeLabelConstant     = "Size before"
	summarySizeAfterLabelConstant      = "Size after"
	summarySavedLabelConstant          = "Saved"
	lineSeparatorConstant              = "\n"
)

type lineTone int

const (
	lineTonePlain lineTone = iota
	lineToneTitle
	lineToneSuccess
	lineToneWarning
	lineToneError
	lineToneCommit
)

// ConsoleReporterOption customizes a ConsoleReporter.
type ConsoleReporterOption func(*ConsoleReporter)

// WithLogMirror copies every line, uncolored and timestamped, to mirror.
func WithLogMirror(mirror io.Writer, clock shared.Clock) ConsoleReporterOption {
	return func(reporter *ConsoleReporter) {
		reporter.mirror = mirror
		if clock != nil {
			reporter.clock = clock
		}
	}
}

// WithColors forces colored output on or off regardless of terminal detection.
func WithColors(enabled bool) ConsoleReporterOption {
	return func(reporter *ConsoleReporter) {
		for _, palette := range reporter.palette {
			if enabled {
				palette.EnableColor()
			} else {
				palette.DisableColor()
			}
		}
	}
}

// ConsoleReporter renders run progress for humans and optionally mirrors it into a plain-text log.
type ConsoleReporter struct {
	output  io.Writer
	mirror  io.Writer
	clock   shared.Clock
	palette map[lineTone]*color.Color
}

// NewConsoleReporter constructs a reporter writing to output.
func NewConsoleReporter(output io.Writer, options ...ConsoleReporterOption) *ConsoleReporter {
	if output == nil {
		output = io.Discard
	}
	reporter := &ConsoleReporter{
		output: output,
		clock:  shared.SystemClock{},
		palette: map[lineTone]*color.Color{
			lineToneTitle:   color.New(color.FgCyan, color.Bold),
			lineToneSuccess: color.New(color.FgGreen),
			lineToneWarning: color.New(color.FgYellow),
			lineToneError:   color.New(color.FgRed),
			lineToneCommit:  color.New(color.FgBlue),
		},
	}
	for _, option := range options {
		if option != nil {
			option(reporter)
		}
	}
	return reporter
}

// RunStarted implements shared.RunReporter.
func (reporter *ConsoleReporter) RunStarted(description shared.RunDescription) {
	reporter.writeHeader(runTitleConstant)
	reporter.writeLine(lineTonePlain, fmt.Sprintf(rootLineTemplateConstant, description.Root))
	backupLocation := description.BackupPath
	if len(backupLocation) == 0 {
		backupLocation = perRepositoryBackupLabelConstant
	}
	reporter.writeLine(lineTonePlain, fmt.Sprintf(backupLineTemplateConstant, backupLocation))
	reporter.writeLine(lineTonePlain, fmt.Sprintf(dryRunLineTemplateConstant, formatFlag(description.DryRun)))
	reporter.writeLine(lineTonePlain, fmt.Sprintf(keepBackupLineTemplateConstant, formatFlag(description.KeepBackup)))
	reporter.writeLine(lineTonePlain, fmt.Sprintf(autoCommitLineTemplateConstant, formatFlag(description.AutoCommit)))
	remoteCheck := remoteRequiredLabelConstant
	if description.SkipRemoteCheck {
		remoteCheck = remoteSkippedLabelConstant
	}
	reporter.writeLine(lineTonePlain, fmt.Sprintf(remoteCheckLineTemplateConstant, remoteCheck))
	if len(description.Exclusions) > 0 {
		reporter.writeLine(lineTonePlain, fmt.Sprintf(exclusionsLineTemplateConstant, strings.Join(description.Exclusions, exclusionsSeparatorConstant)))
	}
	reporter.writeLine(lineTonePlain, "")
	reporter.writeLine(lineTonePlain, scanStartedMessageConstant)
}

// ScanCompleted implements shared.RunReporter.
func (reporter *ConsoleReporter) ScanCompleted(result shared.ScanResult) {
	for _, nestedPath := range result.NestedRepositories {
		reporter.writeLine(lineToneWarning, warningPrefixConstant+fmt.Sprintf(nestedRepositoryTemplateConstant, nestedPath))
	}
	for _, excludedPath := range result.ExcludedRepositories {
		reporter.writeLine(lineTonePlain, fmt.Sprintf(excludedRepositoryTemplateConstant, excludedPath))
	}
	if len(result.Repositories) == 0 {
		reporter.writeLine(lineToneWarning, warningPrefixConstant+scanEmptyMessageConstant)
		return
	}
	reporter.writeLine(lineTonePlain, fmt.Sprintf(scanFoundTemplateConstant, len(result.Repositories)))
}

// RepositoryStarted implements shared.RunReporter.
func (reporter *ConsoleReporter) RepositoryStarted(position int, total int, repository shared.Repository) {
	reporter.writeLine(lineTonePlain, "")
	reporter.writeLine(lineTonePlain, fmt.Sprintf(processingTemplateConstant, position, total, repository.Path))
}

// RepositoryFinished implements shared.RunReporter.
func (reporter *ConsoleReporter) RepositoryFinished(repository shared.Repository) {
	name := repository.Name()
	if repository.AutoCommitted {
		reporter.writeLine(lineToneCommit, commitPrefixConstant+fmt.Sprintf(autoCommittedTemplateConstant, name))
	}

	switch repository.Status {
	case shared.RepositoryStatusCompacted:
		reporter.writeLine(lineToneSuccess, successPrefixConstant+fmt.Sprintf(compactedTemplateConstant,
			name,
			formatSize(repository.SizeBefore),
			formatSize(repository.SizeAfter),
			formatSize(repository.BytesSaved()),
		))
	case shared.RepositoryStatusSkippedLocked, shared.RepositoryStatusSkippedCorrupt, shared.RepositoryStatusSkippedNoRemote:
		reporter.writeLine(lineToneWarning, warningPrefixConstant+fmt.Sprintf(skippedTemplateConstant, name, repository.Status, repository.Message))
	case shared.RepositoryStatusRestored:
		reporter.writeLine(lineToneWarning, warningPrefixConstant+fmt.Sprintf(restoredTemplateConstant, name, repository.Message))
	case shared.RepositoryStatusFailed:
		if repository.FailureKind == shared.FailureKindRestoreFailed {
			reporter.writeLine(lineToneError, errorPrefixConstant+fmt.Sprintf(restoreFailedTemplateConstant, name, repository.BackupPath, repository.Message))
			return
		}
		reporter.writeLine(lineToneError, errorPrefixConstant+fmt.Sprintf(failedTemplateConstant, name, repository.Message))
	case shared.RepositoryStatusPending:
		reporter.writeLine(lineToneError, errorPrefixConstant+fmt.Sprintf(pendingTemplateConstant, name))
	default:
		reporter.writeLine(lineToneError, errorPrefixConstant+fmt.Sprintf(unknownStatusTemplateConstant, name, repository.Status))
	}
}

// RunInterrupted implements shared.RunReporter.
func (reporter *ConsoleReporter) RunInterrupted(processed int, total int) {
	reporter.writeLine(lineTonePlain, "")
	reporter.writeLine(lineToneWarning, warningPrefixConstant+fmt.Sprintf(interruptedTemplateConstant, processed, total))
}

// RunFinished implements shared.RunReporter.
func (reporter *ConsoleReporter) RunFinished(summary shared.RunSummary, elapsed time.Duration) {
	reporter.writeHeader(summaryTitleConstant)

	summaryTable := table.NewWriter()
	summaryTable.SetStyle(table.StyleLight)
	summaryTable.Style().Options.DrawBorder = false
	summaryTable.Style().Options.SeparateColumns = false
	summaryTable.AppendHeader(table.Row{summaryMetricHeaderConstant, summaryValueHeaderConstant})
	summaryTable.AppendRows([]table.Row{
		{summaryTotalLabelConstant, summary.TotalRepositories},
		{summaryCompactedLabelConstant, summary.Compacted},
		{summaryAutoCommittedLabelConstant, summary.AutoCommitted},
		{summarySkippedLabelConstant, summary.Skipped()},
		{summaryRestoredLabelConstant, summary.Restored},
		{summaryFailedLabelConstant, summary.Failed},
	})
	if summary.RestoreFailed > 0 {
		summaryTable.AppendRow(table.Row{summaryRestoreFailedLabelConstant, summary.RestoreFailed})
	}
	summaryTable.AppendSeparator()
	summaryTable.AppendRows([]table.Row{
		{summarySizeBeforeLabelConstant, formatSize(summary.TotalSizeBefore)},
		{summarySizeAfterLabelConstant, formatSize(summary.TotalSizeAfter)},
	})
	summaryTable.AppendFooter(table.Row{summarySavedLabelConstant, formatSize(summary.BytesSaved())})

	tone := lineToneSuccess
	switch {
	case summary.Failed > 0:
		tone = lineToneError
	case summary.Restored > 0:
		tone = lineToneWarning
	}
	for _, renderedLine := range strings.Split(summaryTable.Render(), lineSeparatorConstant) {
		reporter.writeLine(tone, renderedLine)
	}
	reporter.writeLine(lineTonePlain, fmt.Sprintf(elapsedTemplateConstant, elapsed.Round(time.Millisecond)))
}

func (reporter *ConsoleReporter) writeHeader(title string) {
	rule := strings.Repeat(headerRuleCharacterConstant, headerRuleWidthConstant)
	reporter.writeLine(lineTonePlain, "")
	reporter.writeLine(lineToneTitle, rule)
	reporter.writeLine(lineToneTitle, title)
	reporter.writeLine(lineToneTitle, rule)
}

func (reporter *ConsoleReporter) writeLine(tone lineTone, line string) {
	rendered := line
	if palette, colored := reporter.palette[tone]; colored && len(line) > 0 {
		rendered = palette.Sprint(line)
	}
	fmt.Fprintln(reporter.output, rendered)

	if reporter.mirror != nil {
		fmt.Fprintf(reporter.mirror, mirrorLineTemplateConstant, reporter.clock.Now().Format(mirrorTimestampLayoutConstant), line)
	}
}

func formatFlag(value bool) string {
	if value {
		return yesLabelConstant
	}
	return noLabelConstant
}

func formatSize(size int64) string {
	if size < 0 {
		return negativeSizePrefixConstant + humanize.Bytes(uint64(-size))
	}
	return humanize.Bytes(uint64(size))
}
