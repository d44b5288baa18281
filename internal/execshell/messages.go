package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	failureSuffixTemplateConstant           = " (exit code %d%s)"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	flagPrefixConstant                      = "-"
)

const (
	gitStatusSubcommandNameConstant  = "status"
	gitRemoteSubcommandNameConstant  = "remote"
	gitFsckSubcommandNameConstant    = "fsck"
	gitRevListSubcommandNameConstant = "rev-list"
	gitBranchSubcommandNameConstant  = "branch"
	gitTagSubcommandNameConstant     = "tag"
	gitBundleSubcommandNameConstant  = "bundle"
	gitBundleVerifyTemplateKey       = "bundle verify"
	gitCloneSubcommandNameConstant   = "clone"
	gitAddSubcommandNameConstant     = "add"
	gitCommitSubcommandNameConstant  = "commit"
	gitConfigSubcommandNameConstant  = "config"
	gitReflogSubcommandNameConstant  = "reflog"
	gitRepackSubcommandNameConstant  = "repack"
	gitGCSubcommandNameConstant      = "gc"
	gitResetSubcommandNameConstant   = "reset"
	gitMessageFlagConstant           = "-m"
	gitLocalFlagConstant             = "--local"
)

// messageTemplates holds the four lifecycle templates for one git operation.
// Start and success templates take the subject; failure templates append an exit code
// suffix and execution failure templates append the failure description.
type messageTemplates struct {
	start            string
	success          string
	failure          string
	executionFailure string
}

var gitMessageTemplates = map[string]messageTemplates{
	gitStatusSubcommandNameConstant: {
		start:            "Reviewing working tree status in %s",
		success:          "Collected working tree status for %s",
		failure:          "Failed to review working tree status in %s",
		executionFailure: "Unable to review working tree status in %s: %s",
	},
	gitRemoteSubcommandNameConstant: {
		start:            "Listing remotes for %s",
		success:          "Listed remotes for %s",
		failure:          "Failed to list remotes for %s",
		executionFailure: "Unable to list remotes for %s: %s",
	},
	gitFsckSubcommandNameConstant: {
		start:            "Checking repository integrity in %s",
		success:          "Repository integrity confirmed in %s",
		failure:          "Repository integrity check reported problems in %s",
		executionFailure: "Unable to check repository integrity in %s: %s",
	},
	gitRevListSubcommandNameConstant: {
		start:            "Counting commits in %s",
		success:          "Counted commits in %s",
		failure:          "Failed to count commits in %s",
		executionFailure: "Unable to count commits in %s: %s",
	},
	gitBranchSubcommandNameConstant: {
		start:            "Listing branches in %s",
		success:          "Listed branches in %s",
		failure:          "Failed to list branches in %s",
		executionFailure: "Unable to list branches in %s: %s",
	},
	gitTagSubcommandNameConstant: {
		start:            "Listing tags in %s",
		success:          "Listed tags in %s",
		failure:          "Failed to list tags in %s",
		executionFailure: "Unable to list tags in %s: %s",
	},
	gitBundleSubcommandNameConstant: {
		start:            "Creating backup bundle %s",
		success:          "Created backup bundle %s",
		failure:          "Failed to create backup bundle %s",
		executionFailure: "Unable to create backup bundle %s: %s",
	},
	gitBundleVerifyTemplateKey: {
		start:            "Verifying backup bundle %s",
		success:          "Verified backup bundle %s",
		failure:          "Backup bundle %s failed verification",
		executionFailure: "Unable to verify backup bundle %s: %s",
	},
	gitCloneSubcommandNameConstant: {
		start:            "Reconstructing repository from %s",
		success:          "Reconstructed repository from %s",
		failure:          "Failed to reconstruct repository from %s",
		executionFailure: "Unable to reconstruct repository from %s: %s",
	},
	gitAddSubcommandNameConstant: {
		start:            "Staging all changes in %s",
		success:          "Staged all changes in %s",
		failure:          "Failed to stage changes in %s",
		executionFailure: "Unable to stage changes in %s: %s",
	},
	gitCommitSubcommandNameConstant: {
		start:            "Creating commit %s",
		success:          "Created commit %s",
		failure:          "Failed to create commit %s",
		executionFailure: "Unable to create commit %s: %s",
	},
	gitConfigSubcommandNameConstant: {
		start:            "Setting %s",
		success:          "Set %s",
		failure:          "Failed to set %s",
		executionFailure: "Unable to set %s: %s",
	},
	gitReflogSubcommandNameConstant: {
		start:            "Expiring reflog entries in %s",
		success:          "Expired reflog entries in %s",
		failure:          "Failed to expire reflog entries in %s",
		executionFailure: "Unable to expire reflog entries in %s: %s",
	},
	gitRepackSubcommandNameConstant: {
		start:            "Repacking objects in %s",
		success:          "Repacked objects in %s",
		failure:          "Failed to repack objects in %s",
		executionFailure: "Unable to repack objects in %s: %s",
	},
	gitResetSubcommandNameConstant: {
		start:            "Rebuilding index in %s",
		success:          "Rebuilt index in %s",
		failure:          "Failed to rebuild index in %s",
		executionFailure: "Unable to rebuild index in %s: %s",
	},
	gitGCSubcommandNameConstant: {
		start:            "Collecting garbage in %s",
		success:          "Collected garbage in %s",
		failure:          "Failed to collect garbage in %s",
		executionFailure: "Unable to collect garbage in %s: %s",
	},
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

// Subcommand returns the git subcommand of the command, or an empty string.
func (formatter CommandMessageFormatter) Subcommand(command ShellCommand) string {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 {
		return emptyStringConstant
	}
	return strings.TrimSpace(command.Details.Arguments[0])
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	subcommand := formatter.Subcommand(command)
	templates, known := gitMessageTemplates[formatter.templateKey(subcommand, command)]
	if !known {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	subject := formatter.describeSubject(subcommand, command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates.start, subject)
	case messageStageSuccess:
		return fmt.Sprintf(templates.success, subject)
	case messageStageFailure:
		return fmt.Sprintf(templates.failure, subject) + fmt.Sprintf(failureSuffixTemplateConstant, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(templates.executionFailure, subject, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) templateKey(subcommand string, command ShellCommand) string {
	if subcommand == gitBundleSubcommandNameConstant && formatter.argumentAtIndex(command.Details.Arguments, 1) == "verify" {
		return gitBundleVerifyTemplateKey
	}
	return subcommand
}

func (formatter CommandMessageFormatter) describeSubject(subcommand string, command ShellCommand) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	arguments := command.Details.Arguments
	switch subcommand {
	case gitBundleSubcommandNameConstant:
		return formatter.ensureValue(formatter.extractFirstNonFlagArgument(formatter.argumentsFrom(arguments, 2)))
	case gitCloneSubcommandNameConstant:
		return formatter.ensureValue(formatter.extractFirstNonFlagArgument(formatter.argumentsFrom(arguments, 1)))
	case gitCommitSubcommandNameConstant:
		return fmt.Sprintf("%q in %s", formatter.extractFlagValue(arguments, gitMessageFlagConstant), workingDirectory)
	case gitConfigSubcommandNameConstant:
		key, value := formatter.extractConfigurationAssignment(arguments)
		return fmt.Sprintf("%s=%s in %s", key, value, workingDirectory)
	default:
		return workingDirectory
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	return fmt.Sprintf(commandLabelTemplateConstant, describeCommandLabel(command), formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index >= 0 && index < len(arguments) {
		return arguments[index]
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) argumentsFrom(arguments []string, index int) []string {
	if index >= len(arguments) {
		return nil
	}
	return arguments[index:]
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func (formatter CommandMessageFormatter) extractFirstNonFlagArgument(arguments []string) string {
	for _, argument := range arguments {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, flagPrefixConstant) {
			continue
		}
		return trimmed
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) extractFlagValue(arguments []string, flag string) string {
	for index := 0; index < len(arguments); index++ {
		if strings.TrimSpace(arguments[index]) == flag && index+1 < len(arguments) {
			return strings.TrimSpace(arguments[index+1])
		}
	}
	return fallbackUnknownValueLabelConstant
}

func (formatter CommandMessageFormatter) extractConfigurationAssignment(arguments []string) (string, string) {
	values := make([]string, 0, 2)
	for _, argument := range formatter.argumentsFrom(arguments, 1) {
		trimmed := strings.TrimSpace(argument)
		if trimmed == gitLocalFlagConstant || len(trimmed) == 0 {
			continue
		}
		values = append(values, trimmed)
	}
	return formatter.ensureValue(formatter.argumentAtIndex(values, 0)), formatter.ensureValue(formatter.argumentAtIndex(values, 1))
}
