package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/temirov/gitcompact/internal/execshell"
	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	executorNotConfiguredMessageConstant    = "git executor not configured"
	repositoryPathRequiredMessageConstant   = "repository path must be provided"
	integrityCheckFailedMessageConstant     = "integrity check failed"
	integrityCheckErrorTemplateConstant     = "%s: %s"
	operationErrorTemplateConstant          = "%s: %w"
	configurationValueErrorTemplateConstant = "unable to set %s=%s: %w"
	statusOperationNameConstant             = "unable to read working tree status"
	remoteOperationNameConstant             = "unable to list remotes"
	integrityOperationNameConstant          = "unable to run integrity check"
	bundleOperationNameConstant             = "unable to create bundle"
	verifyBundleOperationNameConstant       = "unable to verify bundle"
	mirrorOperationNameConstant             = "unable to clone bundle"
	resetIndexOperationNameConstant         = "unable to rebuild index"
	stageOperationNameConstant              = "unable to stage changes"
	commitOperationNameConstant             = "unable to commit changes"
	reflogOperationNameConstant             = "unable to expire reflog"
	repackOperationNameConstant             = "unable to repack objects"
	garbageCollectionOperationNameConstant  = "unable to collect garbage"
	nothingToCommitMarkerConstant           = "nothing to commit"
	lineSeparatorConstant                   = "\n"

	gitStatusSubcommandConstant          = "status"
	gitPorcelainFlagConstant             = "--porcelain"
	gitRemoteSubcommandConstant          = "remote"
	gitVerboseFlagConstant               = "-v"
	gitFsckSubcommandConstant            = "fsck"
	gitFullFlagConstant                  = "--full"
	gitRevListSubcommandConstant         = "rev-list"
	gitAllFlagConstant                   = "--all"
	gitCountFlagConstant                 = "--count"
	gitBranchSubcommandConstant          = "branch"
	gitAllBranchesFlagConstant           = "-a"
	gitTagSubcommandConstant             = "tag"
	gitBundleSubcommandConstant          = "bundle"
	gitBundleCreateActionConstant        = "create"
	gitBundleVerifyActionConstant        = "verify"
	gitCloneSubcommandConstant           = "clone"
	gitMirrorFlagConstant                = "--mirror"
	gitQuietFlagConstant                 = "--quiet"
	gitResetSubcommandConstant           = "reset"
	gitMixedFlagConstant                 = "--mixed"
	gitAddSubcommandConstant             = "add"
	gitAddAllFlagConstant                = "-A"
	gitCommitSubcommandConstant          = "commit"
	gitMessageFlagConstant               = "-m"
	gitConfigSubcommandConstant          = "config"
	gitLocalFlagConstant                 = "--local"
	gitReflogSubcommandConstant          = "reflog"
	gitExpireActionConstant              = "expire"
	gitExpireNowFlagConstant             = "--expire=now"
	gitRepackSubcommandConstant          = "repack"
	gitRepackAllFlagConstant             = "-a"
	gitRepackDeleteFlagConstant          = "-d"
	gitRepackForceFlagConstant           = "-f"
	gitRepackDepthFlagTemplateConstant   = "--depth=%d"
	gitRepackWindowFlagTemplateConstant  = "--window=%d"
	gitGCSubcommandConstant              = "gc"
	gitAggressiveFlagConstant            = "--aggressive"
	gitPruneNowFlagConstant              = "--prune=now"
	gitTerminalPromptEnvironmentName     = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentDisabled = "0"
	gitOptionalLocksEnvironmentName      = "GIT_OPTIONAL_LOCKS"
	gitOptionalLocksEnvironmentDisabled  = "0"
	coreCompressionConfigurationKey      = "core.compression"
	packCompressionConfigurationKey      = "pack.compression"
	aggressiveDepthConfigurationKey      = "gc.aggressiveDepth"
	aggressiveWindowConfigurationKey     = "gc.aggressiveWindow"
)

// ErrGitExecutorNotConfigured indicates the repository manager was constructed without an executor.
var ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)

// ErrRepositoryPathRequired indicates an operation was invoked with an empty repository path.
var ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessageConstant)

// ErrIntegrityCheckFailed is matched by IntegrityCheckError.
var ErrIntegrityCheckFailed = errors.New(integrityCheckFailedMessageConstant)

// IntegrityCheckError reports a structural integrity check that found problems.
type IntegrityCheckError struct {
	RepositoryPath string
	ExitCode       int
	Details        string
}

// Error describes the integrity failure using the check's diagnostic output.
func (integrityError IntegrityCheckError) Error() string {
	details := strings.TrimSpace(integrityError.Details)
	if len(details) == 0 {
		details = fmt.Sprintf("exit code %d", integrityError.ExitCode)
	}
	return fmt.Sprintf(integrityCheckErrorTemplateConstant, integrityCheckFailedMessageConstant, details)
}

// Is allows errors.Is(err, ErrIntegrityCheckFailed).
func (integrityError IntegrityCheckError) Is(target error) bool {
	return target == ErrIntegrityCheckFailed
}

// RepositoryManager runs the git operations required by the compaction pipeline.
type RepositoryManager struct {
	executor shared.GitExecutor
}

// NewRepositoryManager constructs a RepositoryManager.
func NewRepositoryManager(executor shared.GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// HasUncommittedChanges reports whether `git status --porcelain` lists any entry.
func (manager *RepositoryManager) HasUncommittedChanges(executionContext context.Context, repositoryPath string) (bool, error) {
	result, executionError := manager.executeGit(executionContext, repositoryPath, false, gitStatusSubcommandConstant, gitPorcelainFlagConstant)
	if executionError != nil {
		return false, fmt.Errorf(operationErrorTemplateConstant, statusOperationNameConstant, executionError)
	}
	return len(strings.TrimSpace(result.StandardOutput)) > 0, nil
}

// ListRemotes returns the configured remotes parsed from `git remote -v`.
func (manager *RepositoryManager) ListRemotes(executionContext context.Context, repositoryPath string) ([]shared.RemoteEntry, error) {
	result, executionError := manager.executeGit(executionContext, repositoryPath, false, gitRemoteSubcommandConstant, gitVerboseFlagConstant)
	if executionError != nil {
		return nil, fmt.Errorf(operationErrorTemplateConstant, remoteOperationNameConstant, executionError)
	}
	return ParseRemoteListing(result.StandardOutput), nil
}

// CheckIntegrity runs `git fsck --full` and returns IntegrityCheckError when it reports problems.
func (manager *RepositoryManager) CheckIntegrity(executionContext context.Context, repositoryPath string) error {
	result, executionError := manager.executeGit(executionContext, repositoryPath, true, gitFsckSubcommandConstant, gitFullFlagConstant)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, integrityOperationNameConstant, executionError)
	}
	if result.ExitCode != 0 {
		return IntegrityCheckError{RepositoryPath: repositoryPath, ExitCode: result.ExitCode, Details: result.StandardError}
	}
	return nil
}

// CountCommits returns the number of commits reachable from any ref, or InvalidCountSentinel.
func (manager *RepositoryManager) CountCommits(executionContext context.Context, repositoryPath string) int {
	result, executionError := manager.executeGit(executionContext, repositoryPath, true, gitRevListSubcommandConstant, gitAllFlagConstant, gitCountFlagConstant)
	if executionError != nil || result.ExitCode != 0 {
		return shared.InvalidCountSentinel
	}
	commitCount, parseError := strconv.Atoi(strings.TrimSpace(result.StandardOutput))
	if parseError != nil {
		return shared.InvalidCountSentinel
	}
	return commitCount
}

// CountBranches returns the number of local and remote-tracking branches, or InvalidCountSentinel.
func (manager *RepositoryManager) CountBranches(executionContext context.Context, repositoryPath string) int {
	result, executionError := manager.executeGit(executionContext, repositoryPath, true, gitBranchSubcommandConstant, gitAllBranchesFlagConstant)
	if executionError != nil || result.ExitCode != 0 {
		return shared.InvalidCountSentinel
	}
	return countNonEmptyLines(result.StandardOutput)
}

// CountTags returns the number of tags, or InvalidCountSentinel.
func (manager *RepositoryManager) CountTags(executionContext context.Context, repositoryPath string) int {
	result, executionError := manager.executeGit(executionContext, repositoryPath, true, gitTagSubcommandConstant)
	if executionError != nil || result.ExitCode != 0 {
		return shared.InvalidCountSentinel
	}
	return countNonEmptyLines(result.StandardOutput)
}

// CreateBundle writes a bundle containing every ref of the repository.
func (manager *RepositoryManager) CreateBundle(executionContext context.Context, repositoryPath string, bundlePath string) error {
	_, executionError := manager.executeGit(executionContext, repositoryPath, false, gitBundleSubcommandConstant, gitBundleCreateActionConstant, bundlePath, gitAllFlagConstant)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, bundleOperationNameConstant, executionError)
	}
	return nil
}

// VerifyBundle checks that the bundle is readable and complete.
func (manager *RepositoryManager) VerifyBundle(executionContext context.Context, repositoryPath string, bundlePath string) error {
	_, executionError := manager.executeGit(executionContext, repositoryPath, false, gitBundleSubcommandConstant, gitBundleVerifyActionConstant, gitQuietFlagConstant, bundlePath)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, verifyBundleOperationNameConstant, executionError)
	}
	return nil
}

// MirrorBundle reconstructs a bare metadata directory at destinationPath holding every ref stored in the bundle.
func (manager *RepositoryManager) MirrorBundle(executionContext context.Context, workingDirectory string, bundlePath string, destinationPath string) error {
	_, executionError := manager.executeGit(executionContext, workingDirectory, false, gitCloneSubcommandConstant, gitMirrorFlagConstant, gitQuietFlagConstant, bundlePath, destinationPath)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, mirrorOperationNameConstant, executionError)
	}
	return nil
}

// ResetIndex rebuilds the index from HEAD without touching the working tree.
func (manager *RepositoryManager) ResetIndex(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executeGit(executionContext, repositoryPath, false, gitResetSubcommandConstant, gitMixedFlagConstant, gitQuietFlagConstant)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, resetIndexOperationNameConstant, executionError)
	}
	return nil
}

// StageAll stages every change in the working tree.
func (manager *RepositoryManager) StageAll(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executeGit(executionContext, repositoryPath, false, gitAddSubcommandConstant, gitAddAllFlagConstant)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, stageOperationNameConstant, executionError)
	}
	return nil
}

// Commit records staged changes. A commit with nothing to record succeeds.
func (manager *RepositoryManager) Commit(executionContext context.Context, repositoryPath string, message string) error {
	result, executionError := manager.executeGit(executionContext, repositoryPath, true, gitCommitSubcommandConstant, gitMessageFlagConstant, message)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, commitOperationNameConstant, executionError)
	}
	if result.ExitCode == 0 || strings.Contains(strings.ToLower(result.StandardOutput), nothingToCommitMarkerConstant) {
		return nil
	}
	return fmt.Errorf(operationErrorTemplateConstant, commitOperationNameConstant, execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit, Details: execshell.CommandDetails{
			Arguments:        []string{gitCommitSubcommandConstant, gitMessageFlagConstant, message},
			WorkingDirectory: repositoryPath,
		}},
		Result: result,
	})
}

// SetConfiguration writes a local configuration value.
func (manager *RepositoryManager) SetConfiguration(executionContext context.Context, repositoryPath string, key string, value string) error {
	_, executionError := manager.executeGit(executionContext, repositoryPath, false, gitConfigSubcommandConstant, gitLocalFlagConstant, key, value)
	if executionError != nil {
		return fmt.Errorf(configurationValueErrorTemplateConstant, key, value, executionError)
	}
	return nil
}

// ApplyCompressionConfiguration writes the compression and aggressive gc settings into the local configuration.
func (manager *RepositoryManager) ApplyCompressionConfiguration(executionContext context.Context, repositoryPath string, settings shared.CompressionSettings) error {
	configurationValues := []struct {
		key   string
		value int
	}{
		{key: coreCompressionConfigurationKey, value: settings.Level},
		{key: packCompressionConfigurationKey, value: settings.Level},
		{key: aggressiveDepthConfigurationKey, value: settings.Depth},
		{key: aggressiveWindowConfigurationKey, value: settings.Window},
	}
	for _, configurationValue := range configurationValues {
		if configurationError := manager.SetConfiguration(executionContext, repositoryPath, configurationValue.key, strconv.Itoa(configurationValue.value)); configurationError != nil {
			return configurationError
		}
	}
	return nil
}

// ExpireReflog drops every reflog entry immediately.
func (manager *RepositoryManager) ExpireReflog(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executeGit(executionContext, repositoryPath, false, gitReflogSubcommandConstant, gitExpireActionConstant, gitExpireNowFlagConstant, gitAllFlagConstant)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, reflogOperationNameConstant, executionError)
	}
	return nil
}

// Repack rewrites every object into a single pack with the configured delta search.
func (manager *RepositoryManager) Repack(executionContext context.Context, repositoryPath string, settings shared.CompressionSettings) error {
	_, executionError := manager.executeGit(
		executionContext,
		repositoryPath,
		false,
		gitRepackSubcommandConstant,
		gitRepackAllFlagConstant,
		gitRepackDeleteFlagConstant,
		gitRepackForceFlagConstant,
		fmt.Sprintf(gitRepackDepthFlagTemplateConstant, settings.Depth),
		fmt.Sprintf(gitRepackWindowFlagTemplateConstant, settings.Window),
	)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, repackOperationNameConstant, executionError)
	}
	return nil
}

// CollectGarbage runs an aggressive garbage collection that prunes unreachable objects immediately.
func (manager *RepositoryManager) CollectGarbage(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executeGit(executionContext, repositoryPath, false, gitGCSubcommandConstant, gitAggressiveFlagConstant, gitPruneNowFlagConstant)
	if executionError != nil {
		return fmt.Errorf(operationErrorTemplateConstant, garbageCollectionOperationNameConstant, executionError)
	}
	return nil
}

func (manager *RepositoryManager) executeGit(executionContext context.Context, repositoryPath string, tolerateFailure bool, arguments ...string) (execshell.ExecutionResult, error) {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return execshell.ExecutionResult{}, ErrRepositoryPathRequired
	}
	// Optional locks stay off so read-only probes such as status never rewrite the index.
	return manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: trimmedRepositoryPath,
		EnvironmentVariables: map[string]string{
			gitTerminalPromptEnvironmentName: gitTerminalPromptEnvironmentDisabled,
			gitOptionalLocksEnvironmentName:  gitOptionalLocksEnvironmentDisabled,
		},
		TolerateFailure: tolerateFailure,
	})
}

func countNonEmptyLines(output string) int {
	lineCount := 0
	for _, line := range strings.Split(output, lineSeparatorConstant) {
		if len(strings.TrimSpace(line)) > 0 {
			lineCount++
		}
	}
	return lineCount
}
