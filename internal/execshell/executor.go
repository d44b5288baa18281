package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "logger not configured"
	commandRunnerNotConfiguredMessageConstant = "command runner not configured"
	commandFailedErrorTemplateConstant        = "%s exited with code %d%s"
	commandExecutionErrorTemplateConstant     = "%s could not run: %v"
	commandTimeoutErrorTemplateConstant       = "%s timed out after %s"
	commandErrorStandardErrorSuffixConstant   = ": %s"
	logFieldCommandConstant                   = "command"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
	logFieldStandardErrorConstant             = "stderr"
	logFieldTimeoutConstant                   = "timeout"
	logFieldTolerateFailureConstant           = "tolerate_failure"

	// DefaultCommandTimeout bounds a single external command when no explicit timeout is supplied.
	DefaultCommandTimeout = 10 * time.Minute
)

// CommandName identifies an executable invoked through the shell executor.
type CommandName string

// CommandGit identifies the git executable.
const CommandGit CommandName = "git"

// CommandDetails describes a single external command invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
	// Timeout overrides the executor default when positive.
	Timeout time.Duration
	// TolerateFailure returns non-zero exits as results instead of CommandFailedError.
	TolerateFailure bool
}

// ShellCommand couples an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a finished process.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner runs a prepared shell command.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
var ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)

// CommandFailedError reports a command that finished with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command.
func (failedError CommandFailedError) Error() string {
	standardErrorSuffix := ""
	if trimmed := strings.TrimSpace(failedError.Result.StandardError); len(trimmed) > 0 {
		standardErrorSuffix = fmt.Sprintf(commandErrorStandardErrorSuffixConstant, trimmed)
	}
	return fmt.Sprintf(commandFailedErrorTemplateConstant, describeCommandLabel(failedError.Command), failedError.Result.ExitCode, standardErrorSuffix)
}

// CommandExecutionError reports a command that could not be started or awaited.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, describeCommandLabel(executionError.Command), executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// CommandTimeoutError reports a command killed because it exceeded its timeout.
type CommandTimeoutError struct {
	Command ShellCommand
	Timeout time.Duration
}

// Error describes the timeout.
func (timeoutError CommandTimeoutError) Error() string {
	return fmt.Sprintf(commandTimeoutErrorTemplateConstant, describeCommandLabel(timeoutError.Command), timeoutError.Timeout)
}

// Unwrap allows errors.Is(err, context.DeadlineExceeded).
func (timeoutError CommandTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// ShellExecutorOption customizes a ShellExecutor.
type ShellExecutorOption func(executor *ShellExecutor)

// WithDefaultTimeout sets the timeout applied to commands that do not specify one.
func WithDefaultTimeout(timeout time.Duration) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		if timeout > 0 {
			executor.defaultTimeout = timeout
		}
	}
}

// WithCommandEventObserver registers an observer notified about every command.
func WithCommandEventObserver(observer CommandEventObserver) ShellExecutorOption {
	return func(executor *ShellExecutor) {
		if observer != nil {
			executor.observers = append(executor.observers, observer)
		}
	}
}

// ShellExecutor runs external commands with logging, timeouts, and exit code policy.
type ShellExecutor struct {
	logger         *zap.Logger
	runner         CommandRunner
	observers      CommandEventObservers
	formatter      CommandMessageFormatter
	defaultTimeout time.Duration
}

// NewShellExecutor constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, options ...ShellExecutorOption) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	executor := &ShellExecutor{
		logger:         logger,
		runner:         runner,
		formatter:      CommandMessageFormatter{},
		defaultTimeout: DefaultCommandTimeout,
	}
	for _, option := range options {
		if option != nil {
			option(executor)
		}
	}
	return executor, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// Execute spawns exactly one process for the command and applies the exit code policy.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}

	timeout := command.Details.Timeout
	if timeout <= 0 {
		timeout = executor.defaultTimeout
	}

	commandContext, cancel := context.WithTimeout(executionContext, timeout)
	defer cancel()

	executor.logger.Debug(
		executor.formatter.BuildStartedMessage(command),
		zap.String(logFieldCommandConstant, describeCommandLabel(command)),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
		zap.Duration(logFieldTimeoutConstant, timeout),
	)
	executor.observers.CommandStarted(command)

	result, runError := executor.runner.Run(commandContext, command)

	if errors.Is(commandContext.Err(), context.DeadlineExceeded) && executionContext.Err() == nil {
		timeoutError := CommandTimeoutError{Command: command, Timeout: timeout}
		executor.reportExecutionFailure(command, timeoutError)
		return ExecutionResult{}, timeoutError
	}

	if runError != nil {
		executionError := CommandExecutionError{Command: command, Cause: runError}
		executor.reportExecutionFailure(command, executionError)
		return ExecutionResult{}, executionError
	}

	executor.observers.CommandCompleted(command, result)

	if result.ExitCode == 0 {
		executor.logger.Debug(
			executor.formatter.BuildSuccessMessage(command),
			zap.String(logFieldCommandConstant, describeCommandLabel(command)),
		)
		return result, nil
	}

	failureFields := []zap.Field{
		zap.String(logFieldCommandConstant, describeCommandLabel(command)),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.String(logFieldStandardErrorConstant, strings.TrimSpace(result.StandardError)),
		zap.Bool(logFieldTolerateFailureConstant, command.Details.TolerateFailure),
	}

	if command.Details.TolerateFailure {
		executor.logger.Debug(executor.formatter.BuildFailureMessage(command, result), failureFields...)
		return result, nil
	}

	executor.logger.Warn(executor.formatter.BuildFailureMessage(command, result), failureFields...)
	return ExecutionResult{}, CommandFailedError{Command: command, Result: result}
}

func (executor *ShellExecutor) reportExecutionFailure(command ShellCommand, failure error) {
	executor.logger.Error(
		executor.formatter.BuildExecutionFailureMessage(command, failure),
		zap.String(logFieldCommandConstant, describeCommandLabel(command)),
		zap.Error(failure),
	)
	executor.observers.CommandExecutionFailed(command, failure)
}

func describeCommandLabel(command ShellCommand) string {
	if len(command.Details.Arguments) == 0 {
		return string(command.Name)
	}
	return string(command.Name) + commandArgumentsJoinSeparatorConstant + strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant)
}
