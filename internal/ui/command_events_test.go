package ui_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/gitcompact/internal/execshell"
	"github.com/temirov/gitcompact/internal/ui"
)

const (
	testCommandWorkingDirectoryConstant = "/tmp/project"
	testExecutionFailureReasonConstant  = "execution failed"
	testStandardErrorMessageConstant    = "missing blob 1234"
)

func TestConsoleCommandEventLoggerEmitsMessages(testInstance *testing.T) {
	integrityCommand := execshell.ShellCommand{
		Name: execshell.CommandGit,
		Details: execshell.CommandDetails{
			Arguments:        []string{"fsck", "--full"},
			WorkingDirectory: testCommandWorkingDirectoryConstant,
		},
	}
	repackCommand := execshell.ShellCommand{
		Name: execshell.CommandGit,
		Details: execshell.CommandDetails{
			Arguments:        []string{"repack", "-a", "-d"},
			WorkingDirectory: testCommandWorkingDirectoryConstant,
		},
	}
	tolerantIntegrityCommand := integrityCommand
	tolerantIntegrityCommand.Details.TolerateFailure = true

	testCases := []struct {
		name            string
		invoke          func(logger *ui.ConsoleCommandEventLogger)
		expectedLevel   zapcore.Level
		expectedMessage string
	}{
		{
			name: "command_started",
			invoke: func(logger *ui.ConsoleCommandEventLogger) {
				logger.CommandStarted(integrityCommand)
			},
			expectedLevel:   zapcore.InfoLevel,
			expectedMessage: "Checking repository integrity in /tmp/project",
		},
		{
			name: "command_completed_success",
			invoke: func(logger *ui.ConsoleCommandEventLogger) {
				logger.CommandCompleted(repackCommand, execshell.ExecutionResult{ExitCode: 0})
			},
			expectedLevel:   zapcore.DebugLevel,
			expectedMessage: "Repacked objects in /tmp/project",
		},
		{
			name: "command_completed_failure",
			invoke: func(logger *ui.ConsoleCommandEventLogger) {
				logger.CommandCompleted(repackCommand, execshell.ExecutionResult{ExitCode: 128, StandardError: testStandardErrorMessageConstant})
			},
			expectedLevel:   zapcore.WarnLevel,
			expectedMessage: "Failed to repack objects in /tmp/project (exit code 128: missing blob 1234)",
		},
		{
			name: "tolerated_failure_logged_quietly",
			invoke: func(logger *ui.ConsoleCommandEventLogger) {
				logger.CommandCompleted(tolerantIntegrityCommand, execshell.ExecutionResult{ExitCode: 1, StandardError: testStandardErrorMessageConstant})
			},
			expectedLevel:   zapcore.DebugLevel,
			expectedMessage: "Repository integrity check reported problems in /tmp/project (exit code 1: missing blob 1234)",
		},
		{
			name: "command_execution_failure",
			invoke: func(logger *ui.ConsoleCommandEventLogger) {
				logger.CommandExecutionFailed(integrityCommand, errors.New(testExecutionFailureReasonConstant))
			},
			expectedLevel:   zapcore.ErrorLevel,
			expectedMessage: "Unable to check repository integrity in /tmp/project: execution failed",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observerCore, observedLogs := observer.New(zapcore.DebugLevel)
			eventLogger := ui.NewConsoleCommandEventLogger(zap.New(observerCore))

			testCase.invoke(eventLogger)

			entries := observedLogs.All()
			require.Len(testInstance, entries, 1)
			require.Equal(testInstance, testCase.expectedLevel, entries[0].Level)
			require.Equal(testInstance, testCase.expectedMessage, entries[0].Message)
		})
	}
}
