package utils_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitcompact/internal/utils"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestOpenAppendLogFileAppendsAcrossRuns(testInstance *testing.T) {
	logFilePath := filepath.Join(testInstance.TempDir(), "logs", "nested", "run.log")

	for _, line := range []string{"first run\n", "second run\n"} {
		writer, openError := utils.OpenAppendLogFile(logFilePath)
		require.NoError(testInstance, openError)

		written, writeError := writer.Write([]byte(line))
		require.NoError(testInstance, writeError)
		require.Equal(testInstance, len(line), written)

		content, readError := os.ReadFile(logFilePath)
		require.NoError(testInstance, readError)
		require.Contains(testInstance, string(content), line)

		require.NoError(testInstance, writer.Close())
		require.NoError(testInstance, writer.Close())
	}

	content, readError := os.ReadFile(logFilePath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "first run\nsecond run\n", string(content))
}

func TestOpenAppendLogFileRejectsUnwritablePath(testInstance *testing.T) {
	blockingFile := filepath.Join(testInstance.TempDir(), "blocked")
	require.NoError(testInstance, os.WriteFile(blockingFile, []byte("x"), 0o644))

	_, openError := utils.OpenAppendLogFile(filepath.Join(blockingFile, "run.log"))
	require.Error(testInstance, openError)
}

func TestFlushingWriterSurfacesFlushErrors(testInstance *testing.T) {
	writer := utils.NewFlushingWriter(failingWriter{})

	_, writeError := writer.Write([]byte("line\n"))
	require.Error(testInstance, writeError)
	require.Nil(testInstance, utils.NewFlushingWriter(nil))
}
