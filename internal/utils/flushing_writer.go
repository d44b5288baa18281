package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	logFileOpenFlagsConstant          = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	logFilePermissionsConstant        = fs.FileMode(0o644)
	logDirectoryPermissionsConstant   = fs.FileMode(0o755)
	logFileOpenErrorTemplateConstant  = "unable to open log file %s: %w"
	logFileCloseErrorTemplateConstant = "unable to close log file: %w"
)

// FlushingWriter buffers writes and flushes after every write so appended log lines survive an abrupt exit.
type FlushingWriter struct {
	mutex    sync.Mutex
	buffered *bufio.Writer
	closer   io.Closer
}

// NewFlushingWriter wraps the provided writer. Close closes the writer when it implements io.Closer.
func NewFlushingWriter(writer io.Writer) *FlushingWriter {
	if writer == nil {
		return nil
	}
	flushingWriter := &FlushingWriter{buffered: bufio.NewWriter(writer)}
	if closer, isCloser := writer.(io.Closer); isCloser {
		flushingWriter.closer = closer
	}
	return flushingWriter
}

// OpenAppendLogFile opens the file for appending, creating missing parent directories.
func OpenAppendLogFile(logFilePath string) (*FlushingWriter, error) {
	if directoryError := os.MkdirAll(filepath.Dir(logFilePath), logDirectoryPermissionsConstant); directoryError != nil {
		return nil, fmt.Errorf(logFileOpenErrorTemplateConstant, logFilePath, directoryError)
	}
	logFile, openError := os.OpenFile(logFilePath, logFileOpenFlagsConstant, logFilePermissionsConstant)
	if openError != nil {
		return nil, fmt.Errorf(logFileOpenErrorTemplateConstant, logFilePath, openError)
	}
	return NewFlushingWriter(logFile), nil
}

// Write delegates to the underlying writer and flushes it.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	if flushingWriter == nil || flushingWriter.buffered == nil {
		return 0, nil
	}

	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	bytesWritten, writeError := flushingWriter.buffered.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	if flushError := flushingWriter.buffered.Flush(); flushError != nil {
		return bytesWritten, flushError
	}
	return bytesWritten, nil
}

// Close flushes pending data and closes the underlying writer when it is closable.
func (flushingWriter *FlushingWriter) Close() error {
	if flushingWriter == nil || flushingWriter.buffered == nil {
		return nil
	}

	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	flushError := flushingWriter.buffered.Flush()
	var closeError error
	if flushingWriter.closer != nil {
		closeError = flushingWriter.closer.Close()
		flushingWriter.closer = nil
	}
	if joinedError := errors.Join(flushError, closeError); joinedError != nil {
		return fmt.Errorf(logFileCloseErrorTemplateConstant, joinedError)
	}
	return nil
}
