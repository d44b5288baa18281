package compaction_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitcompact/internal/repos/shared"
	"github.com/temirov/gitcompact/internal/validation"
)

const (
	eventStatusConstant         = "status"
	eventStageConstant          = "stage"
	eventCommitConstant         = "commit"
	eventPreValidateConstant    = "pre-validate"
	eventCaptureCountsConstant  = "capture-counts"
	eventBackupConstant         = "backup"
	eventConfigureConstant      = "configure"
	eventExpireReflogConstant   = "expire-reflog"
	eventRepackConstant         = "repack"
	eventCollectGarbageConstant = "gc"
	eventPostValidateConstant   = "post-validate"
	eventRestoreConstant        = "restore"
	eventRemoveBackupConstant   = "remove-backup"
	testBackupPathConstant      = "/backups/repository_20250304_050607.bundle"
)

var testInstant = time.Date(2025, time.March, 4, 5, 6, 7, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return testInstant
}

type eventLog struct {
	mutex  sync.Mutex
	events []string
}

func (log *eventLog) record(event string) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.events = append(log.events, event)
}

func (log *eventLog) snapshot() []string {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	return append([]string(nil), log.events...)
}

type recordingRepositoryManager struct {
	shared.GitRepositoryManager
	events         *eventLog
	dirty          bool
	statusError    error
	stageError     error
	commitError    error
	stepErrors     map[string]error
	commitMessages []string
	onRepack       func(repositoryPath string)
}

func (manager *recordingRepositoryManager) HasUncommittedChanges(context.Context, string) (bool, error) {
	manager.events.record(eventStatusConstant)
	return manager.dirty, manager.statusError
}

func (manager *recordingRepositoryManager) StageAll(context.Context, string) error {
	manager.events.record(eventStageConstant)
	return manager.stageError
}

func (manager *recordingRepositoryManager) Commit(_ context.Context, _ string, message string) error {
	manager.events.record(eventCommitConstant)
	manager.commitMessages = append(manager.commitMessages, message)
	return manager.commitError
}

func (manager *recordingRepositoryManager) ApplyCompressionConfiguration(context.Context, string, shared.CompressionSettings) error {
	return manager.step(eventConfigureConstant)
}

func (manager *recordingRepositoryManager) ExpireReflog(context.Context, string) error {
	return manager.step(eventExpireReflogConstant)
}

func (manager *recordingRepositoryManager) Repack(_ context.Context, repositoryPath string, _ shared.CompressionSettings) error {
	if stepError := manager.step(eventRepackConstant); stepError != nil {
		return stepError
	}
	if manager.onRepack != nil {
		manager.onRepack(repositoryPath)
	}
	return nil
}

func (manager *recordingRepositoryManager) CollectGarbage(context.Context, string) error {
	return manager.step(eventCollectGarbageConstant)
}

func (manager *recordingRepositoryManager) step(event string) error {
	manager.events.record(event)
	return manager.stepErrors[event]
}

type scriptedValidator struct {
	events         *eventLog
	lockFile       string
	preResult      validation.PreCompactionResult
	counts         []shared.RepositoryCounts
	postError      error
	captureInvoked int
}

func (validator *scriptedValidator) CheckLocks(shared.Repository) validation.PreCompactionResult {
	if len(validator.lockFile) > 0 {
		return validation.PreCompactionResult{Status: shared.RepositoryStatusSkippedLocked, Reason: "lock files present: " + validator.lockFile}
	}
	return validation.PreCompactionResult{Allowed: true, Status: shared.RepositoryStatusPending}
}

func (validator *scriptedValidator) ValidatePreCompaction(context.Context, shared.Repository, shared.RemoteCheckPolicy) validation.PreCompactionResult {
	validator.events.record(eventPreValidateConstant)
	return validator.preResult
}

func (validator *scriptedValidator) CaptureCounts(context.Context, string) shared.RepositoryCounts {
	validator.events.record(eventCaptureCountsConstant)
	index := validator.captureInvoked
	validator.captureInvoked++
	if index >= len(validator.counts) {
		index = len(validator.counts) - 1
	}
	return validator.counts[index]
}

func (validator *scriptedValidator) ValidatePostCompaction(context.Context, string, shared.RepositoryCounts) error {
	validator.events.record(eventPostValidateConstant)
	return validator.postError
}

type recordingBackupManager struct {
	events       *eventLog
	createError  error
	restoreError error
	removeError  error
	restoreCalls int
	onRestore    func(repository shared.Repository)
}

func (backups *recordingBackupManager) CreateBackup(context.Context, shared.Repository) (string, error) {
	backups.events.record(eventBackupConstant)
	if backups.createError != nil {
		return "", backups.createError
	}
	return testBackupPathConstant, nil
}

func (backups *recordingBackupManager) RestoreBackup(_ context.Context, repository shared.Repository, _ string) error {
	backups.events.record(eventRestoreConstant)
	backups.restoreCalls++
	if backups.restoreError != nil {
		return backups.restoreError
	}
	if backups.onRestore != nil {
		backups.onRestore(repository)
	}
	return nil
}

func (backups *recordingBackupManager) RemoveBackup(string) error {
	backups.events.record(eventRemoveBackupConstant)
	return backups.removeError
}

// createRepositoryDirectory builds a repository whose metadata directory holds a single object file of the given size.
func createRepositoryDirectory(testInstance *testing.T, root string, name string, objectSize int) string {
	testInstance.Helper()
	repositoryPath := filepath.Join(root, name)
	writeObjectFile(testInstance, repositoryPath, objectSize)
	return repositoryPath
}

func writeObjectFile(testInstance *testing.T, repositoryPath string, objectSize int) {
	testInstance.Helper()
	objectsPath := filepath.Join(repositoryPath, shared.GitMetadataDirectoryNameConstant, "objects")
	require.NoError(testInstance, os.MkdirAll(objectsPath, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(objectsPath, "pack"), make([]byte, objectSize), 0o644))
}
