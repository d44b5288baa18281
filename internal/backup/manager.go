// Package backup creates bundle backups of repositories and restores them over a damaged metadata directory.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gitcompact/internal/repos/discovery"
	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	fileSystemMissingMessageConstant        = "filesystem not configured"
	backupMissingMessageConstant            = "backup artifact not found"
	backupEmptyMessageConstant              = "backup artifact is empty"
	timestampLayoutConstant                 = "20060102_150405"
	bundleExtensionConstant                 = ".bundle"
	bundleNameTemplateConstant              = "%s_%s"
	collisionSuffixTemplateConstant         = "%s_%d"
	gitConfigurationFileNameConstant        = "config"
	coreBareConfigurationKeyConstant        = "core.bare"
	coreBareDisabledValueConstant           = "false"
	directoryPermissionsConstant            = fs.FileMode(0o755)
	maximumCollisionAttemptsConstant        = 1000

	backupDirectoryErrorTemplateConstant    = "unable to prepare backup directory %s: %w"
	backupCreationErrorTemplateConstant     = "unable to create backup for %s: %w"
	backupVerificationErrorTemplateConstant = "backup %s failed verification: %w"
	backupArtifactErrorTemplateConstant     = "%w: %s"
	quarantineErrorTemplateConstant         = "unable to quarantine %s: %w"
	reconstructionErrorTemplateConstant     = "unable to reconstruct metadata from %s: %w"
	installationErrorTemplateConstant       = "unable to move reconstructed metadata into %s: %w"
	configurationErrorTemplateConstant      = "unable to restore configuration of %s: %w"
	rollbackErrorTemplateConstant           = "unable to move quarantined metadata back into %s: %w"
	removalErrorTemplateConstant            = "unable to remove backup %s: %w"
	uniquePathErrorTemplateConstant         = "unable to find a free path for %s"

	bundleCreatedMessageConstant      = "Created backup bundle"
	bundleRemovedMessageConstant      = "Removed backup bundle"
	restoreStartedMessageConstant     = "Restoring repository from backup"
	restoreCompletedMessageConstant   = "Restored repository from backup"
	restoreRolledBackMessageConstant  = "Restore failed; original metadata moved back"
	carryOverFailedMessageConstant    = "Unable to carry over metadata entry"
	indexRebuildFailedMessageConstant = "Unable to rebuild index after restore"
	cleanupFailedMessageConstant      = "Unable to remove temporary restore data"
	logFieldRepositoryConstant        = "repository"
	logFieldBundleConstant            = "bundle"
	logFieldQuarantineConstant        = "quarantine"
	logFieldEntryConstant             = "entry"
	logFieldPathConstant              = "path"
)

// carriedOverMetadataEntries are moved from the quarantined metadata directory into the reconstructed one,
// since a bundle only carries refs and objects.
var carriedOverMetadataEntries = []string{"hooks", "info", "modules", "lfs", "description"}

// ErrRepositoryManagerNotConfigured indicates the manager was constructed without a repository manager.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// ErrFileSystemNotConfigured indicates the manager was constructed without a filesystem.
var ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)

// ErrBackupMissing indicates the backup artifact to restore from does not exist.
var ErrBackupMissing = errors.New(backupMissingMessageConstant)

// ErrBackupEmpty indicates the created backup artifact has no content.
var ErrBackupEmpty = errors.New(backupEmptyMessageConstant)

// Dependencies enumerates collaborators required by the backup manager.
type Dependencies struct {
	RepositoryManager shared.GitRepositoryManager
	FileSystem        shared.FileSystem
	Clock             shared.Clock
	Logger            *zap.Logger
}

// Manager creates, restores, and removes repository backups.
type Manager struct {
	repositoryManager shared.GitRepositoryManager
	fileSystem        shared.FileSystem
	clock             shared.Clock
	logger            *zap.Logger
	backupRoot        string
}

// NewManager constructs a Manager. An empty backupRoot places backups in a sibling directory of each repository.
func NewManager(dependencies Dependencies, backupRoot string) (*Manager, error) {
	if dependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	if dependencies.FileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repositoryManager: dependencies.RepositoryManager,
		fileSystem:        dependencies.FileSystem,
		clock:             clock,
		logger:            logger,
		backupRoot:        strings.TrimSpace(backupRoot),
	}, nil
}

// BackupDirectory returns the directory that holds backups of the repository.
func (manager *Manager) BackupDirectory(repository shared.Repository) string {
	if len(manager.backupRoot) > 0 {
		return manager.backupRoot
	}
	return filepath.Join(filepath.Dir(repository.Path), discovery.BackupDirectoryNameConstant)
}

// CreateBackup writes a bundle of every ref and verifies it before returning its path.
func (manager *Manager) CreateBackup(executionContext context.Context, repository shared.Repository) (string, error) {
	backupDirectory := manager.BackupDirectory(repository)
	if directoryError := manager.fileSystem.MkdirAll(backupDirectory, directoryPermissionsConstant); directoryError != nil {
		return "", fmt.Errorf(backupDirectoryErrorTemplateConstant, backupDirectory, directoryError)
	}

	bundleBaseName := fmt.Sprintf(bundleNameTemplateConstant, repository.Name(), manager.timestamp())
	bundlePath, pathError := manager.uniquePath(filepath.Join(backupDirectory, bundleBaseName), bundleExtensionConstant)
	if pathError != nil {
		return "", fmt.Errorf(backupCreationErrorTemplateConstant, repository.Path, pathError)
	}

	if bundleError := manager.repositoryManager.CreateBundle(executionContext, repository.Path, bundlePath); bundleError != nil {
		manager.discardPartialBundle(bundlePath)
		return "", fmt.Errorf(backupCreationErrorTemplateConstant, repository.Path, bundleError)
	}

	bundleInfo, statError := manager.fileSystem.Stat(bundlePath)
	if statError != nil {
		return "", fmt.Errorf(backupVerificationErrorTemplateConstant, bundlePath, fmt.Errorf(backupArtifactErrorTemplateConstant, ErrBackupMissing, statError.Error()))
	}
	if bundleInfo.Size() == 0 {
		manager.discardPartialBundle(bundlePath)
		return "", fmt.Errorf(backupVerificationErrorTemplateConstant, bundlePath, ErrBackupEmpty)
	}
	if verificationError := manager.repositoryManager.VerifyBundle(executionContext, repository.Path, bundlePath); verificationError != nil {
		manager.discardPartialBundle(bundlePath)
		return "", fmt.Errorf(backupVerificationErrorTemplateConstant, bundlePath, verificationError)
	}

	manager.logger.Info(bundleCreatedMessageConstant, zap.String(logFieldRepositoryConstant, repository.Path), zap.String(logFieldBundleConstant, bundlePath))
	return bundlePath, nil
}

// RestoreBackup replaces the repository metadata directory with one reconstructed from the bundle.
// The live metadata directory is quarantined first and moved back if reconstruction fails.
func (manager *Manager) RestoreBackup(executionContext context.Context, repository shared.Repository, bundlePath string) error {
	if _, statError := manager.fileSystem.Stat(bundlePath); statError != nil {
		return fmt.Errorf(backupArtifactErrorTemplateConstant, ErrBackupMissing, bundlePath)
	}

	manager.logger.Info(restoreStartedMessageConstant, zap.String(logFieldRepositoryConstant, repository.Path), zap.String(logFieldBundleConstant, bundlePath))

	timestamp := manager.timestamp()
	gitDirectory := repository.GitDirectory()
	parentDirectory := filepath.Dir(repository.Path)

	quarantinePath := ""
	if manager.exists(gitDirectory) {
		candidateQuarantine, pathError := manager.uniquePath(filepath.Join(repository.Path, discovery.QuarantineDirectoryPrefixConstant+timestamp), "")
		if pathError != nil {
			return fmt.Errorf(quarantineErrorTemplateConstant, gitDirectory, pathError)
		}
		if renameError := manager.fileSystem.Rename(gitDirectory, candidateQuarantine); renameError != nil {
			return fmt.Errorf(quarantineErrorTemplateConstant, gitDirectory, renameError)
		}
		quarantinePath = candidateQuarantine
	}

	temporaryClonePath := filepath.Join(parentDirectory, fmt.Sprintf(bundleNameTemplateConstant, discovery.RestoreDirectoryPrefixConstant+repository.Name(), timestamp))
	if manager.exists(temporaryClonePath) {
		if removalError := manager.fileSystem.RemoveAll(temporaryClonePath); removalError != nil {
			manager.logger.Warn(cleanupFailedMessageConstant, zap.String(logFieldPathConstant, temporaryClonePath), zap.Error(removalError))
		}
	}

	if mirrorError := manager.repositoryManager.MirrorBundle(executionContext, parentDirectory, bundlePath, temporaryClonePath); mirrorError != nil {
		return manager.rollback(repository, quarantinePath, temporaryClonePath, false, fmt.Errorf(reconstructionErrorTemplateConstant, bundlePath, mirrorError))
	}

	if installError := manager.fileSystem.Rename(temporaryClonePath, gitDirectory); installError != nil {
		return manager.rollback(repository, quarantinePath, temporaryClonePath, false, fmt.Errorf(installationErrorTemplateConstant, gitDirectory, installError))
	}

	if configurationError := manager.restoreConfiguration(executionContext, repository, quarantinePath); configurationError != nil {
		return manager.rollback(repository, quarantinePath, temporaryClonePath, true, fmt.Errorf(configurationErrorTemplateConstant, repository.Path, configurationError))
	}

	manager.carryOverMetadata(repository, quarantinePath)

	if resetError := manager.repositoryManager.ResetIndex(executionContext, repository.Path); resetError != nil {
		manager.logger.Warn(indexRebuildFailedMessageConstant, zap.String(logFieldRepositoryConstant, repository.Path), zap.Error(resetError))
	}

	if len(quarantinePath) > 0 {
		if removalError := manager.fileSystem.RemoveAll(quarantinePath); removalError != nil {
			manager.logger.Warn(cleanupFailedMessageConstant, zap.String(logFieldPathConstant, quarantinePath), zap.Error(removalError))
		}
	}

	manager.logger.Info(restoreCompletedMessageConstant, zap.String(logFieldRepositoryConstant, repository.Path))
	return nil
}

// RemoveBackup deletes the bundle. A missing bundle is not an error.
func (manager *Manager) RemoveBackup(bundlePath string) error {
	if len(strings.TrimSpace(bundlePath)) == 0 {
		return nil
	}
	removalError := manager.fileSystem.Remove(bundlePath)
	if removalError != nil && !errors.Is(removalError, fs.ErrNotExist) {
		return fmt.Errorf(removalErrorTemplateConstant, bundlePath, removalError)
	}
	if removalError == nil {
		manager.logger.Debug(bundleRemovedMessageConstant, zap.String(logFieldBundleConstant, bundlePath))
	}
	return nil
}

func (manager *Manager) restoreConfiguration(executionContext context.Context, repository shared.Repository, quarantinePath string) error {
	if len(quarantinePath) > 0 {
		originalConfiguration, readError := manager.fileSystem.ReadFile(filepath.Join(quarantinePath, gitConfigurationFileNameConstant))
		if readError == nil {
			return manager.fileSystem.WriteFile(filepath.Join(repository.GitDirectory(), gitConfigurationFileNameConstant), originalConfiguration, 0o644)
		}
	}
	return manager.repositoryManager.SetConfiguration(executionContext, repository.Path, coreBareConfigurationKeyConstant, coreBareDisabledValueConstant)
}

func (manager *Manager) carryOverMetadata(repository shared.Repository, quarantinePath string) {
	if len(quarantinePath) == 0 {
		return
	}
	for _, entryName := range carriedOverMetadataEntries {
		sourcePath := filepath.Join(quarantinePath, entryName)
		if !manager.exists(sourcePath) {
			continue
		}
		destinationPath := filepath.Join(repository.GitDirectory(), entryName)
		if removalError := manager.fileSystem.RemoveAll(destinationPath); removalError != nil {
			manager.logger.Warn(carryOverFailedMessageConstant, zap.String(logFieldEntryConstant, entryName), zap.Error(removalError))
			continue
		}
		if renameError := manager.fileSystem.Rename(sourcePath, destinationPath); renameError != nil {
			manager.logger.Warn(carryOverFailedMessageConstant, zap.String(logFieldEntryConstant, entryName), zap.Error(renameError))
		}
	}
}

func (manager *Manager) rollback(repository shared.Repository, quarantinePath string, temporaryClonePath string, installed bool, cause error) error {
	if manager.exists(temporaryClonePath) {
		if removalError := manager.fileSystem.RemoveAll(temporaryClonePath); removalError != nil {
			manager.logger.Warn(cleanupFailedMessageConstant, zap.String(logFieldPathConstant, temporaryClonePath), zap.Error(removalError))
		}
	}
	if len(quarantinePath) == 0 {
		return cause
	}

	gitDirectory := repository.GitDirectory()
	if installed || manager.exists(gitDirectory) {
		if removalError := manager.fileSystem.RemoveAll(gitDirectory); removalError != nil {
			return errors.Join(cause, fmt.Errorf(rollbackErrorTemplateConstant, gitDirectory, removalError))
		}
	}
	if renameError := manager.fileSystem.Rename(quarantinePath, gitDirectory); renameError != nil {
		return errors.Join(cause, fmt.Errorf(rollbackErrorTemplateConstant, gitDirectory, renameError))
	}

	manager.logger.Warn(
		restoreRolledBackMessageConstant,
		zap.String(logFieldRepositoryConstant, repository.Path),
		zap.String(logFieldQuarantineConstant, quarantinePath),
		zap.Error(cause),
	)
	return cause
}

func (manager *Manager) discardPartialBundle(bundlePath string) {
	if removalError := manager.fileSystem.Remove(bundlePath); removalError != nil && !errors.Is(removalError, fs.ErrNotExist) {
		manager.logger.Warn(cleanupFailedMessageConstant, zap.String(logFieldPathConstant, bundlePath), zap.Error(removalError))
	}
}

func (manager *Manager) uniquePath(basePath string, extension string) (string, error) {
	candidatePath := basePath + extension
	for attempt := 1; manager.exists(candidatePath); attempt++ {
		if attempt > maximumCollisionAttemptsConstant {
			return "", fmt.Errorf(uniquePathErrorTemplateConstant, basePath+extension)
		}
		candidatePath = fmt.Sprintf(collisionSuffixTemplateConstant, basePath, attempt) + extension
	}
	return candidatePath, nil
}

func (manager *Manager) exists(path string) bool {
	_, statError := manager.fileSystem.Stat(path)
	return statError == nil
}

func (manager *Manager) timestamp() string {
	return manager.clock.Now().Format(timestampLayoutConstant)
}
