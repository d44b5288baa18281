package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	// BackupDirectoryNameConstant names the sibling directory holding backup bundles.
	BackupDirectoryNameConstant = "_git_compact_backups"
	// RestoreDirectoryPrefixConstant prefixes temporary clones created while restoring a backup.
	RestoreDirectoryPrefixConstant = "_temp_restore_"
	// QuarantineDirectoryPrefixConstant prefixes metadata directories set aside during a restore.
	QuarantineDirectoryPrefixConstant = ".git_corrupted_"

	rootNotFoundMessageConstant            = "scan root does not exist"
	rootNotDirectoryMessageConstant        = "scan root is not a directory"
	rootErrorTemplateConstant              = "%w: %s"
	rootResolutionErrorTemplateConstant    = "unable to resolve scan root %s: %w"
	rootWalkErrorTemplateConstant          = "unable to scan %s: %w"
	repositoryDiscoveredMessageConstant    = "Discovered repository"
	repositoryExcludedMessageConstant      = "Excluded repository"
	nestedRepositorySkippedMessageConstant = "Skipping nested repository"
	unreadableDirectoryMessageConstant     = "Skipping unreadable directory"
	logFieldPathConstant                   = "path"
	logFieldParentRepositoryConstant       = "parent_repository"
	logFieldPatternConstant                = "pattern"
)

// ErrRootNotFound indicates the scan root does not exist.
var ErrRootNotFound = errors.New(rootNotFoundMessageConstant)

// ErrRootNotDirectory indicates the scan root is not a directory.
var ErrRootNotDirectory = errors.New(rootNotDirectoryMessageConstant)

// FilesystemRepositoryDiscoverer locates git repositories on disk.
type FilesystemRepositoryDiscoverer struct {
	fileSystem shared.FileSystem
	logger     *zap.Logger
	exclusions []string
}

// NewFilesystemRepositoryDiscoverer constructs a repository discoverer backed by the provided filesystem.
// Exclusion patterns are matched case-insensitively as substrings of the absolute repository path.
func NewFilesystemRepositoryDiscoverer(fileSystem shared.FileSystem, logger *zap.Logger, exclusionPatterns ...string) *FilesystemRepositoryDiscoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	normalizedExclusions := make([]string, 0, len(exclusionPatterns))
	for _, exclusionPattern := range exclusionPatterns {
		trimmedPattern := strings.TrimSpace(exclusionPattern)
		if len(trimmedPattern) == 0 {
			continue
		}
		normalizedExclusions = append(normalizedExclusions, strings.ToLower(trimmedPattern))
	}
	return &FilesystemRepositoryDiscoverer{
		fileSystem: fileSystem,
		logger:     logger,
		exclusions: normalizedExclusions,
	}
}

// DiscoverRepositories walks root and returns one pending record per directory holding a .git directory.
// Repositories inside the working tree of another discovered repository are reported as nested and not returned.
func (discoverer *FilesystemRepositoryDiscoverer) DiscoverRepositories(root string) (shared.ScanResult, error) {
	absoluteRoot, resolutionError := discoverer.fileSystem.Abs(root)
	if resolutionError != nil {
		return shared.ScanResult{}, fmt.Errorf(rootResolutionErrorTemplateConstant, root, resolutionError)
	}

	rootInfo, statError := discoverer.fileSystem.Stat(absoluteRoot)
	if statError != nil {
		if errors.Is(statError, fs.ErrNotExist) {
			return shared.ScanResult{}, fmt.Errorf(rootErrorTemplateConstant, ErrRootNotFound, absoluteRoot)
		}
		return shared.ScanResult{}, fmt.Errorf(rootResolutionErrorTemplateConstant, absoluteRoot, statError)
	}
	if !rootInfo.IsDir() {
		return shared.ScanResult{}, fmt.Errorf(rootErrorTemplateConstant, ErrRootNotDirectory, absoluteRoot)
	}

	result := shared.ScanResult{}
	var discoveredRoots []string

	walkError := discoverer.fileSystem.WalkDir(absoluteRoot, func(path string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			if path == absoluteRoot {
				return walkError
			}
			discoverer.logger.Debug(unreadableDirectoryMessageConstant, zap.String(logFieldPathConstant, path), zap.Error(walkError))
			if directoryEntry != nil && directoryEntry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if !directoryEntry.IsDir() {
			return nil
		}
		if path != absoluteRoot && isToolManagedDirectory(directoryEntry.Name()) {
			return fs.SkipDir
		}
		if !discoverer.hasGitDirectory(path) {
			return nil
		}

		if parentRepository, nested := findEnclosingRepository(discoveredRoots, path); nested {
			discoverer.logger.Warn(
				nestedRepositorySkippedMessageConstant,
				zap.String(logFieldPathConstant, path),
				zap.String(logFieldParentRepositoryConstant, parentRepository),
			)
			result.NestedRepositories = append(result.NestedRepositories, path)
			return nil
		}
		discoveredRoots = append(discoveredRoots, path)

		if matchedPattern, excluded := discoverer.matchExclusion(path); excluded {
			discoverer.logger.Info(
				repositoryExcludedMessageConstant,
				zap.String(logFieldPathConstant, path),
				zap.String(logFieldPatternConstant, matchedPattern),
			)
			result.ExcludedRepositories = append(result.ExcludedRepositories, path)
			return nil
		}

		discoverer.logger.Debug(repositoryDiscoveredMessageConstant, zap.String(logFieldPathConstant, path))
		result.Repositories = append(result.Repositories, shared.NewRepository(path))
		return nil
	})
	if walkError != nil {
		return shared.ScanResult{}, fmt.Errorf(rootWalkErrorTemplateConstant, absoluteRoot, walkError)
	}

	return result, nil
}

func (discoverer *FilesystemRepositoryDiscoverer) hasGitDirectory(directoryPath string) bool {
	metadataInfo, statError := discoverer.fileSystem.Stat(filepath.Join(directoryPath, shared.GitMetadataDirectoryNameConstant))
	return statError == nil && metadataInfo.IsDir()
}

func (discoverer *FilesystemRepositoryDiscoverer) matchExclusion(repositoryPath string) (string, bool) {
	normalizedPath := strings.ToLower(repositoryPath)
	for _, exclusion := range discoverer.exclusions {
		if strings.Contains(normalizedPath, exclusion) {
			return exclusion, true
		}
	}
	return "", false
}

func isToolManagedDirectory(directoryName string) bool {
	switch {
	case directoryName == shared.GitMetadataDirectoryNameConstant:
		return true
	case directoryName == BackupDirectoryNameConstant:
		return true
	case strings.HasPrefix(directoryName, RestoreDirectoryPrefixConstant):
		return true
	case strings.HasPrefix(directoryName, QuarantineDirectoryPrefixConstant):
		return true
	default:
		return false
	}
}

func findEnclosingRepository(discoveredRoots []string, candidatePath string) (string, bool) {
	for index := len(discoveredRoots) - 1; index >= 0; index-- {
		repositoryRoot := discoveredRoots[index]
		if strings.HasPrefix(candidatePath, repositoryRoot+string(filepath.Separator)) {
			return repositoryRoot, true
		}
	}
	return "", false
}
