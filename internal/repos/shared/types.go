package shared

import (
	"context"
	"io/fs"
	"time"

	"github.com/temirov/gitcompact/internal/execshell"
)

const (
	// GitMetadataDirectoryNameConstant names the metadata directory that marks a repository root.
	GitMetadataDirectoryNameConstant = ".git"
	// OriginRemoteNameConstant identifies the remote a bundle clone points at.
	OriginRemoteNameConstant = "origin"
)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FileSystem exposes filesystem operations required by repository services.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Rename(oldPath string, newPath string) error
	Abs(path string) (string, error)
	MkdirAll(path string, permissions fs.FileMode) error
	Remove(path string) error
	RemoveAll(path string) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, permissions fs.FileMode) error
	WalkDir(root string, walkFunction fs.WalkDirFunc) error
}

// GitExecutor exposes the subset of shell execution used by repository services.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RemoteEntry describes one line of `git remote -v` output.
type RemoteEntry struct {
	Name      string
	URL       string
	Direction string
}

// GitRepositoryManager exposes repository-level git operations used by the compaction pipeline.
type GitRepositoryManager interface {
	HasUncommittedChanges(executionContext context.Context, repositoryPath string) (bool, error)
	ListRemotes(executionContext context.Context, repositoryPath string) ([]RemoteEntry, error)
	CheckIntegrity(executionContext context.Context, repositoryPath string) error
	CountCommits(executionContext context.Context, repositoryPath string) int
	CountBranches(executionContext context.Context, repositoryPath string) int
	CountTags(executionContext context.Context, repositoryPath string) int
	CreateBundle(executionContext context.Context, repositoryPath string, bundlePath string) error
	VerifyBundle(executionContext context.Context, repositoryPath string, bundlePath string) error
	MirrorBundle(executionContext context.Context, workingDirectory string, bundlePath string, destinationPath string) error
	ResetIndex(executionContext context.Context, repositoryPath string) error
	StageAll(executionContext context.Context, repositoryPath string) error
	Commit(executionContext context.Context, repositoryPath string, message string) error
	SetConfiguration(executionContext context.Context, repositoryPath string, key string, value string) error
	ApplyCompressionConfiguration(executionContext context.Context, repositoryPath string, settings CompressionSettings) error
	ExpireReflog(executionContext context.Context, repositoryPath string) error
	Repack(executionContext context.Context, repositoryPath string, settings CompressionSettings) error
	CollectGarbage(executionContext context.Context, repositoryPath string) error
}

// CompressionSettings configures the compression level and delta search applied during compaction.
type CompressionSettings struct {
	Level  int
	Depth  int
	Window int
}

// Compression defaults applied when no explicit settings are configured.
const (
	DefaultCompressionLevel = 9
	DefaultPackDepth        = 250
	DefaultPackWindow       = 250
)

// DefaultCompressionSettings returns maximal compression with deep delta search.
func DefaultCompressionSettings() CompressionSettings {
	return CompressionSettings{Level: DefaultCompressionLevel, Depth: DefaultPackDepth, Window: DefaultPackWindow}
}

// RepositoryDiscoverer locates git repositories beneath a root directory.
type RepositoryDiscoverer interface {
	DiscoverRepositories(root string) (ScanResult, error)
}

// ScanResult captures the outcome of a repository scan.
type ScanResult struct {
	// Repositories lists pending repository handles in traversal order.
	Repositories []Repository
	// NestedRepositories lists repositories found inside the working tree of another discovered repository.
	NestedRepositories []string
	// ExcludedRepositories lists repositories dropped by exclusion patterns.
	ExcludedRepositories []string
}
