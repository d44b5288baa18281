package filesystem_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitcompact/internal/repos/filesystem"
)

func TestDirectorySizeSumsRegularFiles(t *testing.T) {
	rootDirectory := t.TempDir()
	nestedDirectory := filepath.Join(rootDirectory, "objects", "pack")
	require.NoError(t, os.MkdirAll(nestedDirectory, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootDirectory, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nestedDirectory, "pack-1.pack"), make([]byte, 1024), 0o644))

	size := filesystem.DirectorySize(filesystem.OSFileSystem{}, rootDirectory)
	require.Equal(t, int64(1024+len("ref: refs/heads/main\n")), size)
}

func TestDirectorySizeOfMissingDirectoryIsZero(t *testing.T) {
	size := filesystem.DirectorySize(filesystem.OSFileSystem{}, filepath.Join(t.TempDir(), "missing"))
	require.Zero(t, size)
}

func TestOSFileSystemRoundTrip(t *testing.T) {
	fileSystem := filesystem.OSFileSystem{}
	rootDirectory := t.TempDir()
	sourcePath := filepath.Join(rootDirectory, "source", "config")
	destinationPath := filepath.Join(rootDirectory, "destination")

	require.NoError(t, fileSystem.MkdirAll(filepath.Dir(sourcePath), 0o755))
	require.NoError(t, fileSystem.WriteFile(sourcePath, []byte("[core]\n"), 0o644))
	require.NoError(t, fileSystem.Rename(filepath.Dir(sourcePath), destinationPath))

	contents, readError := fileSystem.ReadFile(filepath.Join(destinationPath, "config"))
	require.NoError(t, readError)
	require.Equal(t, "[core]\n", string(contents))

	require.NoError(t, fileSystem.RemoveAll(destinationPath))
	_, statError := fileSystem.Stat(destinationPath)
	require.True(t, os.IsNotExist(statError))
}
