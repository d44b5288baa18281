package compaction_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitcompact/internal/compaction"
	"github.com/temirov/gitcompact/internal/repos/filesystem"
	"github.com/temirov/gitcompact/internal/repos/shared"
	pathutils "github.com/temirov/gitcompact/internal/utils/path"
)

func TestNewRunConfiguration(testInstance *testing.T) {
	homeDirectory := testInstance.TempDir()
	rootDirectory := filepath.Join(homeDirectory, "projects")
	require.NoError(testInstance, os.MkdirAll(rootDirectory, 0o755))
	rootFile := filepath.Join(homeDirectory, "notes.txt")
	require.NoError(testInstance, os.WriteFile(rootFile, []byte("notes"), 0o644))
	homeExpander := pathutils.NewHomeExpanderWithProvider(func() (string, error) { return homeDirectory, nil })

	testCases := []struct {
		name          string
		configure     func(configuration *compaction.CommandConfiguration)
		expectedError error
		verify        func(testInstance *testing.T, configuration compaction.RunConfiguration)
	}{
		{
			name: "defaults",
			configure: func(configuration *compaction.CommandConfiguration) {
				configuration.Root = rootDirectory
			},
			verify: func(testInstance *testing.T, configuration compaction.RunConfiguration) {
				require.Equal(testInstance, rootDirectory, configuration.Root())
				require.Empty(testInstance, configuration.BackupPath())
				require.False(testInstance, configuration.DryRun())
				require.True(testInstance, configuration.AutoCommitPolicy().ShouldCommit())
				require.True(testInstance, configuration.RemoteCheckPolicy().RequireRemote())
				require.False(testInstance, configuration.BackupRetentionPolicy().KeepBackup())
				require.Equal(testInstance, 10*time.Minute, configuration.CommandTimeout())
				require.Equal(testInstance, shared.DefaultCompressionSettings(), configuration.Compression())
				require.Empty(testInstance, configuration.Exclusions())
			},
		},
		{
			name: "home_expansion_and_switches",
			configure: func(configuration *compaction.CommandConfiguration) {
				configuration.Root = "~/projects/"
				configuration.BackupPath = "~/backups"
				configuration.LogFile = "~/logs/run.log"
				configuration.KeepBackup = true
				configuration.DryRun = true
				configuration.SkipRemoteCheck = true
				configuration.AutoCommit = false
			},
			verify: func(testInstance *testing.T, configuration compaction.RunConfiguration) {
				require.Equal(testInstance, rootDirectory, configuration.Root())
				require.Equal(testInstance, filepath.Join(homeDirectory, "backups"), configuration.BackupPath())
				require.Equal(testInstance, filepath.Join(homeDirectory, "logs", "run.log"), configuration.LogFile())
				require.True(testInstance, configuration.DryRun())
				require.False(testInstance, configuration.AutoCommitPolicy().ShouldCommit())
				require.False(testInstance, configuration.RemoteCheckPolicy().RequireRemote())
				require.True(testInstance, configuration.BackupRetentionPolicy().KeepBackup())

				description := configuration.Description(testInstant)
				require.Equal(testInstance, rootDirectory, description.Root)
				require.True(testInstance, description.KeepBackup)
				require.True(testInstance, description.SkipRemoteCheck)
				require.False(testInstance, description.AutoCommit)
				require.Equal(testInstance, testInstant, description.StartedAt)
			},
		},
		{
			name: "exclusions_split_on_commas",
			configure: func(configuration *compaction.CommandConfiguration) {
				configuration.Root = rootDirectory
				configuration.Exclude = []string{" vendor , archive", "", "node_modules"}
			},
			verify: func(testInstance *testing.T, configuration compaction.RunConfiguration) {
				require.Equal(testInstance, []string{"vendor", "archive", "node_modules"}, configuration.Exclusions())
				exclusions := configuration.Exclusions()
				exclusions[0] = "mutated"
				require.Equal(testInstance, "vendor", configuration.Exclusions()[0])
			},
		},
		{
			name:          "missing_root",
			configure:     func(configuration *compaction.CommandConfiguration) { configuration.Root = "  " },
			expectedError: compaction.ErrRootRequired,
		},
		{
			name: "nonexistent_root",
			configure: func(configuration *compaction.CommandConfiguration) {
				configuration.Root = filepath.Join(homeDirectory, "absent")
			},
			expectedError: compaction.ErrRootMissing,
		},
		{
			name:          "root_is_file",
			configure:     func(configuration *compaction.CommandConfiguration) { configuration.Root = rootFile },
			expectedError: compaction.ErrRootNotDirectory,
		},
		{
			name: "invalid_timeout",
			configure: func(configuration *compaction.CommandConfiguration) {
				configuration.Root = rootDirectory
				configuration.CommandTimeout = 0
			},
			expectedError: compaction.ErrInvalidCommandTimeout,
		},
		{
			name: "invalid_compression",
			configure: func(configuration *compaction.CommandConfiguration) {
				configuration.Root = rootDirectory
				configuration.CompressionLevel = 10
			},
			expectedError: compaction.ErrInvalidCompressionLevel,
		},
		{
			name: "invalid_pack_settings",
			configure: func(configuration *compaction.CommandConfiguration) {
				configuration.Root = rootDirectory
				configuration.PackWindow = 0
			},
			expectedError: compaction.ErrInvalidPackSettings,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := compaction.DefaultCommandConfiguration()
			testCase.configure(&configuration)

			runConfiguration, configurationError := compaction.NewRunConfiguration(configuration, filesystem.OSFileSystem{}, homeExpander)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, configurationError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, configurationError)
			testCase.verify(testInstance, runConfiguration)
		})
	}
}

func TestDefaultConfigurationValues(testInstance *testing.T) {
	values := compaction.DefaultConfigurationValues("compact")

	require.Equal(testInstance, true, values["compact.auto_commit"])
	require.Equal(testInstance, "10m0s", values["compact.command_timeout"])
	require.Equal(testInstance, 9, values["compact.compression_level"])
	require.Contains(testInstance, values, "compact.root")
	require.Contains(testInstance, compaction.DefaultConfigurationValues(""), "root")
}
