package shared

// AutoCommitPolicy specifies how the pipeline treats uncommitted changes.
type AutoCommitPolicy int

const (
	// AutoCommitEnabled stages and commits uncommitted changes before validation.
	AutoCommitEnabled AutoCommitPolicy = iota
	// AutoCommitDisabled leaves uncommitted changes untouched.
	AutoCommitDisabled
)

// AutoCommitPolicyFromBool converts a boolean flag into a policy.
func AutoCommitPolicyFromBool(autoCommit bool) AutoCommitPolicy {
	if autoCommit {
		return AutoCommitEnabled
	}
	return AutoCommitDisabled
}

// ShouldCommit reports whether uncommitted changes should be committed.
func (policy AutoCommitPolicy) ShouldCommit() bool {
	return policy == AutoCommitEnabled
}

// RemoteCheckPolicy describes whether a configured remote is required.
type RemoteCheckPolicy int

const (
	// RemoteCheckRequired skips repositories without a remote.
	RemoteCheckRequired RemoteCheckPolicy = iota
	// RemoteCheckSkipped accepts repositories without a remote.
	RemoteCheckSkipped
)

// RemoteCheckPolicyFromSkipFlag converts the skip-remote-check flag into a policy value.
func RemoteCheckPolicyFromSkipFlag(skipRemoteCheck bool) RemoteCheckPolicy {
	if skipRemoteCheck {
		return RemoteCheckSkipped
	}
	return RemoteCheckRequired
}

// RequireRemote reports whether a remote must be configured.
func (policy RemoteCheckPolicy) RequireRemote() bool {
	return policy == RemoteCheckRequired
}

// BackupRetentionPolicy describes what happens to a backup after a successful compaction.
type BackupRetentionPolicy int

const (
	// BackupRetentionRemove deletes the backup after success.
	BackupRetentionRemove BackupRetentionPolicy = iota
	// BackupRetentionKeep keeps the backup after success.
	BackupRetentionKeep
)

// BackupRetentionPolicyFromBool converts the keep-backup flag into a policy value.
func BackupRetentionPolicyFromBool(keepBackup bool) BackupRetentionPolicy {
	if keepBackup {
		return BackupRetentionKeep
	}
	return BackupRetentionRemove
}

// KeepBackup reports whether the backup survives a successful compaction.
func (policy BackupRetentionPolicy) KeepBackup() bool {
	return policy == BackupRetentionKeep
}
