// Package gitrepo wraps the git command surface used by git-compact.
//
// RepositoryManager exposes status, remote listing, integrity checks, history
// counting, bundle creation and mirroring, auto-commit, and the destructive
// compaction commands as typed operations executed through execshell.
package gitrepo
