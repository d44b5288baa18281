// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging, per-command timeouts, and an optional tolerant
// mode via ShellExecutor, exposes OSCommandRunner for default process execution,
// and defines the abstractions git-compact uses to run git in a testable manner.
package execshell
