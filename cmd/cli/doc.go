// Package cli constructs the git-compact command-line interface, wiring the
// compaction command to the configuration loader and structured logging.
//
// Configuration is layered from embedded defaults, an optional config.yaml in
// the working directory or ~/.gitcompact, GITCOMPACT_* environment variables,
// and finally command-line flags.
package cli
