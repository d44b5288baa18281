// Package compaction drives safe object-storage compaction across every git
// repository found beneath a root directory.
//
// Compactor runs the per-repository pipeline: it auto-commits pending work,
// validates the repository, records its history counts, writes a bundle
// backup, repacks and garbage-collects, and validates again. A failure after
// the backup exists restores the repository from the bundle. Service scans
// the root, feeds each repository through the pipeline in order, and
// aggregates the run summary while honoring interruption between
// repositories. CommandBuilder exposes the workflow as a cobra command.
package compaction
