// Package ui renders run progress and command activity for people watching a terminal.
//
// ConsoleReporter turns repository records into colored progress lines and a
// summary table, optionally mirrored without colors into a run log file, while
// detailed telemetry continues to flow through structured loggers.
package ui
