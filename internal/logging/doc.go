// Package logging assembles structured slog loggers and formatting helpers used
// across eprints2bags.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with run IDs, record identifiers, and stage names. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Loggers are always passed explicitly to the components that emit
// diagnostics; nothing in the module reads a package-level logger.
package logging
