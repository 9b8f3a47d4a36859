// Package pipeline sequences the retrieval and archival of EPrints records.
//
// Records are processed strictly in request order and documents within a
// record in metadata order; there is no concurrency. Each identifier moves
// through Requesting, then Skipped or Failed or Downloading, then Packaged
// or LeftAsDirectory. A terminal error on any record stops the run, and the
// Report still reflects everything completed up to that point.
//
// Cancellation is observed between records and during the pacing delay.
// Network calls for a record already underway run to completion, failure,
// or retry exhaustion.
package pipeline
