// Package services defines shared utilities consumed by the pipeline stages
// and their network collaborators.
//
// Key responsibilities:
//   - The error taxonomy (no content, authentication, service, internal, rate
//     limit, network, bad URL) as sentinel markers plus the Wrap helper that
//     tags failures for errors.Is classification.
//   - Context helpers that stamp run IDs, record identifiers, and stage names
//     for structured logging.
//
// Use these helpers when wiring new stage logic so error reporting and
// observability stay uniform across the pipeline.
package services
