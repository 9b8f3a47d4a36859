// Package eprints speaks the EPrints REST interface: it builds API URLs with
// embedded credentials, fetches and parses record metadata, extracts the
// downloadable documents of a record, and enumerates every record on a
// server.
//
// Identifiers are kept as text throughout so zero-padded or non-numeric
// record names survive unchanged.
package eprints
