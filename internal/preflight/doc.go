// Package preflight provides readiness checks run before a retrieval:
// network reachability, the EPrints server's listing endpoint, the output
// directory's permissions, and whether the requested number of records fits
// under the destination filesystem's subdirectory limit.
//
// These checks run in two contexts:
//   - The run command calls RunAll and refuses to start when a check fails.
//   - The "eprints2bags check" command prints every result as a table.
package preflight
