// Package journal keeps an append-only SQLite record of every archived
// EPrints record: which run produced it, where the artifact lives, and its
// SHA-256. The journal is an audit trail only; nothing consults it to decide
// whether a record should be fetched again.
//
// Schema changes are added as new files under migrations/, applied in
// lexical order and tracked in schema_migrations.
package journal
