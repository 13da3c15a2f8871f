// Package backup implements the encrypted backup and restore pipeline for
// containerized datastores.
//
// The pipeline dumps each tracked dataset through its adapter (PostgreSQL via
// pg_dump, SQLite via the sqlite3 online-backup command), packs the dump into
// a compressed OpenPGP-encrypted archive named <prefix>-<DD-MM-YY>.tar.gz.gpg,
// ships the artifact to the configured notification sink, and prunes expired
// artifacts by the date encoded in their filenames.
package backup
