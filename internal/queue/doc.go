// Package queue rebuilds pending uploads from extraction output on disk and
// persists their upload history in SQLite.
//
// ScanFolder skips hidden directories, package bundles and every hidden file
// except the extract record itself, which is a dotfile so it stays out of
// the way in Finder.
//
// Queue holds the in-memory entries found by ScanFolder, each pointing at one
// extract record and the upload profiles that match its platform. UploadAll
// re-offers selected entries to the uploader with bounded parallelism and
// Watch drops entries whose folder disappears.
//
// Store is the history database. It is keyed by extract record path, so a
// rescan finds the status of a previous upload. The database is disposable:
// schema changes bump schemaVersion and users delete the file to adopt them.
package queue
