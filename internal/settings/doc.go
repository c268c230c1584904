// Package settings keeps the in-memory export settings and the named
// configurations persisted next to them.
//
// A Store holds exactly one active configuration: either the built-in
// default, which is never written to disk, or a JSON document under the
// configurations directory. The store decides whether the current snapshot
// has drifted from its on-disk copy, and keeps the active pointer valid
// across add, rename, duplicate and remove.
package settings
