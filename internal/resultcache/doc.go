// Package resultcache provides the change-tracked store of tabular results
// produced by action steps.
//
// The cache is a two-level mapping, group → key → *Entry, guarded by one
// mutex, plus a dirty flag. Every insert replaces the entry at group/key
// atomically and sets the flag; the flag is cleared only by
// SerializeAndResetChanged(true). The interpreter polls HasChanged after each
// successful step and pushes the serialised cache to connected clients.
//
// An Entry is one of two shapes:
//
//   - RegularCSV: an ordered list of rows; the row key is the row index
//   - PrimaryKeyCSV: a key → row dictionary; the row key is the dictionary key
//
// Both shapes are consumed through the single iterator Entry.All, so the
// JSON serialiser and the HTML/CSV renderers never switch on the shape.
//
// Entries are immutable once built, which is why GetCacheEntry can hand a
// shared pointer out of the lock.
//
// Each insert also asks a QueryWriter to (re)generate a companion Excel
// web-query file so spreadsheets can pull the entry over HTTP.
package resultcache
