// Package draftsync reconciles a locally edited draft value against an
// authoritative value held by a remote source. It provides debounced
// automatic commits, optimistic application, rollback with conflict merge on
// commit failure, background merge of refreshed remote values into an
// in-progress draft, and a derived save status.
//
// The engine is deliberately small: exactly one pending local draft and one
// authoritative remote value, with a single pluggable merge function. It is
// not a CRDT or operational-transform system and does not reconcile more
// than two concurrent writers.
//
// The remote side is abstracted behind two collaborators: a pull side
// (Source) that owns the authoritative cache, and a push side (CommitFunc)
// that persists a value. Adapters for HTTP endpoints, JSON files, and a
// SQLite-backed shared draft store live in sibling packages.
package draftsync
