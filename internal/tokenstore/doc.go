// Package tokenstore owns the persisted OAuth session.
//
// A Store keeps one canonical auth.AuthState in memory, backed by a sealed
// record in a securestore.BlobStore. Reads are lock free. Writes are
// serialized and follow write-then-publish ordering: the record reaches disk
// before any reader can observe the new value.
//
// Every storage failure (missing key, unreadable file, failed decryption,
// malformed JSON) degrades to the empty, logged-out state. Nothing is
// returned to the caller.
//
// A Store is meant to be constructed once by the composition root and passed
// to every consumer.
package tokenstore
