// Package store owns the single SQLite connection behind a soup store.
//
// A Store is a handle: it opens the database, applies pragmas and the
// registry metadata schema, gates access behind a passphrase and carries the
// schema cache that the registry consults. The handle has an explicit
// lifecycle:
//
//   - Open: creates or opens the file and checks the passphrase
//   - Reset: drops cached schema state; the connection stays open
//   - Close: releases the connection; every later call fails with
//     CONNECTION_CLOSED instead of reopening
//
// # Database Configuration
//
//   - One open connection: SQLite allows one writer, and the soup store
//     serializes writers per soup above this layer
//   - WAL mode, synchronous=NORMAL, busy_timeout=5000, foreign_keys=ON
//   - Driver "sqlite3" (github.com/mattn/go-sqlite3, cgo) by default, or
//     "sqlite" (modernc.org/sqlite, pure Go) via WithDriver
//
// # Passphrase
//
// The passphrase is checked against an HMAC verifier kept in store_info.
// With a non-empty passphrase the derived key (BlobKey) seals every stored
// document: the soup column of inline entries and externalized blobs alike
// (see internal/smartstore and internal/blob). Projected index columns and
// the registry tables stay in the clear so SQLite can index them; no
// page-level cipher is applied.
package store
