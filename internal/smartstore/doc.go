// Package smartstore is the soup store facade: it registers soups, writes
// and reads entries, runs queries with plan capture and spills large
// entries to a blob store.
//
// An entry is a JSON object. On every write the store sets three reserved
// fields inside it:
//
//	_soupEntryId           int64, assigned on insert, never reused
//	_soupCreatedDate       epoch millis, set on insert
//	_soupLastModifiedDate  epoch millis, set on every write
//
// and projects each declared index path into its column. The raw JSON goes
// to the soup column, or, when the ExternalizePolicy says so, to the blob
// store, leaving the soup column NULL. NULL is the externalized flag: a row
// whose soup column is NULL always has a blob, and a row with inline
// content never has one.
//
// # Write ordering
//
// The blob is written before the row commits. If the commit fails the blob
// write is compensated (deleted, or restored to its previous content), so a
// crash can leave an orphaned blob but never a flagged row without one.
// Blobs of deleted rows are removed after the delete commits for the same
// reason.
//
// # Concurrency
//
// Writers to the same soup are serialized by a per-soup mutex; different
// soups proceed independently, limited only by the single store connection.
// The last query plan is one slot shared by all queries on the SmartStore.
package smartstore
