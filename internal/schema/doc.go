// Package schema defines soup metadata and the DDL that backs it.
//
// A soup is a named collection of JSON documents. Each soup owns one
// physical table, TABLE_{id}, whose columns are, in order:
//
//	_soupEntryId          INTEGER PRIMARY KEY AUTOINCREMENT
//	_soupCreatedDate      INTEGER (epoch millis)
//	_soupLastModifiedDate INTEGER (epoch millis)
//	soup                  TEXT (raw JSON, NULL when externalized)
//	"<path>"              one column per IndexSpec, in position order
//
// and one secondary index per IndexSpec named {table}_{position}_idx.
// The table name is derived from the registry row id, never from the soup
// name, so soup names can be any text without touching the DDL.
//
// Statement text is deterministic: the same soup always produces the same
// CREATE TABLE and CREATE INDEX strings, which is what sqlite_master stores
// and what callers may substring-match against.
package schema
