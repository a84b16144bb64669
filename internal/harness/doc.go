// Package harness drives a SmartStore from Go tests and YAML scenarios.
//
// A Fixture is a SmartStore on a fresh database in its own directory, with
// a deterministic clock and an optional blob store. Its Check* methods
// inspect the physical schema the store created: table columns, the CREATE
// TABLE statement, index DDL, the plan of the last query and the blob files
// of externalized entries. Each returns an *AssertionError on mismatch, so
// Go tests use them as
//
//	f := harness.Open(t, harness.Config{})
//	require.NoError(t, f.CheckColumns(ctx, table, want))
//
// # Scenario Format
//
// Scenarios describe the same checks in YAML:
//
//	name: employees_name_index
//	description: "Name index is used by exact queries"
//	soups:
//	  - ../soups/employees.cue
//	blobs:
//	  backend: dir
//	  threshold: 1024
//	steps:
//	  - op: register
//	    soup: employees
//	    indexes: [{path: name, type: string}]
//	  - op: upsert
//	    soup: employees
//	    doc: {name: Ann}
//	  - op: query
//	    soup: employees
//	    query: {kind: exact, path: name, value: Ann}
//	    expect_rows: 1
//	assertions:
//	  - type: explain_plan
//	    soup: employees
//	    index: 0
//	    operation: SEARCH
//
// Unknown fields are rejected so typos fail loudly. Statement text in
// assertions may use a {table} placeholder for the soup's table name.
//
// # Assertion Types
//
//   - has_table: the soup's table (or a literal table) exists, or not
//   - columns: the table's column names, in order
//   - index_specs: the registered index specs
//   - create_table_contains: the CREATE TABLE statement contains a substring
//   - database_indexes: the CREATE INDEX statements, ordered by index name
//   - explain_plan: the last query plan used the index at a spec position
//   - blob_files: blobs for the given entry ids exist, or not
//   - record: a stored entry contains the expected fields
//   - count: the soup holds exactly N entries
//
// # Deterministic Testing
//
// Every run uses a fresh database and testutil.DeterministicClock, so entry
// ids and timestamps are identical across runs and traces can be compared
// against golden files in testdata/golden.
package harness
