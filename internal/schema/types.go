package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Reserved column names. The first three double as reserved document fields.
const (
	EntryIDColumn      = "_soupEntryId"
	CreatedColumn      = "_soupCreatedDate"
	LastModifiedColumn = "_soupLastModifiedDate"
	SoupColumn         = "soup"
)

// ReservedColumns lists the fixed columns in table order.
var ReservedColumns = []string{EntryIDColumn, CreatedColumn, LastModifiedColumn, SoupColumn}

// Type is the value type an IndexSpec projects into its column.
type Type string

const (
	// TypeString projects text; numbers and booleans are stringified.
	TypeString Type = "string"

	// TypeInteger projects int64; integral floats and numeric strings convert.
	TypeInteger Type = "integer"

	// TypeFloating projects float64.
	TypeFloating Type = "floating"

	// TypeJSON1 projects the raw JSON of the path (scalars as-is, composites as JSON text).
	TypeJSON1 Type = "json1"
)

// ParseType maps a declared type name to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return TypeString, nil
	case "integer", "int":
		return TypeInteger, nil
	case "floating", "float", "real":
		return TypeFloating, nil
	case "json1", "json":
		return TypeJSON1, nil
	default:
		return "", fmt.Errorf("unknown index type %q", s)
	}
}

// ColumnType returns the SQLite declared type for t. JSON1 columns carry no
// declared type so extracted values keep their native storage class.
func (t Type) ColumnType() string {
	switch t {
	case TypeString:
		return "TEXT"
	case TypeInteger:
		return "INTEGER"
	case TypeFloating:
		return "REAL"
	default:
		return ""
	}
}

// IndexSpec declares one indexed projection of a document path.
type IndexSpec struct {
	Path     string `json:"path" yaml:"path"`
	Type     Type   `json:"type" yaml:"type"`
	Position int    `json:"position" yaml:"position,omitempty"`
}

// ColumnName is the physical column holding the projection of spec.Path.
func (s IndexSpec) ColumnName() string {
	return s.Path
}

// Soup is the registry view of a soup: its name, physical table and index specs.
type Soup struct {
	Name    string
	Table   string
	Indexes []IndexSpec
}

// Clone returns a copy of s that shares no slices with it.
func (s Soup) Clone() Soup {
	s.Indexes = slices.Clone(s.Indexes)
	return s
}

// Column describes how a path maps onto a physical column.
type Column struct {
	Name string
	Type Type

	// Position is the IndexSpec position, or -1 for reserved columns.
	Position int
}

// ColumnFor resolves a document path to its column. Reserved fields resolve
// to reserved columns; other paths must be declared by an IndexSpec.
func (s Soup) ColumnFor(path string) (Column, bool) {
	switch path {
	case EntryIDColumn, CreatedColumn, LastModifiedColumn:
		return Column{Name: path, Type: TypeInteger, Position: -1}, true
	}
	for _, spec := range s.Indexes {
		if spec.Path == path {
			return Column{Name: spec.ColumnName(), Type: spec.Type, Position: spec.Position}, true
		}
	}
	return Column{}, false
}

// Columns returns every column name of the soup table in table order.
func (s Soup) Columns() []string {
	cols := slices.Clone(ReservedColumns)
	for _, spec := range s.Indexes {
		cols = append(cols, spec.ColumnName())
	}
	return cols
}

// IndexNames returns the physical index names in position order.
func (s Soup) IndexNames() []string {
	names := make([]string, len(s.Indexes))
	for i, spec := range s.Indexes {
		names[i] = IndexName(s.Table, spec.Position)
	}
	return names
}

// TableName derives the physical table name from a registry id.
func TableName(id int64) string {
	return fmt.Sprintf("TABLE_%d", id)
}

// IndexName derives the physical index name for position in table.
func IndexName(table string, position int) string {
	return fmt.Sprintf("%s_%d_idx", table, position)
}

// QuoteIdent quotes an identifier for SQLite. Validated paths never contain
// a double quote, but it is escaped anyway.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SameSpecs reports whether a and b declare the same paths and types in the
// same order.
func SameSpecs(a, b []IndexSpec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}
