package queryir

import "github.com/roach88/soupstore/internal/value"

// Query is a soup query. Only the types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package

	// Base returns the common query settings.
	Base() Shape
}

// Order is a sort direction.
type Order string

const (
	Ascending  Order = "ASC"
	Descending Order = "DESC"
)

// Shape holds the settings shared by every query.
type Shape struct {
	// Soup is the soup to query.
	Soup string

	// Select lists projected paths. Empty means whole documents.
	Select []string

	// OrderPath is the path to order by. Empty orders by entry id.
	OrderPath string

	// Order is the direction for OrderPath. Empty means Ascending.
	Order Order

	// PageSize bounds the rows per page. Zero means unbounded.
	PageSize int
}

// Base implements Query.
func (s Shape) Base() Shape { return s }

// All matches every entry of the soup.
type All struct {
	Shape
}

func (All) queryNode() {}

// Exact matches entries whose Path projects to Match.
type Exact struct {
	Shape
	Path  string
	Match value.Value
}

func (Exact) queryNode() {}

// Range matches entries whose Path projects into [Begin, End]. A nil or
// Null bound leaves that side open.
type Range struct {
	Shape
	Path  string
	Begin value.Value
	End   value.Value
}

func (Range) queryNode() {}

// Like matches entries whose Path projects to text matching a SQL LIKE
// pattern.
type Like struct {
	Shape
	Path    string
	Pattern string
}

func (Like) queryNode() {}

// FilterPath returns the path a query filters on, or "" for All.
func FilterPath(q Query) string {
	switch query := q.(type) {
	case Exact:
		return query.Path
	case Range:
		return query.Path
	case Like:
		return query.Path
	default:
		return ""
	}
}
