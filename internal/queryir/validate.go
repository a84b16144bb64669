package queryir

import (
	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/value"
)

// Validate checks a query for structural errors. It does not know which
// paths are indexed; the SQL compiler checks that against the soup.
func Validate(q Query) error {
	if q == nil {
		return fault.Invalid("nil query")
	}

	base := q.Base()
	if base.Soup == "" {
		return fault.Invalid("query names no soup")
	}
	if base.PageSize < 0 {
		return fault.Invalid("page size %d is negative", base.PageSize)
	}
	switch base.Order {
	case "", Ascending, Descending:
	default:
		return fault.Invalid("unknown order %q", base.Order)
	}
	for i, p := range base.Select {
		if p == "" {
			return fault.Invalid("select path %d is empty", i)
		}
	}

	switch query := q.(type) {
	case All:
		return nil
	case Exact:
		if query.Path == "" {
			return fault.Invalid("exact query has no path")
		}
		if !isScalar(query.Match) || value.IsNull(query.Match) {
			return fault.Invalid("exact match on %q needs a non-null scalar, got %s",
				query.Path, value.KindOf(query.Match))
		}
	case Range:
		if query.Path == "" {
			return fault.Invalid("range query has no path")
		}
		if !isScalar(query.Begin) || !isScalar(query.End) {
			return fault.Invalid("range bounds on %q must be scalars", query.Path)
		}
	case Like:
		if query.Path == "" {
			return fault.Invalid("like query has no path")
		}
		if query.Pattern == "" {
			return fault.Invalid("like query on %q has an empty pattern", query.Path)
		}
	default:
		return fault.Invalid("unsupported query type %T", q)
	}
	return nil
}

func isScalar(v value.Value) bool {
	switch v.(type) {
	case value.Array, value.Object:
		return false
	default:
		return true
	}
}
