// Package queryir defines the query shapes a soup can answer.
//
// Queries are deliberately narrow: each one filters on at most one declared
// path so the compiled SQL can be served by that path's index, and the plan
// can be checked for it. Arbitrary predicates are out of scope.
//
//	All    every entry, optionally ordered by an indexed path
//	Exact  path = value
//	Range  begin <= path <= value (either bound may be open)
//	Like   path LIKE pattern
//
// Every shape embeds Shape, which names the soup, the optional projection
// (Select), the ordering and the page size.
//
// SEALED INTERFACE:
//
// Query is sealed with a marker method, so backends can switch over the
// shapes exhaustively:
//
//	switch q := query.(type) {
//	case All:
//	case Exact:
//	case Range:
//	case Like:
//	}
//
// Values in Exact and Range are value.Value scalars; they are bound as
// parameters by the compiler, never interpolated.
package queryir
