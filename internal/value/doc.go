// Package value provides the untyped document tree stored in soups.
//
// Soup entries are arbitrary JSON documents. They are decoded into a sealed
// Value tree (Null, String, Int, Float, Bool, Array, Object) so projection
// logic can walk declared paths with type switches instead of reflection.
//
// This package imports nothing internal. Every other internal package that
// touches document content goes through it.
//
// Key design constraints:
//   - Integers and floats are distinct: JSON numbers without a fraction or
//     exponent decode to Int, everything else to Float
//   - Marshal is deterministic (sorted keys, no HTML escaping) so the raw
//     content column and blob files are byte-stable for equal documents
//   - Paths are dotted ("address.city"); arrays fan out during lookup
package value
