package smartstore

import "slices"

// ExternalizePolicy decides whether an entry's raw JSON is stored in the
// blob store instead of the soup column.
type ExternalizePolicy interface {
	Externalize(soup string, size int) bool
}

// PolicyFunc adapts a function to ExternalizePolicy.
type PolicyFunc func(soup string, size int) bool

// Externalize implements ExternalizePolicy.
func (f PolicyFunc) Externalize(soup string, size int) bool {
	return f(soup, size)
}

// Never keeps every entry inline.
func Never() ExternalizePolicy {
	return PolicyFunc(func(string, int) bool { return false })
}

// Always externalizes every entry.
func Always() ExternalizePolicy {
	return PolicyFunc(func(string, int) bool { return true })
}

// Threshold externalizes entries whose raw JSON is larger than bytes.
func Threshold(bytes int) ExternalizePolicy {
	return PolicyFunc(func(_ string, size int) bool { return size > bytes })
}

// ForSoups externalizes every entry of the named soups.
func ForSoups(names ...string) ExternalizePolicy {
	names = slices.Clone(names)
	return PolicyFunc(func(soup string, _ int) bool { return slices.Contains(names, soup) })
}
