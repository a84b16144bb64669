package schema

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/soupstore/internal/fault"
)

// NormalizeName trims and NFC-normalizes a soup name so visually identical
// names written with different code point sequences map to one soup.
func NormalizeName(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	if n == "" {
		return "", fault.Invalid("soup name must not be empty")
	}
	return n, nil
}

// ValidateSpecs checks declared index specs and returns a normalized copy
// with positions assigned in declaration order.
func ValidateSpecs(specs []IndexSpec) ([]IndexSpec, error) {
	if len(specs) == 0 {
		return nil, fault.Invalid("at least one index spec is required")
	}

	out := make([]IndexSpec, len(specs))
	seen := make(map[string]int, len(specs))
	for i, spec := range specs {
		path := strings.TrimSpace(spec.Path)
		if err := validatePath(path); err != nil {
			return nil, fault.Invalid("index spec %d: %s", i, err.Message)
		}
		// Column names compare case-insensitively in SQLite
		key := strings.ToLower(path)
		if prev, dup := seen[key]; dup {
			return nil, fault.Invalid("index spec %d: path %q already declared by index spec %d", i, path, prev)
		}
		seen[key] = i

		typ, err := ParseType(string(spec.Type))
		if err != nil {
			return nil, fault.Invalid("index spec %d: %v", i, err)
		}
		out[i] = IndexSpec{Path: path, Type: typ, Position: i}
	}
	return out, nil
}

func validatePath(path string) *fault.Error {
	if path == "" {
		return fault.Invalid("path must not be empty")
	}
	if strings.ContainsAny(path, "\"\x00") {
		return fault.Invalid("path %q contains a forbidden character", path)
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fault.Invalid("path %q has an empty segment", path)
		}
	}
	for _, reserved := range ReservedColumns {
		if strings.EqualFold(path, reserved) {
			return fault.Invalid("path %q is reserved", path)
		}
	}
	return nil
}
