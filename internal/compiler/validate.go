package compiler

import (
	"fmt"

	"github.com/roach88/soupstore/internal/schema"
)

// Validation error codes (E100-E199)
const (
	ErrSoupNameEmpty    = "E101" // soup name is empty after normalization
	ErrSoupNoIndexes    = "E102" // at least one index spec required
	ErrInvalidIndexSpec = "E103" // path or type rejected by the schema rules
	ErrDuplicateSoup    = "E104" // two definitions normalize to one name
	ErrDuplicatePath    = "E105" // path declared twice in one soup
)

// ValidationError represents a soup definition error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks soup definitions against the rules the registry enforces
// at registration. Returns all errors found (does not fail-fast).
func Validate(defs []SoupDef) []ValidationError {
	var errs []ValidationError
	names := make(map[string]int, len(defs))

	for i, def := range defs {
		field := fmt.Sprintf("soup[%d]", i)

		name, err := schema.NormalizeName(def.Name)
		if err != nil {
			errs = append(errs, ValidationError{Field: field + ".name", Message: err.Error(), Code: ErrSoupNameEmpty})
		} else {
			if prev, dup := names[name]; dup {
				errs = append(errs, ValidationError{
					Field:   field + ".name",
					Message: fmt.Sprintf("soup %q already declared by soup[%d]", name, prev),
					Code:    ErrDuplicateSoup,
				})
			}
			names[name] = i
		}

		if len(def.Indexes) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".indexes",
				Message: "at least one index spec is required",
				Code:    ErrSoupNoIndexes,
			})
			continue
		}

		paths := make(map[string]int, len(def.Indexes))
		for j, spec := range def.Indexes {
			specField := fmt.Sprintf("%s.indexes[%d]", field, j)

			normalized, err := schema.ValidateSpecs([]schema.IndexSpec{spec})
			if err != nil {
				errs = append(errs, ValidationError{Field: specField, Message: err.Error(), Code: ErrInvalidIndexSpec})
				continue
			}
			path := normalized[0].Path
			if prev, dup := paths[path]; dup {
				errs = append(errs, ValidationError{
					Field:   specField + ".path",
					Message: fmt.Sprintf("path %q already declared by indexes[%d]", path, prev),
					Code:    ErrDuplicatePath,
				})
			}
			paths[path] = j
		}
	}
	return errs
}
