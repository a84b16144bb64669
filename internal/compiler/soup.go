package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/soupstore/internal/schema"
)

// soupSchema constrains every soup definition. It is compiled in the
// context of the value being checked, since CUE values from different
// contexts cannot be unified.
const soupSchema = `
#IndexSpec: {
	path: string & !=""
	type: *"string" | "integer" | "floating" | "json1"
}

#Soup: {
	indexes: [...#IndexSpec]
	external: *false | bool
}
`

// SoupDef is a soup declared in a CUE file.
type SoupDef struct {
	Name    string             `json:"name" yaml:"name"`
	Indexes []schema.IndexSpec `json:"indexes" yaml:"indexes"`

	// External marks every entry of the soup for the blob store.
	External bool `json:"external,omitempty" yaml:"external,omitempty"`
}

// CompileSoup turns the CUE value of one soup into a SoupDef.
//
// The value is the struct under the soup label, e.g. for
//
//	soup: employees: {
//		indexes: [{path: "name", type: "string"}]
//	}
//
// call CompileSoup("employees", v.LookupPath(cue.ParsePath("soup.employees"))).
func CompileSoup(name string, v cue.Value) (*SoupDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	defs := v.Context().CompileString(soupSchema, cue.Filename("soup_schema.cue"))
	if err := defs.Err(); err != nil {
		return nil, fmt.Errorf("compile soup schema: %w", err)
	}
	unified := defs.LookupPath(cue.ParsePath("#Soup")).Unify(v)
	if err := unified.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	if err := knownFields(v, "indexes", "external"); err != nil {
		return nil, err
	}

	def := &SoupDef{Name: name}

	iter, err := unified.LookupPath(cue.ParsePath("indexes")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		spec, err := compileIndexSpec(iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Position = len(def.Indexes)
		def.Indexes = append(def.Indexes, spec)
	}

	external, err := concrete(unified, "external").Bool()
	if err != nil {
		return nil, formatCUEError(err)
	}
	def.External = external

	return def, nil
}

func compileIndexSpec(v cue.Value) (schema.IndexSpec, error) {
	if err := knownFields(v, "path", "type"); err != nil {
		return schema.IndexSpec{}, err
	}
	path, err := v.LookupPath(cue.ParsePath("path")).String()
	if err != nil {
		return schema.IndexSpec{}, formatCUEError(err)
	}
	typ, err := concrete(v, "type").String()
	if err != nil {
		return schema.IndexSpec{}, formatCUEError(err)
	}
	return schema.IndexSpec{Path: path, Type: schema.Type(typ)}, nil
}

// concrete looks up field and resolves a default when the field is still
// a disjunction.
func concrete(v cue.Value, field string) cue.Value {
	f := v.LookupPath(cue.ParsePath(field))
	if d, ok := f.Default(); ok {
		return d
	}
	return f
}

// knownFields rejects struct fields outside allowed, catching typos such
// as "indices" that unification alone would not report.
func knownFields(v cue.Value, allowed ...string) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if !slices.Contains(allowed, iter.Label()) {
			return &CompileError{
				Field:   iter.Label(),
				Message: fmt.Sprintf("unknown field, expected one of %v", allowed),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

// CompileSoups compiles every soup under the top-level "soup" field of v,
// in declaration order.
func CompileSoups(v cue.Value) ([]SoupDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	soups := v.LookupPath(cue.ParsePath("soup"))
	if !soups.Exists() {
		return nil, nil
	}

	iter, err := soups.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []SoupDef
	for iter.Next() {
		def, err := CompileSoup(iter.Label(), iter.Value())
		if err != nil {
			return nil, fmt.Errorf("soup %s: %w", iter.Label(), err)
		}
		out = append(out, *def)
	}
	return out, nil
}

// CompileError is a CUE error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
