package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/soupstore/internal/schema"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate(t *testing.T) {
	name := []schema.IndexSpec{{Path: "name", Type: schema.TypeString}}

	tests := []struct {
		name string
		defs []SoupDef
		want []string
	}{
		{"valid", []SoupDef{{Name: "employees", Indexes: name}}, []string{}},
		{"empty name", []SoupDef{{Name: "  ", Indexes: name}}, []string{ErrSoupNameEmpty}},
		{"no indexes", []SoupDef{{Name: "a"}}, []string{ErrSoupNoIndexes}},
		{"reserved path", []SoupDef{{Name: "a", Indexes: []schema.IndexSpec{{Path: "_soupEntryId", Type: schema.TypeInteger}}}}, []string{ErrInvalidIndexSpec}},
		{"unknown type", []SoupDef{{Name: "a", Indexes: []schema.IndexSpec{{Path: "x", Type: "blob"}}}}, []string{ErrInvalidIndexSpec}},
		{"duplicate path", []SoupDef{{Name: "a", Indexes: []schema.IndexSpec{
			{Path: "x", Type: schema.TypeString},
			{Path: " x", Type: schema.TypeInteger},
		}}}, []string{ErrDuplicatePath}},
		{"duplicate soup after normalization", []SoupDef{
			{Name: "caf\u00e9", Indexes: name},
			{Name: "cafe\u0301", Indexes: name},
		}, []string{ErrDuplicateSoup}},
		{"collects every error", []SoupDef{
			{Name: "", Indexes: name},
			{Name: "b"},
		}, []string{ErrSoupNameEmpty, ErrSoupNoIndexes}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(Validate(tt.defs)))
		})
	}
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "soup[0].name", Message: "soup name must not be empty", Code: ErrSoupNameEmpty}
	assert.Equal(t, "[E101] soup[0].name: soup name must not be empty", err.Error())
}
