package schema

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/value"
)

func employees() Soup {
	return Soup{
		Name:  "employees",
		Table: TableName(1),
		Indexes: []IndexSpec{
			{Path: "lastName", Type: TypeString, Position: 0},
			{Path: "age", Type: TypeInteger, Position: 1},
			{Path: "salary", Type: TypeFloating, Position: 2},
			{Path: "address", Type: TypeJSON1, Position: 3},
		},
	}
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "TABLE_7", TableName(7))
	assert.Equal(t, "TABLE_7_2_idx", IndexName("TABLE_7", 2))
	assert.Equal(t, []string{"TABLE_1_0_idx", "TABLE_1_1_idx", "TABLE_1_2_idx", "TABLE_1_3_idx"}, employees().IndexNames())
}

func TestColumns_ReservedFirstThenSpecOrder(t *testing.T) {
	assert.Equal(t, []string{
		"_soupEntryId", "_soupCreatedDate", "_soupLastModifiedDate", "soup",
		"lastName", "age", "salary", "address",
	}, employees().Columns())
}

func TestCreateTableSQL_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "create_table_employees", []byte(CreateTableSQL(employees())))
}

func TestCreateIndexSQL_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "create_indexes_employees", []byte(strings.Join(CreateIndexSQL(employees()), "\n")))
}

func TestColumnFor(t *testing.T) {
	s := employees()

	col, ok := s.ColumnFor("age")
	require.True(t, ok)
	assert.Equal(t, Column{Name: "age", Type: TypeInteger, Position: 1}, col)

	col, ok = s.ColumnFor(LastModifiedColumn)
	require.True(t, ok)
	assert.Equal(t, -1, col.Position)

	_, ok = s.ColumnFor("unindexed")
	assert.False(t, ok)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"string", TypeString},
		{"TEXT", TypeString},
		{"integer", TypeInteger},
		{"int", TypeInteger},
		{"floating", TypeFloating},
		{"real", TypeFloating},
		{"json1", TypeJSON1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseType("full_text")
	require.Error(t, err)
}

func TestValidateSpecs_AssignsPositions(t *testing.T) {
	got, err := ValidateSpecs([]IndexSpec{
		{Path: " name ", Type: "string"},
		{Path: "address.city", Type: "json1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []IndexSpec{
		{Path: "name", Type: TypeString, Position: 0},
		{Path: "address.city", Type: TypeJSON1, Position: 1},
	}, got)
}

func TestValidateSpecs_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		specs []IndexSpec
	}{
		{"no specs", nil},
		{"empty path", []IndexSpec{{Path: "", Type: TypeString}}},
		{"quote in path", []IndexSpec{{Path: `a"b`, Type: TypeString}}},
		{"empty segment", []IndexSpec{{Path: "a..b", Type: TypeString}}},
		{"reserved column", []IndexSpec{{Path: "soup", Type: TypeString}}},
		{"reserved field", []IndexSpec{{Path: "_soupEntryId", Type: TypeInteger}}},
		{"duplicate", []IndexSpec{{Path: "a", Type: TypeString}, {Path: "a", Type: TypeInteger}}},
		{"duplicate ignoring case", []IndexSpec{{Path: "name", Type: TypeString}, {Path: "Name", Type: TypeString}}},
		{"bad type", []IndexSpec{{Path: "a", Type: "blob"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateSpecs(tt.specs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, fault.ErrInvalidInput))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	// "é" as e + combining acute vs precomposed U+00E9
	decomposed, err := NormalizeName(" cafe\u0301 ")
	require.NoError(t, err)
	precomposed, err := NormalizeName("caf\u00e9")
	require.NoError(t, err)
	assert.Equal(t, precomposed, decomposed)

	_, err = NormalizeName("   ")
	assert.True(t, fault.IsInvalidInput(err))
}

func TestSameSpecs(t *testing.T) {
	a := []IndexSpec{{Path: "a", Type: TypeString}}
	assert.True(t, SameSpecs(a, []IndexSpec{{Path: "a", Type: TypeString, Position: 0}}))
	assert.False(t, SameSpecs(a, []IndexSpec{{Path: "a", Type: TypeInteger}}))
	assert.False(t, SameSpecs(a, nil))
}

func TestProject(t *testing.T) {
	doc := value.Object{
		"name":  value.String("Ann"),
		"age":   value.Int(41),
		"score": value.Float(3.5),
		"count": value.String("12"),
		"addr":  value.Object{"city": value.String("Oslo")},
		"tags":  value.Array{value.String("a"), value.String("b")},
	}

	tests := []struct {
		name string
		spec IndexSpec
		want any
	}{
		{"string", IndexSpec{Path: "name", Type: TypeString}, "Ann"},
		{"int as string", IndexSpec{Path: "age", Type: TypeString}, "41"},
		{"integer", IndexSpec{Path: "age", Type: TypeInteger}, int64(41)},
		{"numeric string as integer", IndexSpec{Path: "count", Type: TypeInteger}, int64(12)},
		{"float truncated to integer", IndexSpec{Path: "score", Type: TypeInteger}, int64(3)},
		{"non numeric integer", IndexSpec{Path: "name", Type: TypeInteger}, nil},
		{"floating", IndexSpec{Path: "score", Type: TypeFloating}, 3.5},
		{"int as floating", IndexSpec{Path: "age", Type: TypeFloating}, 41.0},
		{"nested path", IndexSpec{Path: "addr.city", Type: TypeString}, "Oslo"},
		{"json1 object", IndexSpec{Path: "addr", Type: TypeJSON1}, `{"city":"Oslo"}`},
		{"json1 array", IndexSpec{Path: "tags", Type: TypeJSON1}, `["a","b"]`},
		{"missing", IndexSpec{Path: "nope", Type: TypeString}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Project(doc, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	s := employees()
	c.Put(s)

	got, ok := c.Get("employees")
	require.True(t, ok)
	assert.Equal(t, s, got)

	// Returned copies must not alias the cached slice
	got.Indexes[0].Path = "mutated"
	again, _ := c.Get("employees")
	assert.Equal(t, "lastName", again.Indexes[0].Path)

	c.Invalidate("employees")
	_, ok = c.Get("employees")
	assert.False(t, ok)

	c.Put(s)
	c.Reset()
	assert.Equal(t, 0, c.Len())
}

type recordingExecer struct {
	stmts []string
	fail  string
}

func (r *recordingExecer) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	r.stmts = append(r.stmts, query)
	if r.fail != "" && strings.Contains(query, r.fail) {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func TestTableManager_CreateAndDrop(t *testing.T) {
	m := NewTableManager(nil)
	ctx := context.Background()
	s := employees()

	ex := &recordingExecer{}
	require.NoError(t, m.Create(ctx, ex, s))
	require.Len(t, ex.stmts, 5)
	assert.Equal(t, CreateTableSQL(s), ex.stmts[0])

	ex = &recordingExecer{}
	require.NoError(t, m.DropTable(ctx, ex, s))
	assert.Equal(t, []string{
		"DROP INDEX IF EXISTS TABLE_1_0_idx",
		"DROP INDEX IF EXISTS TABLE_1_1_idx",
		"DROP INDEX IF EXISTS TABLE_1_2_idx",
		"DROP INDEX IF EXISTS TABLE_1_3_idx",
		"DROP TABLE IF EXISTS TABLE_1",
	}, ex.stmts)
}

func TestTableManager_CreateIndexFailureNamesIndex(t *testing.T) {
	ex := &recordingExecer{fail: "TABLE_1_2_idx"}
	err := NewTableManager(nil).Create(context.Background(), ex, employees())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create index TABLE_1_2_idx")
}
