package registry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/schema"
	"github.com/roach88/soupstore/internal/store"
)

func setup(t *testing.T) (*store.Store, *Registry) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "soups.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, New(st, nil)
}

func nameSpec() []schema.IndexSpec {
	return []schema.IndexSpec{{Path: "name", Type: schema.TypeString}}
}

func TestRegister_EmployeesScenario(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	soup, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)
	assert.Equal(t, "TABLE_1", soup.Table)

	cols, err := reg.Columns(ctx, soup.Table)
	require.NoError(t, err)
	assert.Equal(t, []string{"_soupEntryId", "_soupCreatedDate", "_soupLastModifiedDate", "soup", "name"}, cols)

	indexes, err := reg.Indexes(ctx, soup.Table)
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, "TABLE_1_0_idx", indexes[0].Name)
	assert.Equal(t, `CREATE INDEX TABLE_1_0_idx ON TABLE_1 ( "name" )`, indexes[0].SQL)

	stmt, err := reg.TableSQL(ctx, soup.Table)
	require.NoError(t, err)
	assert.Equal(t, schema.CreateTableSQL(soup), stmt)

	require.NoError(t, reg.Verify(ctx, "employees"))
}

func TestRegister_IndexNamesFollowSpecOrder(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	specs := []schema.IndexSpec{
		{Path: "z", Type: schema.TypeString},
		{Path: "a", Type: schema.TypeInteger},
		{Path: "m.n", Type: schema.TypeFloating},
		{Path: "j", Type: schema.TypeJSON1},
	}
	soup, err := reg.Register(ctx, "ordered", specs)
	require.NoError(t, err)

	indexes, err := reg.Indexes(ctx, soup.Table)
	require.NoError(t, err)
	var names []string
	for _, idx := range indexes {
		names = append(names, idx.Name)
	}
	assert.Equal(t, []string{"TABLE_1_0_idx", "TABLE_1_1_idx", "TABLE_1_2_idx", "TABLE_1_3_idx"}, names)

	got, err := reg.IndexSpecs(ctx, "ordered")
	require.NoError(t, err)
	for i, spec := range got {
		assert.Equal(t, i, spec.Position)
		assert.Equal(t, specs[i].Path, spec.Path)
	}
}

func TestRegister_TableNamesUseRegistrationOrder(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	a, err := reg.Register(ctx, "a", nameSpec())
	require.NoError(t, err)
	b, err := reg.Register(ctx, "b", nameSpec())
	require.NoError(t, err)

	assert.Equal(t, "TABLE_1", a.Table)
	assert.Equal(t, "TABLE_2", b.Table)

	names, err := reg.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestRegister_IdenticalIsNoOp(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	first, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)
	second, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	names, err := reg.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"employees"}, names)
}

func TestRegister_DifferentSpecsIsDuplicate(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)

	_, err = reg.Register(ctx, "employees", []schema.IndexSpec{{Path: "name", Type: schema.TypeInteger}})
	require.Error(t, err)
	assert.True(t, fault.IsDuplicateSoup(err))

	// Original registration is untouched
	specs, err := reg.IndexSpecs(ctx, "employees")
	require.NoError(t, err)
	assert.Equal(t, schema.TypeString, specs[0].Type)
}

func TestRegister_InvalidSpecsCreateNothing(t *testing.T) {
	st, reg := setup(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "bad", []schema.IndexSpec{{Path: "", Type: schema.TypeString}})
	require.Error(t, err)
	assert.True(t, fault.IsInvalidInput(err))

	db, err := st.DB()
	require.NoError(t, err)
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM soup_names").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestRegister_PathsDifferingOnlyInCase(t *testing.T) {
	st, reg := setup(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "people", []schema.IndexSpec{
		{Path: "name", Type: schema.TypeString},
		{Path: "Name", Type: schema.TypeString},
	})
	require.Error(t, err)
	assert.True(t, fault.IsInvalidInput(err))

	ok, err := reg.Exists(ctx, "people")
	require.NoError(t, err)
	assert.False(t, ok)

	db, err := st.DB()
	require.NoError(t, err)
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'TABLE_1'").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestRegister_NormalizesName(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "café", nameSpec())
	require.NoError(t, err)

	ok, err := reg.Exists(ctx, " café ")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLookup_UnknownSoup(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	_, err := reg.IndexSpecs(ctx, "missing")
	assert.True(t, fault.IsSoupNotFound(err))
	_, err = reg.TableName(ctx, "missing")
	assert.True(t, fault.IsSoupNotFound(err))

	ok, err := reg.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookup_ReloadsAfterReset(t *testing.T) {
	st, reg := setup(t)
	ctx := context.Background()

	soup, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)

	st.Reset()
	assert.Equal(t, 0, st.Cache().Len())

	table, err := reg.TableName(ctx, "employees")
	require.NoError(t, err)
	assert.Equal(t, soup.Table, table)
	assert.Equal(t, 1, st.Cache().Len())
}

func TestLookup_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soups.db")
	ctx := context.Background()

	st, err := store.Open(path, "pw")
	require.NoError(t, err)
	_, err = New(st, nil).Register(ctx, "employees", nameSpec())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = store.Open(path, "pw")
	require.NoError(t, err)
	defer st.Close()

	specs, err := New(st, nil).IndexSpecs(ctx, "employees")
	require.NoError(t, err)
	assert.Equal(t, []schema.IndexSpec{{Path: "name", Type: schema.TypeString, Position: 0}}, specs)
}

func TestLookup_MissingTableIsIntegrityError(t *testing.T) {
	st, reg := setup(t)
	ctx := context.Background()

	soup, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)

	db, err := st.DB()
	require.NoError(t, err)
	_, err = db.Exec("DROP TABLE " + soup.Table)
	require.NoError(t, err)
	st.Reset()

	_, err = reg.TableName(ctx, "employees")
	require.Error(t, err)
	assert.True(t, fault.IsIntegrity(err))
}

func TestVerify_DetectsMissingIndex(t *testing.T) {
	st, reg := setup(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)

	db, err := st.DB()
	require.NoError(t, err)
	_, err = db.Exec("DROP INDEX TABLE_1_0_idx")
	require.NoError(t, err)

	err = reg.Verify(ctx, "employees")
	require.Error(t, err)
	assert.True(t, fault.IsIntegrity(err))
	assert.Contains(t, err.Error(), "TABLE_1_0_idx")
}

func TestDrop(t *testing.T) {
	st, reg := setup(t)
	ctx := context.Background()

	soup, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)

	dropped, err := reg.Drop(ctx, "employees")
	require.NoError(t, err)
	assert.Equal(t, soup, dropped)

	ok, err := reg.Exists(ctx, "employees")
	require.NoError(t, err)
	assert.False(t, ok)

	cols, err := reg.Columns(ctx, soup.Table)
	require.NoError(t, err)
	assert.Empty(t, cols)

	indexes, err := reg.Indexes(ctx, soup.Table)
	require.NoError(t, err)
	assert.Empty(t, indexes)

	db, err := st.DB()
	require.NoError(t, err)
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM soup_index_map").Scan(&n))
	assert.Equal(t, 0, n)

	_, err = reg.Drop(ctx, "employees")
	assert.True(t, fault.IsSoupNotFound(err))
}

func TestDrop_DoesNotReuseTableNames(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "a", nameSpec())
	require.NoError(t, err)
	_, err = reg.Drop(ctx, "a")
	require.NoError(t, err)

	b, err := reg.Register(ctx, "b", nameSpec())
	require.NoError(t, err)
	assert.Equal(t, "TABLE_2", b.Table)
}

func TestDropAll_MatchesFreshStore(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "employees"} {
		_, err := reg.Register(ctx, name, nameSpec())
		require.NoError(t, err)
	}

	dropped, err := reg.DropAll(ctx)
	require.NoError(t, err)
	assert.Len(t, dropped, 3)

	names, err := reg.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	// Re-registration behaves like the first registration on a fresh store
	soup, err := reg.Register(ctx, "employees", nameSpec())
	require.NoError(t, err)
	assert.Equal(t, "TABLE_1", soup.Table)
	require.NoError(t, reg.Verify(ctx, "employees"))
}

func TestRegister_ConcurrentSameSoup(t *testing.T) {
	_, reg := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reg.Register(ctx, "employees", nameSpec())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	names, err := reg.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"employees"}, names)
}

func TestClosedStore(t *testing.T) {
	st, reg := setup(t)
	require.NoError(t, st.Close())

	_, err := reg.Register(context.Background(), "employees", nameSpec())
	assert.True(t, fault.IsConnectionClosed(err))
	_, err = reg.Names(context.Background())
	assert.True(t, fault.IsConnectionClosed(err))
}
