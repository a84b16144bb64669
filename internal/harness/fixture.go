package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/roach88/soupstore/internal/blob"
	"github.com/roach88/soupstore/internal/schema"
	"github.com/roach88/soupstore/internal/smartstore"
	"github.com/roach88/soupstore/internal/store"
	"github.com/roach88/soupstore/internal/testutil"
	"github.com/roach88/soupstore/internal/value"
)

// Blob backends.
const (
	BackendDir  = "dir"
	BackendBolt = "bolt"
)

// Config configures a Fixture.
type Config struct {
	Passphrase string

	// Driver is a store driver name. Empty uses the store default.
	Driver string

	// BlobBackend is BackendDir, BackendBolt or empty. Empty uses
	// BackendDir when Externalize is set and no blob store otherwise.
	BlobBackend string

	Externalize smartstore.ExternalizePolicy

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Fixture is a SmartStore on a fresh database in its own directory.
type Fixture struct {
	Store *smartstore.SmartStore
	Clock *testutil.DeterministicClock
	Blobs blob.Store

	dir string
	st  *store.Store
}

// NewFixture opens a fresh store under dir.
func NewFixture(dir string, cfg Config) (*Fixture, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := []store.Option{store.WithLogger(logger)}
	if cfg.Driver != "" {
		opts = append(opts, store.WithDriver(cfg.Driver))
	}
	st, err := store.Open(filepath.Join(dir, "soups.db"), cfg.Passphrase, opts...)
	if err != nil {
		return nil, fmt.Errorf("open fixture store: %w", err)
	}

	backend := cfg.BlobBackend
	if backend == "" && cfg.Externalize != nil {
		backend = BackendDir
	}
	blobs, err := OpenBlobs(backend, dir, st.BlobKey(), logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	clock := testutil.NewDeterministicClock()
	ss, err := smartstore.New(st, smartstore.Options{
		Blobs:       blobs,
		Externalize: cfg.Externalize,
		Clock:       clock,
		Logger:      logger,
	})
	if err != nil {
		if blobs != nil {
			blobs.Close()
		}
		st.Close()
		return nil, err
	}

	return &Fixture{Store: ss, Clock: clock, Blobs: blobs, dir: dir, st: st}, nil
}

// OpenBlobs opens the named blob backend under dir. Payloads are sealed
// when key is non-empty. An empty backend returns a nil store.
func OpenBlobs(backend, dir string, key []byte, logger *slog.Logger) (blob.Store, error) {
	opts := []blob.Option{blob.WithLogger(logger)}
	if len(key) > 0 {
		sealer, err := blob.NewAESSealer(key)
		if err != nil {
			return nil, err
		}
		opts = append(opts, blob.WithSealer(sealer))
	}

	switch backend {
	case "":
		return nil, nil
	case BackendDir:
		return blob.NewDir(filepath.Join(dir, "blobs"), opts...)
	case BackendBolt:
		return blob.NewBolt(filepath.Join(dir, "blobs.bolt"), opts...)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", backend)
	}
}

// Open creates a Fixture in a test temp dir and tears it down with the
// test: soups are dropped and the store closed.
func Open(t testing.TB, cfg Config) *Fixture {
	t.Helper()
	f, err := NewFixture(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	t.Cleanup(func() {
		if err := f.Close(); err != nil {
			t.Errorf("close fixture: %v", err)
		}
	})
	return f
}

// Close drops every soup and closes the store and blob store.
func (f *Fixture) Close() error {
	var errs []error
	if !f.st.Closed() {
		errs = append(errs, f.Store.DropAllSoups(context.Background()))
	}
	if f.Blobs != nil {
		errs = append(errs, f.Blobs.Close())
	}
	errs = append(errs, f.st.Close())
	return errors.Join(errs...)
}

// Dir returns the fixture's directory.
func (f *Fixture) Dir() string {
	return f.dir
}

// AssertionError is returned when a check fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// IDOf returns the entry id of a stored document, or 0.
func IDOf(doc value.Object) int64 {
	id, _ := smartstore.EntryID(doc)
	return id
}

// SoupTableName returns the table of a registered soup.
func (f *Fixture) SoupTableName(ctx context.Context, soup string) (string, error) {
	return f.Store.GetSoupTableName(ctx, soup)
}

// HasTable reports whether table exists in the database.
func (f *Fixture) HasTable(ctx context.Context, table string) (bool, error) {
	db, err := f.st.DB()
	if err != nil {
		return false, err
	}
	var n int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has table %s: %w", table, err)
	}
	return n == 1, nil
}

// CheckColumns compares the columns of table with expected, in order.
func (f *Fixture) CheckColumns(ctx context.Context, table string, expected []string) error {
	actual, err := f.Store.Registry().Columns(ctx, table)
	if err != nil {
		return err
	}
	if !slices.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertColumns,
			Expected: fmt.Sprintf("columns %v", expected),
			Actual:   fmt.Sprintf("columns %v", actual),
		}
	}
	return nil
}

// CheckIndexSpecs compares a soup's registered specs with expected. Only
// path and type are compared; positions follow the slice order.
func (f *Fixture) CheckIndexSpecs(ctx context.Context, soup string, expected []schema.IndexSpec) error {
	actual, err := f.Store.GetSoupIndexSpecs(ctx, soup)
	if err != nil {
		return err
	}
	want := make([]schema.IndexSpec, len(expected))
	for i, spec := range expected {
		want[i] = schema.IndexSpec{Path: spec.Path, Type: spec.Type, Position: i}
	}
	if !schema.SameSpecs(want, actual) {
		return &AssertionError{
			Type:     AssertIndexSpecs,
			Expected: fmt.Sprintf("index specs %v", want),
			Actual:   fmt.Sprintf("index specs %v", actual),
		}
	}
	return nil
}

// CheckCreateTableStatement checks that the single CREATE TABLE statement
// of table contains substr.
func (f *Fixture) CheckCreateTableStatement(ctx context.Context, table, substr string) error {
	stmts, err := f.masterSQL(ctx, "table", table)
	if err != nil {
		return err
	}
	if len(stmts) != 1 {
		return &AssertionError{
			Type:     AssertCreateTableContains,
			Expected: "one statement",
			Actual:   fmt.Sprintf("%d statements", len(stmts)),
		}
	}
	if !strings.Contains(stmts[0], substr) {
		return &AssertionError{
			Type:     AssertCreateTableContains,
			Expected: fmt.Sprintf("statement containing %q", substr),
			Actual:   stmts[0],
		}
	}
	return nil
}

// CheckDatabaseIndexes compares the CREATE INDEX statements of table,
// ordered by index name, with expected.
func (f *Fixture) CheckDatabaseIndexes(ctx context.Context, table string, expected []string) error {
	actual, err := f.masterSQL(ctx, "index", table)
	if err != nil {
		return err
	}
	if !slices.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertDatabaseIndexes,
			Expected: fmt.Sprintf("%q", expected),
			Actual:   fmt.Sprintf("%q", actual),
		}
	}
	return nil
}

// CheckExplainQueryPlan checks that the first row of the last query plan
// used the index of spec position index with operation op (SCAN or SEARCH).
func (f *Fixture) CheckExplainQueryPlan(ctx context.Context, soup string, index int, covering bool, op string) error {
	table, err := f.SoupTableName(ctx, soup)
	if err != nil {
		return err
	}
	coveringWord := ""
	if covering {
		coveringWord = "COVERING "
	}
	prefix := fmt.Sprintf("%s TABLE %s USING %sINDEX %s", op, table, coveringWord, schema.IndexName(table, index))

	plan, ok := f.Store.GetLastExplainQueryPlan()
	if !ok || len(plan.Rows) == 0 {
		return &AssertionError{Type: AssertExplainPlan, Expected: prefix, Actual: "no query plan recorded"}
	}
	if detail := plan.Rows[0].Detail; !strings.HasPrefix(detail, prefix) {
		return &AssertionError{Type: AssertExplainPlan, Expected: prefix, Actual: detail}
	}
	return nil
}

// CheckFileSystem checks that blobs for ids exist, or do not when
// shouldExist is false. A directory backend is checked on disk.
func (f *Fixture) CheckFileSystem(ctx context.Context, soup string, ids []int64, shouldExist bool) error {
	table, err := f.SoupTableName(ctx, soup)
	if err != nil {
		return err
	}
	for _, id := range ids {
		exists, err := f.blobExists(table, id)
		if err != nil {
			return err
		}
		if exists != shouldExist {
			return &AssertionError{
				Type:     AssertBlobFiles,
				Expected: fmt.Sprintf("blob for %s/%d exists=%t", table, id, shouldExist),
				Actual:   fmt.Sprintf("exists=%t", exists),
			}
		}
	}
	return nil
}

func (f *Fixture) blobExists(table string, id int64) (bool, error) {
	switch b := f.Blobs.(type) {
	case nil:
		return false, nil
	case *blob.Dir:
		_, err := os.Stat(b.Path(table, id))
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	default:
		return b.Exists(table, id)
	}
}

// CheckRecord checks that entry id holds the expected fields.
func (f *Fixture) CheckRecord(ctx context.Context, soup string, id int64, expected value.Object) error {
	docs, err := f.Store.Retrieve(ctx, soup, id)
	if err != nil {
		return err
	}
	for _, k := range expected.SortedKeys() {
		got := value.Lookup(docs[0], k)
		if !value.Equal(expected[k], got) {
			return &AssertionError{
				Type:     AssertRecord,
				Expected: fmt.Sprintf("%s = %v", k, expected[k]),
				Actual:   fmt.Sprintf("%s = %v", k, got),
			}
		}
	}
	return nil
}

func (f *Fixture) masterSQL(ctx context.Context, kind, table string) ([]string, error) {
	db, err := f.st.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = ? AND tbl_name = ? ORDER BY name", kind, table)
	if err != nil {
		return nil, fmt.Errorf("read %s sql of %s: %w", kind, table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var stmt sql.NullString
		if err := rows.Scan(&stmt); err != nil {
			return nil, fmt.Errorf("read %s sql of %s: %w", kind, table, err)
		}
		if stmt.Valid {
			out = append(out, stmt.String)
		}
	}
	return out, rows.Err()
}
