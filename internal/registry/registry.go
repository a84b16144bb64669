// Package registry maps soup names to their physical tables and index specs.
//
// The mapping lives in the soup_names and soup_index_map tables so it
// survives restarts. Lookups go through the schema cache owned by the store
// handle; Drop, DropAll and store.Reset invalidate it. Every DDL change runs
// in the same transaction as its metadata change, so a soup is either fully
// present (metadata, table, every index) or fully absent.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/schema"
	"github.com/roach88/soupstore/internal/store"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Registry is the schema registry of one store handle.
type Registry struct {
	st     *store.Store
	tables *schema.TableManager
	logger *slog.Logger
}

// New creates a Registry over st. A nil logger uses the store's logger.
func New(st *store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = st.Logger()
	}
	return &Registry{st: st, tables: schema.NewTableManager(logger), logger: logger}
}

// Register creates a soup with the given index specs. Registering an
// existing soup with the same specs returns it unchanged; different specs
// fail with DUPLICATE_SOUP.
func (r *Registry) Register(ctx context.Context, name string, specs []schema.IndexSpec) (schema.Soup, error) {
	name, err := schema.NormalizeName(name)
	if err != nil {
		return schema.Soup{}, err
	}
	specs, err = schema.ValidateSpecs(specs)
	if err != nil {
		return schema.Soup{}, err
	}

	tx, err := r.st.BeginTx(ctx)
	if err != nil {
		return schema.Soup{}, fmt.Errorf("register soup: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	existing, found, err := loadSoup(ctx, tx, name)
	if err != nil {
		return schema.Soup{}, fmt.Errorf("register soup: %w", err)
	}
	if found {
		if !schema.SameSpecs(existing.Indexes, specs) {
			return schema.Soup{}, fault.DuplicateSoup(name)
		}
		r.st.Cache().Put(existing)
		return existing, nil
	}

	res, err := tx.ExecContext(ctx, "INSERT INTO soup_names (soup_name) VALUES (?)", name)
	if err != nil {
		return schema.Soup{}, fmt.Errorf("register soup: insert name: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schema.Soup{}, fmt.Errorf("register soup: last insert id: %w", err)
	}

	soup := schema.Soup{Name: name, Table: schema.TableName(id), Indexes: specs}
	if _, err := tx.ExecContext(ctx,
		"UPDATE soup_names SET table_name = ? WHERE id = ?", soup.Table, id); err != nil {
		return schema.Soup{}, fmt.Errorf("register soup: set table name: %w", err)
	}

	for _, spec := range specs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO soup_index_map (soup_name, position, path, column_name, column_type)
			VALUES (?, ?, ?, ?, ?)
		`, name, spec.Position, spec.Path, spec.ColumnName(), string(spec.Type))
		if err != nil {
			return schema.Soup{}, fmt.Errorf("register soup: insert index spec %d: %w", spec.Position, err)
		}
	}

	if err := r.tables.Create(ctx, tx, soup); err != nil {
		return schema.Soup{}, fmt.Errorf("register soup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return schema.Soup{}, fmt.Errorf("register soup: commit: %w", err)
	}

	r.st.Cache().Put(soup)
	r.logger.Info("registered soup", "soup", name, "table", soup.Table, "indexes", len(specs))
	return soup, nil
}

// Lookup returns the registered soup, loading it into the cache on a miss.
// A soup whose metadata exists but whose table does not is a
// SCHEMA_INTEGRITY error.
func (r *Registry) Lookup(ctx context.Context, name string) (schema.Soup, error) {
	name, err := schema.NormalizeName(name)
	if err != nil {
		return schema.Soup{}, err
	}
	if soup, ok := r.st.Cache().Get(name); ok {
		return soup, nil
	}

	db, err := r.st.DB()
	if err != nil {
		return schema.Soup{}, err
	}

	soup, found, err := loadSoup(ctx, db, name)
	if err != nil {
		return schema.Soup{}, fmt.Errorf("lookup soup: %w", err)
	}
	if !found {
		return schema.Soup{}, fault.SoupNotFound(name)
	}

	exists, err := tableExists(ctx, db, soup.Table)
	if err != nil {
		return schema.Soup{}, fmt.Errorf("lookup soup: %w", err)
	}
	if !exists {
		return schema.Soup{}, fault.SchemaIntegrity(soup.Table, "registered soup has no table").WithSoup(name)
	}

	r.st.Cache().Put(soup)
	return soup, nil
}

// IndexSpecs returns the soup's index specs in position order.
func (r *Registry) IndexSpecs(ctx context.Context, name string) ([]schema.IndexSpec, error) {
	soup, err := r.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return soup.Indexes, nil
}

// TableName returns the soup's physical table name.
func (r *Registry) TableName(ctx context.Context, name string) (string, error) {
	soup, err := r.Lookup(ctx, name)
	if err != nil {
		return "", err
	}
	return soup.Table, nil
}

// Exists reports whether a soup is registered.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	_, err := r.Lookup(ctx, name)
	if fault.IsSoupNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Names lists registered soups in registration order.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	db, err := r.st.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT soup_name FROM soup_names ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list soups: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list soups: scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list soups: %w", err)
	}
	return names, nil
}

// Drop removes a soup's table, indexes and metadata and returns what was
// dropped. Dropping an unregistered soup fails with SOUP_NOT_FOUND.
func (r *Registry) Drop(ctx context.Context, name string) (schema.Soup, error) {
	name, err := schema.NormalizeName(name)
	if err != nil {
		return schema.Soup{}, err
	}

	tx, err := r.st.BeginTx(ctx)
	if err != nil {
		return schema.Soup{}, fmt.Errorf("drop soup: %w", err)
	}
	defer tx.Rollback()

	soup, found, err := loadSoup(ctx, tx, name)
	if err != nil {
		return schema.Soup{}, fmt.Errorf("drop soup: %w", err)
	}
	if !found {
		r.st.Cache().Invalidate(name)
		return schema.Soup{}, fault.SoupNotFound(name)
	}

	if err := r.dropInTx(ctx, tx, soup); err != nil {
		return schema.Soup{}, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM soup_names WHERE soup_name = ?", name); err != nil {
		return schema.Soup{}, fmt.Errorf("drop soup: delete name: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return schema.Soup{}, fmt.Errorf("drop soup: commit: %w", err)
	}

	r.st.Cache().Invalidate(name)
	r.logger.Info("dropped soup", "soup", name, "table", soup.Table)
	return soup, nil
}

// DropAll drops every soup and resets the table id counter, leaving the
// registry indistinguishable from a fresh store. It returns the dropped soups.
func (r *Registry) DropAll(ctx context.Context) ([]schema.Soup, error) {
	tx, err := r.st.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("drop all soups: %w", err)
	}
	defer tx.Rollback()

	soups, err := loadAll(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("drop all soups: %w", err)
	}
	for _, soup := range soups {
		if err := r.dropInTx(ctx, tx, soup); err != nil {
			return nil, fmt.Errorf("drop all soups: %w", err)
		}
	}

	stmts := []string{
		"DELETE FROM soup_index_map",
		"DELETE FROM soup_names",
		"DELETE FROM sqlite_sequence WHERE name = 'soup_names'",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("drop all soups: %q: %w", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("drop all soups: commit: %w", err)
	}

	r.st.Cache().Reset()
	r.logger.Info("dropped all soups", "count", len(soups))
	return soups, nil
}

func (r *Registry) dropInTx(ctx context.Context, tx *sql.Tx, soup schema.Soup) error {
	if err := r.tables.DropTable(ctx, tx, soup); err != nil {
		return fmt.Errorf("drop soup %s: %w", soup.Name, err)
	}
	// DROP TABLE already clears the AUTOINCREMENT row; this keeps a
	// recreated table from inheriting ids if that ever changes.
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", soup.Table); err != nil {
		return fmt.Errorf("drop soup %s: reset sequence: %w", soup.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM soup_index_map WHERE soup_name = ?", soup.Name); err != nil {
		return fmt.Errorf("drop soup %s: delete index specs: %w", soup.Name, err)
	}
	return nil
}

// loadSoup reads one soup's metadata. found is false when the name is unknown.
func loadSoup(ctx context.Context, q querier, name string) (soup schema.Soup, found bool, err error) {
	var table sql.NullString
	err = q.QueryRowContext(ctx,
		"SELECT table_name FROM soup_names WHERE soup_name = ?", name).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Soup{}, false, nil
	}
	if err != nil {
		return schema.Soup{}, false, fmt.Errorf("load soup %s: %w", name, err)
	}
	if !table.Valid || table.String == "" {
		return schema.Soup{}, false, fault.SchemaIntegrity("", "soup has no table name").WithSoup(name)
	}

	specs, err := loadSpecs(ctx, q, name)
	if err != nil {
		return schema.Soup{}, false, err
	}
	return schema.Soup{Name: name, Table: table.String, Indexes: specs}, true, nil
}

func loadSpecs(ctx context.Context, q querier, name string) ([]schema.IndexSpec, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT position, path, column_type
		FROM soup_index_map
		WHERE soup_name = ?
		ORDER BY position ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("load index specs %s: %w", name, err)
	}
	defer rows.Close()

	var specs []schema.IndexSpec
	for rows.Next() {
		var (
			spec schema.IndexSpec
			typ  string
		)
		if err := rows.Scan(&spec.Position, &spec.Path, &typ); err != nil {
			return nil, fmt.Errorf("load index specs %s: scan: %w", name, err)
		}
		spec.Type = schema.Type(typ)
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load index specs %s: %w", name, err)
	}
	return specs, nil
}

func loadAll(ctx context.Context, q querier) ([]schema.Soup, error) {
	rows, err := q.QueryContext(ctx, "SELECT soup_name FROM soup_names ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("load soups: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("load soups: scan: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load soups: %w", err)
	}

	soups := make([]schema.Soup, 0, len(names))
	for _, name := range names {
		soup, found, err := loadSoup(ctx, q, name)
		if err != nil {
			return nil, err
		}
		if found {
			soups = append(soups, soup)
		}
	}
	return soups, nil
}

func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}
