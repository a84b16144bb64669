package registry

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/soupstore/internal/fault"
)

// PhysicalIndex is an index as recorded in sqlite_master.
type PhysicalIndex struct {
	Name string
	SQL  string
}

// Columns returns the column names of table in declaration order.
func (r *Registry) Columns(ctx context.Context, table string) ([]string, error) {
	db, err := r.st.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("columns of %s: scan: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// TableSQL returns the CREATE TABLE statement stored for table.
func (r *Registry) TableSQL(ctx context.Context, table string) (string, error) {
	db, err := r.st.DB()
	if err != nil {
		return "", err
	}
	var stmt string
	err = db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&stmt)
	if err != nil {
		return "", fmt.Errorf("table sql of %s: %w", table, err)
	}
	return stmt, nil
}

// Indexes returns the explicitly created indexes of table in creation order.
// Automatic indexes have no SQL and are skipped.
func (r *Registry) Indexes(ctx context.Context, table string) ([]PhysicalIndex, error) {
	db, err := r.st.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT name, sql FROM sqlite_master
		WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL
		ORDER BY rowid ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("indexes of %s: %w", table, err)
	}
	defer rows.Close()

	var out []PhysicalIndex
	for rows.Next() {
		var idx PhysicalIndex
		if err := rows.Scan(&idx.Name, &idx.SQL); err != nil {
			return nil, fmt.Errorf("indexes of %s: scan: %w", table, err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// Verify checks that the physical table of a soup matches its metadata:
// columns in order and exactly the expected indexes in position order.
// Any drift is a SCHEMA_INTEGRITY error; nothing is repaired.
func (r *Registry) Verify(ctx context.Context, name string) error {
	soup, err := r.Lookup(ctx, name)
	if err != nil {
		return err
	}

	cols, err := r.Columns(ctx, soup.Table)
	if err != nil {
		return err
	}
	if want := soup.Columns(); !slices.Equal(cols, want) {
		return fault.SchemaIntegrity(soup.Table, "columns %v, expected %v", cols, want).WithSoup(soup.Name)
	}

	indexes, err := r.Indexes(ctx, soup.Table)
	if err != nil {
		return err
	}
	got := make([]string, len(indexes))
	for i, idx := range indexes {
		got[i] = idx.Name
	}
	if want := soup.IndexNames(); !slices.Equal(got, want) {
		return fault.SchemaIntegrity(soup.Table, "indexes %v, expected %v", got, want).WithSoup(soup.Name)
	}
	return nil
}
