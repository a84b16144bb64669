package smartstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/soupstore/internal/blob"
	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/schema"
)

// Verify checks a soup's physical schema against its registered specs and
// checks that every externalized entry has a blob. When the blob store can
// list its contents, blobs without an externalized entry are reported too.
func (s *SmartStore) Verify(ctx context.Context, soupName string) error {
	if err := s.reg.Verify(ctx, soupName); err != nil {
		return err
	}
	soup, err := s.reg.Lookup(ctx, soupName)
	if err != nil {
		return err
	}

	external, err := s.externalIDs(ctx, soup)
	if err != nil {
		return err
	}
	if len(external) > 0 && s.blobs == nil {
		return fault.BlobMissing(soup.Table, external[0], fmt.Errorf("no blob store configured")).WithSoup(soup.Name)
	}
	for _, id := range external {
		ok, err := s.blobs.Exists(soup.Table, id)
		if err != nil {
			return fmt.Errorf("verify %s: %w", soup.Name, err)
		}
		if !ok {
			return fault.BlobMissing(soup.Table, id, nil).WithSoup(soup.Name)
		}
	}

	lister, ok := s.blobs.(blob.Lister)
	if !ok {
		return nil
	}
	stored, err := lister.IDs(soup.Table)
	if err != nil {
		return fmt.Errorf("verify %s: %w", soup.Name, err)
	}
	for _, id := range stored {
		if _, found := slices.BinarySearch(external, id); !found {
			return fault.SchemaIntegrity(soup.Table, "blob %d has no externalized entry", id).WithSoup(soup.Name)
		}
	}
	return nil
}

// externalIDs returns the ids of externalized entries in ascending order.
func (s *SmartStore) externalIDs(ctx context.Context, soup schema.Soup) ([]int64, error) {
	db, err := s.st.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NULL ORDER BY %s ASC",
			schema.EntryIDColumn, soup.Table, schema.SoupColumn, schema.EntryIDColumn))
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", soup.Name, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("verify %s: scan: %w", soup.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
