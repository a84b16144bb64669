package smartstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/soupstore/internal/queryir"
	"github.com/roach88/soupstore/internal/schema"
)

// Delete removes the entries with the given ids and their blobs. Ids that
// do not exist are ignored.
func (s *SmartStore) Delete(ctx context.Context, soupName string, ids ...int64) error {
	soup, err := s.reg.Lookup(ctx, soupName)
	if err != nil {
		return err
	}
	unlock := s.lock(soup.Name)
	defer unlock()

	return s.deleteIDs(ctx, soup, ids)
}

// DeleteByQuery removes every entry q matches, ignoring paging.
func (s *SmartStore) DeleteByQuery(ctx context.Context, q queryir.Query) error {
	if err := queryir.Validate(q); err != nil {
		return err
	}
	soup, err := s.reg.Lookup(ctx, q.Base().Soup)
	if err != nil {
		return err
	}
	unlock := s.lock(soup.Name)
	defer unlock()

	ids, err := s.lookupIDs(ctx, soup, q)
	if err != nil {
		return err
	}
	return s.deleteIDs(ctx, soup, ids)
}

// Clear removes every entry of a soup. The soup stays registered and entry
// ids keep increasing from where they were.
func (s *SmartStore) Clear(ctx context.Context, soupName string) error {
	soup, err := s.reg.Lookup(ctx, soupName)
	if err != nil {
		return err
	}
	unlock := s.lock(soup.Name)
	defer unlock()

	db, err := s.st.DB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+soup.Table); err != nil {
		return fmt.Errorf("clear %s: %w", soup.Name, err)
	}
	s.logger.Debug("cleared soup", "soup", soup.Name)
	return s.deleteTableBlobs(soup.Table)
}

// deleteBatchSize bounds the host parameters bound per statement. SQLite
// caps them at 32766 (999 before 3.32).
const deleteBatchSize = 500

func (s *SmartStore) deleteIDs(ctx context.Context, soup schema.Soup, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.st.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", soup.Name, err)
	}
	defer tx.Rollback() // No-op if committed

	var external []int64
	for batch := range slices.Chunk(ids, deleteBatchSize) {
		found, err := deleteBatch(ctx, tx, soup, batch)
		if err != nil {
			return err
		}
		external = append(external, found...)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete from %s: commit: %w", soup.Name, err)
	}

	if len(external) == 0 || s.blobs == nil {
		return nil
	}
	var errs []error
	for _, id := range external {
		if err := s.blobs.Delete(soup.Table, id); err != nil {
			s.logger.Error("orphaned blob after delete", "soup", soup.Name, "id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deleteBatch deletes one batch of ids and returns those that were
// externalized; their blobs go once the transaction commits.
func deleteBatch(ctx context.Context, tx *sql.Tx, soup schema.Soup, ids []int64) ([]int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) AND %s IS NULL",
			schema.EntryIDColumn, soup.Table, schema.EntryIDColumn, placeholders, schema.SoupColumn),
		args...)
	if err != nil {
		return nil, fmt.Errorf("delete from %s: %w", soup.Name, err)
	}
	var external []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("delete from %s: scan: %w", soup.Name, err)
		}
		external = append(external, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete from %s: %w", soup.Name, err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", soup.Table, schema.EntryIDColumn, placeholders),
		args...); err != nil {
		return nil, fmt.Errorf("delete from %s: %w", soup.Name, err)
	}
	return external, nil
}
