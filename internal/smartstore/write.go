package smartstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/querysql"
	"github.com/roach88/soupstore/internal/queryir"
	"github.com/roach88/soupstore/internal/schema"
	"github.com/roach88/soupstore/internal/value"
)

// Create inserts doc as a new entry and returns it with its reserved
// fields set. An entry id already present in doc is ignored.
func (s *SmartStore) Create(ctx context.Context, soupName string, doc value.Object) (value.Object, error) {
	soup, err := s.reg.Lookup(ctx, soupName)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(soup.Name)
	defer unlock()

	return s.insert(ctx, soup, doc)
}

// Upsert updates the entry named by doc's _soupEntryId, or inserts doc
// when it has none. An id that does not exist fails with RECORD_NOT_FOUND.
func (s *SmartStore) Upsert(ctx context.Context, soupName string, doc value.Object) (value.Object, error) {
	return s.UpsertWithKey(ctx, soupName, doc, schema.EntryIDColumn)
}

// UpsertWithKey resolves the target entry through externalIDPath: the entry
// whose indexed value at that path equals doc's is updated, and doc is
// inserted when there is none. More than one match is INVALID_INPUT.
// An empty path or _soupEntryId behaves like Upsert.
func (s *SmartStore) UpsertWithKey(ctx context.Context, soupName string, doc value.Object, externalIDPath string) (value.Object, error) {
	soup, err := s.reg.Lookup(ctx, soupName)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(soup.Name)
	defer unlock()

	if externalIDPath == "" || externalIDPath == schema.EntryIDColumn {
		if id, ok := EntryID(doc); ok {
			return s.update(ctx, soup, id, doc)
		}
		if v, present := doc[schema.EntryIDColumn]; present && !value.IsNull(v) {
			return nil, fault.Invalid("%s must be an integer, got %s", schema.EntryIDColumn, value.KindOf(v)).WithSoup(soup.Name)
		}
		return s.insert(ctx, soup, doc)
	}

	match := value.Lookup(doc, externalIDPath)
	if value.IsNull(match) {
		return nil, fault.Invalid("external id path %q has no value", externalIDPath).WithSoup(soup.Name)
	}

	ids, err := s.lookupIDs(ctx, soup, queryir.Exact{
		Shape: queryir.Shape{Soup: soup.Name},
		Path:  externalIDPath,
		Match: match,
	})
	if err != nil {
		return nil, err
	}
	switch len(ids) {
	case 0:
		return s.insert(ctx, soup, doc)
	case 1:
		return s.update(ctx, soup, ids[0], doc)
	default:
		return nil, fault.Invalid("%d entries match %s at %q", len(ids), value.KindOf(match), externalIDPath).WithSoup(soup.Name)
	}
}

// Update replaces entry id with doc. The id inside doc, if any, is ignored.
func (s *SmartStore) Update(ctx context.Context, soupName string, id int64, doc value.Object) (value.Object, error) {
	soup, err := s.reg.Lookup(ctx, soupName)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(soup.Name)
	defer unlock()

	return s.update(ctx, soup, id, doc)
}

func (s *SmartStore) insert(ctx context.Context, soup schema.Soup, doc value.Object) (value.Object, error) {
	now := s.clock.Now().UnixMilli()
	doc = doc.Clone()
	if doc == nil {
		doc = value.Object{}
	}
	delete(doc, schema.EntryIDColumn)
	doc[schema.CreatedColumn] = value.Int(now)
	doc[schema.LastModifiedColumn] = value.Int(now)

	projected, err := schema.ProjectAll(doc, soup.Indexes)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: project: %w", soup.Name, err)
	}

	tx, err := s.st.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", soup.Name, err)
	}
	defer tx.Rollback() // No-op if committed

	args := append([]any{now, now, nil}, projected...)
	res, err := tx.ExecContext(ctx, insertSQL(soup), args...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", soup.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert into %s: last insert id: %w", soup.Name, err)
	}
	doc[schema.EntryIDColumn] = value.Int(id)

	raw, err := value.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: marshal: %w", soup.Name, err)
	}

	external := s.policy.Externalize(soup.Name, len(raw))
	if external {
		if err := s.blobs.Write(soup.Table, id, raw); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", soup.Name, err)
		}
	} else {
		content, err := s.inlineContent(soup.Table, id, raw)
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", soup.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", soup.Table, schema.SoupColumn, schema.EntryIDColumn),
			content, id); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", soup.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if external {
			s.compensate(soup.Table, id, nil)
		}
		return nil, fmt.Errorf("insert into %s: commit: %w", soup.Name, err)
	}

	s.logger.Debug("inserted entry", "soup", soup.Name, "id", id, "externalized", external, "bytes", len(raw))
	return doc, nil
}

func (s *SmartStore) update(ctx context.Context, soup schema.Soup, id int64, doc value.Object) (value.Object, error) {
	tx, err := s.st.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("update %s/%d: %w", soup.Name, id, err)
	}
	defer tx.Rollback()

	var (
		created int64
		content sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?",
			schema.CreatedColumn, schema.SoupColumn, soup.Table, schema.EntryIDColumn),
		id).Scan(&created, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.RecordNotFound(soup.Name, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s/%d: %w", soup.Name, id, err)
	}
	wasExternal := !content.Valid

	now := s.clock.Now().UnixMilli()
	doc = doc.Clone()
	if doc == nil {
		doc = value.Object{}
	}
	doc[schema.EntryIDColumn] = value.Int(id)
	doc[schema.CreatedColumn] = value.Int(created)
	doc[schema.LastModifiedColumn] = value.Int(now)

	projected, err := schema.ProjectAll(doc, soup.Indexes)
	if err != nil {
		return nil, fmt.Errorf("update %s/%d: project: %w", soup.Name, id, err)
	}
	raw, err := value.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("update %s/%d: marshal: %w", soup.Name, id, err)
	}

	external := s.policy.Externalize(soup.Name, len(raw))
	var previous []byte
	if external {
		if wasExternal {
			// Kept to restore the blob if the commit fails
			previous, err = s.blobs.Read(soup.Table, id)
			if fault.IsBlobMissing(err) {
				s.logger.Warn("externalized entry has no blob; overwriting", "soup", soup.Name, "id", id, "error", err)
			} else if err != nil {
				return nil, fmt.Errorf("update %s/%d: %w", soup.Name, id, err)
			}
		}
		if err := s.blobs.Write(soup.Table, id, raw); err != nil {
			return nil, fmt.Errorf("update %s/%d: %w", soup.Name, id, err)
		}
	}

	var column any
	if !external {
		column, err = s.inlineContent(soup.Table, id, raw)
		if err != nil {
			return nil, fmt.Errorf("update %s/%d: %w", soup.Name, id, err)
		}
	}
	args := append([]any{now, column}, projected...)
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, updateSQL(soup), args...); err != nil {
		if external {
			s.compensate(soup.Table, id, previous)
		}
		return nil, fmt.Errorf("update %s/%d: %w", soup.Name, id, err)
	}

	if err := tx.Commit(); err != nil {
		if external {
			s.compensate(soup.Table, id, previous)
		}
		return nil, fmt.Errorf("update %s/%d: commit: %w", soup.Name, id, err)
	}

	if wasExternal && !external && s.blobs != nil {
		if err := s.blobs.Delete(soup.Table, id); err != nil {
			s.logger.Error("orphaned blob after inlining entry", "soup", soup.Name, "id", id, "error", err)
		}
	}

	s.logger.Debug("updated entry", "soup", soup.Name, "id", id, "externalized", external, "bytes", len(raw))
	return doc, nil
}

// compensate undoes a blob write whose row change did not commit: the
// previous content is restored, or the blob removed if there was none.
func (s *SmartStore) compensate(table string, id int64, previous []byte) {
	var err error
	if previous != nil {
		err = s.blobs.Write(table, id, previous)
	} else {
		err = s.blobs.Delete(table, id)
	}
	if err != nil {
		s.logger.Error("blob compensation failed", "table", table, "id", id, "error", err)
	}
}

// lookupIDs runs q's id statement without recording a plan.
func (s *SmartStore) lookupIDs(ctx context.Context, soup schema.Soup, q queryir.Query) ([]int64, error) {
	stmt, err := querysql.NewSQLCompiler(soup).CompileIDs(q)
	if err != nil {
		return nil, err
	}
	db, err := s.st.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("lookup ids in %s: %w", soup.Name, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("lookup ids in %s: scan: %w", soup.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertSQL(soup schema.Soup) string {
	cols := []string{schema.CreatedColumn, schema.LastModifiedColumn, schema.SoupColumn}
	for _, spec := range soup.Indexes {
		cols = append(cols, schema.QuoteIdent(spec.ColumnName()))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", soup.Table, strings.Join(cols, ", "), placeholders)
}

func updateSQL(soup schema.Soup) string {
	sets := []string{schema.LastModifiedColumn + " = ?", schema.SoupColumn + " = ?"}
	for _, spec := range soup.Indexes {
		sets = append(sets, schema.QuoteIdent(spec.ColumnName())+" = ?")
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", soup.Table, strings.Join(sets, ", "), schema.EntryIDColumn)
}
