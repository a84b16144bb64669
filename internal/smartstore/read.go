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

// Retrieve returns the entries with the given ids, in argument order.
// Any missing id fails the whole call with RECORD_NOT_FOUND.
func (s *SmartStore) Retrieve(ctx context.Context, soupName string, ids ...int64) ([]value.Object, error) {
	soup, err := s.reg.Lookup(ctx, soupName)
	if err != nil {
		return nil, err
	}

	db, err := s.st.DB()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", schema.SoupColumn, soup.Table, schema.EntryIDColumn)
	docs := make([]value.Object, 0, len(ids))
	for _, id := range ids {
		var content sql.NullString
		err := db.QueryRowContext(ctx, query, id).Scan(&content)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.RecordNotFound(soup.Name, id)
		}
		if err != nil {
			return nil, fmt.Errorf("retrieve %s/%d: %w", soup.Name, id, err)
		}

		doc, err := s.materialize(soup, id, content)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Query runs q and returns the page-th page (0-based). Whole-document
// queries return value.Object entries; queries with Select return one
// value.Array per row holding the selected values in order. The plan of the
// query is recorded as the last plan.
func (s *SmartStore) Query(ctx context.Context, q queryir.Query, page int) ([]value.Value, error) {
	if err := queryir.Validate(q); err != nil {
		return nil, err
	}
	soup, err := s.reg.Lookup(ctx, q.Base().Soup)
	if err != nil {
		return nil, err
	}

	stmt, err := querysql.NewSQLCompiler(soup).Compile(q, page)
	if err != nil {
		return nil, err
	}

	db, err := s.st.DB()
	if err != nil {
		return nil, err
	}
	rows, err := s.plans.Query(ctx, db, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", soup.Name, err)
	}

	if len(stmt.Select) > 0 {
		defer rows.Close()
		return scanProjection(soup, stmt.Select, rows)
	}

	type pending struct {
		id      int64
		content sql.NullString
	}
	var found []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			rows.Close()
			return nil, fmt.Errorf("query %s: scan: %w", soup.Name, err)
		}
		found = append(found, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", soup.Name, err)
	}

	out := make([]value.Value, 0, len(found))
	for _, p := range found {
		doc, err := s.materialize(soup, p.id, p.content)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Count returns the number of entries q matches across all pages.
func (s *SmartStore) Count(ctx context.Context, q queryir.Query) (int, error) {
	if err := queryir.Validate(q); err != nil {
		return 0, err
	}
	soup, err := s.reg.Lookup(ctx, q.Base().Soup)
	if err != nil {
		return 0, err
	}
	stmt, err := querysql.NewSQLCompiler(soup).CompileCount(q)
	if err != nil {
		return 0, err
	}
	db, err := s.st.DB()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", soup.Name, err)
	}
	return n, nil
}

// materialize decodes an entry from its soup column, or from the blob store
// when the column is NULL.
func (s *SmartStore) materialize(soup schema.Soup, id int64, content sql.NullString) (value.Object, error) {
	var raw []byte
	if content.Valid {
		data, err := s.openInline(soup, id, content.String)
		if err != nil {
			return nil, err
		}
		raw = data
	} else {
		if s.blobs == nil {
			return nil, fault.BlobMissing(soup.Table, id, errors.New("no blob store configured")).WithSoup(soup.Name)
		}
		data, err := s.blobs.Read(soup.Table, id)
		if err != nil {
			var fe *fault.Error
			if errors.As(err, &fe) {
				return nil, fe.WithSoup(soup.Name)
			}
			return nil, fmt.Errorf("read %s/%d: %w", soup.Name, id, err)
		}
		raw = data
	}

	doc, err := value.ParseObject(raw)
	if err != nil {
		return nil, fault.SchemaIntegrity(soup.Table, "entry %d is not a JSON object: %v", id, err).WithSoup(soup.Name)
	}
	return doc, nil
}

func scanProjection(soup schema.Soup, paths []string, rows *sql.Rows) ([]value.Value, error) {
	var out []value.Value
	for rows.Next() {
		vals := make([]any, len(paths))
		ptrs := make([]any, len(paths))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", soup.Name, err)
		}

		row := make(value.Array, len(paths))
		for i, p := range paths {
			col, _ := soup.ColumnFor(p)
			row[i] = columnValue(vals[i], col.Type)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", soup.Name, err)
	}
	return out, nil
}

// columnValue converts a scanned column back into a document value. JSON1
// columns holding a composite are decoded again.
func columnValue(v any, t schema.Type) value.Value {
	switch val := v.(type) {
	case nil:
		return value.Null{}
	case int64:
		return value.Int(val)
	case float64:
		return value.Float(val)
	case bool:
		return value.Bool(val)
	case []byte:
		return columnValue(string(val), t)
	case string:
		if t == schema.TypeJSON1 && (strings.HasPrefix(val, "{") || strings.HasPrefix(val, "[")) {
			if parsed, err := value.Parse([]byte(val)); err == nil {
				return parsed
			}
		}
		return value.String(val)
	default:
		return value.String(fmt.Sprint(val))
	}
}
