// Package querysql compiles soup queries to parameterized SQLite statements.
//
// Every path a query touches (filter, order, projection) must resolve to a
// column of the soup table: a reserved column or a declared IndexSpec.
// Unindexed paths are rejected instead of falling back to a JSON scan, so a
// compiled query can always be served by an index.
//
// Every row-returning statement ends in ORDER BY with _soupEntryId as the
// final tiebreaker, so results and pages are deterministic. Values are always
// bound as parameters, never interpolated.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/queryir"
	"github.com/roach88/soupstore/internal/schema"
)

// Statement is a compiled query.
type Statement struct {
	SQL  string
	Args []any

	// Select echoes the projected paths, in column order. Empty means the
	// statement returns (_soupEntryId, soup) pairs for whole documents.
	Select []string
}

// SQLCompiler compiles queries against one soup's table.
type SQLCompiler struct {
	soup schema.Soup
}

// NewSQLCompiler creates a compiler for soup.
func NewSQLCompiler(soup schema.Soup) *SQLCompiler {
	return &SQLCompiler{soup: soup}
}

// Compile compiles the page-th page (0-based) of q.
func (c *SQLCompiler) Compile(q queryir.Query, page int) (Statement, error) {
	if err := queryir.Validate(q); err != nil {
		return Statement{}, err
	}
	if page < 0 {
		return Statement{}, fault.Invalid("page index %d is negative", page)
	}
	base := q.Base()

	selectClause := fmt.Sprintf("%s, %s", schema.EntryIDColumn, schema.SoupColumn)
	if len(base.Select) > 0 {
		cols := make([]string, len(base.Select))
		for i, p := range base.Select {
			ref, err := c.columnRef(p)
			if err != nil {
				return Statement{}, err
			}
			cols[i] = ref
		}
		selectClause = strings.Join(cols, ", ")
	}

	where, args, err := c.compileFilter(q)
	if err != nil {
		return Statement{}, err
	}

	orderBy, err := c.stableOrderKey(base)
	if err != nil {
		return Statement{}, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", selectClause, c.soup.Table, where, orderBy)
	if base.PageSize > 0 {
		sql += " LIMIT ? OFFSET ?"
		args = append(args, base.PageSize, page*base.PageSize)
	}

	return Statement{SQL: sql, Args: args, Select: base.Select}, nil
}

// CompileCount compiles a statement returning the number of entries q
// matches, ignoring paging.
func (c *SQLCompiler) CompileCount(q queryir.Query) (Statement, error) {
	if err := queryir.Validate(q); err != nil {
		return Statement{}, err
	}
	where, args, err := c.compileFilter(q)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s%s", c.soup.Table, where),
		Args: args,
	}, nil
}

// CompileIDs compiles a statement returning the entry ids q matches across
// all pages, in query order.
func (c *SQLCompiler) CompileIDs(q queryir.Query) (Statement, error) {
	if err := queryir.Validate(q); err != nil {
		return Statement{}, err
	}
	where, args, err := c.compileFilter(q)
	if err != nil {
		return Statement{}, err
	}
	orderBy, err := c.stableOrderKey(q.Base())
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:    fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", schema.EntryIDColumn, c.soup.Table, where, orderBy),
		Args:   args,
		Select: []string{schema.EntryIDColumn},
	}, nil
}

// compileFilter returns the WHERE clause (with leading space) and its args.
func (c *SQLCompiler) compileFilter(q queryir.Query) (string, []any, error) {
	switch query := q.(type) {
	case queryir.All:
		return "", nil, nil

	case queryir.Exact:
		col, err := c.column(query.Path)
		if err != nil {
			return "", nil, err
		}
		arg, err := schema.Coerce(query.Match, col.Type)
		if err != nil {
			return "", nil, fault.Invalid("exact match on %q: %v", query.Path, err)
		}
		return fmt.Sprintf(" WHERE %s = ?", ref(col)), []any{arg}, nil

	case queryir.Range:
		col, err := c.column(query.Path)
		if err != nil {
			return "", nil, err
		}
		begin, err := schema.Coerce(query.Begin, col.Type)
		if err != nil {
			return "", nil, fault.Invalid("range begin on %q: %v", query.Path, err)
		}
		end, err := schema.Coerce(query.End, col.Type)
		if err != nil {
			return "", nil, fault.Invalid("range end on %q: %v", query.Path, err)
		}
		switch {
		case begin != nil && end != nil:
			return fmt.Sprintf(" WHERE %s BETWEEN ? AND ?", ref(col)), []any{begin, end}, nil
		case begin != nil:
			return fmt.Sprintf(" WHERE %s >= ?", ref(col)), []any{begin}, nil
		case end != nil:
			return fmt.Sprintf(" WHERE %s <= ?", ref(col)), []any{end}, nil
		default:
			return "", nil, nil
		}

	case queryir.Like:
		col, err := c.column(query.Path)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf(" WHERE %s LIKE ?", ref(col)), []any{query.Pattern}, nil

	default:
		return "", nil, fault.Invalid("unsupported query type %T", q)
	}
}

// stableOrderKey returns the ORDER BY list: the requested path, then the
// entry id as tiebreaker.
func (c *SQLCompiler) stableOrderKey(base queryir.Shape) (string, error) {
	dir := base.Order
	if dir == "" {
		dir = queryir.Ascending
	}

	path := base.OrderPath
	if path == "" || path == schema.EntryIDColumn {
		return fmt.Sprintf("%s %s", schema.EntryIDColumn, dir), nil
	}

	col, err := c.column(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s, %s ASC", ref(col), dir, schema.EntryIDColumn), nil
}

func (c *SQLCompiler) column(path string) (schema.Column, error) {
	col, ok := c.soup.ColumnFor(path)
	if !ok {
		return schema.Column{}, fault.Invalid("path %q is not indexed", path).WithSoup(c.soup.Name)
	}
	return col, nil
}

func (c *SQLCompiler) columnRef(path string) (string, error) {
	col, err := c.column(path)
	if err != nil {
		return "", err
	}
	return ref(col), nil
}

// ref renders a column reference. Reserved columns are plain identifiers;
// index columns are named after document paths and always quoted.
func ref(col schema.Column) string {
	if col.Position < 0 {
		return col.Name
	}
	return schema.QuoteIdent(col.Name)
}
