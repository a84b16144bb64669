package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/soupstore/internal/queryir"
	"github.com/roach88/soupstore/internal/value"
)

// tablePlaceholder in assertion statements is replaced by the soup's table.
const tablePlaceholder = "{table}"

// EvaluateAssertions checks every assertion against the fixture and returns
// one message per failure.
func EvaluateAssertions(ctx context.Context, f *Fixture, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(ctx, f, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(ctx context.Context, f *Fixture, a Assertion) error {
	exists := a.Exists == nil || *a.Exists

	if a.Type == AssertHasTable {
		table := a.Table
		if table == "" {
			var err error
			table, err = f.SoupTableName(ctx, a.Soup)
			if err != nil {
				if !exists {
					// An unregistered soup has no table
					return nil
				}
				return err
			}
		}
		found, err := f.HasTable(ctx, table)
		if err != nil {
			return err
		}
		if found != exists {
			return &AssertionError{
				Type:     AssertHasTable,
				Expected: fmt.Sprintf("table %s exists=%t", table, exists),
				Actual:   fmt.Sprintf("exists=%t", found),
			}
		}
		return nil
	}

	table, err := f.SoupTableName(ctx, a.Soup)
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertColumns:
		return f.CheckColumns(ctx, table, a.Columns)
	case AssertIndexSpecs:
		return f.CheckIndexSpecs(ctx, a.Soup, a.Indexes)
	case AssertCreateTableContains:
		return f.CheckCreateTableStatement(ctx, table, withTable(a.Contains, table))
	case AssertDatabaseIndexes:
		stmts := make([]string, len(a.Statements))
		for i, s := range a.Statements {
			stmts[i] = withTable(s, table)
		}
		return f.CheckDatabaseIndexes(ctx, table, stmts)
	case AssertExplainPlan:
		return f.CheckExplainQueryPlan(ctx, a.Soup, a.Index, a.Covering, a.Operation)
	case AssertBlobFiles:
		return f.CheckFileSystem(ctx, a.Soup, a.IDs, exists)
	case AssertRecord:
		expected, err := value.FromAny(a.Expect)
		if err != nil {
			return err
		}
		return f.CheckRecord(ctx, a.Soup, a.ID, expected.(value.Object))
	case AssertCount:
		docs, err := f.Store.Count(ctx, allOf(a.Soup))
		if err != nil {
			return err
		}
		if docs != *a.Count {
			return &AssertionError{
				Type:     AssertCount,
				Expected: fmt.Sprintf("%d entries", *a.Count),
				Actual:   fmt.Sprintf("%d entries", docs),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func withTable(s, table string) string {
	return strings.ReplaceAll(s, tablePlaceholder, table)
}

func allOf(soup string) queryir.Query {
	return queryir.All{Shape: queryir.Shape{Soup: soup}}
}
