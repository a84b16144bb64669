package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateTableSQL returns the CREATE TABLE statement for s.
func CreateTableSQL(s Soup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", s.Table)
	fmt.Fprintf(&b, "%s INTEGER PRIMARY KEY AUTOINCREMENT, ", EntryIDColumn)
	fmt.Fprintf(&b, "%s INTEGER, ", CreatedColumn)
	fmt.Fprintf(&b, "%s INTEGER, ", LastModifiedColumn)
	fmt.Fprintf(&b, "%s TEXT", SoupColumn)
	for _, spec := range s.Indexes {
		b.WriteString(", ")
		b.WriteString(QuoteIdent(spec.ColumnName()))
		if ct := spec.Type.ColumnType(); ct != "" {
			b.WriteString(" ")
			b.WriteString(ct)
		}
	}
	b.WriteString(")")
	return b.String()
}

// CreateIndexSQL returns one CREATE INDEX statement per index spec, in
// position order.
func CreateIndexSQL(s Soup) []string {
	stmts := make([]string, len(s.Indexes))
	for i, spec := range s.Indexes {
		stmts[i] = fmt.Sprintf("CREATE INDEX %s ON %s ( %s )",
			IndexName(s.Table, spec.Position), s.Table, QuoteIdent(spec.ColumnName()))
	}
	return stmts
}

// TableManager issues the DDL for soup tables. Callers pass the transaction
// that also writes registry metadata so both commit or roll back together.
type TableManager struct {
	logger *slog.Logger
}

// NewTableManager creates a TableManager. A nil logger uses slog.Default().
func NewTableManager(logger *slog.Logger) *TableManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableManager{logger: logger}
}

// CreateTable creates the soup table.
func (m *TableManager) CreateTable(ctx context.Context, ex Execer, s Soup) error {
	stmt := CreateTableSQL(s)
	if _, err := ex.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", s.Table, err)
	}
	m.logger.Debug("created soup table", "soup", s.Name, "table", s.Table)
	return nil
}

// CreateIndexes creates every secondary index of the soup table.
func (m *TableManager) CreateIndexes(ctx context.Context, ex Execer, s Soup) error {
	for i, stmt := range CreateIndexSQL(s) {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", IndexName(s.Table, s.Indexes[i].Position), err)
		}
	}
	m.logger.Debug("created soup indexes", "soup", s.Name, "table", s.Table, "count", len(s.Indexes))
	return nil
}

// Create creates the table and its indexes.
func (m *TableManager) Create(ctx context.Context, ex Execer, s Soup) error {
	if err := m.CreateTable(ctx, ex, s); err != nil {
		return err
	}
	return m.CreateIndexes(ctx, ex, s)
}

// DropTable drops the soup's indexes and then its table. Missing objects
// are ignored so a partially created soup can still be dropped.
func (m *TableManager) DropTable(ctx context.Context, ex Execer, s Soup) error {
	for _, name := range s.IndexNames() {
		if _, err := ex.ExecContext(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	if _, err := ex.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.Table); err != nil {
		return fmt.Errorf("drop table %s: %w", s.Table, err)
	}
	m.logger.Debug("dropped soup table", "soup", s.Name, "table", s.Table)
	return nil
}
