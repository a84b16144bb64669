// Package explain captures SQLite query plans next to the queries they
// describe.
//
// A Recorder runs EXPLAIN QUERY PLAN for a statement, parses the rows and
// keeps the result as the single "last plan" before running the statement
// itself. Only the most recent plan is kept. Concurrent queries through one
// Recorder overwrite each other's plan in unspecified order; callers that
// need to attribute a plan to a query must serialize around it.
//
// SQLite has worded plan details differently across versions ("SEARCH
// TABLE t USING ..." before 3.36, "SEARCH t USING ..." after). Details are
// normalized to the older, explicit form so assertions do not depend on the
// linked SQLite version.
package explain

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Row is one parsed EXPLAIN QUERY PLAN row.
type Row struct {
	ID     int
	Parent int

	// Operation is SCAN or SEARCH for table access, otherwise the first
	// word of the detail (USE, COMPOUND, ...).
	Operation string

	// Table is the table accessed, empty for non-access rows.
	Table string

	// Covering reports whether the index alone answers the query.
	Covering bool

	// Index is the index used, empty for full scans.
	Index string

	// Detail is the normalized detail text.
	Detail string
}

// Plan is the query plan of one statement.
type Plan struct {
	SQL  string
	Args []any
	Rows []Row
}

// Find returns the first row that uses index.
func (p Plan) Find(index string) (Row, bool) {
	for _, r := range p.Rows {
		if r.Index == index {
			return r, true
		}
	}
	return Row{}, false
}

// Details returns the normalized detail of every row.
func (p Plan) Details() []string {
	out := make([]string, len(p.Rows))
	for i, r := range p.Rows {
		out[i] = r.Detail
	}
	return out
}

type rowJSON struct {
	Operation     string `json:"operation"`
	Table         string `json:"table,omitempty"`
	CoveringIndex bool   `json:"coveringIndex"`
	IndexName     string `json:"indexName,omitempty"`
	Detail        string `json:"detail"`
}

type planJSON struct {
	SQL  string    `json:"sql"`
	Args []any     `json:"args"`
	Rows []rowJSON `json:"rows"`
}

// MarshalJSON renders the plan in its inspectable form.
func (p Plan) MarshalJSON() ([]byte, error) {
	out := planJSON{SQL: p.SQL, Args: p.Args, Rows: make([]rowJSON, len(p.Rows))}
	if out.Args == nil {
		out.Args = []any{}
	}
	for i, r := range p.Rows {
		out.Rows[i] = rowJSON{
			Operation:     r.Operation,
			Table:         r.Table,
			CoveringIndex: r.Covering,
			IndexName:     r.Index,
			Detail:        r.Detail,
		}
	}
	return json.Marshal(out)
}

var (
	accessPattern = regexp.MustCompile(`^(SCAN|SEARCH)(?: TABLE)? (\S+)(.*)$`)
	indexPattern  = regexp.MustCompile(`^(?: AS \S+)? USING (COVERING )?INDEX (\S+)`)
)

// ParseDetail parses the detail column of a plan row.
func ParseDetail(detail string) Row {
	m := accessPattern.FindStringSubmatch(detail)
	if m == nil {
		op, _, _ := strings.Cut(detail, " ")
		return Row{Operation: op, Detail: detail}
	}

	row := Row{
		Operation: m[1],
		Table:     m[2],
		Detail:    fmt.Sprintf("%s TABLE %s%s", m[1], m[2], m[3]),
	}
	if im := indexPattern.FindStringSubmatch(m[3]); im != nil {
		row.Covering = im[1] != ""
		row.Index = im[2]
	}
	return row
}

// Explain returns the plan of query without running it.
func Explain(ctx context.Context, q Querier, query string, args ...any) (Plan, error) {
	rows, err := q.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query, args...)
	if err != nil {
		return Plan{}, fmt.Errorf("explain: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Plan{}, fmt.Errorf("explain: columns: %w", err)
	}

	plan := Plan{SQL: query, Args: args}
	for rows.Next() {
		// Column sets differ across SQLite versions; the detail is always last
		// and id/parent (or selectid/order) lead.
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Plan{}, fmt.Errorf("explain: scan: %w", err)
		}

		row := ParseDetail(asString(vals[len(vals)-1]))
		if len(vals) >= 2 {
			row.ID = asInt(vals[0])
			row.Parent = asInt(vals[1])
		}
		plan.Rows = append(plan.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Plan{}, fmt.Errorf("explain: %w", err)
	}
	return plan, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// Recorder keeps the plan of the most recent query it ran.
type Recorder struct {
	mu     sync.Mutex
	last   *Plan
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger uses slog.Default().
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

// Query records the plan of query and then runs it. The plan is recorded
// even if running the query fails. Callers close the returned rows.
func (r *Recorder) Query(ctx context.Context, q Querier, query string, args ...any) (*sql.Rows, error) {
	plan, err := Explain(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	r.set(plan)
	r.logger.Debug("query plan", "sql", query, "plan", plan.Details())

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}

// Last returns the most recently recorded plan.
func (r *Recorder) Last() (Plan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Plan{}, false
	}
	return *r.last, true
}

// Clear forgets the recorded plan.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = nil
}

func (r *Recorder) set(p Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &p
}
