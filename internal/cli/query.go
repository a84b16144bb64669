package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/soupstore/internal/explain"
	"github.com/roach88/soupstore/internal/harness"
	"github.com/roach88/soupstore/internal/value"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Kind     string
	Path     string
	Value    string
	Begin    string
	End      string
	Pattern  string
	Select   []string
	OrderBy  string
	Order    string
	PageSize int
	Page     int
	Count    bool
	Explain  bool
}

// QueryResult is the json output of the query command.
type QueryResult struct {
	Rows  value.Array   `json:"rows,omitempty"`
	Count *int          `json:"count,omitempty"`
	Plan  *explain.Plan `json:"plan,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <soup>",
		Short: "Query a soup",
		Long: `Query a soup by one of its indexed paths.

Query kinds:
  all    every entry, optionally ordered by --order-by
  exact  entries whose --path equals --value
  range  entries whose --path is between --begin and --end (inclusive)
  like   entries whose --path matches the SQL LIKE --pattern

Values are parsed as JSON when possible, so 41 is an integer and "41" or
41x are strings. --explain also prints the SQLite query plan.

Examples:
  soupstore query employees --kind exact --path name --value Ann --explain
  soupstore query employees --kind range --path age --begin 30 --end 50 --select name,age
  soupstore query employees --order-by age --order desc --page-size 10 --page 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Kind, "kind", "all", "query kind (all|exact|range|like)")
	flags.StringVar(&opts.Path, "path", "", "indexed path to match")
	flags.StringVar(&opts.Value, "value", "", "value for exact queries")
	flags.StringVar(&opts.Begin, "begin", "", "lower bound for range queries")
	flags.StringVar(&opts.End, "end", "", "upper bound for range queries")
	flags.StringVar(&opts.Pattern, "pattern", "", "LIKE pattern for like queries")
	flags.StringSliceVar(&opts.Select, "select", nil, "project these indexed paths instead of whole entries")
	flags.StringVar(&opts.OrderBy, "order-by", "", "indexed path to order by")
	flags.StringVar(&opts.Order, "order", "asc", "order direction (asc|desc)")
	flags.IntVar(&opts.PageSize, "page-size", 0, "rows per page (0 returns all rows)")
	flags.IntVar(&opts.Page, "page", 0, "page index")
	flags.BoolVar(&opts.Count, "count", false, "print the number of matching entries")
	flags.BoolVar(&opts.Explain, "explain", false, "print the query plan")

	return cmd
}

func runQuery(opts *QueryOptions, soup string, cmd *cobra.Command) error {
	spec := &harness.QuerySpec{
		Kind:     opts.Kind,
		Path:     opts.Path,
		Value:    parseScalar(opts.Value),
		Begin:    parseScalar(opts.Begin),
		End:      parseScalar(opts.End),
		Pattern:  opts.Pattern,
		Select:   opts.Select,
		OrderBy:  opts.OrderBy,
		Order:    opts.Order,
		PageSize: opts.PageSize,
	}
	q, err := harness.BuildQuery(soup, spec)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	return withSession(opts.RootOptions, cmd, func(s *session) error {
		var result QueryResult
		if opts.Count {
			n, err := s.SmartStore.Count(cmd.Context(), q)
			if err != nil {
				return s.fail("count", err)
			}
			result.Count = &n
		} else {
			rows, err := s.Query(cmd.Context(), q, opts.Page)
			if err != nil {
				return s.fail("query", err)
			}
			result.Rows = rows
		}
		if opts.Explain && !opts.Count {
			if plan, ok := s.GetLastExplainQueryPlan(); ok {
				result.Plan = &plan
			}
		}

		if s.out.Format == "json" {
			return s.out.Success(result)
		}
		if result.Count != nil {
			fmt.Fprintln(s.out.Writer, *result.Count)
			return nil
		}
		if err := writeLines(s.out.Writer, result.Rows); err != nil {
			return err
		}
		if result.Plan != nil {
			fmt.Fprintln(s.out.Writer, "Query plan:")
			for _, d := range result.Plan.Details() {
				fmt.Fprintf(s.out.Writer, "  %s\n", d)
			}
		}
		return nil
	})
}
