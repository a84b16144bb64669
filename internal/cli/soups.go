package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/soupstore/internal/compiler"
	"github.com/roach88/soupstore/internal/schema"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Indexes []string // "path:type"
	File    string   // CUE file or directory
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register [soup]",
		Short: "Register a soup",
		Long: `Register a soup with its index specs.

Index specs are given as path:type pairs, where type is string, integer,
floating or json1 (default string). Alternatively --file loads every soup
declared in a CUE file or directory.

Registering an existing soup with the same specs does nothing.

Examples:
  soupstore register employees --index name:string --index age:integer
  soupstore register --file ./soups`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return registerSoups(opts, args, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Indexes, "index", "i", nil, "index spec as path:type (repeatable)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "CUE soup definitions (file or directory)")

	return cmd
}

func registerSoups(opts *RegisterOptions, args []string, cmd *cobra.Command) error {
	defs, err := soupDefs(opts, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid soup definition", err)
	}

	return withSession(opts.RootOptions, cmd, func(s *session) error {
		names := make([]string, 0, len(defs))
		for _, def := range defs {
			if err := s.RegisterSoup(cmd.Context(), def.Name, def.Indexes); err != nil {
				return s.fail("register", err)
			}
			s.out.VerboseLog("registered %s with %d index specs", def.Name, len(def.Indexes))
			names = append(names, def.Name)
		}
		if s.out.Format == "json" {
			return s.out.Success(map[string]any{"registered": names})
		}
		fmt.Fprintf(s.out.Writer, "Registered %s\n", strings.Join(names, ", "))
		return nil
	})
}

func soupDefs(opts *RegisterOptions, args []string) ([]compiler.SoupDef, error) {
	if opts.File != "" {
		if len(args) > 0 || len(opts.Indexes) > 0 {
			return nil, fmt.Errorf("--file cannot be combined with a soup name or --index")
		}
		info, err := os.Stat(opts.File)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return compiler.LoadDir(opts.File)
		}
		return compiler.LoadFile(opts.File)
	}

	if len(args) != 1 {
		return nil, fmt.Errorf("a soup name or --file is required")
	}
	specs, err := ParseIndexSpecs(opts.Indexes)
	if err != nil {
		return nil, err
	}
	return []compiler.SoupDef{{Name: args[0], Indexes: specs}}, nil
}

// ParseIndexSpecs parses path:type flags. A missing type means string.
func ParseIndexSpecs(flags []string) ([]schema.IndexSpec, error) {
	specs := make([]schema.IndexSpec, 0, len(flags))
	for i, f := range flags {
		path, typ := f, string(schema.TypeString)
		if idx := strings.LastIndex(f, ":"); idx >= 0 {
			path, typ = f[:idx], f[idx+1:]
		}
		t, err := schema.ParseType(typ)
		if err != nil {
			return nil, fmt.Errorf("--index %q: %w", f, err)
		}
		if path == "" {
			return nil, fmt.Errorf("--index %q: empty path", f)
		}
		specs = append(specs, schema.IndexSpec{Path: path, Type: t, Position: i})
	}
	return specs, nil
}

// NewSoupsCommand creates the soups command.
func NewSoupsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "soups",
		Short: "List registered soups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				names, err := s.SoupNames(cmd.Context())
				if err != nil {
					return s.fail("list soups", err)
				}
				if s.out.Format == "json" {
					return s.out.Success(names)
				}
				for _, name := range names {
					fmt.Fprintln(s.out.Writer, name)
				}
				return nil
			})
		},
	}
}

// SoupInfo is the output of the show command.
type SoupInfo struct {
	Name     string             `json:"name"`
	Table    string             `json:"table"`
	Indexes  []schema.IndexSpec `json:"indexes"`
	Columns  []string           `json:"columns"`
	TableSQL string             `json:"table_sql"`
	IndexSQL []string           `json:"index_sql"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <soup>",
		Short: "Show a soup's table, index specs and DDL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				info, err := showSoup(s, cmd, args[0])
				if err != nil {
					return s.fail("show", err)
				}
				if s.out.Format == "json" {
					return s.out.Success(info)
				}
				w := s.out.Writer
				fmt.Fprintf(w, "Soup:    %s\n", info.Name)
				fmt.Fprintf(w, "Table:   %s\n", info.Table)
				fmt.Fprintf(w, "Columns: %s\n", strings.Join(info.Columns, ", "))
				fmt.Fprintln(w, "Index specs:")
				for _, spec := range info.Indexes {
					fmt.Fprintf(w, "  %d  %s %s\n", spec.Position, spec.Path, spec.Type)
				}
				fmt.Fprintln(w, "DDL:")
				fmt.Fprintf(w, "  %s\n", info.TableSQL)
				for _, stmt := range info.IndexSQL {
					fmt.Fprintf(w, "  %s\n", stmt)
				}
				return nil
			})
		},
	}
}

func showSoup(s *session, cmd *cobra.Command, name string) (*SoupInfo, error) {
	ctx := cmd.Context()
	soup, err := s.Registry().Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	cols, err := s.Registry().Columns(ctx, soup.Table)
	if err != nil {
		return nil, err
	}
	tableSQL, err := s.Registry().TableSQL(ctx, soup.Table)
	if err != nil {
		return nil, err
	}
	indexes, err := s.Registry().Indexes(ctx, soup.Table)
	if err != nil {
		return nil, err
	}
	info := &SoupInfo{
		Name:     soup.Name,
		Table:    soup.Table,
		Indexes:  soup.Indexes,
		Columns:  cols,
		TableSQL: tableSQL,
		IndexSQL: make([]string, len(indexes)),
	}
	for i, idx := range indexes {
		info.IndexSQL[i] = idx.SQL
	}
	return info, nil
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <soup>...",
		Short: "Drop soups with their entries and blobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				for _, name := range args {
					if err := s.DropSoup(cmd.Context(), name); err != nil {
						return s.fail("drop", err)
					}
				}
				if s.out.Format == "json" {
					return s.out.Success(map[string]any{"dropped": args})
				}
				fmt.Fprintf(s.out.Writer, "Dropped %s\n", strings.Join(args, ", "))
				return nil
			})
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every soup",
		Long: `Drop every soup, its table and its blobs, leaving a store that behaves
like a freshly created one. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "reset drops every soup; pass --yes to confirm")
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				if err := s.DropAllSoups(cmd.Context()); err != nil {
					return s.fail("reset", err)
				}
				s.Store().Reset()
				if s.out.Format == "json" {
					return s.out.Success(map[string]any{"reset": true})
				}
				fmt.Fprintln(s.out.Writer, "All soups dropped")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping every soup")
	return cmd
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [soup]...",
		Short: "Check soup tables, indexes and blobs for drift",
		Long: `Check that each soup's table and indexes match its registered specs and
that externalized entries and stored blobs agree. With no arguments every
soup is checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				names := args
				if len(names) == 0 {
					var err error
					names, err = s.SoupNames(cmd.Context())
					if err != nil {
						return s.fail("verify", err)
					}
				}
				for _, name := range names {
					if err := s.Verify(cmd.Context(), name); err != nil {
						return s.fail("verify", err)
					}
					s.out.VerboseLog("verified %s", name)
				}
				if s.out.Format == "json" {
					return s.out.Success(map[string]any{"verified": names})
				}
				fmt.Fprintf(s.out.Writer, "✓ %d soup(s) verified\n", len(names))
				return nil
			})
		},
	}
}

