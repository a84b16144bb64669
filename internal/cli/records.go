package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/soupstore/internal/value"
)

// UpsertOptions holds flags for the upsert command.
type UpsertOptions struct {
	*RootOptions
	Key string // external id path
}

// NewUpsertCommand creates the upsert command.
func NewUpsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "upsert <soup> [json]",
		Short: "Insert or update an entry",
		Long: `Insert or update a JSON document. The document is read from the argument,
or from stdin when the argument is omitted or "-".

Without --key, a document carrying _soupEntryId updates that entry and any
other document is inserted. With --key, the entry whose value at the key
path equals the document's is updated.

Examples:
  soupstore upsert employees '{"name":"Ann","age":41}'
  soupstore upsert employees --key employeeId < ann.json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return upsertEntry(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "external id path to match existing entries")

	return cmd
}

func upsertEntry(opts *UpsertOptions, args []string, cmd *cobra.Command) error {
	src := "-"
	if len(args) == 2 {
		src = args[1]
	}
	if src == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		src = string(data)
	}

	doc, err := parseDoc(src)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid document", err)
	}

	return withSession(opts.RootOptions, cmd, func(s *session) error {
		saved, err := s.UpsertWithKey(cmd.Context(), args[0], doc, opts.Key)
		if err != nil {
			return s.fail("upsert", err)
		}
		return printValues(s.out, []value.Value{saved})
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <soup> <id>...",
		Short: "Retrieve entries by id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				docs, err := s.Retrieve(cmd.Context(), args[0], ids...)
				if err != nil {
					return s.fail("get", err)
				}
				vals := make([]value.Value, len(docs))
				for i, d := range docs {
					vals[i] = d
				}
				return printValues(s.out, vals)
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete <soup> [id]...",
		Short: "Delete entries by id, or every entry with --all",
		Long: `Delete entries and their blobs. Ids that do not exist are ignored.
With --all the soup is cleared but stays registered; entry ids keep
increasing.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 1) {
				return NewExitError(ExitCommandError, "give either entry ids or --all")
			}
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				if all {
					err = s.Clear(cmd.Context(), args[0])
				} else {
					err = s.Delete(cmd.Context(), args[0], ids...)
				}
				if err != nil {
					return s.fail("delete", err)
				}
				if s.out.Format == "json" {
					return s.out.Success(map[string]any{"soup": args[0], "ids": ids, "all": all})
				}
				if all {
					fmt.Fprintf(s.out.Writer, "Cleared %s\n", args[0])
				} else {
					fmt.Fprintf(s.out.Writer, "Deleted %d id(s) from %s\n", len(ids), args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every entry of the soup")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid entry id %q", a))
		}
		ids[i] = id
	}
	return ids, nil
}

