package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// ConfigPath is an optional YAML file supplying defaults for the
	// store flags below. Flags given on the command line win.
	ConfigPath string

	Database          string
	Passphrase        string
	BlobDir           string
	BlobBackend       string
	ExternalThreshold int // negative disables externalization
	Driver            string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the soupstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "soupstore",
		Short: "soupstore - JSON document soups on SQLite",
		Long: `Store schemaless JSON documents in named soups backed by SQLite.

Each soup declares index specs (path and type); indexed paths are projected
into their own columns so queries on them use SQLite indexes. Large entries
can be externalized to a blob store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.ConfigPath != "" {
				cfg, err := LoadConfig(opts.ConfigPath)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load config", err)
				}
				cfg.Apply(opts, cmd.Flags().Changed)
			}
			slog.SetDefault(newLogger(opts.Verbose))
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	flags.StringVar(&opts.Database, "db", "soupstore.db", "path to SQLite database")
	flags.StringVar(&opts.Passphrase, "passphrase", "", "store passphrase")
	flags.StringVar(&opts.BlobDir, "blobs", "", "blob store directory (default: next to the database)")
	flags.StringVar(&opts.BlobBackend, "blob-backend", "dir", "blob backend (dir|bolt)")
	flags.IntVar(&opts.ExternalThreshold, "external-threshold", -1, "externalize entries larger than this many bytes (-1 disables)")
	flags.StringVar(&opts.Driver, "driver", "", "database/sql driver (sqlite3|sqlite)")

	// Add subcommands
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewSoupsCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewDropCommand(opts))
	cmd.AddCommand(NewUpsertCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newLogger returns a colored stderr logger. Store internals log at debug,
// so they only show with --verbose.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
