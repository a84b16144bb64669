package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/soupstore/internal/blob"
	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/harness"
	"github.com/roach88/soupstore/internal/smartstore"
	"github.com/roach88/soupstore/internal/store"
	"github.com/roach88/soupstore/internal/value"
)

// session is one opened store for the duration of a command.
type session struct {
	*smartstore.SmartStore

	out   *OutputFormatter
	st    *store.Store
	blobs blob.Store
}

// openSession opens the store and blob store described by opts.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	logger := slog.Default()

	var storeOpts []store.Option
	storeOpts = append(storeOpts, store.WithLogger(logger))
	if opts.Driver != "" {
		storeOpts = append(storeOpts, store.WithDriver(opts.Driver))
	}
	st, err := store.Open(opts.Database, opts.Passphrase, storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	blobDir := opts.BlobDir
	if blobDir == "" {
		blobDir = filepath.Dir(opts.Database)
	}
	blobs, err := harness.OpenBlobs(opts.BlobBackend, blobDir, st.BlobKey(), logger)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open blob store", err)
	}

	var policy smartstore.ExternalizePolicy
	if opts.ExternalThreshold >= 0 {
		policy = smartstore.Threshold(opts.ExternalThreshold)
	}
	ss, err := smartstore.New(st, smartstore.Options{
		Blobs:       blobs,
		Externalize: policy,
		Logger:      logger,
	})
	if err != nil {
		blobs.Close()
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	return &session{
		SmartStore: ss,
		out:        newFormatter(opts, cmd),
		st:         st,
		blobs:      blobs,
	}, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// Close closes the blob store and the database.
func (s *session) Close() error {
	var errs []error
	if s.blobs != nil {
		errs = append(errs, s.blobs.Close())
	}
	errs = append(errs, s.st.Close())
	return errors.Join(errs...)
}

// fail reports a store error in the configured format and returns the
// matching exit error. Invalid input is a command error; everything else
// is a failure.
func (s *session) fail(op string, err error) error {
	code := string(fault.CodeOf(err))
	if code == "" {
		code = "ERROR"
	}
	if s.out.Format == "json" {
		if outErr := s.out.Error(code, err.Error(), nil); outErr != nil {
			return outErr
		}
	}
	exit := ExitFailure
	if fault.IsInvalidInput(err) {
		exit = ExitCommandError
	}
	return WrapExitError(exit, op+" failed", err)
}

// withSession opens a session, runs fn and closes the session.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(s *session) error) (err error) {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close store", closeErr)
		}
	}()
	return fn(s)
}

// printValues writes one JSON document per line in text mode, or a JSON
// array in the data field in json mode.
func printValues(out *OutputFormatter, vals []value.Value) error {
	if out.Format == "json" {
		return out.Success(value.Array(vals))
	}
	return writeLines(out.Writer, vals)
}

func writeLines(w io.Writer, vals []value.Value) error {
	for _, v := range vals {
		data, err := value.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, string(data)); err != nil {
			return err
		}
	}
	return nil
}

// parseDoc parses a JSON object argument.
func parseDoc(arg string) (value.Object, error) {
	doc, err := value.ParseObject([]byte(arg))
	if err != nil {
		return nil, fault.Invalid("invalid document JSON: %v", err)
	}
	return doc, nil
}

// parseScalar reads a query value: JSON when it parses, otherwise the raw
// text as a string.
func parseScalar(arg string) value.Value {
	if v, err := value.Parse([]byte(arg)); err == nil {
		return v
	}
	return value.String(arg)
}
